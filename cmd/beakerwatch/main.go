// Command beakerwatch submits one Beaker job and waits for it to finish.
// Exit code 0 means the job completed, 1 means it failed (or could not be
// prepared or submitted), 2 means the wait was interrupted.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohans/beakerwatch/beakerwatch"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config")
		jobPath    = flag.String("job", "", "path to the job XML file")
		hubURL     = flag.String("hub", "", "hub URL (overrides config)")
		timeout    = flag.Duration("timeout", 0, "overall deadline for the run (0 = none)")
	)
	flag.Parse()

	if *jobPath == "" {
		log.Fatal("[beaker] -job is required")
	}

	cfg := beakerwatch.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = beakerwatch.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("[beaker] load config: %v", err)
		}
	}
	if *hubURL != "" {
		cfg.Hub.URL = *hubURL
	}

	client, err := beakerwatch.NewHubClient(cfg.Hub)
	if err != nil {
		log.Fatalf("[beaker] %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	runner := beakerwatch.NewRunner(client, beakerwatch.RunnerOptions{Watch: cfg.Watch.WatchConfig()})
	res := runner.Run(ctx, beakerwatch.FileSource{Path: *jobPath})

	switch res.Outcome {
	case beakerwatch.OutcomeSucceeded:
		os.Exit(0)
	case beakerwatch.OutcomeCancelled:
		os.Exit(2)
	default:
		os.Exit(1)
	}
}
