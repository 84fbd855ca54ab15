// Command worker consumes queued Beaker run requests, executes each run to
// completion and serves the run records over HTTP.
package main

import (
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	_ "modernc.org/sqlite"

	"github.com/mohans/beakerwatch/beakerwatch"
)

func main() {
	configPath := flag.String("config", "beakerwatch.yaml", "path to YAML config")
	flag.Parse()

	cfg, err := beakerwatch.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("[beaker] load config: %v", err)
	}

	db, err := sql.Open("sqlite", cfg.Store.Path)
	if err != nil {
		log.Fatalf("[beaker] open run database: %v", err)
	}
	defer db.Close()
	if err := beakerwatch.EnsureSchema(db); err != nil {
		log.Fatalf("[beaker] apply schema: %v", err)
	}
	store := beakerwatch.NewSQLStore(db)

	client, err := beakerwatch.NewHubClient(cfg.Hub)
	if err != nil {
		log.Fatalf("[beaker] %v", err)
	}

	runner := beakerwatch.NewRunner(client, beakerwatch.RunnerOptions{
		Watch: cfg.Watch.WatchConfig(),
		Store: store,
	})

	redisOpt := asynq.RedisClientOpt{Addr: cfg.Queue.RedisAddr}
	worker := beakerwatch.NewWorker(redisOpt, runner, beakerwatch.WorkerConfig{
		Concurrency: cfg.Queue.Concurrency,
		Queues:      map[string]int{cfg.Queue.Name: 1},
	})

	enqueuer := beakerwatch.NewEnqueuer(redisOpt, cfg.Queue.Name)
	defer enqueuer.Close()

	api := beakerwatch.NewAPI(store, enqueuer)
	go func() {
		log.Printf("[beaker] run API listening on %s", cfg.API.Addr)
		if err := http.ListenAndServe(cfg.API.Addr, api.Router()); err != nil {
			log.Fatalf("[beaker] run API: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Print("[beaker] shutting down")
		worker.Shutdown()
	}()

	if err := worker.Start(); err != nil {
		log.Fatalf("[beaker] worker: %v", err)
	}
}
