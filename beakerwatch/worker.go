package beakerwatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TaskTypeRun is the asynq task type carrying a RunRequest.
const TaskTypeRun = "beaker:run"

// RunRequest is the payload of a queued run. Exactly one of JobXML and
// JobPath must be set; JobXML wins when both are.
type RunRequest struct {
	JobXML  string `json:"job_xml,omitempty"`
	JobPath string `json:"job_path,omitempty"`
}

func (r RunRequest) source() (JobSource, error) {
	switch {
	case r.JobXML != "":
		return XMLSource(r.JobXML), nil
	case r.JobPath != "":
		return FileSource{Path: r.JobPath}, nil
	}
	return nil, fmt.Errorf("run request carries neither job_xml nor job_path")
}

// Enqueuer wraps asynq.Client to queue run requests.
type Enqueuer struct {
	client *asynq.Client
	queue  string
}

func NewEnqueuer(redisOpt asynq.RedisClientOpt, queue string) *Enqueuer {
	if queue == "" {
		queue = "default"
	}
	return &Enqueuer{client: asynq.NewClient(redisOpt), queue: queue}
}

// EnqueueRun queues one run request. Submission is never retried, so the
// task defaults to a single attempt; callers can override with options.
func (e *Enqueuer) EnqueueRun(ctx context.Context, req RunRequest, options ...asynq.Option) (*asynq.TaskInfo, error) {
	if _, err := req.source(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	t := asynq.NewTask(TaskTypeRun, payload)
	opts := append([]asynq.Option{asynq.Queue(e.queue), asynq.MaxRetry(0)}, options...)
	return e.client.EnqueueContext(ctx, t, opts...)
}

func (e *Enqueuer) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// WorkerConfig sizes the background worker.
type WorkerConfig struct {
	Concurrency int
	Queues      map[string]int
}

// Worker consumes queued run requests and executes each through a Runner.
// Lifecycle recording happens inside the Runner via its Store, so a worker
// needs no extra bookkeeping of its own.
type Worker struct {
	server *asynq.Server
	runner *Runner
}

func NewWorker(redisOpt asynq.RedisClientOpt, runner *Runner, cfg WorkerConfig) *Worker {
	con := cfg.Concurrency
	if con <= 0 {
		con = 5
	}
	qs := cfg.Queues
	if qs == nil {
		qs = map[string]int{"default": 1}
	}
	server := asynq.NewServer(redisOpt, asynq.Config{Concurrency: con, Queues: qs})
	return &Worker{server: server, runner: runner}
}

func (w *Worker) handleRun(ctx context.Context, t *asynq.Task) error {
	var req RunRequest
	if err := json.Unmarshal(t.Payload(), &req); err != nil {
		return fmt.Errorf("decode run request: %w", err)
	}
	src, err := req.source()
	if err != nil {
		return err
	}
	res := w.runner.Run(ctx, src)
	if res.Outcome == OutcomeSucceeded {
		return nil
	}
	if res.Err != nil {
		return res.Err
	}
	return fmt.Errorf("run of job %s ended %s", res.JobID, res.Outcome)
}

// Start runs the worker until Shutdown. Blocking.
func (w *Worker) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeRun, w.handleRun)
	return w.server.Run(mux)
}

func (w *Worker) Shutdown() { w.server.Shutdown() }
