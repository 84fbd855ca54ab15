package beakerwatch

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
)

// Outcome classifies how a run ended.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Result is what a run reports back to the caller.
type Result struct {
	Outcome     Outcome
	JobID       string // empty when submission never happened
	FinalStatus Status // last observed status, if the watch started
	Err         error  // diagnostic for failed or cancelled runs
}

// RunnerOptions configure a Runner.
type RunnerOptions struct {
	Watch WatchConfig
	// Store, when set, records the run lifecycle. Best effort: store errors
	// are logged and never fail the run.
	Store Store
}

// Runner sequences one job run: prepare the job XML, submit it, then watch
// the job until it reaches a terminal status. Preparation and submission are
// plain synchronous steps; only the watch involves concurrency.
type Runner struct {
	client Client
	opts   RunnerOptions
}

func NewRunner(client Client, opts RunnerOptions) *Runner {
	return &Runner{client: client, opts: opts}
}

// Run executes a single job run. Run never panics on collaborator failure;
// every failure mode maps to a Result with a diagnostic error:
//
//   - source failure        -> Failed, *PreparationError
//   - hub rejects the job   -> Failed, *SubmissionError
//   - terminal failure      -> Failed, final status attached
//   - ctx cancelled waiting -> Cancelled, ctx error attached
func (r *Runner) Run(ctx context.Context, src JobSource) Result {
	jobXML, err := src.JobXML(ctx)
	if err != nil {
		perr := &PreparationError{Err: err}
		log.Printf("[beaker] %v", perr)
		return Result{Outcome: OutcomeFailed, Err: perr}
	}

	job, err := r.client.SubmitJob(ctx, jobXML)
	if err != nil {
		var serr *SubmissionError
		if !errors.As(err, &serr) {
			err = &SubmissionError{Err: err}
		}
		log.Printf("[beaker] %v", err)
		return Result{Outcome: OutcomeFailed, Err: err}
	}
	log.Printf("[beaker] job %s submitted", job.ID)
	r.recordSubmitted(ctx, job)

	final, err := r.watch(ctx, job)
	res := Result{JobID: job.ID, FinalStatus: final}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		res.Outcome = OutcomeCancelled
		res.Err = err
		log.Printf("[beaker] job %s aborted: wait cancelled", job.ID)
	case err != nil:
		res.Outcome = OutcomeFailed
		res.Err = err
		log.Printf("[beaker] job %s failed: %v", job.ID, err)
	case final.IsFailure():
		res.Outcome = OutcomeFailed
		res.Err = &JobFailedError{JobID: job.ID, Status: final}
		log.Printf("[beaker] job %s finished with status %s", job.ID, final)
	default:
		res.Outcome = OutcomeSucceeded
		log.Printf("[beaker] job %s finished", job.ID)
	}
	// The caller's ctx may already be cancelled here; the audit write still
	// has to land.
	r.recordFinished(context.Background(), job, res)
	return res
}

// watch wires the poller and the store together and blocks until done.
// Store writes happen on a drain goroutine so the OnChange callback never
// blocks the poller while the watch lock is held.
func (r *Runner) watch(ctx context.Context, job *Job) (Status, error) {
	type change struct{ prev, cur Status }
	changes := make(chan change, 32)

	cfg := r.opts.Watch
	userOnChange := cfg.OnChange
	cfg.OnChange = func(prev, cur Status) {
		log.Printf("[beaker] job %s changed state from %s to %s", job.ID, prev, cur)
		select {
		case changes <- change{prev, cur}:
		default:
		}
		if userOnChange != nil {
			userOnChange(prev, cur)
		}
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for c := range changes {
			if r.opts.Store == nil {
				continue
			}
			if err := r.opts.Store.UpdateStatus(context.Background(), job.ID, c.cur, time.Now().UTC()); err != nil {
				log.Printf("[beaker] record status of job %s: %v", job.ID, err)
			}
		}
	}()

	wd := NewWatchdog(r.client, job, cfg)
	final, err := wd.Watch(ctx)
	close(changes)
	<-drained
	return final, err
}

func (r *Runner) recordSubmitted(ctx context.Context, job *Job) {
	if r.opts.Store == nil {
		return
	}
	rec := RunRecord{
		ID:          uuid.NewString(),
		JobID:       job.ID,
		Status:      r.opts.Watch.InitialStatus,
		SubmittedAt: time.Now().UTC(),
	}
	if err := r.opts.Store.InsertSubmitted(ctx, rec); err != nil {
		log.Printf("[beaker] record submission of job %s: %v", job.ID, err)
	}
}

func (r *Runner) recordFinished(ctx context.Context, job *Job, res Result) {
	if r.opts.Store == nil {
		return
	}
	errMsg := ""
	if res.Err != nil {
		errMsg = res.Err.Error()
	}
	if err := r.opts.Store.MarkFinished(ctx, job.ID, res.Outcome, res.FinalStatus, errMsg, time.Now().UTC()); err != nil {
		log.Printf("[beaker] record result of job %s: %v", job.ID, err)
	}
}

// JobFailedError reports a job that ran to a failure-class terminal status.
type JobFailedError struct {
	JobID  string
	Status Status
}

func (e *JobFailedError) Error() string {
	return "job " + e.JobID + " finished with status " + string(e.Status)
}
