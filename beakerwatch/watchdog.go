package beakerwatch

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Default poll cadence. The first query runs after DefaultDelay, every
// following one after DefaultPeriod.
const (
	DefaultDelay  = 10 * time.Second
	DefaultPeriod = 30 * time.Second
)

// WatchConfig configures a Watchdog.
type WatchConfig struct {
	// InitialStatus is the status assumed before the first poll. A change
	// notification fires only when an observed status differs from it.
	InitialStatus Status
	// Delay before the first poll. DefaultDelay when zero.
	Delay time.Duration
	// Period between polls. DefaultPeriod when zero.
	Period time.Duration
	// MaxQueryFailures ends the watch with an error after this many
	// consecutive failed polls. Zero means keep polling forever.
	MaxQueryFailures int
	// OnChange, when set, is called with every observed (previous, current)
	// pair. It runs while the watch lock is held and must not block.
	OnChange func(prev, cur Status)
}

// Watchdog polls the hub for the status of one job at a fixed cadence and
// lets a caller block until the job reaches a terminal status.
//
// All shared state lives behind one mutex with a condition variable on top:
// the poller mutates and broadcasts under the lock, Await loops on the
// condition until finished. A waiter that wakes up is therefore guaranteed
// to see the status that caused the wake.
type Watchdog struct {
	client Client
	job    *Job
	cfg    WatchConfig

	mu       sync.Mutex
	cond     *sync.Cond
	prev     Status
	cur      Status
	finished bool  // terminal status reached or watch stopped
	stopped  bool  // set when the watch ended without a terminal status
	pollErr  error // set when MaxQueryFailures was hit

	stop     chan struct{}
	stopOnce sync.Once
}

// NewWatchdog creates a watchdog for job. It does not poll until Start.
func NewWatchdog(client Client, job *Job, cfg WatchConfig) *Watchdog {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	w := &Watchdog{
		client: client,
		job:    job,
		cfg:    cfg,
		prev:   cfg.InitialStatus,
		cur:    cfg.InitialStatus,
		stop:   make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Start launches the polling loop in its own goroutine.
func (w *Watchdog) Start() {
	go w.run()
}

func (w *Watchdog) run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-w.stop
		cancel()
	}()

	delay := time.NewTimer(w.cfg.Delay)
	defer delay.Stop()
	select {
	case <-delay.C:
	case <-w.stop:
		return
	}

	failures := 0
	if w.tick(ctx, &failures) {
		w.halt()
		return
	}

	ticker := time.NewTicker(w.cfg.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if w.tick(ctx, &failures) {
				w.halt()
				return
			}
		case <-w.stop:
			return
		}
	}
}

// tick performs one status query. It returns true once the watch is done
// and no further ticks should run.
func (w *Watchdog) tick(ctx context.Context, failures *int) bool {
	status, err := w.client.QueryStatus(ctx, w.job)
	if err != nil {
		*failures++
		log.Printf("[beaker] status query for job %s failed (%d consecutive): %v", w.job.ID, *failures, err)
		if w.cfg.MaxQueryFailures > 0 && *failures >= w.cfg.MaxQueryFailures {
			w.mu.Lock()
			if !w.finished {
				w.pollErr = fmt.Errorf("giving up on job %s after %d consecutive failed status queries: %w",
					w.job.ID, *failures, err)
				w.stopped = true
				w.finished = true
				w.cond.Broadcast()
			}
			w.mu.Unlock()
			return true
		}
		return false
	}
	*failures = 0

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished {
		// Cancelled while the query was in flight; do not mutate.
		return true
	}
	if status == w.cur {
		// Unchanged: no mutation, no wake.
		return false
	}
	w.prev = w.cur
	w.cur = status
	if w.cfg.OnChange != nil {
		w.cfg.OnChange(w.prev, w.cur)
	}
	if status.IsTerminal() {
		w.finished = true
	}
	w.cond.Broadcast()
	return w.finished
}

func (w *Watchdog) halt() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// Await blocks until the job reaches a terminal status or ctx is cancelled.
// It returns the last observed status. The error is nil on normal
// completion, ctx.Err() when the wait was cancelled, or the accumulated
// query failure when MaxQueryFailures was hit. Cancellation stops the
// poller: no tick mutates state after Await returns.
func (w *Watchdog) Await(ctx context.Context) (Status, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if !w.finished {
				w.stopped = true
				w.finished = true
			}
			w.cond.Broadcast()
			w.mu.Unlock()
			w.halt()
		case <-done:
		}
	}()

	w.mu.Lock()
	defer w.mu.Unlock()
	for !w.finished {
		w.cond.Wait()
	}
	if w.stopped {
		if w.pollErr != nil {
			return w.cur, w.pollErr
		}
		return w.cur, ctx.Err()
	}
	return w.cur, nil
}

// Watch starts the poller and blocks until done. See Await.
func (w *Watchdog) Watch(ctx context.Context) (Status, error) {
	w.Start()
	return w.Await(ctx)
}

// Current returns the most recently observed status.
func (w *Watchdog) Current() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cur
}

// Previous returns the status held immediately before the last change.
func (w *Watchdog) Previous() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.prev
}

// Finished reports whether the watch has ended.
func (w *Watchdog) Finished() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finished
}
