package beakerwatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// scriptClient feeds a fixed sequence of poll results; the last entry
// repeats forever, matching a remote whose terminal status never flaps.
type scriptClient struct {
	mu        sync.Mutex
	steps     []step
	calls     int
	submitErr error
}

type step struct {
	status Status
	err    error
}

func (c *scriptClient) SubmitJob(ctx context.Context, jobXML string) (*Job, error) {
	if c.submitErr != nil {
		return nil, c.submitErr
	}
	return &Job{ID: "J:1"}, nil
}

func (c *scriptClient) QueryStatus(ctx context.Context, job *Job) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	c.calls++
	if i >= len(c.steps) {
		i = len(c.steps) - 1
	}
	s := c.steps[i]
	if s.err != nil {
		return "", s.err
	}
	return s.status, nil
}

func (c *scriptClient) queryCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// changeLog collects OnChange pairs.
type changeLog struct {
	mu    sync.Mutex
	pairs [][2]Status
}

func (l *changeLog) record(prev, cur Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pairs = append(l.pairs, [2]Status{prev, cur})
}

func (l *changeLog) snapshot() [][2]Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][2]Status(nil), l.pairs...)
}

func fastWatch(initial Status, changes *changeLog) WatchConfig {
	cfg := WatchConfig{
		InitialStatus: initial,
		Delay:         time.Millisecond,
		Period:        time.Millisecond,
	}
	if changes != nil {
		cfg.OnChange = changes.record
	}
	return cfg
}

func awaitWithin(t *testing.T, w *Watchdog, d time.Duration) (Status, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return w.Await(ctx)
}

func TestWatchdog_RunsToCompletion(t *testing.T) {
	client := &scriptClient{steps: []step{
		{status: StatusNew},
		{status: StatusQueued},
		{status: StatusRunning},
		{status: StatusCompleted},
	}}
	changes := &changeLog{}
	w := NewWatchdog(client, &Job{ID: "J:1"}, fastWatch(StatusNew, changes))
	w.Start()

	final, err := awaitWithin(t, w, 2*time.Second)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if final != StatusCompleted {
		t.Fatalf("want final status %s, got %s", StatusCompleted, final)
	}
	want := [][2]Status{
		{StatusNew, StatusQueued},
		{StatusQueued, StatusRunning},
		{StatusRunning, StatusCompleted},
	}
	got := changes.snapshot()
	if len(got) != len(want) {
		t.Fatalf("want %d change notifications, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("change %d: want %v, got %v", i, want[i], got[i])
		}
	}
	if w.Previous() != StatusRunning {
		t.Fatalf("want previous status %s, got %s", StatusRunning, w.Previous())
	}

	// A terminal job keeps reporting the same status.
	for i := 0; i < 3; i++ {
		s, err := client.QueryStatus(context.Background(), &Job{ID: "J:1"})
		if err != nil || s != StatusCompleted {
			t.Fatalf("terminal status flapped: %s %v", s, err)
		}
	}
}

func TestWatchdog_FailureStatusStillFinishes(t *testing.T) {
	client := &scriptClient{steps: []step{
		{status: StatusNew},
		{status: StatusRunning},
		{status: StatusAborted},
	}}
	w := NewWatchdog(client, &Job{ID: "J:1"}, fastWatch(StatusNew, nil))
	w.Start()

	final, err := awaitWithin(t, w, 2*time.Second)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if final != StatusAborted {
		t.Fatalf("want final status %s, got %s", StatusAborted, final)
	}
	if !final.IsFailure() {
		t.Fatalf("%s should classify as failure", final)
	}
}

func TestWatchdog_UnchangedTicksDoNotNotify(t *testing.T) {
	client := &scriptClient{steps: []step{
		{status: StatusNew},
		{status: StatusQueued},
		{status: StatusQueued},
		{status: StatusQueued},
		{status: StatusCompleted},
	}}
	changes := &changeLog{}
	w := NewWatchdog(client, &Job{ID: "J:1"}, fastWatch(StatusNew, changes))
	w.Start()

	if _, err := awaitWithin(t, w, 2*time.Second); err != nil {
		t.Fatalf("Await: %v", err)
	}
	got := changes.snapshot()
	if len(got) != 2 {
		t.Fatalf("want 2 change notifications, got %d: %v", len(got), got)
	}
	if w.Previous() != StatusQueued {
		t.Fatalf("unchanged ticks must not touch previous status; got %s", w.Previous())
	}
}

func TestWatchdog_AwaitBeforeFirstTick(t *testing.T) {
	client := &scriptClient{steps: []step{{status: StatusCompleted}}}
	cfg := fastWatch(StatusNew, nil)
	cfg.Delay = 50 * time.Millisecond
	w := NewWatchdog(client, &Job{ID: "J:1"}, cfg)
	w.Start()

	// The waiter parks well before the first poll fires.
	final, err := awaitWithin(t, w, 2*time.Second)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if final != StatusCompleted {
		t.Fatalf("want %s, got %s", StatusCompleted, final)
	}
}

func TestWatchdog_CancelStopsPolling(t *testing.T) {
	client := &scriptClient{steps: []step{{status: StatusNew}}}
	changes := &changeLog{}
	seen := make(chan struct{}, 1)
	cfg := fastWatch("", nil)
	cfg.OnChange = func(prev, cur Status) {
		changes.record(prev, cur)
		select {
		case seen <- struct{}{}:
		default:
		}
	}
	w := NewWatchdog(client, &Job{ID: "J:1"}, cfg)
	w.Start()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-seen
		cancel()
	}()

	final, err := w.Await(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if final != StatusNew {
		t.Fatalf("want last observed status %s, got %s", StatusNew, final)
	}
	got := changes.snapshot()
	if len(got) != 1 || got[0][1] != StatusNew {
		t.Fatalf("want exactly one change notification for %s, got %v", StatusNew, got)
	}

	// The poller must stop: no further queries after cancellation settles.
	time.Sleep(10 * time.Millisecond)
	before := client.queryCalls()
	time.Sleep(20 * time.Millisecond)
	if after := client.queryCalls(); after != before {
		t.Fatalf("poller still ticking after cancel: %d -> %d", before, after)
	}
}

func TestWatchdog_QueryFailureSkipsTick(t *testing.T) {
	qerr := &QueryError{JobID: "J:1", Err: fmt.Errorf("connection refused")}
	client := &scriptClient{steps: []step{
		{err: qerr},
		{err: qerr},
		{status: StatusCompleted},
	}}
	changes := &changeLog{}
	w := NewWatchdog(client, &Job{ID: "J:1"}, fastWatch(StatusNew, changes))
	w.Start()

	final, err := awaitWithin(t, w, 2*time.Second)
	if err != nil {
		t.Fatalf("transient failures must not end the watch: %v", err)
	}
	if final != StatusCompleted {
		t.Fatalf("want %s, got %s", StatusCompleted, final)
	}
	if got := changes.snapshot(); len(got) != 1 {
		t.Fatalf("failed polls must not notify: %v", got)
	}
	if client.queryCalls() < 3 {
		t.Fatalf("want at least 3 queries, got %d", client.queryCalls())
	}
}

func TestWatchdog_ConsecutiveFailureCeiling(t *testing.T) {
	qerr := &QueryError{JobID: "J:1", Err: fmt.Errorf("connection refused")}
	client := &scriptClient{steps: []step{{err: qerr}}}
	cfg := fastWatch(StatusNew, nil)
	cfg.MaxQueryFailures = 3
	w := NewWatchdog(client, &Job{ID: "J:1"}, cfg)
	w.Start()

	_, err := awaitWithin(t, w, 2*time.Second)
	if err == nil {
		t.Fatal("want an error once the failure ceiling is hit")
	}
	var qe *QueryError
	if !errors.As(err, &qe) {
		t.Fatalf("want the underlying query error preserved, got %v", err)
	}
	if calls := client.queryCalls(); calls != 3 {
		t.Fatalf("want exactly 3 queries before giving up, got %d", calls)
	}
}
