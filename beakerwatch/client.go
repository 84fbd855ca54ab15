package beakerwatch

import "context"

// Job is a handle to a job accepted by the hub. The ID is assigned by the
// hub on submission and never changes.
type Job struct {
	ID string // e.g. "J:12345"
}

// Client is the minimal surface of the Beaker hub the watcher needs.
// Implementations must be safe for concurrent use.
type Client interface {
	// SubmitJob uploads a serialized job definition and returns a handle to
	// the accepted job. Failures are reported as *SubmissionError.
	SubmitJob(ctx context.Context, jobXML string) (*Job, error)
	// QueryStatus returns the job's current status. Transient failures
	// (hub unreachable, malformed response) are reported as *QueryError and
	// must not be confused with a terminal status.
	QueryStatus(ctx context.Context, job *Job) (Status, error)
}

// PreparationError indicates the job definition could not be produced or
// located. Fatal to the run, never retried.
type PreparationError struct {
	Err error
}

func (e *PreparationError) Error() string { return "prepare job: " + e.Err.Error() }
func (e *PreparationError) Unwrap() error { return e.Err }

// SubmissionError indicates the hub rejected the job or was unreachable
// during submission. Fatal to the run, never retried.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string { return "submit job: " + e.Err.Error() }
func (e *SubmissionError) Unwrap() error { return e.Err }

// QueryError indicates a single status poll failed to reach the hub or got
// an unusable response. Recovered by skipping the tick.
type QueryError struct {
	JobID string
	Err   error
}

func (e *QueryError) Error() string { return "query status of job " + e.JobID + ": " + e.Err.Error() }
func (e *QueryError) Unwrap() error { return e.Err }
