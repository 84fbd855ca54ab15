package beakerwatch

import (
	"fmt"
	"strings"
)

// Status represents a Beaker task status as reported by the hub.
// Kept as string for readability in SQL and log output.
type Status string

const (
	StatusNew       Status = "new"
	StatusProcessed Status = "processed"
	StatusQueued    Status = "queued"
	StatusScheduled Status = "scheduled"
	StatusWaiting   Status = "waiting"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusAborted   Status = "aborted"
)

// IsTerminal reports whether the status is one the job never leaves again.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusAborted
}

// IsFailure reports whether a terminal status counts as a failed run.
// Completed is the only success-class terminal status.
func (s Status) IsFailure() bool {
	return s == StatusCancelled || s == StatusAborted
}

// ParseStatus maps a hub-reported status string to a Status. The hub
// capitalizes status names; comparison is case-insensitive.
func ParseStatus(raw string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusNew:
		return StatusNew, nil
	case StatusProcessed:
		return StatusProcessed, nil
	case StatusQueued:
		return StatusQueued, nil
	case StatusScheduled:
		return StatusScheduled, nil
	case StatusWaiting:
		return StatusWaiting, nil
	case StatusRunning:
		return StatusRunning, nil
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusCancelled:
		return StatusCancelled, nil
	case StatusAborted:
		return StatusAborted, nil
	}
	return "", fmt.Errorf("unknown task status %q", raw)
}
