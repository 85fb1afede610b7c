package stage

import "fmt"

// Status is the lifecycle state of a stage.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
	StatusStalled   Status = "stalled"
	StatusSkipped   Status = "skipped"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusTimedOut, StatusStalled, StatusSkipped:
		return true
	}
	return false
}

// Failed reports whether the status is one of the failure outcomes.
func (s Status) Failed() bool {
	return s == StatusFailed || s == StatusTimedOut || s == StatusStalled
}

// Transition moves *s to next. Allowed: pending→running, pending→skipped,
// running→any terminal status except skipped.
func (s *Status) Transition(next Status) error {
	cur := *s
	if cur == "" {
		cur = StatusPending
	}
	ok := false
	switch cur {
	case StatusPending:
		ok = next == StatusRunning || next == StatusSkipped
	case StatusRunning:
		ok = next.Terminal() && next != StatusSkipped
	}
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, next)
	}
	*s = next
	return nil
}
