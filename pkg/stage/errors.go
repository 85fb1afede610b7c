package stage

import "errors"

// Failure taxonomy. Callers use errors.Is on Result.Err.
var (
	// ErrToolNotFound means a required binary is not installed. Fatal
	// before any stage runs.
	ErrToolNotFound = errors.New("stage: tool not found")

	// ErrStageTimedOut means the hard timeout expired while the tool ran.
	ErrStageTimedOut = errors.New("stage: hard timeout exceeded")

	// ErrStageStalled means the tool produced no output growth for longer
	// than the activity timeout.
	ErrStageStalled = errors.New("stage: stalled with no output activity")

	// ErrStageFailedNonZero means the tool exited non-zero or produced no
	// required output.
	ErrStageFailedNonZero = errors.New("stage: tool failed")

	// ErrEmptyOutput accompanies ErrStageFailedNonZero when the tool exited
	// zero but its required output is missing or empty.
	ErrEmptyOutput = errors.New("stage: required output missing or empty")

	// ErrUnexpected covers anything else: spawn failures, recovered panics,
	// I/O errors in the supervisor itself.
	ErrUnexpected = errors.New("stage: unexpected error")

	// ErrInvalidTransition is returned for a status change that would move
	// backwards or leave a terminal status.
	ErrInvalidTransition = errors.New("stage: invalid status transition")
)
