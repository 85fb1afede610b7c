// Package duration provides canonical time constants for the supervisor.
// This is the SINGLE SOURCE OF TRUTH for all time-based configuration.
//
// Usage:
//
//	runner := stage.NewRunner(stage.Options{SampleInterval: duration.ActivitySample})
//	ctx, cancel := context.WithTimeout(ctx, duration.ToolProbe)
//
// DO NOT use hardcoded time.Duration values like `30 * time.Second` in
// struct literals or field assignments. Reference a constant from this
// package instead.
package duration

import "time"

// ============================================================================
// STAGE TIMEOUTS
// ============================================================================
//
// Per-command limits applied by the stage runner. The activity timeout is
// independent of the hard timeout and may be disabled.
// ============================================================================

const (
	// StageHard is the default per-command hard timeout (5min)
	StageHard = 5 * time.Minute

	// StageActivity is the default silence allowed before a stage is
	// considered stalled (2min)
	StageActivity = 2 * time.Minute

	// Download is the hard timeout for a single download sub-task (10min)
	Download = 10 * time.Minute

	// ToolProbe bounds a pre-flight "tool --help" probe (5s)
	ToolProbe = 5 * time.Second

	// StageRetry is the base delay before re-running a failed stage; it
	// grows linearly with each attempt (5s)
	StageRetry = 5 * time.Second

	// StageRetryMax caps the delay between stage attempts (30s)
	StageRetryMax = 30 * time.Second
)

// ============================================================================
// SUPERVISION INTERVALS
// ============================================================================

const (
	// ActivitySample is how often the activity monitor samples output size (10s)
	ActivitySample = 10 * time.Second

	// HangCheck is the default interval of the periodic hanging checker (30s)
	HangCheck = 30 * time.Second

	// Heartbeat is the minimum gap between "still running" debug events (30s)
	Heartbeat = 30 * time.Second
)

// ============================================================================
// PROCESS TERMINATION
// ============================================================================

const (
	// KillGrace is how long a process gets to exit after SIGTERM before
	// SIGKILL is sent (3s)
	KillGrace = 3 * time.Second

	// KillPoll is the liveness polling interval while waiting out the grace
	// period (50ms)
	KillPoll = 50 * time.Millisecond

	// WaitDelay bounds how long the runner waits for inherited pipes to close
	// after the process exits or is killed (2s)
	WaitDelay = 2 * time.Second
)

// ============================================================================
// SHUTDOWN
// ============================================================================

const (
	// SignalGrace is the window after the first interrupt in which a second
	// interrupt forces exit (10s)
	SignalGrace = 10 * time.Second

	// MetricsShutdown bounds the metrics server shutdown (5s)
	MetricsShutdown = 5 * time.Second

	// MetricsReadHeader is the metrics server read-header timeout (5s)
	MetricsReadHeader = 5 * time.Second

	// TelemetryShutdown bounds the trace exporter flush on exit (5s)
	TelemetryShutdown = 5 * time.Second

	// TelemetryConnect bounds the trace exporter connection setup (10s)
	TelemetryConnect = 10 * time.Second
)
