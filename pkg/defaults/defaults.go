// Package defaults provides canonical default values for the supervisor.
// This is the SINGLE SOURCE OF TRUTH for runtime configuration defaults.
//
// Usage:
//
//	pool := workerpool.New(defaults.Threads)
//	base := defaults.ReportsDir()
//
// DO NOT use hardcoded values like `Threads: 3` anywhere.
// Instead, reference the appropriate constant from this package.
package defaults

import "os"

// Version is the current bagbounty version
const Version = "1.3.0"

// ToolName is used for the service name in traces and the metrics namespace.
const ToolName = "bagbounty"

// ============================================================================
// CONCURRENCY SETTINGS
// ============================================================================

const (
	// Threads is the default sub-task pool size (3)
	Threads = 3

	// HTTPXThreads is the default httpx -t value (200)
	HTTPXThreads = 200

	// KatanaDepth is the default katana crawl depth (5)
	KatanaDepth = 5
)

// ============================================================================
// SUPERVISION LIMITS
// ============================================================================

const (
	// LogRingSize is how many events the in-memory log ring retains (2048)
	LogRingSize = 2048

	// OutputCapture caps the bytes of stdout/stderr kept per stage (4 MiB)
	OutputCapture = 4 << 20
)

// ============================================================================
// PATHS & ENVIRONMENT
// ============================================================================

const (
	// ReportsDirEnv overrides the base reports directory.
	ReportsDirEnv = "BAGBOUNTY_REPORTS_DIR"

	// ReportsDirName is the base reports directory when ReportsDirEnv is unset.
	ReportsDirName = "reports"

	// RunStateFile is the resume state file inside the workspace.
	RunStateFile = "run-state.json"

	// LogFileName is the supervision log file inside the workspace logs dir.
	LogFileName = "supervisor.log"
)

// ReportsDir returns the base reports directory honouring ReportsDirEnv.
func ReportsDir() string {
	if v := os.Getenv(ReportsDirEnv); v != "" {
		return v
	}
	return ReportsDirName
}

// Ports httpx probes on every discovered host.
var Ports = []int{80, 443, 8080, 8000, 8888}
