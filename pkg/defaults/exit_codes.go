package defaults

// Exit codes for the CLI.
const (
	ExitSuccess        = 0   // Pipeline finished, no load-bearing failure
	ExitPipelineFailed = 1   // A load-bearing stage failed
	ExitUserError      = 2   // Invalid arguments or configuration
	ExitToolNotFound   = 3   // Pre-flight check found a missing tool
	ExitInternalError  = 4   // Unexpected internal error
	ExitInterrupted    = 130 // Operator interrupt
)
