package config

import (
	"flag"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bagbounty/bagbounty/pkg/defaults"
	"github.com/bagbounty/bagbounty/pkg/duration"
	"github.com/bagbounty/bagbounty/pkg/supervision"
)

var domainPattern = regexp.MustCompile(`^(?i)[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?(?:\.[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?)+$`)

// ValidDomain reports whether s is a plain hostname safe to place in a
// shell command.
func ValidDomain(s string) bool {
	return len(s) <= 253 && domainPattern.MatchString(s)
}

// Run holds the options of the run subcommand.
type Run struct {
	Domain string

	// Execution
	Threads         int
	HardTimeout     time.Duration
	ActivityTimeout time.Duration
	HangCheck       time.Duration
	Resume          bool
	ReconOnly       bool
	SkipScan        bool

	// Paths
	ReportsDir   string
	WorkDir      string
	ConfigFile   string
	PipelineFile string
	LogFile      string

	// Output
	LogLevel     string
	JSON         bool
	NoColor      bool
	MetricsAddr  string
	OTelEndpoint string
	OTelInsecure bool
}

// NewRunFlags registers the run flags on a fresh FlagSet.
func NewRunFlags() (*flag.FlagSet, *Run, func() error) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	r := &Run{}
	var timeout, activity, hang int

	// === EXECUTION ===
	fs.IntVar(&r.Threads, "threads", defaults.Threads, "Sub-task pool size")
	fs.IntVar(&timeout, "timeout", int(duration.StageHard/time.Second), "Per-command hard timeout in seconds")
	fs.IntVar(&activity, "activity-timeout", int(duration.StageActivity/time.Second), "Seconds without output growth before a stage is stalled (0 disables)")
	fs.IntVar(&hang, "hang-check", int(duration.HangCheck/time.Second), "Hanging-process check interval in seconds (0 disables)")
	fs.BoolVar(&r.Resume, "resume", false, "Skip stages that succeeded in the previous run")
	fs.BoolVar(&r.ReconOnly, "recon-only", false, "Stop after discovery and collection")
	fs.BoolVar(&r.SkipScan, "skip-scan", false, "Skip the active scanning phase")

	// === PATHS ===
	fs.StringVar(&r.ReportsDir, "reports-dir", defaults.ReportsDir(), "Base reports directory")
	fs.StringVar(&r.WorkDir, "workdir", ".", "Directory the recon workspace is created in")
	fs.StringVar(&r.ConfigFile, "config", "", "YAML tool settings")
	fs.StringVar(&r.PipelineFile, "pipeline", "", "YAML pipeline definition replacing the built-in one")
	fs.StringVar(&r.LogFile, "log-file", "", "Supervision log file (default: <workspace>/logs/"+defaults.LogFileName+")")

	// === OUTPUT ===
	fs.StringVar(&r.LogLevel, "log-level", "info", "Console log level: debug, info, warning, error")
	fs.BoolVar(&r.JSON, "json", false, "Print the run summary as JSON on stdout")
	fs.BoolVar(&r.NoColor, "no-color", false, "Disable colored output")
	fs.StringVar(&r.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	fs.StringVar(&r.OTelEndpoint, "otel-endpoint", "", "OTLP gRPC endpoint for traces")
	fs.BoolVar(&r.OTelInsecure, "otel-insecure", true, "Disable TLS to the OTLP endpoint")

	finish := func() error {
		r.HardTimeout = time.Duration(timeout) * time.Second
		r.ActivityTimeout = time.Duration(activity) * time.Second
		r.HangCheck = time.Duration(hang) * time.Second
		if fs.NArg() > 0 {
			r.Domain = strings.ToLower(strings.TrimSpace(fs.Arg(0)))
		}
		return r.Validate()
	}
	return fs, r, finish
}

// ParseRun parses the run subcommand arguments. Flags may precede or
// follow the domain.
func ParseRun(args []string) (*Run, error) {
	fs, r, finish := NewRunFlags()
	flags, positional := splitArgs(fs, args)
	if err := fs.Parse(append(flags, positional...)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := finish(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the parsed options.
func (r *Run) Validate() error {
	if r.Domain == "" {
		return fmt.Errorf("%w: domain", ErrMissingRequired)
	}
	if !ValidDomain(r.Domain) {
		return fmt.Errorf("%w: %q is not a valid domain", ErrInvalidConfig, r.Domain)
	}
	if r.Threads < 1 {
		return fmt.Errorf("%w: -threads must be at least 1", ErrInvalidConfig)
	}
	if r.HardTimeout <= 0 {
		return fmt.Errorf("%w: -timeout must be positive", ErrInvalidConfig)
	}
	if r.ActivityTimeout < 0 {
		return fmt.Errorf("%w: -activity-timeout must not be negative", ErrInvalidConfig)
	}
	if r.HangCheck < 0 {
		return fmt.Errorf("%w: -hang-check must not be negative", ErrInvalidConfig)
	}
	if _, err := supervision.ParseLevel(r.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Reap holds the options of the reap subcommand.
type Reap struct {
	Keywords   []string
	Grace      time.Duration
	DryRun     bool
	ConfigFile string
	NoColor    bool
}

// ParseReap parses the reap subcommand arguments.
func ParseReap(args []string) (*Reap, error) {
	fs := flag.NewFlagSet("reap", flag.ContinueOnError)
	r := &Reap{}
	var keywords string
	var grace int
	fs.StringVar(&keywords, "k", "", "Comma-separated keywords matched against command lines")
	fs.IntVar(&grace, "grace", int(duration.KillGrace/time.Second), "Seconds between SIGTERM and SIGKILL")
	fs.BoolVar(&r.DryRun, "dry-run", false, "List matching process trees without signalling them")
	fs.StringVar(&r.ConfigFile, "config", "", "YAML tool settings")
	fs.BoolVar(&r.NoColor, "no-color", false, "Disable colored output")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if grace < 0 {
		return nil, fmt.Errorf("%w: -grace must not be negative", ErrInvalidConfig)
	}
	r.Grace = time.Duration(grace) * time.Second
	for _, k := range strings.Split(keywords, ",") {
		if k = strings.TrimSpace(k); k != "" {
			r.Keywords = append(r.Keywords, k)
		}
	}
	return r, nil
}

// splitArgs moves positional arguments after the flags so that
// "run example.com -threads 5" parses like "run -threads 5 example.com".
func splitArgs(fs *flag.FlagSet, args []string) (flags, positional []string) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if !strings.HasPrefix(a, "-") || a == "-" {
			positional = append(positional, a)
			continue
		}
		flags = append(flags, a)
		name := strings.TrimLeft(a, "-")
		if strings.Contains(name, "=") {
			continue
		}
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if bf, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && bf.IsBoolFlag() {
			continue
		}
		if i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}
	if len(positional) > 0 {
		positional = append([]string{"--"}, positional...)
	}
	return flags, positional
}
