// Package stage runs one external tool invocation under supervision: a hard
// wall-clock timeout, an optional activity timeout driven by output growth,
// process-group isolation and full tree termination on any abnormal exit.
package stage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/bagbounty/bagbounty/pkg/activity"
	"github.com/bagbounty/bagbounty/pkg/defaults"
	"github.com/bagbounty/bagbounty/pkg/duration"
	"github.com/bagbounty/bagbounty/pkg/reaper"
	"github.com/bagbounty/bagbounty/pkg/supervision"
	"github.com/bagbounty/bagbounty/pkg/timetracker"
	"golang.org/x/time/rate"
)

// Spec describes one invocation.
type Spec struct {
	// Name identifies the invocation in logs, invocation timings and the
	// in-flight registry.
	Name string

	// Command is shell text run with "sh -c".
	Command string

	// HardTimeout bounds wall-clock run time (default: duration.StageHard).
	HardTimeout time.Duration

	// ActivityTimeout bounds silence on the output. Zero disables stall
	// detection.
	ActivityTimeout time.Duration

	// Output is the file the tool produces. With CaptureStdout the runner
	// writes stdout there itself; otherwise the tool writes it.
	Output string

	// CaptureStdout redirects stdout into Output. The file only appears
	// under its final name when the stage succeeds.
	CaptureStdout bool

	// RequireOutput makes a zero exit with a missing or empty Output (or
	// empty stdout when Output is unset) a failure.
	RequireOutput bool

	// Dir is the working directory.
	Dir string

	// Env is appended to the supervisor's environment.
	Env []string
}

// Result is the outcome of Run. Err is nil only for StatusSucceeded.
type Result struct {
	Name          string
	Status        Status
	ExitCode      int
	Stdout        string
	Stderr        string
	Duration      time.Duration
	PID           int
	CorrelationID string
	Err           error
}

// Options configures a Runner.
type Options struct {
	Log    *supervision.Log
	Times  *timetracker.Tracker
	Reaper *reaper.Reaper

	// SampleInterval is the activity sampling period (default: duration.ActivitySample).
	SampleInterval time.Duration

	// Shell runs Command (default: "sh").
	Shell string
}

// Runner executes stages. It is safe for concurrent use.
type Runner struct {
	log      *supervision.Log
	times    *timetracker.Tracker
	reaper   *reaper.Reaper
	interval time.Duration
	shell    string
}

// NewRunner fills in defaults for unset options.
func NewRunner(opts Options) *Runner {
	if opts.Log == nil {
		opts.Log = supervision.Discard()
	}
	if opts.Times == nil {
		opts.Times = timetracker.New(timetracker.WithLogger(opts.Log.Logger()))
	}
	if opts.Reaper == nil {
		opts.Reaper = reaper.New(reaper.Options{Logger: opts.Log.Logger()})
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = duration.ActivitySample
	}
	if opts.Shell == "" {
		opts.Shell = "sh"
	}
	return &Runner{
		log:      opts.Log,
		times:    opts.Times,
		reaper:   opts.Reaper,
		interval: opts.SampleInterval,
		shell:    opts.Shell,
	}
}

// Run executes spec and blocks until the tool and its descendants are gone.
// Cancelling ctx terminates the tree and yields StatusFailed.
func (r *Runner) Run(ctx context.Context, spec Spec) Result {
	if spec.HardTimeout <= 0 {
		spec.HardTimeout = duration.StageHard
	}
	logger := r.log.Logger().With(slog.String("stage", spec.Name))
	res := Result{Name: spec.Name, ExitCode: -1}

	r.times.StartInvocation(spec.Name)
	defer r.times.EndInvocation(spec.Name)

	cmd := exec.Command(r.shell, "-c", spec.Command)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.WaitDelay = duration.WaitDelay
	setProcessGroup(cmd)

	stdoutBuf := newCaptureBuffer(defaults.OutputCapture)
	stderrBuf := newCaptureBuffer(defaults.OutputCapture)
	cmd.Stderr = stderrBuf

	var sink *os.File
	partial := ""
	if spec.CaptureStdout && spec.Output != "" {
		if err := os.MkdirAll(filepath.Dir(spec.Output), 0o755); err != nil {
			return r.unexpected(logger, res, fmt.Errorf("create output directory: %w", err))
		}
		partial = spec.Output + ".part"
		f, err := os.Create(partial)
		if err != nil {
			return r.unexpected(logger, res, fmt.Errorf("create output file: %w", err))
		}
		sink = f
	}

	var stdoutDst io.Writer = stdoutBuf
	if sink != nil {
		stdoutDst = sink
	}
	counter := activity.NewCounter(stdoutDst)
	cmd.Stdout = counter

	var probe activity.Probe = counter
	if spec.Output != "" && !spec.CaptureStdout {
		probe = activity.FileSize(spec.Output)
	}

	id := r.log.Register(spec.Name, spec.Command, spec.HardTimeout)
	defer r.log.Deregister(id)
	res.CorrelationID = id
	logger = logger.With(slog.String(supervision.CorrelationKey, id))

	start := time.Now()
	if err := cmd.Start(); err != nil {
		if sink != nil {
			sink.Close()
			os.Remove(partial)
		}
		return r.unexpected(logger, res, fmt.Errorf("spawn %s: %w", r.shell, err))
	}
	res.PID = cmd.Process.Pid
	r.log.SetPID(id, res.PID)
	logger.Info("stage started",
		slog.Int("pid", res.PID),
		slog.Duration("hard_timeout", spec.HardTimeout),
		slog.Duration("activity_timeout", spec.ActivityTimeout),
	)

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	var stalled <-chan struct{}
	var mon *activity.Monitor
	if spec.ActivityTimeout > 0 {
		mon = activity.Start(ctx, activity.Config{
			Timeout:  spec.ActivityTimeout,
			Interval: r.interval,
			Probe:    probe,
			Logger:   logger,
		})
		defer mon.Stop()
		stalled = mon.Stalled()
	}

	deadline := start.Add(spec.HardTimeout)
	hard := time.NewTimer(spec.HardTimeout)
	defer hard.Stop()

	beat := time.NewTicker(r.interval)
	defer beat.Stop()
	heartbeat := rate.Sometimes{Interval: duration.Heartbeat}

	var waitErr error
	var abort error
loop:
	for {
		select {
		case waitErr = <-waitCh:
			break loop

		case <-hard.C:
			select {
			case waitErr = <-waitCh:
				break loop
			default:
			}
			res.Status = StatusTimedOut
			abort = fmt.Errorf("%w after %s", ErrStageTimedOut, spec.HardTimeout)
			logger.Warn("stage timed out", slog.Duration("hard_timeout", spec.HardTimeout))
			break loop

		case <-stalled:
			if time.Until(deadline) <= r.interval {
				// The hard timeout is due within one sample; let it decide.
				stalled = nil
				continue
			}
			res.Status = StatusStalled
			idle := time.Since(mon.LastActivity()).Round(time.Second)
			abort = fmt.Errorf("%w for %s", ErrStageStalled, idle)
			logger.Warn("stage stalled: no output growth",
				slog.Duration("idle", idle),
				slog.Duration("activity_timeout", spec.ActivityTimeout),
			)
			break loop

		case <-ctx.Done():
			res.Status = StatusFailed
			abort = fmt.Errorf("stage cancelled: %w", ctx.Err())
			logger.Warn("stage cancelled", slog.String("reason", ctx.Err().Error()))
			break loop

		case <-beat.C:
			heartbeat.Do(func() {
				n, _ := counter.Size()
				logger.Debug("stage running",
					slog.Duration("elapsed", time.Since(start).Round(time.Second)),
					slog.Int64("stdout_bytes", n),
				)
			})
		}
	}

	// Reap time is not part of the stage's duration.
	res.Duration = time.Since(start)
	if mon != nil {
		mon.Stop()
	}
	if abort != nil {
		r.terminate(logger, cmd)
		waitErr = <-waitCh
	}
	res.Stderr = stderrBuf.String()
	if sink == nil {
		res.Stdout = stdoutBuf.String()
	}
	if stdoutBuf.Truncated() || stderrBuf.Truncated() {
		logger.Debug("captured output truncated", slog.Int("limit", defaults.OutputCapture))
	}

	if sink != nil {
		if err := sink.Close(); err != nil && abort == nil {
			abort = fmt.Errorf("%w: close output: %w", ErrUnexpected, err)
			res.Status = StatusFailed
		}
	}

	if abort != nil {
		res.Err = abort
		if partial != "" {
			os.Remove(partial)
		}
		return res
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		res.ExitCode = 0
	case errors.Is(waitErr, exec.ErrWaitDelay):
		res.ExitCode = 0
		logger.Warn("tool left output pipes open after exit")
	case errors.As(waitErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		if partial != "" {
			os.Remove(partial)
		}
		return r.unexpected(logger, res, fmt.Errorf("wait: %w", waitErr))
	}

	if res.ExitCode != 0 {
		res.Status = StatusFailed
		res.Err = fmt.Errorf("%w: %s", ErrStageFailedNonZero, waitErr)
		if partial != "" {
			os.Remove(partial)
		}
		logger.Warn("stage failed", slog.Int("exit_code", res.ExitCode), slog.Duration("duration", res.Duration))
		return res
	}

	if err := r.finishOutput(spec, partial, counter, &res); err != nil {
		res.Status = StatusFailed
		res.Err = err
		logger.Warn("stage produced no output", slog.String("output", spec.Output))
		return res
	}

	res.Status = StatusSucceeded
	logger.Info("stage succeeded", slog.Duration("duration", res.Duration.Round(time.Millisecond)))
	return res
}

// finishOutput publishes captured stdout and enforces RequireOutput.
func (r *Runner) finishOutput(spec Spec, partial string, counter *activity.Counter, res *Result) error {
	empty := false
	switch {
	case partial != "":
		n, _ := counter.Size()
		empty = n == 0
		if empty && spec.RequireOutput {
			os.Remove(partial)
			break
		}
		if err := os.Rename(partial, spec.Output); err != nil {
			return fmt.Errorf("%w: publish output: %w", ErrUnexpected, err)
		}
	case spec.Output != "":
		info, err := os.Stat(spec.Output)
		empty = err != nil || info.Size() == 0
	default:
		empty = res.Stdout == ""
	}
	if empty && spec.RequireOutput {
		return fmt.Errorf("%w: %w: %s", ErrStageFailedNonZero, ErrEmptyOutput, spec.Output)
	}
	return nil
}

// terminate kills the tool's process tree, then sweeps its process group
// for anything already re-parented away from the root.
func (r *Runner) terminate(logger *slog.Logger, cmd *exec.Cmd) {
	pid := cmd.Process.Pid
	res, err := r.reaper.KillTree(context.Background(), pid)
	switch {
	case err == nil:
		logger.Debug("process tree terminated", slog.Int("killed", res.Killed), slog.Any("survivors", res.Survivors))
	case errors.Is(err, reaper.ErrNoSuchProcess):
	default:
		logger.Debug("tree kill failed", slog.String("error", err.Error()))
	}
	if err := reaper.KillGroup(pid); err != nil {
		logger.Debug("group kill failed", slog.String("error", err.Error()))
	}
	_ = cmd.Process.Kill()
}

func (r *Runner) unexpected(logger *slog.Logger, res Result, err error) Result {
	res.Status = StatusFailed
	res.Err = fmt.Errorf("%w: %w", ErrUnexpected, err)
	logger.Error("stage could not run", slog.String("error", err.Error()))
	return res
}

