package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/bagbounty/bagbounty/pkg/checkpoint"
	"github.com/bagbounty/bagbounty/pkg/config"
	"github.com/bagbounty/bagbounty/pkg/defaults"
	"github.com/bagbounty/bagbounty/pkg/duration"
	"github.com/bagbounty/bagbounty/pkg/metrics"
	"github.com/bagbounty/bagbounty/pkg/reaper"
	"github.com/bagbounty/bagbounty/pkg/retry"
	"github.com/bagbounty/bagbounty/pkg/stage"
	"github.com/bagbounty/bagbounty/pkg/supervision"
	"github.com/bagbounty/bagbounty/pkg/telemetry"
	"github.com/bagbounty/bagbounty/pkg/timetracker"
	"github.com/bagbounty/bagbounty/pkg/workerpool"
)

// Env carries the run-scoped collaborators. It is built once in main and
// threaded through; nothing here is a process-wide singleton.
type Env struct {
	Log    *supervision.Log
	Times  *timetracker.Tracker
	Runner *stage.Runner
	Reaper *reaper.Reaper

	// Metrics and Checkpoint may be nil.
	Metrics    *metrics.Collector
	Tracer     *telemetry.Tracer
	Checkpoint *checkpoint.Manager
}

// Options configures a run.
type Options struct {
	// Threads sizes the sub-task pool (default: defaults.Threads).
	Threads int

	// HardTimeout and ActivityTimeout apply to stages that do not set
	// their own. ActivityTimeout zero disables stall detection.
	HardTimeout     time.Duration
	ActivityTimeout time.Duration

	// Workspace is the directory stages run in.
	Workspace string

	// Vars are layered over the pipeline's own variables.
	Vars map[string]string

	// Resume skips stages the checkpoint records as succeeded.
	Resume bool

	// HangCheck is the hanging-process check interval; zero disables it.
	HangCheck time.Duration

	// RetryDelay is the base delay between attempts of a stage with
	// retries (default: duration.StageRetry).
	RetryDelay time.Duration

	// LookPath resolves tool binaries (default: exec.LookPath).
	LookPath func(string) (string, error)
}

// Engine runs pipelines.
type Engine struct {
	env  Env
	opts Options
	log  *slog.Logger
}

// New creates an engine, filling in defaults for unset collaborators.
func New(env Env, opts Options) *Engine {
	if env.Log == nil {
		env.Log = supervision.Discard()
	}
	if env.Times == nil {
		env.Times = timetracker.New(timetracker.WithLogger(env.Log.Logger()))
	}
	if env.Reaper == nil {
		env.Reaper = reaper.New(reaper.Options{Logger: env.Log.Logger()})
	}
	if env.Runner == nil {
		env.Runner = stage.NewRunner(stage.Options{Log: env.Log, Times: env.Times, Reaper: env.Reaper})
	}
	if env.Tracer == nil {
		env.Tracer = telemetry.Noop()
	}
	if opts.Threads <= 0 {
		opts.Threads = defaults.Threads
	}
	if opts.HardTimeout <= 0 {
		opts.HardTimeout = duration.StageHard
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = duration.StageRetry
	}
	if opts.Workspace == "" {
		opts.Workspace = "."
	}
	if opts.LookPath == nil {
		opts.LookPath = exec.LookPath
	}
	return &Engine{env: env, opts: opts, log: env.Log.Logger()}
}

// ToolStatus is the pre-flight result for one tool.
type ToolStatus struct {
	Name   string
	Binary string
	Path   string
	Err    error
}

// CheckTools resolves every tool p uses.
func (e *Engine) CheckTools(p *Pipeline) []ToolStatus {
	out := make([]ToolStatus, 0, len(p.Tools()))
	for _, name := range p.Tools() {
		bin := name
		if b, ok := e.opts.Vars["tool."+name]; ok && b != "" {
			bin = b
		}
		path, err := e.opts.LookPath(bin)
		out = append(out, ToolStatus{Name: name, Binary: bin, Path: path, Err: err})
	}
	return out
}

// Preflight fails with stage.ErrToolNotFound when any tool is missing.
func (e *Engine) Preflight(p *Pipeline) error {
	var missing []string
	for _, ts := range e.CheckTools(p) {
		if ts.Err != nil {
			e.log.Error("tool not found", slog.String("tool", ts.Name), slog.String("binary", ts.Binary))
			missing = append(missing, ts.Binary)
			continue
		}
		e.log.Debug("tool found", slog.String("tool", ts.Name), slog.String("path", ts.Path))
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", stage.ErrToolNotFound, strings.Join(missing, ", "))
	}
	return nil
}

// Reap terminates process trees matching m on operator request.
func (e *Engine) Reap(ctx context.Context, m reaper.Matcher, dryRun bool) (reaper.Report, error) {
	var (
		rep reaper.Report
		err error
	)
	if dryRun {
		rep, err = e.env.Reaper.DryRun(m)
	} else {
		rep, err = e.env.Reaper.Reap(ctx, m)
	}
	if err != nil {
		e.env.Log.Error("reap failed", slog.String("error", err.Error()))
		return rep, err
	}
	if !dryRun {
		e.env.Metrics.ObserveReap(rep.Found, rep.Killed, rep.Remaining)
	}
	e.env.Log.Info("reap finished",
		slog.Int("found", rep.Found),
		slog.Int("killed", rep.Killed),
		slog.Int("remaining", rep.Remaining),
		slog.Bool("dry_run", dryRun),
	)
	return rep, nil
}

// Run executes p against target. Stage failures are reported in the
// result; the error covers problems that stop the run from starting.
func (e *Engine) Run(ctx context.Context, p *Pipeline, target string) (*Result, error) {
	if !config.ValidDomain(target) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
	ws, err := filepath.Abs(e.opts.Workspace)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	vars := mergeVars(p.Variables, e.opts.Vars, map[string]string{
		"domain":    target,
		"workspace": ws,
	})
	if err := os.MkdirAll(ws, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	for _, d := range p.Directories {
		dir, err := resolvePath(d, ws, vars)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create workspace: %w", err)
		}
	}
	if err := e.openCheckpoint(target, p.Name); err != nil {
		return nil, err
	}

	res := &Result{Pipeline: p.Name, Target: target, Workspace: ws, Start: time.Now()}
	e.env.Times.StartTotal()
	e.env.Log.Info("pipeline started",
		slog.String("pipeline", p.Name),
		slog.String("target", target),
		slog.String("workspace", ws),
		slog.Int("stages", len(p.Stages)),
	)

	ctx, span := e.env.Tracer.StartRun(ctx, p.Name, target)
	defer span.End()

	stopChecker := e.startHangChecker(ctx)
	defer stopChecker()

	next := 0
	for ; next < len(p.Stages); next++ {
		if ctx.Err() != nil {
			res.Interrupted = true
			break
		}
		def := p.Stages[next]
		sr := e.runStage(ctx, def, ws, vars)
		res.Stages = append(res.Stages, sr)

		if !sr.Status.Failed() {
			continue
		}
		if ctx.Err() != nil {
			res.Interrupted = true
			next++
			break
		}
		if def.LoadBearing() {
			res.Aborted = true
			res.AbortedBy = def.ID
			e.env.Log.Critical("load-bearing stage failed, aborting pipeline",
				slog.String("stage", def.ID),
				slog.String("phase", string(def.Phase)),
				slog.String("status", string(sr.Status)),
				slog.String("error", sr.Error),
			)
			e.env.Metrics.ObserveAbort()
			next++
			break
		}
		e.env.Log.Warn("optional stage failed, continuing",
			slog.String("stage", def.ID),
			slog.String("phase", string(def.Phase)),
			slog.String("status", string(sr.Status)),
			slog.String("error", sr.Error),
		)
	}
	for _, def := range p.Stages[next:] {
		res.Stages = append(res.Stages, StageResult{
			ID:          def.ID,
			Name:        def.Name,
			Phase:       def.Phase,
			LoadBearing: def.LoadBearing(),
			Status:      stage.StatusPending,
			ExitCode:    -1,
		})
	}

	res.Succeeded = !res.Aborted && !res.Interrupted
	for _, s := range res.Stages {
		if s.LoadBearing && s.Status.Failed() {
			res.Succeeded = false
		}
	}

	res.End = time.Now()
	res.Duration = e.env.Times.EndTotal()
	res.Seconds = res.Duration.Seconds()
	e.env.Metrics.ObserveRun(res.Duration)

	if res.Interrupted {
		e.env.Log.Warn("pipeline interrupted", slog.Int("completed_stages", len(res.Stages)-countPending(res)))
	}
	e.env.Log.Info("pipeline finished",
		slog.Bool("succeeded", res.Succeeded),
		slog.String("duration", timetracker.Format(res.Duration)),
		slog.Int("failures", len(res.Failures())),
	)
	return res, nil
}

func countPending(r *Result) int {
	n := 0
	for _, s := range r.Stages {
		if s.Status == stage.StatusPending {
			n++
		}
	}
	return n
}

func (e *Engine) openCheckpoint(target, pipeline string) error {
	cp := e.env.Checkpoint
	if cp == nil {
		return nil
	}
	if e.opts.Resume {
		if err := cp.Resume(target, pipeline); err != nil {
			return fmt.Errorf("resume: %w", err)
		}
		if done := cp.Completed(); len(done) > 0 {
			e.env.Log.Info("resuming run", slog.Any("completed", done))
		}
	} else {
		cp.Init(target, pipeline)
	}
	if err := cp.Save(); err != nil {
		return fmt.Errorf("save run state: %w", err)
	}
	return nil
}

// startHangChecker runs the periodic hanging-process check for the
// duration of the run.
func (e *Engine) startHangChecker(ctx context.Context) func() {
	if e.opts.HangCheck <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.env.Log.RunChecker(ctx, e.opts.HangCheck)
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

// runStage executes one stage and records its outcome everywhere it is
// observed: log, metrics, trace and checkpoint.
func (e *Engine) runStage(ctx context.Context, def StageDef, ws string, vars map[string]string) (sr StageResult) {
	sr = StageResult{
		ID:          def.ID,
		Name:        def.Name,
		Phase:       def.Phase,
		LoadBearing: def.LoadBearing(),
		Status:      stage.StatusPending,
		ExitCode:    -1,
	}
	logger := e.log.With(slog.String("stage", def.ID))
	start := time.Now()

	// One stage interval, closed on every exit path. The runner only
	// records invocation intervals.
	e.env.Times.Start(def.Name)
	defer e.env.Times.End(def.Name)

	ctx, span := e.env.Tracer.StartStage(ctx, def.ID, string(def.Phase), def.LoadBearing())
	defer func() {
		if r := recover(); r != nil {
			sr.Status = stage.StatusFailed
			sr.finish(fmt.Errorf("%w: panic: %v", stage.ErrUnexpected, r), time.Since(start))
			logger.Error("stage panicked", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
		}
		telemetry.EndStage(span, string(sr.Status), sr.ExitCode, sr.Err)
		e.env.Metrics.ObserveStage(def.ID, string(def.Phase), string(sr.Status), sr.Duration)
		if sr.Status == stage.StatusSucceeded && e.env.Checkpoint != nil && sr.Note != noteResumed {
			if err := e.env.Checkpoint.MarkCompleted(def.ID); err != nil {
				logger.Warn("could not save run state", slog.String("error", err.Error()))
			}
		}
	}()

	if out, err := e.optionalPath(def.Output, ws, vars); err == nil {
		sr.Output = out
	}

	if e.opts.Resume && e.env.Checkpoint != nil && e.env.Checkpoint.IsCompleted(def.ID) && (sr.Output == "" || exists(sr.Output)) {
		sr.Status = stage.StatusSucceeded
		sr.ExitCode = 0
		sr.Note = noteResumed
		logger.Info("stage already completed, skipping")
		return sr
	}

	inputs, missing, err := e.resolveInputs(def.Inputs, ws, vars)
	if err != nil {
		return e.failSetup(logger, sr, err, start)
	}
	if (def.InputMode == InputsAny && len(def.Inputs) > 0 && len(inputs) == 0) ||
		(def.InputMode != InputsAny && len(missing) > 0) {
		_ = sr.Status.Transition(stage.StatusSkipped)
		sr.ExitCode = 0
		sr.Note = "input missing or empty"
		n := e.createPlaceholders(logger, def.Placeholders, ws, vars)
		sr.finish(nil, time.Since(start))
		logger.Warn("stage skipped: required input missing or empty",
			slog.Any("missing", missing),
			slog.Int("placeholders", n),
		)
		return sr
	}

	_ = sr.Status.Transition(stage.StatusRunning)
	logger.Info("stage starting", slog.String("name", def.Name), slog.String("phase", string(def.Phase)))

	var next stage.Status
	if len(def.SubTasks) > 0 {
		next, err = e.runSubTasks(ctx, def, &sr, inputs, ws, vars)
	} else {
		next, err = e.runCommand(ctx, logger, def, &sr, inputs, ws, vars)
	}
	if terr := sr.Status.Transition(next); terr != nil {
		sr.Status = stage.StatusFailed
		err = errors.Join(err, fmt.Errorf("%w: %w", stage.ErrUnexpected, terr))
	}
	sr.finish(err, time.Since(start))

	if sr.Status.Failed() && !def.LoadBearing() {
		e.createPlaceholders(logger, def.Placeholders, ws, vars)
	}
	return sr
}

const noteResumed = "resumed"

func (e *Engine) failSetup(logger *slog.Logger, sr StageResult, err error, start time.Time) StageResult {
	_ = sr.Status.Transition(stage.StatusRunning)
	_ = sr.Status.Transition(stage.StatusFailed)
	sr.finish(fmt.Errorf("%w: %w", stage.ErrUnexpected, err), time.Since(start))
	logger.Error("stage could not be prepared", slog.String("error", err.Error()))
	return sr
}

// runCommand runs a single-command stage with its retry policy. Timeouts
// and stalls are not retried.
func (e *Engine) runCommand(ctx context.Context, logger *slog.Logger, def StageDef, sr *StageResult, inputs []string, ws string, vars map[string]string) (stage.Status, error) {
	spec, err := e.buildSpec(def.Name, def.Command, def.Timeout, def.ActivityTimeout, def.Output, def.Capture, def.RequireOutput, inputs, ws, vars)
	if err != nil {
		return stage.StatusFailed, fmt.Errorf("%w: %w", stage.ErrUnexpected, err)
	}

	var res stage.Result
	attempts := 0
	err = retry.Do(ctx, retry.Config{
		MaxAttempts: def.Retries + 1,
		InitDelay:   e.opts.RetryDelay,
		MaxDelay:    duration.StageRetryMax,
		Strategy:    retry.Linear,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			logger.Warn("stage failed, retrying",
				slog.Int("attempt", attempt),
				slog.Int("retries", def.Retries),
				slog.Duration("delay", delay),
				slog.String("error", err.Error()),
			)
		},
	}, func() error {
		attempts++
		res = e.env.Runner.Run(ctx, spec)
		switch {
		case res.Status == stage.StatusSucceeded:
			return nil
		case res.Status == stage.StatusTimedOut, res.Status == stage.StatusStalled, ctx.Err() != nil:
			return retry.Stop(res.Err)
		}
		return res.Err
	})
	sr.Attempts = attempts
	if attempts == 0 {
		return stage.StatusFailed, fmt.Errorf("stage cancelled: %w", err)
	}
	sr.ExitCode = res.ExitCode
	if res.Status == stage.StatusSucceeded {
		return res.Status, nil
	}
	return res.Status, res.Err
}

// runSubTasks runs the sub-tasks on a bounded pool. The stage takes the
// status of the first failing sub-task in declaration order.
func (e *Engine) runSubTasks(ctx context.Context, def StageDef, sr *StageResult, stageInputs []string, ws string, vars map[string]string) (stage.Status, error) {
	pool := workerpool.New(min(e.opts.Threads, len(def.SubTasks)))
	defer pool.Close()
	e.log.Debug("running sub-tasks",
		slog.String("stage", def.ID),
		slog.Int("subtasks", len(def.SubTasks)),
		slog.Int("workers", pool.Cap()),
	)

	sr.SubTasks = workerpool.Map(pool, def.SubTasks, func(st SubTask) SubTaskResult {
		return e.runSubTask(ctx, def, st, stageInputs, ws, vars)
	})

	status := stage.StatusSucceeded
	var errs []error
	sr.ExitCode = 0
	for _, st := range sr.SubTasks {
		if !st.Status.Failed() {
			continue
		}
		if status == stage.StatusSucceeded {
			status = st.Status
			sr.ExitCode = st.ExitCode
		}
		errs = append(errs, fmt.Errorf("%s: %w", st.Name, st.Err))
	}
	return status, errors.Join(errs...)
}

func (e *Engine) runSubTask(ctx context.Context, def StageDef, st SubTask, stageInputs []string, ws string, vars map[string]string) (out SubTaskResult) {
	out = SubTaskResult{Name: st.Name, Status: stage.StatusPending, ExitCode: -1}
	logger := e.log.With(slog.String("stage", def.ID), slog.String("subtask", st.Name))
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out.Status = stage.StatusFailed
			out.finish(fmt.Errorf("%w: panic: %v", stage.ErrUnexpected, r), time.Since(start))
			logger.Error("sub-task panicked", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
		}
	}()

	inputs := stageInputs
	if len(st.Inputs) > 0 {
		var missing []string
		var err error
		inputs, missing, err = e.resolveInputs(st.Inputs, ws, vars)
		if err != nil {
			out.Status = stage.StatusFailed
			out.finish(fmt.Errorf("%w: %w", stage.ErrUnexpected, err), time.Since(start))
			return out
		}
		if len(missing) > 0 {
			out.Status = stage.StatusSkipped
			out.ExitCode = 0
			logger.Info("sub-task skipped: input missing or empty", slog.Any("missing", missing))
			return out
		}
	}
	if ctx.Err() != nil {
		out.Status = stage.StatusFailed
		out.finish(fmt.Errorf("stage cancelled: %w", ctx.Err()), time.Since(start))
		return out
	}

	spec, err := e.buildSpec(def.Name+"/"+st.Name, st.Command, st.Timeout, st.ActivityTimeout, st.Output, st.Capture, st.RequireOutput, inputs, ws, vars)
	if err != nil {
		out.Status = stage.StatusFailed
		out.finish(fmt.Errorf("%w: %w", stage.ErrUnexpected, err), time.Since(start))
		return out
	}
	res := e.env.Runner.Run(ctx, spec)
	out.Status = res.Status
	out.ExitCode = res.ExitCode
	out.Output = spec.Output
	out.finish(res.Err, res.Duration)
	return out
}

// buildSpec renders one invocation into a stage.Spec.
func (e *Engine) buildSpec(name, command, hard, activity, output string, capture, require bool, inputs []string, ws string, vars map[string]string) (stage.Spec, error) {
	spec := stage.Spec{
		Name:          name,
		CaptureStdout: capture,
		RequireOutput: require,
		Dir:           ws,
	}
	var err error
	if output != "" {
		if spec.Output, err = resolvePath(output, ws, vars); err != nil {
			return spec, err
		}
	}
	if spec.Command, err = renderCommand(command, commandVars(vars, inputs, spec.Output)); err != nil {
		return spec, err
	}
	if spec.HardTimeout, err = parseHard(expand(hard, vars), e.opts.HardTimeout); err != nil {
		return spec, err
	}
	act, set, err := parseActivity(expand(activity, vars))
	if err != nil {
		return spec, err
	}
	spec.ActivityTimeout = e.opts.ActivityTimeout
	if set {
		spec.ActivityTimeout = act
	}
	return spec, nil
}

// resolveInputs returns the inputs that exist and are non-empty, and the
// ones that do not.
func (e *Engine) resolveInputs(declared []string, ws string, vars map[string]string) (present, missing []string, err error) {
	for _, in := range declared {
		path, err := resolvePath(in, ws, vars)
		if err != nil {
			return nil, nil, err
		}
		if nonEmpty(path) {
			present = append(present, path)
		} else {
			missing = append(missing, path)
		}
	}
	return present, missing, nil
}

func (e *Engine) optionalPath(p, ws string, vars map[string]string) (string, error) {
	if p == "" {
		return "", nil
	}
	return resolvePath(p, ws, vars)
}

// createPlaceholders creates any missing placeholder as an empty file and
// returns how many it created.
func (e *Engine) createPlaceholders(logger *slog.Logger, paths []string, ws string, vars map[string]string) int {
	n := 0
	for _, p := range paths {
		path, err := resolvePath(p, ws, vars)
		if err != nil {
			logger.Warn("bad placeholder path", slog.String("error", err.Error()))
			continue
		}
		if exists(path) {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			logger.Warn("could not create placeholder", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Warn("could not create placeholder", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		f.Close()
		n++
		logger.Debug("placeholder created", slog.String("path", path))
	}
	e.env.Metrics.ObservePlaceholders(n)
	return n
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// nonEmpty reports whether path is a regular file with content.
func nonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
