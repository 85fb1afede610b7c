// Package reaper finds OS processes that match declared tool signatures and
// terminates their full process trees, leaves first, with a grace period
// between SIGTERM and SIGKILL.
package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bagbounty/bagbounty/pkg/duration"
	"github.com/bagbounty/bagbounty/pkg/retry"
)

// Options configures a Reaper.
type Options struct {
	// Grace is how long a process gets after SIGTERM (default: duration.KillGrace).
	Grace time.Duration

	// PollInterval is the liveness polling period (default: duration.KillPoll).
	PollInterval time.Duration

	Logger *slog.Logger
}

// Report summarises one Reap call.
type Report struct {
	Found     int
	Killed    int
	Remaining int
	Trees     []Tree
	DryRun    bool
}

// TreeResult summarises one KillTree call.
type TreeResult struct {
	Tree      Tree
	Killed    int
	Survivors []int
}

// Reaper terminates process trees. It holds no process state between calls.
type Reaper struct {
	grace  time.Duration
	poll   time.Duration
	logger *slog.Logger
	self   int

	list   func() ([]Process, error)
	alive  func(Process) bool
	signal func(pid int, force bool) error
}

// New returns a Reaper backed by the OS process table.
func New(opts Options) *Reaper {
	if opts.Grace <= 0 {
		opts.Grace = duration.KillGrace
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = duration.KillPoll
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Reaper{
		grace:  opts.Grace,
		poll:   opts.PollInterval,
		logger: opts.Logger,
		self:   os.Getpid(),
		list:   listProcesses,
		alive:  processAlive,
		signal: sendSignal,
	}
}

// Scan returns live processes matching m, excluding this process and its
// ancestors.
func (r *Reaper) Scan(m Matcher) ([]Process, error) {
	procs, err := r.list()
	if err != nil {
		return nil, fmt.Errorf("scan process table: %w", err)
	}
	return r.matches(procs, m), nil
}

func (r *Reaper) matches(procs []Process, m Matcher) []Process {
	protected := ancestors(procs, r.self)
	protected[r.self] = true

	var out []Process
	for _, p := range procs {
		if protected[p.PID] || p.exited() {
			continue
		}
		if m.Match(p) {
			out = append(out, p)
		}
	}
	return out
}

// Plan returns the trees Reap would terminate without signalling anything.
// Matches nested under another match are folded into that match's tree.
func (r *Reaper) Plan(m Matcher) ([]Tree, error) {
	procs, err := r.list()
	if err != nil {
		return nil, fmt.Errorf("scan process table: %w", err)
	}
	matched := r.matches(procs, m)

	matchedPID := make(map[int]bool, len(matched))
	for _, p := range matched {
		matchedPID[p.PID] = true
	}

	var trees []Tree
	for _, p := range matched {
		nested := false
		for a := range ancestors(procs, p.PID) {
			if matchedPID[a] {
				nested = true
				break
			}
		}
		if nested {
			continue
		}
		if t, ok := buildTree(procs, p.PID); ok {
			trees = append(trees, t)
		}
	}
	return trees, nil
}

// DryRun reports what Reap would do.
func (r *Reaper) DryRun(m Matcher) (Report, error) {
	trees, err := r.Plan(m)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Trees: trees, DryRun: true}
	for _, t := range trees {
		rep.Found += t.Size()
	}
	rep.Remaining = rep.Found
	return rep, nil
}

// Reap terminates every tree rooted at a matching process and re-scans.
// Remaining counts matching processes still alive after the re-scan.
func (r *Reaper) Reap(ctx context.Context, m Matcher) (Report, error) {
	trees, err := r.Plan(m)
	if err != nil {
		return Report{}, err
	}

	var rep Report
	for _, planned := range trees {
		res, err := r.KillTree(ctx, planned.Root.PID)
		if err != nil {
			// Exited between the scan and the kill.
			r.logger.Debug("reap root vanished", slog.Int("pid", planned.Root.PID), slog.String("error", err.Error()))
			continue
		}
		rep.Trees = append(rep.Trees, res.Tree)
		rep.Found += res.Tree.Size()
		rep.Killed += res.Killed
	}

	left, err := r.Scan(m)
	if err != nil {
		return rep, err
	}
	rep.Remaining = len(left)

	r.logger.Info("reap finished",
		slog.Int("found", rep.Found),
		slog.Int("killed", rep.Killed),
		slog.Int("remaining", rep.Remaining),
	)
	return rep, nil
}

// KillTree terminates pid and all its descendants. Descendants are
// enumerated from a fresh snapshot and signalled leaves first; the root
// goes last. Each set gets SIGTERM, up to the grace period, then SIGKILL.
func (r *Reaper) KillTree(ctx context.Context, pid int) (TreeResult, error) {
	procs, err := r.list()
	if err != nil {
		return TreeResult{}, fmt.Errorf("scan process table: %w", err)
	}
	tree, ok := buildTree(procs, pid)
	if !ok {
		return TreeResult{}, fmt.Errorf("%w: %d", ErrNoSuchProcess, pid)
	}

	res := TreeResult{Tree: tree}
	for _, set := range [][]Process{tree.Descendants, {tree.Root}} {
		killed, survivors := r.terminate(ctx, set)
		res.Killed += killed
		res.Survivors = append(res.Survivors, survivors...)
	}

	r.logger.Debug("process tree terminated",
		slog.Int("root", pid),
		slog.Int("size", tree.Size()),
		slog.Int("killed", res.Killed),
		slog.Int("survivors", len(res.Survivors)),
	)
	return res, nil
}

// terminate sends SIGTERM to every process in order, waits out the grace
// period, then SIGKILLs survivors. It returns how many are gone and the
// pids of any that are not.
func (r *Reaper) terminate(ctx context.Context, set []Process) (int, []int) {
	if len(set) == 0 {
		return 0, nil
	}
	// An interrupt must not cut the grace period short.
	ctx = context.WithoutCancel(ctx)

	for _, p := range set {
		if err := r.signal(p.PID, false); err != nil {
			r.logger.Debug("SIGTERM failed", slog.Int("pid", p.PID), slog.String("error", err.Error()))
		}
	}

	if !retry.Poll(ctx, r.poll, r.grace, func() bool { return r.allGone(set) }) {
		for _, p := range set {
			if !r.alive(p) {
				continue
			}
			r.logger.Warn("process ignored SIGTERM, sending SIGKILL",
				slog.Int("pid", p.PID),
				slog.String("command", p.CommandLine()),
			)
			if err := r.signal(p.PID, true); err != nil {
				r.logger.Debug("SIGKILL failed", slog.Int("pid", p.PID), slog.String("error", err.Error()))
			}
		}
		retry.Poll(ctx, r.poll, r.grace, func() bool { return r.allGone(set) })
	}

	var survivors []int
	for _, p := range set {
		if r.alive(p) {
			survivors = append(survivors, p.PID)
		}
	}
	return len(set) - len(survivors), survivors
}

func (r *Reaper) allGone(set []Process) bool {
	for _, p := range set {
		if r.alive(p) {
			return false
		}
	}
	return true
}
