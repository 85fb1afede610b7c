// Package timetracker records named timing intervals for pipeline stages
// plus one overall span for the whole run.
package timetracker

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Entry is one named interval. End is zero while the interval is open.
type Entry struct {
	Name  string
	Start time.Time
	End   time.Time
}

// Done reports whether the interval has been closed.
func (e Entry) Done() bool { return !e.End.IsZero() }

// Duration returns End-Start for closed intervals and zero otherwise.
func (e Entry) Duration() time.Duration {
	if !e.Done() {
		return 0
	}
	if d := e.End.Sub(e.Start); d > 0 {
		return d
	}
	return 0
}

// Line is one row of a Summary.
type Line struct {
	Name      string
	Duration  time.Duration
	Formatted string
}

// Summary lists completed stages in first-start order plus the total span.
type Summary struct {
	Stages []Line
	Total  Line
}

// ledger keeps intervals by name in first-start order.
type ledger struct {
	entries map[string]*Entry
	order   []string
}

func newLedger() ledger { return ledger{entries: make(map[string]*Entry)} }

func (l *ledger) start(name string, now time.Time) {
	if _, seen := l.entries[name]; !seen {
		l.order = append(l.order, name)
	}
	l.entries[name] = &Entry{Name: name, Start: now}
}

func (l *ledger) end(name string, now time.Time) (time.Duration, bool) {
	e, ok := l.entries[name]
	if !ok || e.Done() {
		return 0, false
	}
	e.End = now
	return e.Duration(), true
}

func (l *ledger) get(name string) (Entry, bool) {
	e, ok := l.entries[name]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Tracker is safe for concurrent use. Stage intervals make up the Summary;
// invocation intervals time single tool runs (one per retry or sub-task)
// and are kept apart from it.
type Tracker struct {
	mu          sync.Mutex
	stages      ledger
	invocations ledger
	total       Entry
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger used for unmatched End calls.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New creates an empty tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		stages:      newLedger(),
		invocations: newLedger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

// StartTotal opens the overall span.
func (t *Tracker) StartTotal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = Entry{Name: "total", Start: t.now()}
}

// EndTotal closes the overall span and returns its duration.
func (t *Tracker) EndTotal() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.total.Start.IsZero() {
		t.logger.Warn("timer end without start", slog.String("timer", "total"))
		return 0
	}
	t.total.End = t.now()
	return t.total.Duration()
}

// Start opens the named stage interval. Starting a name again discards the
// previous entry for it.
func (t *Tracker) Start(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stages.start(name, t.now())
}

// End closes the named stage interval and returns its duration. Ending a
// name that has no open interval is logged and returns false.
func (t *Tracker) End(name string) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.stages.end(name, t.now())
	if !ok {
		t.logger.Warn("timer end without start", slog.String("timer", name))
	}
	return d, ok
}

// Get returns a copy of the named stage entry.
func (t *Tracker) Get(name string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stages.get(name)
}

// StartInvocation opens the interval for one tool run.
func (t *Tracker) StartInvocation(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.invocations.start(name, t.now())
}

// EndInvocation closes the interval for one tool run.
func (t *Tracker) EndInvocation(name string) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.invocations.end(name, t.now())
	if !ok {
		t.logger.Warn("timer end without start", slog.String("timer", name), slog.String("kind", "invocation"))
	}
	return d, ok
}

// Invocation returns a copy of the named invocation entry.
func (t *Tracker) Invocation(name string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.invocations.get(name)
}

// Summary returns the completed intervals with human-formatted durations.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	var s Summary
	for _, name := range t.stages.order {
		e := t.stages.entries[name]
		if !e.Done() {
			continue
		}
		d := e.Duration()
		s.Stages = append(s.Stages, Line{Name: name, Duration: d, Formatted: Format(d)})
	}

	total := t.total
	if !total.Start.IsZero() && !total.Done() {
		total.End = t.now()
	}
	s.Total = Line{Name: "total", Duration: total.Duration(), Formatted: Format(total.Duration())}
	return s
}

// Format renders d as "12.3s", "4m 05s" or "1h 02m 03s".
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := d.Seconds()
	switch {
	case secs < 60:
		return fmt.Sprintf("%.1fs", secs)
	case secs < 3600:
		whole := int(secs)
		return fmt.Sprintf("%dm %02ds", whole/60, whole%60)
	default:
		whole := int(secs)
		return fmt.Sprintf("%dh %02dm %02ds", whole/3600, (whole%3600)/60, whole%60)
	}
}
