package supervision

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Record describes one external process while it is running.
type Record struct {
	ID      string
	Stage   string
	Command string
	PID     int
	Started time.Time
	Timeout time.Duration
}

// Candidate is a Record whose elapsed time exceeds its declared timeout.
type Candidate struct {
	Record
	Elapsed time.Duration
}

// Register adds an in-flight record and returns its correlation id.
func (l *Log) Register(stage, command string, timeout time.Duration) string {
	id := "cmd-" + uuid.NewString()
	rec := &Record{
		ID:      id,
		Stage:   stage,
		Command: command,
		Started: l.now(),
		Timeout: timeout,
	}

	l.mu.Lock()
	l.inflight[id] = rec
	l.mu.Unlock()

	l.logger.Debug("process registered",
		slog.String(CorrelationKey, id),
		slog.String("stage", stage),
		slog.String("command", command),
		slog.Duration("timeout", timeout),
	)
	return id
}

// SetPID attaches the OS pid once the process has been spawned.
func (l *Log) SetPID(id string, pid int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.inflight[id]; ok {
		rec.PID = pid
	}
}

// Deregister removes the record. Unknown ids are ignored.
func (l *Log) Deregister(id string) {
	l.mu.Lock()
	rec, ok := l.inflight[id]
	delete(l.inflight, id)
	l.mu.Unlock()

	if ok {
		l.logger.Debug("process deregistered",
			slog.String(CorrelationKey, id),
			slog.String("stage", rec.Stage),
			slog.Duration("elapsed", l.now().Sub(rec.Started)),
		)
	}
}

// InFlight returns a snapshot of the registry ordered by start time.
func (l *Log) InFlight() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Record, 0, len(l.inflight))
	for _, rec := range l.inflight {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out
}

// HangingCandidates lists in-flight records running longer than their
// declared timeout. Records without a timeout are never candidates.
func (l *Log) HangingCandidates() []Candidate {
	now := l.now()
	var out []Candidate
	for _, rec := range l.InFlight() {
		if rec.Timeout <= 0 {
			continue
		}
		if elapsed := now.Sub(rec.Started); elapsed > rec.Timeout {
			out = append(out, Candidate{Record: rec, Elapsed: elapsed})
		}
	}
	return out
}

// CheckHanging logs a warning for every hanging candidate and returns them.
// It never signals any process.
func (l *Log) CheckHanging() []Candidate {
	candidates := l.HangingCandidates()
	for _, c := range candidates {
		l.logger.Warn("process exceeded its timeout",
			slog.String(CorrelationKey, c.ID),
			slog.String("stage", c.Stage),
			slog.Int("pid", c.PID),
			slog.Duration("elapsed", c.Elapsed.Round(time.Second)),
			slog.Duration("timeout", c.Timeout),
		)
	}
	return candidates
}

// RunChecker calls CheckHanging every interval until ctx is done.
func (l *Log) RunChecker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.CheckHanging()
		}
	}
}
