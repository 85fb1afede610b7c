// Package supervision is the leveled event sink shared by every supervised
// component. It is a log/slog handler that keeps a bounded in-memory ring of
// events, optionally mirrors them to the console and to an append-only file,
// and tracks in-flight external processes so hanging ones can be reported.
package supervision

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/bagbounty/bagbounty/pkg/defaults"
)

// Options configures a Log. Console and file mirrors are independent.
type Options struct {
	// Level is the minimum level recorded anywhere.
	Level slog.Level

	// Console receives one styled line per event. Nil disables the mirror.
	Console io.Writer

	// FilePath is opened in append mode. Empty disables the mirror.
	FilePath string

	// RingSize bounds the in-memory event history (default: defaults.LogRingSize).
	RingSize int

	// Clock replaces time.Now for the in-flight registry.
	Clock func() time.Time
}

// Log is the supervision sink. The zero value is not usable; call New.
type Log struct {
	sink   *sink
	logger *slog.Logger
	file   *os.File
	path   string
	now    func() time.Time

	mu       sync.Mutex
	inflight map[string]*Record
	closed   bool
}

// New opens the file mirror if configured and returns a ready Log.
func New(opts Options) (*Log, error) {
	if opts.RingSize <= 0 {
		opts.RingSize = defaults.LogRingSize
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	l := &Log{
		sink:     newSink(opts.Level, opts.Console, opts.RingSize),
		now:      opts.Clock,
		inflight: make(map[string]*Record),
	}

	h := &handler{sink: l.sink}
	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.file = f
		l.path = opts.FilePath
		h.file = slog.NewTextHandler(f, &slog.HandlerOptions{
			Level:       opts.Level,
			ReplaceAttr: replaceLevel,
		})
	}

	l.logger = slog.New(h)
	return l, nil
}

// Discard returns a Log with no console or file mirror.
func Discard() *Log {
	l, _ := New(Options{Level: slog.LevelDebug})
	return l
}

// Logger returns the slog front end writing into this Log.
func (l *Log) Logger() *slog.Logger { return l.logger }

// FilePath returns the file mirror path, or "" when disabled.
func (l *Log) FilePath() string { return l.path }

// Debug logs at debug level.
func (l *Log) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// Info logs at info level.
func (l *Log) Info(msg string, args ...any) { l.logger.Info(msg, args...) }

// Warn logs at warning level.
func (l *Log) Warn(msg string, args ...any) { l.logger.Warn(msg, args...) }

// Error logs at error level.
func (l *Log) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// Critical logs at critical level.
func (l *Log) Critical(msg string, args ...any) {
	l.logger.Log(context.Background(), LevelCritical, msg, args...)
}

// Events returns the retained events, oldest first.
func (l *Log) Events() []Event { return l.sink.events() }

// LogSystemInfo records the runtime environment at info level.
func (l *Log) LogSystemInfo() {
	wd, _ := os.Getwd()
	l.logger.Info("system info",
		slog.String("version", defaults.Version),
		slog.String("go", runtime.Version()),
		slog.String("os", runtime.GOOS),
		slog.String("arch", runtime.GOARCH),
		slog.Int("cpus", runtime.NumCPU()),
		slog.Int("pid", os.Getpid()),
		slog.String("workdir", wd),
	)
}

// Summary aggregates what the log has seen so far.
type Summary struct {
	Debug    int
	Info     int
	Warnings int
	Errors   int
	Critical int
	InFlight int
	Hanging  int
	LogFile  string
}

// Summary counts events by level and reports registry state.
func (l *Log) Summary() Summary {
	return Summary{
		Debug:    l.sink.count(math.MinInt, slog.LevelInfo),
		Info:     l.sink.count(slog.LevelInfo, slog.LevelWarn),
		Warnings: l.sink.count(slog.LevelWarn, slog.LevelError),
		Errors:   l.sink.count(slog.LevelError, LevelCritical),
		Critical: l.sink.count(LevelCritical, math.MaxInt),
		InFlight: len(l.InFlight()),
		Hanging:  len(l.HangingCandidates()),
		LogFile:  l.path,
	}
}

// Close flushes and closes the file mirror. It is safe to call twice.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		l.file.Close()
		return fmt.Errorf("sync log file: %w", err)
	}
	return l.file.Close()
}
