package supervision

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bagbounty/bagbounty/pkg/ui"
)

// CorrelationKey is the attribute key carrying a ProcessRecord id.
const CorrelationKey = "cid"

// Attr is a flattened event attribute.
type Attr struct {
	Key   string
	Value string
}

// Event is an immutable log entry kept in the in-memory ring.
type Event struct {
	Time          time.Time
	Level         slog.Level
	Message       string
	CorrelationID string
	Attrs         []Attr
}

// sink is the state shared by a handler and all handlers derived from it.
type sink struct {
	mu      sync.Mutex
	level   slog.Leveler
	console io.Writer
	ring    []Event
	next    int
	full    bool
	counts  map[slog.Level]int
}

func newSink(level slog.Leveler, console io.Writer, ringSize int) *sink {
	return &sink{
		level:   level,
		console: console,
		ring:    make([]Event, ringSize),
		counts:  make(map[slog.Level]int),
	}
}

func (s *sink) record(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counts[ev.Level]++
	if len(s.ring) > 0 {
		s.ring[s.next] = ev
		s.next = (s.next + 1) % len(s.ring)
		if s.next == 0 {
			s.full = true
		}
	}
	if s.console != nil {
		fmt.Fprintln(s.console, formatConsole(ev))
	}
}

func (s *sink) events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.full {
		return append([]Event(nil), s.ring[:s.next]...)
	}
	out := make([]Event, 0, len(s.ring))
	out = append(out, s.ring[s.next:]...)
	return append(out, s.ring[:s.next]...)
}

func (s *sink) count(atLeast, below slog.Level) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for l, c := range s.counts {
		if l >= atLeast && l < below {
			n += c
		}
	}
	return n
}

func formatConsole(ev Event) string {
	var b strings.Builder
	b.WriteString(ui.TimestampStyle.Render(ev.Time.Format("15:04:05")))
	b.WriteByte(' ')
	b.WriteString(ui.LevelStyle(ev.Level).Render("[" + LevelName(ev.Level) + "]"))
	b.WriteByte(' ')
	b.WriteString(ev.Message)
	for _, a := range ev.Attrs {
		if a.Key == CorrelationKey {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(ui.TimestampStyle.Render(a.Key + "="))
		b.WriteString(a.Value)
	}
	return b.String()
}

// handler fans a record out to the ring, the console and the file handler.
type handler struct {
	sink   *sink
	file   slog.Handler
	attrs  []Attr
	prefix string
}

var _ slog.Handler = (*handler)(nil)

func (h *handler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.sink.level.Level()
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	ev := Event{
		Time:    r.Time,
		Level:   r.Level,
		Message: r.Message,
		Attrs:   append([]Attr(nil), h.attrs...),
	}
	r.Attrs(func(a slog.Attr) bool {
		ev.Attrs = appendAttr(ev.Attrs, h.prefix, a)
		return true
	})
	for _, a := range ev.Attrs {
		if a.Key == CorrelationKey {
			ev.CorrelationID = a.Value
		}
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	h.sink.record(ev)

	if h.file != nil {
		return h.file.Handle(ctx, r)
	}
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = append([]Attr(nil), h.attrs...)
	for _, a := range attrs {
		nh.attrs = appendAttr(nh.attrs, h.prefix, a)
	}
	if h.file != nil {
		nh.file = h.file.WithAttrs(attrs)
	}
	return &nh
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.prefix = h.prefix + name + "."
	if h.file != nil {
		nh.file = h.file.WithGroup(name)
	}
	return &nh
}

func appendAttr(dst []Attr, prefix string, a slog.Attr) []Attr {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return dst
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			dst = appendAttr(dst, p, ga)
		}
		return dst
	}
	return append(dst, Attr{Key: prefix + a.Key, Value: a.Value.String()})
}
