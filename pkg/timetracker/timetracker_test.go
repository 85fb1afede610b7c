package timetracker

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestStartEnd(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	tr := New(WithClock(clock.now))

	tr.Start("subdomains")
	clock.advance(1500 * time.Millisecond)
	d, ok := tr.End("subdomains")

	require.True(t, ok)
	assert.Equal(t, 1500*time.Millisecond, d)
	assert.GreaterOrEqual(t, d, time.Duration(0))
}

func TestEndWithoutStartIsLogged(t *testing.T) {
	var buf bytes.Buffer
	tr := New(WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	d, ok := tr.End("never-started")

	assert.False(t, ok)
	assert.Zero(t, d)
	assert.Contains(t, buf.String(), "never-started")
	assert.Empty(t, tr.Summary().Stages)
}

func TestDoubleEndIsNoop(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	tr := New(WithClock(clock.now), WithLogger(slog.New(slog.DiscardHandler)))

	tr.Start("alive")
	clock.advance(time.Second)
	_, ok := tr.End("alive")
	require.True(t, ok)

	clock.advance(time.Minute)
	_, ok = tr.End("alive")
	assert.False(t, ok)

	e, found := tr.Get("alive")
	require.True(t, found)
	assert.Equal(t, time.Second, e.Duration())
}

func TestRestartOverwrites(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	tr := New(WithClock(clock.now))

	tr.Start("katana")
	clock.advance(10 * time.Second)
	tr.End("katana")

	tr.Start("katana")
	clock.advance(2 * time.Second)
	tr.End("katana")

	s := tr.Summary()
	require.Len(t, s.Stages, 1)
	assert.Equal(t, 2*time.Second, s.Stages[0].Duration)
}

func TestSummaryOnlyCompleted(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	tr := New(WithClock(clock.now))

	tr.StartTotal()
	for _, name := range []string{"subdomains", "alive", "wayback"} {
		tr.Start(name)
		clock.advance(time.Second)
		tr.End(name)
	}
	tr.Start("katana")
	clock.advance(time.Second)
	tr.EndTotal()

	s := tr.Summary()
	require.Len(t, s.Stages, 3)
	assert.Equal(t, "subdomains", s.Stages[0].Name)
	assert.Equal(t, "wayback", s.Stages[2].Name)
	assert.Equal(t, 4*time.Second, s.Total.Duration)
	assert.Equal(t, "4.0s", s.Total.Formatted)
}

func TestInvocationsStayOutOfSummary(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	tr := New(WithClock(clock.now), WithLogger(slog.New(slog.DiscardHandler)))

	tr.Start("categorize")
	tr.StartInvocation("categorize")
	tr.StartInvocation("categorize/js")
	clock.advance(time.Second)
	d, ok := tr.EndInvocation("categorize/js")
	require.True(t, ok)
	assert.Equal(t, time.Second, d)
	tr.EndInvocation("categorize")
	clock.advance(time.Second)
	tr.End("categorize")

	s := tr.Summary()
	require.Len(t, s.Stages, 1)
	assert.Equal(t, "categorize", s.Stages[0].Name)
	assert.Equal(t, 2*time.Second, s.Stages[0].Duration)

	e, found := tr.Invocation("categorize/js")
	require.True(t, found)
	assert.True(t, e.Done())
	_, found = tr.Get("categorize/js")
	assert.False(t, found)

	_, ok = tr.EndInvocation("categorize/php")
	assert.False(t, ok)
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0.0s"},
		{-time.Second, "0.0s"},
		{12300 * time.Millisecond, "12.3s"},
		{59 * time.Second, "59.0s"},
		{60 * time.Second, "1m 00s"},
		{4*time.Minute + 5*time.Second, "4m 05s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h 02m 03s"},
		{26 * time.Hour, "26h 00m 00s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.in), "Format(%v)", tt.in)
	}
}
