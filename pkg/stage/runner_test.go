//go:build unix

package stage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bagbounty/bagbounty/pkg/reaper"
	"github.com/bagbounty/bagbounty/pkg/supervision"
	"github.com/bagbounty/bagbounty/pkg/testutil"
	"github.com/bagbounty/bagbounty/pkg/timetracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T, interval time.Duration) (*Runner, *supervision.Log) {
	t.Helper()
	log := supervision.Discard()
	r := NewRunner(Options{
		Log:            log,
		Times:          timetracker.New(timetracker.WithLogger(log.Logger())),
		Reaper:         reaper.New(reaper.Options{Grace: 500 * time.Millisecond, Logger: slog.New(slog.DiscardHandler)}),
		SampleInterval: interval,
	})
	return r, log
}

func TestRunSucceeds(t *testing.T) {
	r, log := newTestRunner(t, 50*time.Millisecond)

	res := r.Run(context.Background(), Spec{Name: "echo", Command: "echo hello", HardTimeout: 5 * time.Second})

	require.NoError(t, res.Err)
	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, 0, res.ExitCode)
	assert.NotZero(t, res.PID)

	assert.Positive(t, res.Duration)

	e, ok := r.times.Invocation("echo")
	require.True(t, ok)
	assert.True(t, e.Done())
	_, ok = r.times.Get("echo")
	assert.False(t, ok)

	assert.Empty(t, log.InFlight())
	var correlated bool
	for _, ev := range log.Events() {
		if ev.CorrelationID == res.CorrelationID && ev.Message == "stage succeeded" {
			correlated = true
		}
	}
	assert.True(t, correlated)
}

func TestRunNonZeroExit(t *testing.T) {
	r, _ := newTestRunner(t, 50*time.Millisecond)

	res := r.Run(context.Background(), Spec{Name: "boom", Command: "echo boom >&2; exit 3", HardTimeout: 5 * time.Second})

	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrStageFailedNonZero)
	assert.NotErrorIs(t, res.Err, ErrEmptyOutput)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "boom\n", res.Stderr)
}

func TestRunMissingBinaryFailsNonZero(t *testing.T) {
	r, _ := newTestRunner(t, 50*time.Millisecond)

	res := r.Run(context.Background(), Spec{Name: "missing", Command: "definitely-not-a-tool-xyz --help", HardTimeout: 5 * time.Second})

	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrStageFailedNonZero)
	assert.Equal(t, 127, res.ExitCode)
}

func TestRunCaptureStdoutPublishesOnSuccess(t *testing.T) {
	r, _ := newTestRunner(t, 50*time.Millisecond)
	out := filepath.Join(t.TempDir(), "subdomains", "all.txt")

	res := r.Run(context.Background(), Spec{
		Name:          "subdomains",
		Command:       "printf 'a.example.com\\nb.example.com\\n'",
		HardTimeout:   5 * time.Second,
		Output:        out,
		CaptureStdout: true,
		RequireOutput: true,
	})

	require.NoError(t, res.Err)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "a.example.com\nb.example.com\n", string(data))
	assert.NoFileExists(t, out+".part")
	assert.Empty(t, res.Stdout)
}

func TestRunRequiredOutputEmpty(t *testing.T) {
	r, _ := newTestRunner(t, 50*time.Millisecond)
	out := filepath.Join(t.TempDir(), "alive.txt")

	res := r.Run(context.Background(), Spec{
		Name:          "alive",
		Command:       "true",
		HardTimeout:   5 * time.Second,
		Output:        out,
		CaptureStdout: true,
		RequireOutput: true,
	})

	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrStageFailedNonZero)
	assert.ErrorIs(t, res.Err, ErrEmptyOutput)
	assert.NoFileExists(t, out)
	assert.NoFileExists(t, out+".part")
}

func TestRunEmptyOptionalOutputIsPublished(t *testing.T) {
	r, _ := newTestRunner(t, 50*time.Millisecond)
	out := filepath.Join(t.TempDir(), "php.txt")

	res := r.Run(context.Background(), Spec{Name: "php", Command: "true", HardTimeout: 5 * time.Second, Output: out, CaptureStdout: true})

	require.NoError(t, res.Err)
	assert.FileExists(t, out)
}

func TestRunToolWrittenOutput(t *testing.T) {
	r, _ := newTestRunner(t, 50*time.Millisecond)
	dir := t.TempDir()
	out := filepath.Join(dir, "alive.txt")

	res := r.Run(context.Background(), Spec{
		Name:          "alive",
		Command:       "echo https://a.example.com > alive.txt",
		Dir:           dir,
		HardTimeout:   5 * time.Second,
		Output:        out,
		RequireOutput: true,
	})
	require.NoError(t, res.Err)

	res = r.Run(context.Background(), Spec{
		Name:          "alive-empty",
		Command:       ": > empty.txt",
		Dir:           dir,
		HardTimeout:   5 * time.Second,
		Output:        filepath.Join(dir, "empty.txt"),
		RequireOutput: true,
	})
	assert.ErrorIs(t, res.Err, ErrEmptyOutput)
}

func TestRunFailureDiscardsPartialOutput(t *testing.T) {
	r, _ := newTestRunner(t, 50*time.Millisecond)
	out := filepath.Join(t.TempDir(), "wayback.txt")

	res := r.Run(context.Background(), Spec{
		Name:          "wayback",
		Command:       "echo https://example.com/a; exit 1",
		HardTimeout:   5 * time.Second,
		Output:        out,
		CaptureStdout: true,
	})

	assert.Equal(t, StatusFailed, res.Status)
	assert.NoFileExists(t, out)
	assert.NoFileExists(t, out+".part")
}

func TestRunHardTimeout(t *testing.T) {
	r, log := newTestRunner(t, 50*time.Millisecond)

	res := r.Run(context.Background(), Spec{Name: "slow", Command: "sleep 10", HardTimeout: 300 * time.Millisecond})

	assert.Equal(t, StatusTimedOut, res.Status)
	assert.ErrorIs(t, res.Err, ErrStageTimedOut)
	assert.GreaterOrEqual(t, res.Duration, 300*time.Millisecond)
	assert.Less(t, res.Duration, 3*time.Second)
	assert.Empty(t, log.InFlight())
}

func TestRunHardTimeoutFiveSeconds(t *testing.T) {
	if testing.Short() {
		t.Skip("slow")
	}
	r, _ := newTestRunner(t, time.Second)

	res := r.Run(context.Background(), Spec{Name: "slow", Command: "sleep 10", HardTimeout: 5 * time.Second})

	assert.Equal(t, StatusTimedOut, res.Status)
	assert.InDelta(t, 5.0, res.Duration.Seconds(), 1.0)
}

func TestRunStalled(t *testing.T) {
	r, _ := newTestRunner(t, 50*time.Millisecond)

	res := r.Run(context.Background(), Spec{
		Name:            "katana",
		Command:         "echo first; sleep 10",
		HardTimeout:     30 * time.Second,
		ActivityTimeout: 300 * time.Millisecond,
	})

	assert.Equal(t, StatusStalled, res.Status)
	assert.ErrorIs(t, res.Err, ErrStageStalled)
	assert.NotErrorIs(t, res.Err, ErrStageTimedOut)
	assert.Less(t, res.Duration, 3*time.Second)
}

func TestRunStalledThreeSeconds(t *testing.T) {
	if testing.Short() {
		t.Skip("slow")
	}
	r, _ := newTestRunner(t, 500*time.Millisecond)
	out := filepath.Join(t.TempDir(), "urls.txt")

	res := r.Run(context.Background(), Spec{
		Name:            "katana",
		Command:         "echo https://example.com/ > " + out + "; sleep 60",
		HardTimeout:     30 * time.Second,
		ActivityTimeout: 3 * time.Second,
		Output:          out,
	})

	assert.Equal(t, StatusStalled, res.Status)
	assert.GreaterOrEqual(t, res.Duration, 3*time.Second)
	assert.Less(t, res.Duration, 3*time.Second+4*500*time.Millisecond)
}

func TestRunDurationExcludesReap(t *testing.T) {
	r, _ := newTestRunner(t, 50*time.Millisecond)

	start := time.Now()
	res := r.Run(context.Background(), Spec{
		Name:        "stubborn",
		Command:     "trap '' TERM; sleep 10",
		HardTimeout: 300 * time.Millisecond,
	})
	elapsed := time.Since(start)

	assert.Equal(t, StatusTimedOut, res.Status)
	assert.GreaterOrEqual(t, elapsed, 800*time.Millisecond)
	assert.GreaterOrEqual(t, res.Duration, 300*time.Millisecond)
	assert.Less(t, res.Duration, 700*time.Millisecond)
}

func TestRunActivityKeepsStageAlive(t *testing.T) {
	r, _ := newTestRunner(t, 50*time.Millisecond)

	res := r.Run(context.Background(), Spec{
		Name:            "httpx",
		Command:         "for i in 1 2 3 4 5 6 7 8; do echo $i; sleep 0.1; done",
		HardTimeout:     10 * time.Second,
		ActivityTimeout: 500 * time.Millisecond,
	})

	require.NoError(t, res.Err)
	assert.Equal(t, StatusSucceeded, res.Status)
}

func TestRunHardTimeoutWinsNearDeadline(t *testing.T) {
	r, _ := newTestRunner(t, 200*time.Millisecond)

	res := r.Run(context.Background(), Spec{
		Name:            "near",
		Command:         "sleep 10",
		HardTimeout:     350 * time.Millisecond,
		ActivityTimeout: 100 * time.Millisecond,
	})

	assert.Equal(t, StatusTimedOut, res.Status)
	assert.ErrorIs(t, res.Err, ErrStageTimedOut)
}

func TestRunContextCancel(t *testing.T) {
	r, _ := newTestRunner(t, 50*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	res := r.Run(ctx, Spec{Name: "cancelled", Command: "sleep 10", HardTimeout: 30 * time.Second})

	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Less(t, res.Duration, 3*time.Second)
}

func TestRunLeavesNoGoroutines(t *testing.T) {
	r, _ := newTestRunner(t, 20*time.Millisecond)
	tracker := testutil.TrackGoroutines()

	r.Run(context.Background(), Spec{Name: "ok", Command: "true", ActivityTimeout: time.Second})
	r.Run(context.Background(), Spec{Name: "fail", Command: "exit 1", ActivityTimeout: time.Second})
	r.Run(context.Background(), Spec{Name: "stall", Command: "sleep 5", ActivityTimeout: 100 * time.Millisecond})
	r.Run(context.Background(), Spec{Name: "timeout", Command: "sleep 5", HardTimeout: 100 * time.Millisecond, ActivityTimeout: time.Second})

	tracker.CheckLeaks(t, 0)
}
