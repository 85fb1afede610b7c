// Package testutil holds helpers shared by package tests: goroutine leak
// checks, a deadlock guard, fake tool scripts and workspace files.
package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// Goroutines remembers how many goroutines were running when it was taken.
type Goroutines struct {
	baseline int
}

// TrackGoroutines records the current goroutine count.
func TrackGoroutines() *Goroutines {
	runtime.Gosched()
	return &Goroutines{baseline: runtime.NumGoroutine()}
}

// CheckLeaks gives goroutines up to two seconds to exit, then fails t if
// more than baseline+slack are still running. Samplers and process
// waiters started by the code under test must be gone by then.
func (g *Goroutines) CheckLeaks(t testing.TB, slack int) {
	t.Helper()
	limit := g.baseline + slack
	deadline := time.Now().Add(2 * time.Second)
	for {
		runtime.Gosched()
		n := runtime.NumGoroutine()
		if n <= limit {
			return
		}
		if time.Now().After(deadline) {
			t.Errorf("goroutine leak: %d running, baseline %d, slack %d", n, g.baseline, slack)
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
}

// AssertTimeout fails t if fn has not returned within d.
func AssertTimeout(t testing.TB, name string, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("%s did not return within %v", name, d)
	}
}

// FakeTool writes an executable /bin/sh script named name into dir and
// returns its path.
func FakeTool(t testing.TB, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + strings.TrimSpace(body) + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake tool %s: %v", name, err)
	}
	return path
}

// WriteLines writes one record per line to path, creating parent
// directories. No lines writes an empty file.
func WriteLines(t testing.TB, path string, lines ...string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	var data string
	if len(lines) > 0 {
		data = strings.Join(lines, "\n") + "\n"
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
