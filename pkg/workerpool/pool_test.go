package workerpool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/bagbounty/bagbounty/pkg/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMapPreservesOrder(t *testing.T) {
	p := New(3)
	defer p.Close()

	got := Map(p, []string{"sensitive", "js", "php"}, func(s string) int { return len(s) })
	assert.Equal(t, []int{9, 2, 3}, got)
}

func TestConcurrencyIsBounded(t *testing.T) {
	p := New(3)
	var cur, peak atomic.Int32

	Map(p, make([]struct{}, 12), func(struct{}) struct{} {
		n := cur.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		cur.Add(-1)
		return struct{}{}
	})
	p.Close()

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Equal(t, int32(3), peak.Load())
}

func TestSubmitAfterClose(t *testing.T) {
	p := New(2)
	p.Close()
	p.Close()
	assert.False(t, p.Submit(func() {}))

	got := Map(p, []int{1, 2}, func(i int) int { return i * 10 })
	assert.Equal(t, []int{0, 0}, got)
}

func TestPanicDoesNotKillWorker(t *testing.T) {
	p := New(1)
	defer p.Close()

	var ran atomic.Bool
	p.Submit(func() { panic("boom") })
	Map(p, []int{1}, func(int) int { ran.Store(true); return 0 })
	assert.True(t, ran.Load())
}

func TestCloseWaitsAndLeaksNothing(t *testing.T) {
	tracker := testutil.TrackGoroutines()

	p := New(4)
	var done atomic.Int32
	for range 8 {
		p.Submit(func() {
			time.Sleep(5 * time.Millisecond)
			done.Add(1)
		})
	}
	p.Close()

	assert.Equal(t, int32(8), done.Load())
	tracker.CheckLeaks(t, 0)
}

func TestDefaultWorkers(t *testing.T) {
	assert.Positive(t, New(0).Cap())
	assert.Equal(t, 5, New(5).Cap())
}
