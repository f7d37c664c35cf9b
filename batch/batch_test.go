// ABOUTME: Tests for the chunked fan-out runner
// ABOUTME: Verifies concurrency ceiling, ordering, pacing, and panic isolation
package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPreservesOrderAndCeiling(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	var inFlight, peak atomic.Int32

	results := Run(context.Background(), items, Options{Size: 3}, func(ctx context.Context, n int) int {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		// later items finish first inside a chunk
		time.Sleep(time.Duration(11-n) * time.Millisecond)
		inFlight.Add(-1)
		return n * 10
	})

	require.Len(t, results, 10)
	for i, r := range results {
		assert.Equal(t, (i+1)*10, r)
	}
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Equal(t, int32(3), peak.Load())
}

func TestRunChunksAreSequential(t *testing.T) {
	var mu sync.Mutex
	var chunks [][]int
	items := []int{0, 1, 2, 3, 4, 5, 6}

	Run(context.Background(), items, Options{
		Size: 3,
		OnChunk: func(chunk, total, size int) {
			mu.Lock()
			chunks = append(chunks, []int{chunk, total, size})
			mu.Unlock()
		},
	}, func(ctx context.Context, n int) struct{} { return struct{}{} })

	assert.Equal(t, [][]int{{1, 3, 3}, {2, 3, 3}, {3, 3, 1}}, chunks)
}

func TestRunPausesBetweenChunksOnly(t *testing.T) {
	items := []int{1, 2, 3, 4}
	started := time.Now()
	Run(context.Background(), items, Options{Size: 2, Pause: 100 * time.Millisecond}, func(ctx context.Context, n int) int { return n })
	elapsed := time.Since(started)

	// one pause for two chunks, none after the last
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 190*time.Millisecond)
}

func TestRunIsolatesPanics(t *testing.T) {
	items := []string{"ok", "boom", "ok"}
	results := Run(context.Background(), items, Options{
		Size: 3,
		OnPanic: func(i int, r any) any {
			return "recovered"
		},
	}, func(ctx context.Context, s string) string {
		if s == "boom" {
			panic("bad item")
		}
		return s
	})

	assert.Equal(t, []string{"ok", "recovered", "ok"}, results)
}

func TestRunPanicWithoutHookYieldsZero(t *testing.T) {
	results := Run(context.Background(), []int{1, 2}, Options{Size: 1}, func(ctx context.Context, n int) int {
		if n == 1 {
			panic("nope")
		}
		return n
	})
	assert.Equal(t, []int{0, 2}, results)
}

func TestRunStopsSchedulingOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Int32
	results := Run(ctx, []int{1, 2, 3, 4}, Options{Size: 2}, func(ctx context.Context, n int) int {
		ran.Add(1)
		if n == 2 {
			cancel()
		}
		return n
	})

	assert.Equal(t, int32(2), ran.Load())
	assert.Equal(t, []int{1, 2, 0, 0}, results)
}

func TestRunEmpty(t *testing.T) {
	results := Run(context.Background(), []int(nil), Options{Size: 3}, func(ctx context.Context, n int) int { return n })
	assert.Empty(t, results)
}

func TestPanicError(t *testing.T) {
	err := &PanicError{Index: 2, Value: "bad"}
	assert.Equal(t, "worker 2 panicked: bad", err.Error())
}
