// ABOUTME: Chunked fan-out runner with inter-chunk pacing
// ABOUTME: Runs each chunk concurrently, keeps input order, and isolates item panics
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Options control chunking and pacing.
type Options struct {
	// Size is the number of items run concurrently. Values below 1 mean 1.
	Size int
	// Pause is slept between chunks, never after the last one.
	Pause time.Duration
	// OnPanic turns a recovered worker panic into a result for that item.
	// Without it the item gets the zero value of R.
	OnPanic func(index int, recovered any) any
	// OnChunk is called before each chunk starts with 1-based chunk numbers.
	OnChunk func(chunk, total, size int)
}

// Run applies worker to every item, Size items at a time. The result slice
// matches items by index. A cancelled ctx stops new chunks from starting;
// items in unstarted chunks keep the zero value.
func Run[T, R any](ctx context.Context, items []T, opts Options, worker func(context.Context, T) R) []R {
	results := make([]R, len(items))
	if len(items) == 0 {
		return results
	}

	size := opts.Size
	if size < 1 {
		size = 1
	}
	total := (len(items) + size - 1) / size

	for start, chunk := 0, 1; start < len(items); start, chunk = start+size, chunk+1 {
		if ctx.Err() != nil {
			break
		}
		end := min(start+size, len(items))
		if opts.OnChunk != nil {
			opts.OnChunk(chunk, total, end-start)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						results[i] = substitute[R](opts.OnPanic, i, r)
					}
				}()
				results[i] = worker(ctx, items[i])
			}(i)
		}
		wg.Wait()

		if end < len(items) && opts.Pause > 0 {
			select {
			case <-time.After(opts.Pause):
			case <-ctx.Done():
			}
		}
	}
	return results
}

func substitute[R any](hook func(int, any) any, index int, recovered any) R {
	var zero R
	if hook == nil {
		return zero
	}
	v := hook(index, recovered)
	if r, ok := v.(R); ok {
		return r
	}
	return zero
}

// PanicError wraps a recovered worker panic for hooks that want an error value.
type PanicError struct {
	Index int
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("worker %d panicked: %v", e.Index, e.Value)
}
