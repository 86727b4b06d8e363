// Package chunk splits long loops into fixed-size batches that yield to the
// scheduler and honour cancellation between batches.
package chunk

import (
	"context"
	"runtime"
)

// DefaultSize is the number of items processed between yields.
const DefaultSize = 1000

// Each calls fn for every index in [0, n) in batches of size. Between batches it
// yields the processor and stops with ctx.Err() if ctx is done.
func Each(ctx context.Context, n, size int, fn func(i int)) error {
	if size <= 0 {
		size = DefaultSize
	}
	for start := 0; start < n; start += size {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+size, n)
		for i := start; i < end; i++ {
			fn(i)
		}
		if end < n {
			runtime.Gosched()
		}
	}
	return nil
}
