package workflow

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool runs functions on a bounded number of goroutines.
type Pool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// NewPool creates a pool with the given number of slots. Non-positive
// sizes default to the number of CPUs.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size))}
}

// Go schedules fn without blocking the caller. If ctx is canceled before a
// slot frees up, fn still runs with the canceled context so it can settle
// its own state.
func (p *Pool) Go(ctx context.Context, fn func(context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(ctx, 1); err != nil {
			fn(ctx)
			return
		}
		defer p.sem.Release(1)
		fn(ctx)
	}()
}

// Wait blocks until every scheduled function has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}
