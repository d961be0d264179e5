package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/stratus-lite/internal/domain"
)

// Future is a Handle settled exactly once by its producer.
type Future struct {
	id string

	mu        sync.Mutex
	status    domain.Status
	result    *domain.TaskResult
	err       error
	done      chan struct{}
	callbacks []func()
	onCancel  func()
}

var _ Handle = (*Future)(nil)

// NewFuture returns an IDLE future.
func NewFuture(id string) *Future {
	return &Future{
		id:     id,
		status: domain.StatusIdle,
		done:   make(chan struct{}),
	}
}

// Failed returns a future already settled in ERROR with err.
func Failed(id string, err error) *Future {
	f := NewFuture(id)
	f.Fail(err)
	return f
}

func (f *Future) ID() string { return f.id }

// Start moves an IDLE future to EXECUTING. It returns false otherwise.
func (f *Future) Start() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status != domain.StatusIdle {
		return false
	}
	f.status = domain.StatusExecuting
	return true
}

// Resolve settles the future as COMPLETED.
func (f *Future) Resolve(result *domain.TaskResult) bool {
	if result == nil {
		result = &domain.TaskResult{Data: map[string]any{}}
	}
	return f.settle(domain.StatusCompleted, result, nil)
}

// Fail settles the future as ERROR.
func (f *Future) Fail(err error) bool {
	if err == nil {
		err = domain.ErrBackendExecution
	}
	return f.settle(domain.StatusError, nil, err)
}

// Cancel settles the future as CANCELED and runs the cancel hook, if any.
func (f *Future) Cancel() {
	f.mu.Lock()
	hook := f.onCancel
	f.mu.Unlock()
	if f.settle(domain.StatusCanceled, nil, domain.ErrCanceled) && hook != nil {
		hook()
	}
}

// SetCancelFunc registers fn to run when the future is canceled.
func (f *Future) SetCancelFunc(fn func()) {
	f.mu.Lock()
	f.onCancel = fn
	f.mu.Unlock()
}

func (f *Future) settle(status domain.Status, result *domain.TaskResult, err error) bool {
	f.mu.Lock()
	if f.status.IsFinal() {
		f.mu.Unlock()
		return false
	}
	f.status = status
	f.result = result
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
	return true
}

// OnDone registers fn to run once the future is settled. If it already is,
// fn runs immediately on the caller's goroutine.
func (f *Future) OnDone(fn func()) {
	f.mu.Lock()
	if !f.status.IsFinal() {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	fn()
}

// Done is closed once the future is settled.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

func (f *Future) Status() domain.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *Future) Exception() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *Future) Result(ctx context.Context, block bool, timeout time.Duration) (*domain.TaskResult, error) {
	if err := Await(ctx, f.done, block, timeout); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// Await waits for done following the Handle.Result blocking contract.
func Await(ctx context.Context, done <-chan struct{}, block bool, timeout time.Duration) error {
	select {
	case <-done:
		return nil
	default:
	}
	if !block {
		return domain.ErrNotReady
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case <-done:
		return nil
	case <-expired:
		return fmt.Errorf("%w: timed out after %s", domain.ErrNotReady, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
