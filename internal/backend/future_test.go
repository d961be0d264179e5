package backend

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/stratus-lite/internal/domain"
)

func TestFutureLifecycle(t *testing.T) {
	f := NewFuture("f1")
	assert.Equal(t, domain.StatusIdle, f.Status())

	_, err := f.Result(context.Background(), false, 0)
	assert.True(t, errors.Is(err, domain.ErrNotReady))

	require.True(t, f.Start())
	assert.False(t, f.Start())
	assert.Equal(t, domain.StatusExecuting, f.Status())

	require.True(t, f.Resolve(&domain.TaskResult{Data: map[string]any{"r1": 1}}))
	assert.False(t, f.Fail(errors.New("late")))
	assert.Equal(t, domain.StatusCompleted, f.Status())
	assert.NoError(t, f.Exception())

	res, err := f.Result(context.Background(), false, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Data["r1"])
}

func TestFutureBlockingTimeout(t *testing.T) {
	f := NewFuture("f1")
	start := time.Now()
	_, err := f.Result(context.Background(), true, 20*time.Millisecond)
	assert.True(t, errors.Is(err, domain.ErrNotReady))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Result(ctx, true, 0)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestFutureBlockingWakesOnResolve(t *testing.T) {
	f := NewFuture("f1")
	go func() {
		time.Sleep(10 * time.Millisecond)
		f.Resolve(nil)
	}()
	res, err := f.Result(context.Background(), true, time.Second)
	require.NoError(t, err)
	assert.NotNil(t, res.Data)
}

func TestFutureCancelRunsHookOnce(t *testing.T) {
	var calls atomic.Int32
	f := NewFuture("f1")
	f.SetCancelFunc(func() { calls.Add(1) })
	f.Cancel()
	f.Cancel()
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, domain.StatusCanceled, f.Status())

	_, err := f.Result(context.Background(), true, 0)
	assert.True(t, errors.Is(err, domain.ErrCanceled))
}

func TestFutureOnDone(t *testing.T) {
	var calls atomic.Int32
	f := NewFuture("f1")
	f.OnDone(func() { calls.Add(1) })
	assert.Equal(t, int32(0), calls.Load())
	f.Fail(errors.New("boom"))
	assert.Equal(t, int32(1), calls.Load())

	f.OnDone(func() { calls.Add(1) })
	assert.Equal(t, int32(2), calls.Load())
}

func TestFailedFuture(t *testing.T) {
	boom := errors.New("boom")
	f := Failed("x", boom)
	assert.Equal(t, domain.StatusError, f.Status())
	assert.Equal(t, boom, f.Exception())
	_, err := f.Result(context.Background(), false, 0)
	assert.Equal(t, boom, err)
}
