package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/stratus-lite/internal/backend"
	"github.com/example/stratus-lite/internal/domain"
	"github.com/example/stratus-lite/internal/graph"
	"github.com/example/stratus-lite/internal/opset"
)

func fanInRequest() *domain.Request {
	return &domain.Request{ID: "req-a", Ops: []domain.OpDescriptor{
		{ID: "a", Name: "a:op", Result: "r1", Params: map[string]any{"value": 1}},
		{ID: "b", Name: "b:op", Result: "r2", Params: map[string]any{"value": 2}},
		{ID: "c", Name: "c:op", Input: domain.InputList{"r1", "r2"}, Result: "r3"},
	}}
}

func TestScenarioFanInOrdering(t *testing.T) {
	env := newTestEnv(t, map[string][]string{"A": {"a"}, "B": {"b"}, "C": {"c"}})
	env.gate("a")
	env.gate("b")
	ctx := context.Background()

	w := New(env.tasks(fanInRequest()), WithPool(NewPool(4)))
	ta, tb, tc := taskFor(t, w, "a"), taskFor(t, w, "b"), taskFor(t, w, "c")
	require.Same(t, tc, w.OutputTask())
	assert.ElementsMatch(t, []*Task{ta, tb}, tc.Dependencies())
	assert.Equal(t, []*Task{tc}, ta.Consumers())

	assert.False(t, w.Update(ctx))
	assert.Equal(t, domain.StatusExecuting, w.Status())
	assert.Equal(t, domain.StatusExecuting, ta.Status())
	assert.Equal(t, domain.StatusExecuting, tb.Status())
	assert.Equal(t, domain.StatusIdle, tc.Status())

	env.release("a")
	waitFor(t, w, func() bool { return ta.Status() == domain.StatusCompleted })
	assert.Equal(t, domain.StatusIdle, tc.Status())
	assert.Equal(t, domain.StatusExecuting, tc.DependentStatus())
	assert.Zero(t, env.calledTimes("c"))

	env.release("b")
	require.NoError(t, run(t, w))
	assert.Equal(t, domain.StatusCompleted, w.Status())

	res, err := w.Result(ctx, false, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Data["r3"])
	for _, op := range []string{"a", "b", "c"} {
		assert.Equal(t, int32(1), env.calledTimes(op), "op %s", op)
	}
	assert.True(t, w.Update(ctx))
}

func TestScenarioSameBackendSingleTask(t *testing.T) {
	env := newTestEnv(t, map[string][]string{"A": {"xop"}})
	req := &domain.Request{Ops: []domain.OpDescriptor{
		{ID: "op1", Name: "xop:op", Result: "r1", Params: map[string]any{"value": 5}},
		{ID: "op2", Name: "xop:op", Input: domain.InputList{"r1"}, Result: "r2", Params: map[string]any{"value": 1}},
	}}
	w := New(env.tasks(req))
	require.Len(t, w.Tasks(), 1)
	require.NoError(t, run(t, w))

	res, err := w.Result(context.Background(), true, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Data["r2"])
}

// A result consumed both inside its own unit and by another backend must
// still order the other backend's task after the producer.
func TestSharedIntermediateResultOrdersConsumer(t *testing.T) {
	env := newTestEnv(t, map[string][]string{"X": {"x"}, "Y": {"y"}, "Z": {"z"}})
	env.gate("a")
	req := &domain.Request{ID: "shared", Ops: []domain.OpDescriptor{
		{ID: "a", Name: "x:op", Result: "r1", Params: map[string]any{"value": 1}},
		{ID: "b", Name: "x:op", Input: domain.InputList{"r1"}, Result: "r2", Params: map[string]any{"value": 10}},
		{ID: "c", Name: "y:op", Input: domain.InputList{"r1"}, Result: "r3", Params: map[string]any{"value": 100}},
		{ID: "d", Name: "z:op", Input: domain.InputList{"r2", "r3"}, Result: "r4"},
	}}

	w := New(env.tasks(req), WithPool(NewPool(4)))
	require.NoError(t, w.Exception())
	require.Len(t, w.Tasks(), 3)
	tx, ty, tz := taskFor(t, w, "a"), taskFor(t, w, "c"), taskFor(t, w, "d")
	require.Same(t, tx, taskFor(t, w, "b"))
	assert.ElementsMatch(t, []string{"r1", "r2"}, tx.Outputs())
	assert.Equal(t, []*Task{tx}, ty.Dependencies())
	assert.ElementsMatch(t, []*Task{tx, ty}, tz.Dependencies())
	require.Same(t, tz, w.OutputTask())

	ctx := context.Background()
	w.Update(ctx)
	assert.Equal(t, domain.StatusExecuting, tx.Status())
	assert.Equal(t, domain.StatusIdle, ty.Status())
	assert.Zero(t, env.calledTimes("c"))

	env.release("a")
	require.NoError(t, run(t, w))
	res, err := w.Result(ctx, false, 0)
	require.NoError(t, err)
	assert.Equal(t, 112, res.Data["r4"])
}

func TestErrorStopsSubmission(t *testing.T) {
	env := newTestEnv(t, map[string][]string{"A": {"a"}, "B": {"b"}})
	req := &domain.Request{Ops: []domain.OpDescriptor{
		{ID: "x", Name: "a:fail", Result: "r1"},
		{ID: "y", Name: "b:op", Input: domain.InputList{"r1"}, Result: "r2"},
	}}
	ctx := context.Background()
	w := New(env.tasks(req))
	tx, ty := taskFor(t, w, "x"), taskFor(t, w, "y")

	assert.False(t, w.Update(ctx))
	require.Eventually(t, func() bool { return tx.Status() == domain.StatusError }, 5*time.Second, time.Millisecond)

	assert.True(t, w.Update(ctx))
	assert.Equal(t, domain.StatusError, w.Status())
	assert.True(t, errors.Is(w.Exception(), domain.ErrBackendExecution))
	assert.Contains(t, w.Exception().Error(), "backend exploded")
	assert.Equal(t, domain.StatusCanceled, ty.Status())
	assert.Zero(t, env.calledTimes("y"))

	_, err := w.Result(ctx, false, 0)
	assert.True(t, errors.Is(err, domain.ErrBackendExecution))
}

func TestConfigurationErrorPreSeedsFailure(t *testing.T) {
	env := newTestEnv(t, map[string][]string{"A": {"a"}, "B": {"b"}})
	req := &domain.Request{Ops: []domain.OpDescriptor{
		{ID: "x", Name: "a:op", Result: "r1"},
		{ID: "y", Name: "b:op", Result: "r2"},
	}}
	sets, err := opset.Compile(env.registry, req, graph.WithMultipleOutputs(true))
	require.NoError(t, err)
	tasks := []*Task{NewTask(sets[0]), NewTask(sets[1])}

	w := New(tasks)
	assert.Equal(t, domain.StatusError, w.Status())
	assert.True(t, errors.Is(w.Exception(), domain.ErrConfiguration))
	assert.True(t, w.Update(context.Background()))
	_, err = w.Result(context.Background(), false, 0)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))

	multi := New(tasks, WithMultipleOutputs(true))
	require.NoError(t, run(t, multi))
	res, err := multi.Result(context.Background(), false, 0)
	require.NoError(t, err)
	assert.Contains(t, res.Data, "r1")
	assert.Contains(t, res.Data, "r2")
}

func TestFailedWorkflow(t *testing.T) {
	cause := &domain.CapabilityError{OpID: "o", Name: "zz:op", Epas: []string{"zz"}}
	w := Failed(cause, WithID("wf-1"))
	assert.Equal(t, "wf-1", w.ID())
	assert.Equal(t, domain.StatusError, w.Status())
	assert.Nil(t, w.OutputTask())
	assert.True(t, w.Update(context.Background()))

	_, err := w.Result(context.Background(), true, time.Second)
	assert.True(t, errors.Is(err, domain.ErrCapability))
}

func TestCancel(t *testing.T) {
	env := newTestEnv(t, map[string][]string{"A": {"a"}, "B": {"b"}})
	env.gate("x")
	req := &domain.Request{Ops: []domain.OpDescriptor{
		{ID: "x", Name: "a:op", Result: "r1"},
		{ID: "y", Name: "b:op", Input: domain.InputList{"r1"}, Result: "r2"},
	}}
	ctx := context.Background()
	w := New(env.tasks(req))
	require.False(t, w.Update(ctx))

	w.Cancel()
	assert.True(t, w.Update(ctx))
	assert.Equal(t, domain.StatusCanceled, w.Status())
	for _, task := range w.Tasks() {
		assert.Equal(t, domain.StatusCanceled, task.Status())
	}
	_, err := w.Result(ctx, false, 0)
	assert.True(t, errors.Is(err, domain.ErrCanceled))
	assert.Zero(t, env.calledTimes("y"))
}

func TestRunCancelsOnContext(t *testing.T) {
	env := newTestEnv(t, map[string][]string{"A": {"a"}})
	env.gate("x")
	req := &domain.Request{Ops: []domain.OpDescriptor{{ID: "x", Name: "a:op", Result: "r1"}}}
	w := New(env.tasks(req))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := w.Run(ctx, 5*time.Millisecond)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, domain.StatusCanceled, w.Status())
}

func TestComposedStrategyDiamond(t *testing.T) {
	env := newTestEnv(t, map[string][]string{"A": {"a"}, "B": {"b"}, "C": {"c"}, "D": {"d"}})
	req := &domain.Request{Ops: []domain.OpDescriptor{
		{ID: "s", Name: "a:op", Result: "r1", Params: map[string]any{"value": 1}},
		{ID: "l", Name: "b:op", Input: domain.InputList{"r1"}, Result: "r2", Params: map[string]any{"value": 10}},
		{ID: "r", Name: "c:op", Input: domain.InputList{"r1"}, Result: "r3", Params: map[string]any{"value": 100}},
		{ID: "j", Name: "d:op", Input: domain.InputList{"r2", "r3"}, Result: "r4"},
	}}
	w := New(env.tasks(req), WithStrategy(NewComposedStrategy()))

	root, ok := Compose(w).(join)
	require.True(t, ok, "sink with two dependencies composes to a join")
	require.Len(t, root.deps, 2)
	left, ok := root.deps[0].(chain)
	require.True(t, ok)
	right, ok := root.deps[1].(chain)
	require.True(t, ok)
	assert.Equal(t, left.dep, right.dep, "shared dependency composes to one unit")

	require.NoError(t, run(t, w))
	res, err := w.Result(context.Background(), false, 0)
	require.NoError(t, err)
	assert.Equal(t, 112, res.Data["r4"])
	for _, op := range []string{"s", "l", "r", "j"} {
		assert.Equal(t, int32(1), env.calledTimes(op), "op %s", op)
	}
}

func TestComposedStrategyError(t *testing.T) {
	env := newTestEnv(t, map[string][]string{"A": {"a"}, "B": {"b"}})
	req := &domain.Request{Ops: []domain.OpDescriptor{
		{ID: "x", Name: "a:fail", Result: "r1"},
		{ID: "y", Name: "b:op", Input: domain.InputList{"r1"}, Result: "r2"},
	}}
	w := New(env.tasks(req), WithStrategy(NewComposedStrategy()))
	err := run(t, w)
	assert.True(t, errors.Is(err, domain.ErrBackendExecution))
	assert.Equal(t, domain.StatusError, w.Status())
	assert.Zero(t, env.calledTimes("y"))
}

func TestObserverSeesTransitions(t *testing.T) {
	env := newTestEnv(t, map[string][]string{"A": {"a"}})
	req := &domain.Request{Ops: []domain.OpDescriptor{{ID: "x", Name: "a:op", Result: "r1"}}}
	rec := &recorder{}
	w := New(env.tasks(req), WithObserver(rec))
	require.NoError(t, run(t, w))

	assert.Equal(t, []domain.Status{domain.StatusExecuting, domain.StatusCompleted}, rec.workflow)
	seen := rec.taskSeen[w.OutputTask().ID()]
	require.NotEmpty(t, seen)
	assert.Equal(t, domain.StatusCompleted, seen[len(seen)-1])
}

func TestNotifyHook(t *testing.T) {
	env := newTestEnv(t, map[string][]string{"A": {"a"}})
	req := &domain.Request{Ops: []domain.OpDescriptor{{ID: "x", Name: "a:op", Result: "r1"}}}
	woke := make(chan struct{}, 8)
	w := New(env.tasks(req), WithNotify(func() {
		select {
		case woke <- struct{}{}:
		default:
		}
	}))
	w.Update(context.Background())
	select {
	case <-woke:
	case <-time.After(5 * time.Second):
		t.Fatal("notify hook not called")
	}
	assert.Equal(t, domain.StatusCompleted, w.OutputTask().Status())
}

var _ backend.Canceler = (*Workflow)(nil)
