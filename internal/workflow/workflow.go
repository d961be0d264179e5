// Package workflow drives a graph of backend-bound tasks to a single
// terminal result.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/stratus-lite/internal/backend"
	"github.com/example/stratus-lite/internal/domain"
	"github.com/example/stratus-lite/internal/graph"
	"github.com/example/stratus-lite/pkg/id"
)

// Workflow is a dependency graph of tasks plus a polling state machine.
// Update must be called from a single goroutine; the read accessors are
// safe from any goroutine.
type Workflow struct {
	id       string
	graph    *graph.Graph[*Task]
	outputs  []*Task
	strategy Strategy
	pool     *Pool
	logger   *slog.Logger
	obs      []Observer
	notify   func()
	wake     chan struct{}

	completed       map[string]bool
	seen            map[string]domain.Status
	runCtx          context.Context
	cancelRun       context.CancelFunc
	cancelRequested atomic.Bool

	mu     sync.RWMutex
	status domain.Status
	err    error
	result backend.Handle
	done   chan struct{}
}

var _ backend.Handle = (*Workflow)(nil)

func newWorkflow(opts []Option) (*Workflow, options) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = id.Prefixed("wf")
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.pool == nil {
		o.pool = NewPool(0)
	}
	if o.strategy == nil {
		o.strategy = PoolStrategy{}
	}
	w := &Workflow{
		id:        o.id,
		strategy:  o.strategy,
		pool:      o.pool,
		logger:    o.logger.With("component", "workflow", "workflow", o.id),
		obs:       o.observers,
		notify:    o.notify,
		wake:      make(chan struct{}, 1),
		completed: make(map[string]bool),
		seen:      make(map[string]domain.Status),
		status:    domain.StatusIdle,
		done:      make(chan struct{}),
	}
	return w, o
}

// New wires tasks into a workflow. Configuration errors (cycles, zero or
// too many outputs) produce a workflow already in ERROR.
func New(tasks []*Task, opts ...Option) *Workflow {
	w, o := newWorkflow(opts)
	w.graph = graph.New(tasks, graph.WithMultipleOutputs(o.multipleOutputs))
	if err := w.graph.Connect(); err != nil {
		w.seedFailure(err)
		return w
	}
	outs, err := terminalOutputs(w.graph.Nodes(), o.multipleOutputs)
	if err != nil {
		w.seedFailure(err)
		return w
	}
	for _, c := range outs {
		t, _ := w.graph.Node(c.Source)
		if !containsTask(w.outputs, t) {
			w.outputs = append(w.outputs, t)
		}
	}

	for _, t := range w.graph.Nodes() {
		t.deps = t.deps[:0]
		t.consumers = t.consumers[:0]
		for _, pid := range w.graph.Predecessors(t.ID()) {
			dep, _ := w.graph.Node(pid)
			t.deps = append(t.deps, dep)
		}
		for _, sid := range w.graph.Successors(t.ID()) {
			consumer, _ := w.graph.Node(sid)
			t.consumers = append(t.consumers, consumer)
		}
		t.logger = w.logger.With("task", t.ID(), "backend", t.set.ClientID())
		t.future.OnDone(w.signal)
		w.seen[t.ID()] = domain.StatusIdle
	}
	return w
}

// terminalOutputs returns the op results nothing in the workflow consumes,
// each attributed to the task producing it. Task outputs list every op
// result, so the task graph's own unresolved outputs cannot be used here.
func terminalOutputs(tasks []*Task, multiple bool) ([]graph.Connection, error) {
	consumed := make(map[string]bool)
	for _, t := range tasks {
		for _, in := range t.inputs {
			consumed[in] = true
		}
	}
	var outs []graph.Connection
	for _, t := range tasks {
		for _, c := range t.set.AllOutputs() {
			if !consumed[c.ID] {
				outs = append(outs, graph.Connection{ID: c.ID, Source: t.ID()})
			}
		}
	}
	switch {
	case len(outs) == 0:
		return nil, fmt.Errorf("%w: workflow has no unresolved output", domain.ErrConfiguration)
	case len(outs) > 1 && !multiple:
		return nil, fmt.Errorf("%w: workflow has %d unresolved outputs %v; only one is permitted",
			domain.ErrConfiguration, len(outs), outs)
	}
	return outs, nil
}

// Failed returns a workflow pre-seeded into ERROR with a synthetic failed
// result, for requests that failed before any task existed.
func Failed(err error, opts ...Option) *Workflow {
	w, _ := newWorkflow(opts)
	w.graph = graph.New[*Task](nil)
	w.seedFailure(err)
	return w
}

func (w *Workflow) seedFailure(err error) {
	w.logger.Warn("workflow failed before execution", "error", err)
	w.status = domain.StatusError
	w.err = err
	w.result = backend.Failed(w.id, err)
	close(w.done)
}

func (w *Workflow) ID() string { return w.id }

func (w *Workflow) Status() domain.Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

func (w *Workflow) Exception() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.err
}

// Result returns the output task's result once the workflow is COMPLETED,
// or the workflow's exception once it is ERROR or CANCELED.
func (w *Workflow) Result(ctx context.Context, block bool, timeout time.Duration) (*domain.TaskResult, error) {
	if err := backend.Await(ctx, w.done, block, timeout); err != nil {
		return nil, err
	}
	w.mu.RLock()
	h := w.result
	w.mu.RUnlock()
	return h.Result(ctx, false, 0)
}

// Done is closed once the workflow reaches a terminal state.
func (w *Workflow) Done() <-chan struct{} { return w.done }

// Wake receives a value whenever a task settles.
func (w *Workflow) Wake() <-chan struct{} { return w.wake }

// Tasks returns the tasks in insertion order.
func (w *Workflow) Tasks() []*Task { return w.graph.Nodes() }

// OutputTask returns the task whose output has no consumer, or nil for a
// workflow that failed before wiring.
func (w *Workflow) OutputTask() *Task {
	if len(w.outputs) == 0 {
		return nil
	}
	return w.outputs[0]
}

// OutputTasks returns every output task.
func (w *Workflow) OutputTasks() []*Task { return w.outputs }

// Cancel requests cancellation. Pending tasks are canceled immediately;
// the workflow itself turns CANCELED on the next Update.
func (w *Workflow) Cancel() {
	if w.Status().IsFinal() {
		return
	}
	w.cancelRequested.Store(true)
	for _, t := range w.graph.Nodes() {
		t.Cancel()
	}
	w.signal()
}

func (w *Workflow) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
	if w.notify != nil {
		w.notify()
	}
}

// Update makes one non-blocking pass over the pending tasks, submitting
// those whose dependencies completed. It returns true once the workflow
// is terminal.
func (w *Workflow) Update(ctx context.Context) bool {
	if w.Status().IsFinal() {
		return true
	}
	if w.runCtx == nil {
		w.runCtx, w.cancelRun = context.WithCancel(context.WithoutCancel(ctx))
	}
	if w.Status() == domain.StatusIdle {
		w.transition(domain.StatusExecuting, nil, nil)
	}
	if w.cancelRequested.Load() {
		w.abort(domain.StatusCanceled, fmt.Errorf("%w: workflow %s", domain.ErrCanceled, w.id))
		return true
	}

	pending := make([]*Task, 0, w.graph.Len())
	statuses := make(map[string]domain.Status, w.graph.Len())
	for _, t := range w.graph.Nodes() {
		if w.completed[t.ID()] {
			continue
		}
		s := t.Status()
		statuses[t.ID()] = s
		pending = append(pending, t)
		w.observeTask(t, s)
	}

	// Errors take precedence over the cancellations they cascade into.
	for _, failure := range []domain.Status{domain.StatusError, domain.StatusCanceled} {
		for _, t := range pending {
			if statuses[t.ID()] == failure {
				w.abort(failure, t.Exception())
				return true
			}
		}
	}

	done := true
	for _, t := range pending {
		switch statuses[t.ID()] {
		case domain.StatusIdle:
			if t.DependentStatus() == domain.StatusCompleted {
				w.strategy.Schedule(w.runCtx, w, t)
			}
			done = false
		case domain.StatusCompleted:
			w.completed[t.ID()] = true
		default:
			done = false
		}
	}
	if done {
		w.finish()
	}
	return done
}

// Run drives Update until the workflow is terminal, waking on task
// notifications or every tick. Canceling ctx cancels the workflow.
func (w *Workflow) Run(ctx context.Context, tick time.Duration) error {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for !w.Update(ctx) {
		select {
		case <-ctx.Done():
			w.Cancel()
			w.Update(ctx)
			return ctx.Err()
		case <-w.wake:
		case <-ticker.C:
		}
	}
	return w.Exception()
}

func (w *Workflow) finish() {
	var result backend.Handle
	if len(w.outputs) == 1 {
		result = w.outputs[0].Handle()
	} else {
		merged := make([]*domain.TaskResult, 0, len(w.outputs))
		for _, t := range w.outputs {
			if res, err := t.Result(context.Background(), false, 0); err == nil {
				merged = append(merged, res)
			}
		}
		f := backend.NewFuture(w.id)
		f.Resolve(&domain.TaskResult{TaskID: w.id, Data: domain.MergeResults(merged)})
		result = f
	}
	w.logger.Info("workflow completed", "tasks", w.graph.Len())
	w.transition(domain.StatusCompleted, nil, result)
	w.release()
}

func (w *Workflow) abort(status domain.Status, err error) {
	if err == nil {
		err = fmt.Errorf("%w: workflow %s", domain.ErrCanceled, w.id)
	}
	for _, t := range w.graph.Nodes() {
		if !t.Status().IsFinal() {
			t.Cancel()
		}
		w.observeTask(t, t.Status())
	}
	var result backend.Handle
	if status == domain.StatusCanceled {
		f := backend.NewFuture(w.id)
		f.Cancel()
		result = f
	} else {
		result = backend.Failed(w.id, err)
	}
	w.logger.Warn("workflow aborted", "status", status, "error", err)
	w.transition(status, err, result)
	w.release()
}

func (w *Workflow) release() {
	if w.cancelRun != nil {
		w.cancelRun()
	}
	close(w.done)
}

func (w *Workflow) transition(to domain.Status, err error, result backend.Handle) {
	w.mu.Lock()
	from := w.status
	w.status = to
	if err != nil {
		w.err = err
	}
	if result != nil {
		w.result = result
	}
	w.mu.Unlock()

	for _, o := range w.obs {
		o.WorkflowStatusChanged(w, from, to)
	}
}

func (w *Workflow) observeTask(t *Task, s domain.Status) {
	prev := w.seen[t.ID()]
	if prev == s {
		return
	}
	w.seen[t.ID()] = s
	for _, o := range w.obs {
		o.TaskStatusChanged(w, t, prev, s)
	}
}

func containsTask(tasks []*Task, t *Task) bool {
	for _, x := range tasks {
		if x == t {
			return true
		}
	}
	return false
}
