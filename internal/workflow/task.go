package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/stratus-lite/internal/backend"
	"github.com/example/stratus-lite/internal/domain"
	"github.com/example/stratus-lite/internal/opset"
	"github.com/example/stratus-lite/pkg/id"
)

var tracer = otel.Tracer("github.com/example/stratus-lite/internal/workflow")

// Task is one schedulable unit of a workflow: a finalized ClientOpSet plus
// the future of its execution.
type Task struct {
	id      string
	set     *opset.ClientOpSet
	inputs  []string
	outputs []string
	logger  *slog.Logger

	deps      []*Task
	consumers []*Task

	future *backend.Future
	once   sync.Once
	runCtx context.Context
}

// NewTask wraps a finalized client op set. The task's inputs are the set's
// unresolved inputs. Its outputs are the results of every op in the set,
// since a result consumed inside the set may also feed another task.
func NewTask(set *opset.ClientOpSet) *Task {
	taskID := id.Prefixed("task")
	t := &Task{
		id:     taskID,
		set:    set,
		future: backend.NewFuture(taskID),
		logger: slog.Default().With("component", "task", "task", taskID),
	}
	for _, c := range set.Inputs() {
		t.inputs = appendMissing(t.inputs, c.ID)
	}
	for _, op := range set.Ops() {
		t.outputs = appendMissing(t.outputs, op.ResultID())
	}
	return t
}

func (t *Task) ID() string        { return t.id }
func (t *Task) Inputs() []string  { return t.inputs }
func (t *Task) Outputs() []string { return t.outputs }

// ClientOpSet returns the wrapped unit.
func (t *Task) ClientOpSet() *opset.ClientOpSet { return t.set }

// Dependencies returns the tasks whose outputs this task consumes.
func (t *Task) Dependencies() []*Task { return t.deps }

// Consumers returns the tasks consuming this task's outputs.
func (t *Task) Consumers() []*Task { return t.consumers }

// Handle returns the task's future.
func (t *Task) Handle() backend.Handle { return t.future }

func (t *Task) Status() domain.Status { return t.future.Status() }

func (t *Task) Exception() error { return t.future.Exception() }

func (t *Task) Result(ctx context.Context, block bool, timeout time.Duration) (*domain.TaskResult, error) {
	return t.future.Result(ctx, block, timeout)
}

// Cancel cancels the task and, best effort, its backend request.
func (t *Task) Cancel() {
	t.future.Cancel()
}

// DependentStatus aggregates dependency statuses: any ERROR or CANCELED
// wins, then any pending dependency yields EXECUTING, otherwise COMPLETED.
func (t *Task) DependentStatus() domain.Status {
	pending := false
	for _, dep := range t.deps {
		switch s := dep.Status(); s {
		case domain.StatusError, domain.StatusCanceled:
			return s
		case domain.StatusCompleted:
		default:
			pending = true
		}
	}
	if pending {
		return domain.StatusExecuting
	}
	return domain.StatusCompleted
}

// Submit schedules execution on pool and returns the task's future
// immediately. Only the first call schedules anything.
func (t *Task) Submit(ctx context.Context, pool *Pool) backend.Handle {
	if t.start(ctx) {
		pool.Go(t.runCtx, t.execute)
	}
	return t.future
}

// start marks the task EXECUTING. It returns true only for the call that
// owns execution.
func (t *Task) start(ctx context.Context) bool {
	started := false
	t.once.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		t.runCtx = runCtx
		t.future.SetCancelFunc(func() {
			cancel()
			if h := t.set.Handle(); h != nil {
				backend.Cancel(h)
			}
		})
		started = t.future.Start()
		if !started {
			cancel()
		}
	})
	return started
}

// runInline executes the task on the calling goroutine if nobody has yet,
// then waits for its outcome.
func (t *Task) runInline(ctx context.Context) error {
	if t.start(ctx) {
		t.execute(t.runCtx)
	}
	_, err := t.future.Result(ctx, true, 0)
	return err
}

func (t *Task) execute(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "workflow.task.execute", trace.WithAttributes(
		attribute.String("task.id", t.id),
		attribute.String("backend.id", t.set.ClientID()),
		attribute.Int("ops", t.set.Len()),
	))
	defer span.End()

	if ctx.Err() != nil {
		t.cancelled(span)
		return
	}

	deps, err := t.collect(ctx)
	if err != nil {
		t.cancelled(span)
		return
	}

	h, err := t.set.Submit(ctx, deps)
	if err != nil {
		t.fail(span, fmt.Errorf("%w: task %s on %s: %w", domain.ErrBackendExecution, t.id, t.set.ClientID(), err))
		return
	}
	span.AddEvent("submitted", trace.WithAttributes(attribute.String("handle.id", h.ID())))

	res, err := h.Result(ctx, true, 0)
	if err != nil {
		if h.Status() == domain.StatusCanceled || errors.Is(err, domain.ErrCanceled) || ctx.Err() != nil {
			t.cancelled(span)
			return
		}
		t.fail(span, fmt.Errorf("%w: task %s on %s: %w", domain.ErrBackendExecution, t.id, t.set.ClientID(), err))
		return
	}

	out := &domain.TaskResult{TaskID: t.id, Data: map[string]any{}}
	if res != nil {
		for k, v := range res.Data {
			out.Data[k] = v
		}
	}
	span.SetStatus(codes.Ok, "")
	t.future.Resolve(out)
}

// collect joins on every dependency. A dependency without a result is
// logged and the task runs with no dependency inputs at all. The only
// error returned is cancellation.
func (t *Task) collect(ctx context.Context) ([]*domain.TaskResult, error) {
	results := make([]*domain.TaskResult, 0, len(t.deps))
	incomplete := false
	for _, dep := range t.deps {
		res, err := dep.Result(ctx, true, 0)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: task %s: %v", domain.ErrCanceled, t.id, ctxErr)
		}
		if err != nil || res == nil {
			t.logger.Warn("dependency produced no result",
				"dependency", dep.id, "error", fmt.Errorf("%w: %v", domain.ErrDependencyIncomplete, err))
			incomplete = true
			continue
		}
		results = append(results, res)
	}
	if incomplete {
		return []*domain.TaskResult{}, nil
	}
	return results, nil
}

func (t *Task) cancelled(span trace.Span) {
	span.SetStatus(codes.Error, "canceled")
	t.future.Cancel()
}

func (t *Task) fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	t.logger.Debug("task failed", "error", err)
	t.future.Fail(err)
}

func appendMissing(items []string, s string) []string {
	for _, it := range items {
		if it == s {
			return items
		}
	}
	return append(items, s)
}
