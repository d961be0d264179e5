package workflow

import (
	"log/slog"

	"github.com/example/stratus-lite/internal/domain"
)

// Observer receives status transitions. Calls are made from Update, on the
// goroutine driving the workflow.
type Observer interface {
	WorkflowStatusChanged(w *Workflow, from, to domain.Status)
	TaskStatusChanged(w *Workflow, t *Task, from, to domain.Status)
}

// Option configures a Workflow.
type Option func(*options)

type options struct {
	id              string
	strategy        Strategy
	pool            *Pool
	logger          *slog.Logger
	observers       []Observer
	notify          func()
	multipleOutputs bool
}

// WithID sets the workflow ID.
func WithID(id string) Option {
	return func(o *options) {
		o.id = id
	}
}

// WithStrategy sets how ready tasks are executed. Defaults to PoolStrategy.
func WithStrategy(s Strategy) Option {
	return func(o *options) {
		o.strategy = s
	}
}

// WithPool sets the worker pool tasks execute on.
func WithPool(p *Pool) Option {
	return func(o *options) {
		o.pool = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithObserver adds an observer.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observers = append(o.observers, obs)
	}
}

// WithNotify registers fn to be called whenever a task settles. fn must
// not block.
func WithNotify(fn func()) Option {
	return func(o *options) {
		o.notify = fn
	}
}

// WithMultipleOutputs permits more than one output task.
func WithMultipleOutputs(enabled bool) Option {
	return func(o *options) {
		o.multipleOutputs = enabled
	}
}
