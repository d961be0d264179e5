package workflow

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Strategy decides how a ready task gets executed. Schedule must not block.
type Strategy interface {
	Schedule(ctx context.Context, w *Workflow, t *Task)
}

// PoolStrategy submits each ready task to the workflow's worker pool.
type PoolStrategy struct{}

func (PoolStrategy) Schedule(ctx context.Context, w *Workflow, t *Task) {
	t.Submit(ctx, w.pool)
}

// ComposedStrategy compiles the whole task graph into one nested unit the
// first time any task of a workflow is ready, and runs it on a single
// worker. Later calls for the same workflow are no-ops; tasks still move
// through the same statuses, so Update polls them unchanged.
type ComposedStrategy struct {
	mu      sync.Mutex
	started map[string]bool
}

// NewComposedStrategy creates a composed strategy. One instance may serve
// many workflows.
func NewComposedStrategy() *ComposedStrategy {
	return &ComposedStrategy{started: make(map[string]bool)}
}

func (s *ComposedStrategy) Schedule(ctx context.Context, w *Workflow, _ *Task) {
	s.mu.Lock()
	if s.started[w.ID()] {
		s.mu.Unlock()
		return
	}
	s.started[w.ID()] = true
	s.mu.Unlock()

	root := Compose(w)
	w.pool.Go(ctx, func(ctx context.Context) {
		defer s.forget(w.ID())
		if err := root.Run(ctx); err != nil {
			w.logger.Debug("composed unit stopped", "error", err)
		}
	})
}

func (s *ComposedStrategy) forget(workflowID string) {
	s.mu.Lock()
	delete(s.started, workflowID)
	s.mu.Unlock()
}

// Unit is a composed, natively executable piece of a workflow.
type Unit interface {
	Run(ctx context.Context) error
}

type standalone struct{ task *Task }

func (u standalone) Run(ctx context.Context) error {
	return u.task.runInline(ctx)
}

type chain struct {
	dep  Unit
	task *Task
}

func (u chain) Run(ctx context.Context) error {
	if err := u.dep.Run(ctx); err != nil {
		return err
	}
	return u.task.runInline(ctx)
}

type join struct {
	deps []Unit
	task *Task
}

func (u join) Run(ctx context.Context) error {
	if err := runAll(ctx, u.deps); err != nil {
		return err
	}
	return u.task.runInline(ctx)
}

type group struct{ units []Unit }

func (u group) Run(ctx context.Context) error {
	return runAll(ctx, u.units)
}

func runAll(ctx context.Context, units []Unit) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, unit := range units {
		g.Go(func() error {
			return unit.Run(gctx)
		})
	}
	return g.Wait()
}

// Compose builds the unit tree for every sink task of w: a task with no
// dependencies is standalone, one dependency makes a chain, several make
// a join. Shared dependencies map to the same unit and execute once.
func Compose(w *Workflow) Unit {
	memo := make(map[string]Unit)
	var build func(t *Task) Unit
	build = func(t *Task) Unit {
		if u, ok := memo[t.ID()]; ok {
			return u
		}
		var u Unit
		switch len(t.deps) {
		case 0:
			u = standalone{task: t}
		case 1:
			u = chain{dep: build(t.deps[0]), task: t}
		default:
			deps := make([]Unit, 0, len(t.deps))
			for _, d := range t.deps {
				deps = append(deps, build(d))
			}
			u = join{deps: deps, task: t}
		}
		memo[t.ID()] = u
		return u
	}

	var sinks []Unit
	for _, t := range w.Tasks() {
		if len(t.consumers) == 0 {
			sinks = append(sinks, build(t))
		}
	}
	if len(sinks) == 1 {
		return sinks[0]
	}
	return group{units: sinks}
}
