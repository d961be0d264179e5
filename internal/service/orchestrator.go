package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/stratus-lite/internal/backend"
	"github.com/example/stratus-lite/internal/domain"
	"github.com/example/stratus-lite/internal/graph"
	"github.com/example/stratus-lite/internal/observability"
	"github.com/example/stratus-lite/internal/opset"
	"github.com/example/stratus-lite/internal/storage"
	"github.com/example/stratus-lite/internal/workflow"
)

// Strategy names.
const (
	StrategyPool     = "pool"
	StrategyComposed = "composed"
)

// Config holds configuration for the Orchestrator.
type Config struct {
	MaxWorkers      int           // Size of the shared task pool
	MultipleOutputs bool          // Allow workflows with more than one output task
	Strategy        string        // "pool" or "composed"
	PollInterval    time.Duration // Controller tick
	Retention       time.Duration // How long finished workflows stay in memory
}

// DefaultConfig returns reasonable defaults.
func DefaultConfig() Config {
	return Config{
		MaxWorkers:   8,
		Strategy:     StrategyPool,
		PollInterval: 100 * time.Millisecond,
		Retention:    5 * time.Minute,
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records compile, workflow and task metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// Orchestrator compiles requests into workflows, journals them and hands
// them to its controller.
type Orchestrator struct {
	registry   *backend.Registry
	storage    storage.Storage
	metrics    *observability.Metrics
	logger     *slog.Logger
	config     Config
	pool       *workflow.Pool
	strategy   workflow.Strategy
	controller *Controller
	journal    *journal

	mu        sync.RWMutex
	workflows map[string]*workflow.Workflow
}

// NewOrchestrator creates an Orchestrator. store may be nil, in which case
// nothing is journaled and Get reports ErrNotFound.
func NewOrchestrator(reg *backend.Registry, store storage.Storage, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:  reg,
		storage:   store,
		config:    cfg,
		logger:    slog.Default(),
		workflows: make(map[string]*workflow.Workflow),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "orchestrator")
	o.pool = workflow.NewPool(cfg.MaxWorkers)
	if cfg.Strategy == StrategyComposed {
		o.strategy = workflow.NewComposedStrategy()
	} else {
		o.strategy = workflow.PoolStrategy{}
	}
	o.controller = NewController(cfg.PollInterval, o.metrics, o.logger)
	o.controller.retention = cfg.Retention
	o.controller.evict = o.forget
	o.journal = newJournal(store, o.metrics, o.logger)
	return o
}

// Controller returns the controller driving submitted workflows.
func (o *Orchestrator) Controller() *Controller { return o.controller }

// Registry returns the backend registry.
func (o *Orchestrator) Registry() *backend.Registry { return o.registry }

// Start starts the controller loop.
func (o *Orchestrator) Start() { o.controller.Start() }

// Stop cancels active workflows, stops the controller and waits for
// running tasks.
func (o *Orchestrator) Stop() {
	o.controller.Stop()
	o.pool.Wait()
}

// Compile distributes req over the registered backends and wires the
// resulting tasks into a workflow. It never returns nil: capability and
// configuration errors yield a workflow already in ERROR.
func (o *Orchestrator) Compile(ctx context.Context, req *domain.Request) *workflow.Workflow {
	opts := []workflow.Option{
		workflow.WithStrategy(o.strategy),
		workflow.WithPool(o.pool),
		workflow.WithLogger(o.logger),
		workflow.WithObserver(o.journal),
		workflow.WithNotify(o.controller.Notify),
		workflow.WithMultipleOutputs(o.config.MultipleOutputs),
	}

	sets, err := opset.Compile(o.registry, req, graph.WithMultipleOutputs(o.config.MultipleOutputs))
	if err != nil {
		o.compileFailed(err)
		return workflow.Failed(err, opts...)
	}
	tasks := make([]*workflow.Task, 0, len(sets))
	for _, set := range sets {
		tasks = append(tasks, workflow.NewTask(set))
	}
	if o.metrics != nil {
		o.metrics.Distributed(len(tasks))
	}
	w := workflow.New(tasks, opts...)
	if err := w.Exception(); err != nil {
		o.compileFailed(err)
	}
	o.logger.DebugContext(ctx, "compiled request", "request", req.ID, "workflow", w.ID(), "tasks", len(tasks))
	return w
}

func (o *Orchestrator) compileFailed(err error) {
	if o.metrics == nil {
		return
	}
	reason := "invalid"
	switch {
	case errors.Is(err, domain.ErrCapability):
		reason = "capability"
	case errors.Is(err, domain.ErrConfiguration):
		reason = "configuration"
	}
	o.metrics.CompileFailed(reason)
}

// Submit compiles req, journals the workflow and its tasks in one unit of
// work and hands the workflow to the controller. Compile failures are
// journaled and returned as a workflow in ERROR, not as an error.
func (o *Orchestrator) Submit(ctx context.Context, req *domain.Request) (*workflow.Workflow, error) {
	w := o.Compile(ctx, req)
	if err := o.record(ctx, req, w); err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.workflows[w.ID()] = w
	o.mu.Unlock()

	if !w.Status().IsFinal() && o.metrics != nil {
		o.metrics.WorkflowStarted()
	}
	o.journal.started(w)
	o.controller.Add(w)
	return w, nil
}

func (o *Orchestrator) record(ctx context.Context, req *domain.Request, w *workflow.Workflow) error {
	if o.storage == nil {
		return nil
	}
	now := time.Now().UTC()
	rec := &domain.WorkflowRecord{
		ID:        w.ID(),
		RequestID: req.ID,
		ClientID:  req.ClientID,
		Status:    w.Status(),
		Strategy:  o.config.Strategy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if out := w.OutputTask(); out != nil {
		rec.OutputTaskID = out.ID()
	}
	if err := w.Exception(); err != nil {
		rec.Error = err.Error()
		rec.CompletedAt = &now
	}

	tasks := make([]*domain.TaskRecord, 0, len(w.Tasks()))
	for _, t := range w.Tasks() {
		set := t.ClientOpSet()
		opIDs := make([]string, 0, set.Len())
		for _, op := range set.Ops() {
			opIDs = append(opIDs, op.ID())
		}
		tasks = append(tasks, &domain.TaskRecord{
			ID:         t.ID(),
			WorkflowID: w.ID(),
			BackendID:  set.ClientID(),
			OpIDs:      opIDs,
			Inputs:     t.Inputs(),
			Outputs:    t.Outputs(),
			Status:     t.Status(),
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	return storage.InTx(ctx, o.storage, func(uow storage.UnitOfWork) error {
		if err := uow.Workflows().Create(ctx, rec); err != nil {
			return fmt.Errorf("journal workflow %s: %w", rec.ID, err)
		}
		if err := uow.Tasks().CreateBatch(ctx, tasks); err != nil {
			return fmt.Errorf("journal tasks of %s: %w", rec.ID, err)
		}
		return nil
	})
}

// Workflow returns a submitted workflow by ID.
func (o *Orchestrator) Workflow(id string) (*workflow.Workflow, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	w, ok := o.workflows[id]
	if !ok {
		return nil, fmt.Errorf("%w: workflow %s", domain.ErrNotFound, id)
	}
	return w, nil
}

// forget drops a finished workflow from memory. The journal still has it.
func (o *Orchestrator) forget(id string) {
	o.mu.Lock()
	delete(o.workflows, id)
	o.mu.Unlock()
	o.logger.Debug("workflow evicted", "workflow", id)
}

// Wait blocks until the workflow is terminal and returns its result.
func (o *Orchestrator) Wait(ctx context.Context, id string) (*domain.TaskResult, error) {
	w, err := o.Workflow(id)
	if err != nil {
		return nil, err
	}
	if done, ok := o.controller.Done(id); ok {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return w.Result(ctx, true, 0)
}

// Cancel requests cancellation of a submitted workflow.
func (o *Orchestrator) Cancel(id string) error {
	w, err := o.Workflow(id)
	if err != nil {
		return err
	}
	w.Cancel()
	return nil
}

// Get reads a workflow and its tasks from the journal.
func (o *Orchestrator) Get(ctx context.Context, id string) (*domain.WorkflowRecord, []*domain.TaskRecord, error) {
	if o.storage == nil {
		return nil, nil, fmt.Errorf("%w: workflow %s", domain.ErrNotFound, id)
	}
	uow, err := o.storage.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	wf, err := uow.Workflows().Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	tasks, err := uow.Tasks().ListByWorkflow(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return wf, tasks, nil
}

// List reads workflow records from the journal, newest first.
func (o *Orchestrator) List(ctx context.Context, opts storage.ListOptions) ([]*domain.WorkflowRecord, error) {
	if o.storage == nil {
		return nil, nil
	}
	uow, err := o.storage.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()
	return uow.Workflows().List(ctx, opts)
}
