package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/example/stratus-lite/internal/ctxlog"
	"github.com/example/stratus-lite/internal/domain"
	"github.com/example/stratus-lite/internal/graph"
	"github.com/example/stratus-lite/pkg/id"
)

// HandlerFunc implements one named operation. args holds the values of the
// op's inputs, in declaration order.
type HandlerFunc func(ctx context.Context, op domain.OpDescriptor, args []any) (any, error)

// LocalClient is an in-process backend that runs registered handlers.
type LocalClient struct {
	id     string
	epas   []string
	sem    *semaphore.Weighted
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

var _ Client = (*LocalClient)(nil)

// LocalOption configures a LocalClient.
type LocalOption func(*LocalClient)

// WithConcurrency bounds the number of sub-requests executing at once.
func WithConcurrency(n int64) LocalOption {
	return func(c *LocalClient) {
		if n > 0 {
			c.sem = semaphore.NewWeighted(n)
		}
	}
}

// WithLocalLogger sets the logger.
func WithLocalLogger(logger *slog.Logger) LocalOption {
	return func(c *LocalClient) {
		c.logger = logger
	}
}

// NewLocalClient creates a backend advertising the given address patterns.
func NewLocalClient(clientID string, epas []string, opts ...LocalOption) *LocalClient {
	c := &LocalClient{
		id:       clientID,
		epas:     append([]string(nil), epas...),
		sem:      semaphore.NewWeighted(8),
		logger:   slog.Default(),
		handlers: make(map[string]HandlerFunc),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "local-backend", "backend", clientID)
	return c
}

// Handle registers fn under the bare op name.
func (c *LocalClient) Handle(name string, fn HandlerFunc) *LocalClient {
	c.mu.Lock()
	c.handlers[name] = fn
	c.mu.Unlock()
	return c
}

func (c *LocalClient) ID() string { return c.id }

func (c *LocalClient) Capabilities(_ context.Context, kind string) (map[string][]string, error) {
	switch kind {
	case CapabilityEpas:
		return map[string][]string{kind: append([]string(nil), c.epas...)}, nil
	case CapabilityOps:
		c.mu.RLock()
		defer c.mu.RUnlock()
		names := make([]string, 0, len(c.handlers))
		for name := range c.handlers {
			names = append(names, name)
		}
		sort.Strings(names)
		return map[string][]string{kind: names}, nil
	default:
		return map[string][]string{}, nil
	}
}

type localStep struct {
	op      domain.OpDescriptor
	handler HandlerFunc
}

// Request orders the sub-request's ops by data flow and runs them on a
// background goroutine.
func (c *LocalClient) Request(ctx context.Context, req *domain.Request, deps []*domain.TaskResult) (Handle, error) {
	steps, err := c.plan(req)
	if err != nil {
		return nil, err
	}

	f := NewFuture(id.Prefixed("local"))
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	runCtx = ctxlog.WithLogger(runCtx, c.logger.With("request", req.ID, "handle", f.ID()))
	f.SetCancelFunc(cancel)

	values := make(map[string]any)
	for k, v := range req.InputSources {
		values[k] = v
	}
	for k, v := range domain.MergeResults(deps) {
		values[k] = v
	}

	go func() {
		defer cancel()
		if err := c.sem.Acquire(runCtx, 1); err != nil {
			f.Fail(err)
			return
		}
		defer c.sem.Release(1)
		f.Start()
		c.run(runCtx, f, steps, values)
	}()
	return f, nil
}

func (c *LocalClient) plan(req *domain.Request) ([]localStep, error) {
	nodes := make([]descriptorNode, len(req.Ops))
	byID := make(map[string]domain.OpDescriptor, len(req.Ops))
	for i, op := range req.Ops {
		if op.ID == "" {
			op.ID = fmt.Sprintf("op-%d", i)
		}
		nodes[i] = descriptorNode{op}
		byID[op.ID] = op
	}
	order, err := graph.New(nodes).TopologicalOrder()
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	steps := make([]localStep, 0, len(order))
	for _, opID := range order {
		op := byID[opID]
		_, name, err := domain.ParseName(op.Name)
		if err != nil {
			return nil, err
		}
		fn, ok := c.handlers[name]
		if !ok {
			return nil, fmt.Errorf("%w: backend %s has no handler for %q", domain.ErrInvalidArgument, c.id, name)
		}
		steps = append(steps, localStep{op: op, handler: fn})
	}
	return steps, nil
}

func (c *LocalClient) run(ctx context.Context, f *Future, steps []localStep, values map[string]any) {
	produced := make(map[string]any)
	for _, step := range steps {
		if ctx.Err() != nil {
			f.Fail(fmt.Errorf("%w: %v", domain.ErrCanceled, ctx.Err()))
			return
		}
		args := make([]any, 0, len(step.op.Input))
		for _, in := range step.op.Input {
			v, ok := values[in]
			if !ok {
				f.Fail(fmt.Errorf("%w: op %s input %q has no value", domain.ErrDependencyIncomplete, step.op.Name, in))
				return
			}
			args = append(args, v)
		}
		stepCtx := ctxlog.With(ctx, "op", step.op.ID)
		out, err := step.handler(stepCtx, step.op, args)
		if err != nil {
			ctxlog.FromContext(stepCtx).Warn("op failed", "name", step.op.Name, "error", err)
			f.Fail(fmt.Errorf("%w: op %s: %w", domain.ErrBackendExecution, step.op.Name, err))
			return
		}
		if step.op.Result != "" {
			values[step.op.Result] = out
			produced[step.op.Result] = out
		}
	}
	f.Resolve(&domain.TaskResult{Data: produced})
}

type descriptorNode struct {
	op domain.OpDescriptor
}

func (n descriptorNode) ID() string       { return n.op.ID }
func (n descriptorNode) Inputs() []string { return n.op.Input }

func (n descriptorNode) Outputs() []string {
	if n.op.Result == "" {
		return nil
	}
	return []string{n.op.Result}
}
