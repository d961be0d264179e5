package service

import (
	"context"
	"sort"
	"time"

	"github.com/example/stratus-lite/internal/backend"
	"github.com/example/stratus-lite/internal/domain"
	"github.com/example/stratus-lite/internal/workflow"
)

// Gateway exposes an Orchestrator as a backend.Client. Served over gRPC it
// lets one Stratus instance act as a single backend of another.
type Gateway struct {
	id   string
	orch *Orchestrator
}

var _ backend.Client = (*Gateway)(nil)

// NewGateway creates a gateway advertised under id.
func NewGateway(id string, orch *Orchestrator) *Gateway {
	return &Gateway{id: id, orch: orch}
}

func (g *Gateway) ID() string { return g.id }

// Capabilities answers with the union of the registered backends'
// capabilities of the given kind.
func (g *Gateway) Capabilities(ctx context.Context, kind string) (map[string][]string, error) {
	reg := g.orch.Registry()
	seen := make(map[string]bool)
	var out []string
	for _, c := range reg.Clients() {
		var items []string
		if kind == backend.CapabilityEpas {
			items = reg.Patterns(c.ID())
		} else {
			caps, err := c.Capabilities(ctx, kind)
			if err != nil {
				return nil, err
			}
			items = caps[kind]
		}
		for _, item := range items {
			if !seen[item] {
				seen[item] = true
				out = append(out, item)
			}
		}
	}
	sort.Strings(out)
	return map[string][]string{kind: out}, nil
}

// Request submits req as a new workflow. Dependency results are merged
// into the request's input sources.
func (g *Gateway) Request(ctx context.Context, req *domain.Request, deps []*domain.TaskResult) (backend.Handle, error) {
	if len(deps) > 0 {
		req = req.Clone()
		sources := make(map[string]any, len(req.InputSources))
		for k, v := range req.InputSources {
			sources[k] = v
		}
		for k, v := range domain.MergeResults(deps) {
			sources[k] = v
		}
		req.InputSources = sources
	}
	w, err := g.orch.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return workflowHandle{w}, nil
}

// workflowHandle reports every value the workflow produced, not only the
// output task's, since the caller may consume intermediate results.
type workflowHandle struct {
	*workflow.Workflow
}

func (h workflowHandle) Result(ctx context.Context, block bool, timeout time.Duration) (*domain.TaskResult, error) {
	res, err := h.Workflow.Result(ctx, block, timeout)
	if err != nil {
		return nil, err
	}
	results := make([]*domain.TaskResult, 0, len(h.Tasks())+1)
	for _, t := range h.Tasks() {
		if r, err := t.Result(ctx, false, 0); err == nil {
			results = append(results, r)
		}
	}
	results = append(results, res)
	return &domain.TaskResult{TaskID: h.ID(), Data: domain.MergeResults(results)}, nil
}
