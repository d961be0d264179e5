package opset

import (
	"fmt"

	"github.com/example/stratus-lite/internal/domain"
	"github.com/example/stratus-lite/internal/graph"
)

// OpSet is a dependency graph of ops.
type OpSet struct {
	*graph.Graph[*Op]
}

// New creates an op set holding the given ops.
func New(ops []*Op, opts ...graph.Option) *OpSet {
	return &OpSet{Graph: graph.New(ops, opts...)}
}

// FromRequest builds the op set for a whole request. Output identifiers
// must be unique, the inferred graph must be acyclic, and it must have
// exactly one unresolved output unless multiple outputs are enabled.
func FromRequest(req *domain.Request, opts ...graph.Option) (*OpSet, error) {
	if req == nil || len(req.Ops) == 0 {
		return nil, fmt.Errorf("%w: request has no ops", domain.ErrInvalidArgument)
	}
	ops := make([]*Op, 0, len(req.Ops))
	producers := make(map[string]string, len(req.Ops))
	seen := make(map[string]bool, len(req.Ops))
	for _, desc := range req.Ops {
		op, err := NewOp(desc)
		if err != nil {
			return nil, err
		}
		if seen[op.ID()] {
			return nil, fmt.Errorf("%w: duplicate op id %q", domain.ErrInvalidArgument, op.ID())
		}
		seen[op.ID()] = true
		if prev, dup := producers[op.ResultID()]; dup {
			return nil, fmt.Errorf("%w: result %q produced by both %s and %s",
				domain.ErrInvalidArgument, op.ResultID(), prev, op.QualifiedName())
		}
		producers[op.ResultID()] = op.QualifiedName()
		ops = append(ops, op)
	}

	set := New(ops, opts...)
	if err := set.Connect(); err != nil {
		return nil, err
	}
	if _, err := set.Outputs(); err != nil {
		return nil, err
	}
	return set, nil
}

// Ops returns the ops in insertion order.
func (s *OpSet) Ops() []*Op {
	return s.Nodes()
}

// Split returns one op set per connected component.
func (s *OpSet) Split() []*OpSet {
	comps := s.ConnectedComponents()
	out := make([]*OpSet, 0, len(comps))
	for _, ids := range comps {
		out = append(out, &OpSet{Graph: s.Filter(ids)})
	}
	return out
}

// FilterRequest returns a copy of req scoped to the ops in this set. The
// domains and input sources are passed through unchanged.
func (s *OpSet) FilterRequest(req *domain.Request) *domain.Request {
	out := &domain.Request{
		ID:           req.ID,
		ClientID:     req.ClientID,
		Domains:      req.Domains,
		InputSources: req.InputSources,
		Ops:          make([]domain.OpDescriptor, 0, s.Len()),
	}
	for _, op := range s.Ops() {
		out.Ops = append(out.Ops, op.Descriptor())
	}
	return out
}
