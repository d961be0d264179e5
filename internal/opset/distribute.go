package opset

import (
	"sort"

	"github.com/example/stratus-lite/internal/backend"
	"github.com/example/stratus-lite/internal/domain"
	"github.com/example/stratus-lite/internal/graph"
)

// Candidates builds, for every registered backend able to run at least one
// op, a ClientOpSet holding every op it can run. An op may appear in
// several candidates. It fails with a *domain.CapabilityError for the
// first op no backend matches.
func Candidates(reg *backend.Registry, set *OpSet, req *domain.Request) (map[string]*ClientOpSet, error) {
	claims := make(map[string][]*Op)
	clients := make(map[string]backend.Client)
	for _, op := range set.Ops() {
		handlers := reg.Handlers(op.Address(), op.Epas())
		if len(handlers) == 0 {
			return nil, &domain.CapabilityError{OpID: op.ID(), Name: op.QualifiedName(), Epas: op.Epas()}
		}
		for _, c := range handlers {
			claims[c.ID()] = append(claims[c.ID()], op)
			clients[c.ID()] = c
		}
	}

	var opts []graph.Option
	if set.MultipleOutputs() {
		opts = append(opts, graph.WithMultipleOutputs(true))
	}
	out := make(map[string]*ClientOpSet, len(claims))
	for clientID, ops := range claims {
		out[clientID] = NewClientOpSet(clients[clientID], req, New(ops, opts...))
	}
	return out, nil
}

// Distribute partitions candidate ops into disjoint client op sets. The
// largest remaining candidate claims all of its ops first, with ties going
// to the lower client ID; claimed ops are removed from every other
// candidate. Each claimed set is then split into its connected components.
func Distribute(candidates map[string]*ClientOpSet) []*ClientOpSet {
	remaining := make([]*ClientOpSet, 0, len(candidates))
	for _, c := range candidates {
		if c.Len() > 0 {
			remaining = append(remaining, c)
		}
	}

	var claimed []*ClientOpSet
	for len(remaining) > 0 {
		sort.SliceStable(remaining, func(i, j int) bool {
			if remaining[i].Len() != remaining[j].Len() {
				return remaining[i].Len() > remaining[j].Len()
			}
			return remaining[i].ClientID() < remaining[j].ClientID()
		})
		winner := remaining[0]
		claimed = append(claimed, winner)

		ids := winner.IDs()
		var next []*ClientOpSet
		for _, other := range remaining[1:] {
			other.Remove(ids...)
			if other.Len() > 0 {
				next = append(next, other)
			}
		}
		remaining = next
	}

	var out []*ClientOpSet
	for _, set := range claimed {
		for _, part := range set.Split() {
			out = append(out, NewClientOpSet(set.client, set.request, part))
		}
	}
	return out
}

// Compile turns a request into distributed client op sets.
func Compile(reg *backend.Registry, req *domain.Request, opts ...graph.Option) ([]*ClientOpSet, error) {
	set, err := FromRequest(req, opts...)
	if err != nil {
		return nil, err
	}
	candidates, err := Candidates(reg, set, req)
	if err != nil {
		return nil, err
	}
	return Distribute(candidates), nil
}

// CapableBackends reports which registered backends could run each op,
// keyed by op ID.
func CapableBackends(reg *backend.Registry, set *OpSet) map[string][]string {
	out := make(map[string][]string, set.Len())
	for _, op := range set.Ops() {
		for _, c := range reg.Handlers(op.Address(), op.Epas()) {
			out[op.ID()] = append(out[op.ID()], c.ID())
		}
	}
	return out
}
