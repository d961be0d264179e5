// Package graph provides a dependency graph whose edges are inferred by
// matching node inputs against the outputs of other nodes.
package graph

import (
	"fmt"

	"github.com/example/stratus-lite/internal/domain"
)

// Node is anything that consumes and produces named data.
type Node interface {
	ID() string
	Inputs() []string
	Outputs() []string
}

// Connection is a data identifier flowing between two nodes. An empty
// Source marks an unresolved (graph-level) input, an empty Dest an
// unresolved output.
type Connection struct {
	ID     string
	Source string
	Dest   string
}

// IsInput reports whether the connection is an unresolved input.
func (c Connection) IsInput() bool { return c.Source == "" }

// IsOutput reports whether the connection is an unresolved output.
func (c Connection) IsOutput() bool { return c.Dest == "" }

func (c Connection) String() string {
	return fmt.Sprintf("%s[%s->%s]", c.ID, c.Source, c.Dest)
}

// Option configures a Graph.
type Option func(*options)

type options struct {
	multipleOutputs bool
}

// WithMultipleOutputs permits more than one unresolved output.
func WithMultipleOutputs(enabled bool) Option {
	return func(o *options) {
		o.multipleOutputs = enabled
	}
}

// Graph is a directed graph over nodes of type N. It is not safe for
// concurrent mutation; callers serialize Add/Remove/Connect.
type Graph[N Node] struct {
	opts  options
	nodes map[string]N
	order []string

	dirty    bool
	err      error
	edges    []Connection
	inputs   []Connection
	outputs  []Connection
	preds    map[string][]string
	succs    map[string][]string
	incoming map[string][]Connection
}

// New creates an empty graph, optionally seeded with nodes.
func New[N Node](nodes []N, opts ...Option) *Graph[N] {
	g := &Graph[N]{
		nodes: make(map[string]N),
		dirty: true,
	}
	for _, opt := range opts {
		opt(&g.opts)
	}
	g.Add(nodes...)
	return g
}

// MultipleOutputs reports whether more than one unresolved output is allowed.
func (g *Graph[N]) MultipleOutputs() bool {
	return g.opts.multipleOutputs
}

// Add inserts nodes, replacing any existing node with the same ID.
func (g *Graph[N]) Add(nodes ...N) {
	for _, n := range nodes {
		if _, exists := g.nodes[n.ID()]; !exists {
			g.order = append(g.order, n.ID())
		}
		g.nodes[n.ID()] = n
		g.dirty = true
	}
}

// Remove deletes the given node IDs. Unknown IDs are ignored.
func (g *Graph[N]) Remove(ids ...string) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := g.nodes[id]; ok {
			drop[id] = true
			delete(g.nodes, id)
		}
	}
	if len(drop) == 0 {
		return
	}
	kept := g.order[:0]
	for _, id := range g.order {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	g.order = kept
	g.dirty = true
}

// Node returns the node with the given ID.
func (g *Graph[N]) Node(id string) (N, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Contains reports whether the graph holds the given ID.
func (g *Graph[N]) Contains(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph[N]) Nodes() []N {
	out := make([]N, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// IDs returns all node IDs in insertion order.
func (g *Graph[N]) IDs() []string {
	return append([]string(nil), g.order...)
}

// Len returns the number of nodes.
func (g *Graph[N]) Len() int {
	return len(g.order)
}

// Connect rebuilds the edge set from node inputs and outputs. It is
// idempotent for a fixed node set and fails with a *domain.CycleError if
// the inferred edges form a cycle; edges are rebuilt either way.
func (g *Graph[N]) Connect() error {
	g.edges = nil
	g.inputs = nil
	g.outputs = nil
	g.preds = make(map[string][]string, len(g.order))
	g.succs = make(map[string][]string, len(g.order))
	g.incoming = make(map[string][]Connection, len(g.order))

	consumed := make(map[string]map[string]bool)
	seen := make(map[Connection]bool)
	for _, destID := range g.order {
		dest := g.nodes[destID]
		for _, in := range dest.Inputs() {
			resolved := false
			for _, srcID := range g.order {
				if srcID == destID {
					continue
				}
				if !contains(g.nodes[srcID].Outputs(), in) {
					continue
				}
				resolved = true
				c := Connection{ID: in, Source: srcID, Dest: destID}
				if seen[c] {
					continue
				}
				seen[c] = true
				g.edges = append(g.edges, c)
				g.incoming[destID] = append(g.incoming[destID], c)
				g.preds[destID] = appendUnique(g.preds[destID], srcID)
				g.succs[srcID] = appendUnique(g.succs[srcID], destID)
				if consumed[srcID] == nil {
					consumed[srcID] = make(map[string]bool)
				}
				consumed[srcID][in] = true
			}
			if !resolved {
				c := Connection{ID: in, Dest: destID}
				if !seen[c] {
					seen[c] = true
					g.inputs = append(g.inputs, c)
				}
			}
		}
	}
	for _, srcID := range g.order {
		for _, out := range g.nodes[srcID].Outputs() {
			if !consumed[srcID][out] {
				g.outputs = append(g.outputs, Connection{ID: out, Source: srcID})
			}
		}
	}

	g.dirty = false
	g.err = g.detectCycle()
	return g.err
}

func (g *Graph[N]) ensureConnected() {
	if g.dirty {
		_ = g.Connect()
	}
}

// Err returns the result of the most recent Connect.
func (g *Graph[N]) Err() error {
	g.ensureConnected()
	return g.err
}

// Edges returns all resolved connections.
func (g *Graph[N]) Edges() []Connection {
	g.ensureConnected()
	return append([]Connection(nil), g.edges...)
}

// Predecessors returns the IDs of nodes that produce data consumed by id.
func (g *Graph[N]) Predecessors(id string) []string {
	g.ensureConnected()
	return append([]string(nil), g.preds[id]...)
}

// Successors returns the IDs of nodes that consume data produced by id.
func (g *Graph[N]) Successors(id string) []string {
	g.ensureConnected()
	return append([]string(nil), g.succs[id]...)
}

// IncomingConnections returns the resolved connections ending at id.
func (g *Graph[N]) IncomingConnections(id string) []Connection {
	g.ensureConnected()
	return append([]Connection(nil), g.incoming[id]...)
}

// Inputs returns the unresolved inputs of the graph.
func (g *Graph[N]) Inputs() []Connection {
	g.ensureConnected()
	return append([]Connection(nil), g.inputs...)
}

// AllOutputs returns every unresolved output without enforcing the
// single-output policy.
func (g *Graph[N]) AllOutputs() []Connection {
	g.ensureConnected()
	return append([]Connection(nil), g.outputs...)
}

// Outputs returns the unresolved outputs of the graph. It fails with a
// configuration error if there are none, or more than one while multiple
// outputs are disabled.
func (g *Graph[N]) Outputs() ([]Connection, error) {
	outs := g.AllOutputs()
	switch {
	case len(outs) == 0:
		return nil, fmt.Errorf("%w: graph has no unresolved output", domain.ErrConfiguration)
	case len(outs) > 1 && !g.opts.multipleOutputs:
		return nil, fmt.Errorf("%w: graph has %d unresolved outputs %v; only one is permitted",
			domain.ErrConfiguration, len(outs), outs)
	}
	return outs, nil
}

// Filter returns a connected copy holding only the given IDs and the edges
// between them. Unknown IDs are ignored.
func (g *Graph[N]) Filter(ids []string) *Graph[N] {
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	sub := &Graph[N]{opts: g.opts, nodes: make(map[string]N), dirty: true}
	for _, id := range g.order {
		if keep[id] {
			sub.Add(g.nodes[id])
		}
	}
	_ = sub.Connect()
	return sub
}

func contains(items []string, s string) bool {
	for _, it := range items {
		if it == s {
			return true
		}
	}
	return false
}

func appendUnique(items []string, s string) []string {
	if contains(items, s) {
		return items
	}
	return append(items, s)
}
