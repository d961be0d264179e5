package graph

import (
	"fmt"

	"github.com/example/stratus-lite/internal/domain"
)

// ConnectedComponents returns the weakly connected partition of node IDs.
// Components are ordered by their earliest node, and IDs within a
// component keep insertion order.
func (g *Graph[N]) ConnectedComponents() [][]string {
	g.ensureConnected()

	component := make(map[string]int, len(g.order))
	var count int
	for _, start := range g.order {
		if _, ok := component[start]; ok {
			continue
		}
		queue := []string{start}
		component[start] = count
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			neighbors := append(append([]string(nil), g.preds[id]...), g.succs[id]...)
			for _, next := range neighbors {
				if _, ok := component[next]; !ok {
					component[next] = count
					queue = append(queue, next)
				}
			}
		}
		count++
	}

	out := make([][]string, count)
	for _, id := range g.order {
		c := component[id]
		out[c] = append(out[c], id)
	}
	return out
}

// TopologicalOrder returns node IDs so that every producer precedes its
// consumers. Ready nodes are emitted in insertion order.
func (g *Graph[N]) TopologicalOrder() ([]string, error) {
	g.ensureConnected()

	indegree := make(map[string]int, len(g.order))
	for _, id := range g.order {
		indegree[id] = len(g.preds[id])
	}
	position := make(map[string]int, len(g.order))
	for i, id := range g.order {
		position[id] = i
	}

	var ready []string
	for _, id := range g.order {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	out := make([]string, 0, len(g.order))
	for len(ready) > 0 {
		best := 0
		for i := range ready {
			if position[ready[i]] < position[ready[best]] {
				best = i
			}
		}
		id := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		out = append(out, id)
		for _, next := range g.succs[id] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	if len(out) != len(g.order) {
		if g.err != nil {
			return nil, g.err
		}
		return nil, fmt.Errorf("%w: %d nodes unreachable in topological order",
			domain.ErrCyclicDependency, len(g.order)-len(out))
	}
	return out, nil
}

const (
	unvisited = iota
	visiting
	visited
)

// detectCycle runs a three-colour DFS over successor edges and returns the
// first cycle found.
func (g *Graph[N]) detectCycle() error {
	state := make(map[string]int, len(g.order))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		state[id] = visiting
		stack = append(stack, id)
		for _, next := range g.succs[id] {
			switch state[next] {
			case visiting:
				for i, s := range stack {
					if s == next {
						return append(append([]string(nil), stack[i:]...), next)
					}
				}
			case unvisited:
				if path := visit(next); path != nil {
					return path
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = visited
		return nil
	}

	for _, id := range g.order {
		if state[id] == unvisited {
			if path := visit(id); path != nil {
				return &domain.CycleError{Path: path}
			}
		}
	}
	return nil
}
