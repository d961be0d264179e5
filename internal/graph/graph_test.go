package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/stratus-lite/internal/domain"
)

type testNode struct {
	id      string
	inputs  []string
	outputs []string
}

func (n testNode) ID() string        { return n.id }
func (n testNode) Inputs() []string  { return n.inputs }
func (n testNode) Outputs() []string { return n.outputs }

func node(id string, inputs []string, outputs ...string) testNode {
	return testNode{id: id, inputs: inputs, outputs: outputs}
}

// a, b -> c
func fanIn() *Graph[testNode] {
	return New([]testNode{
		node("a", nil, "r1"),
		node("b", nil, "r2"),
		node("c", []string{"r1", "r2"}, "r3"),
	})
}

func TestConnectInfersEdges(t *testing.T) {
	g := fanIn()
	require.NoError(t, g.Connect())

	assert.Equal(t, []Connection{
		{ID: "r1", Source: "a", Dest: "c"},
		{ID: "r2", Source: "b", Dest: "c"},
	}, g.Edges())
	assert.Equal(t, []string{"a", "b"}, g.Predecessors("c"))
	assert.Equal(t, []string{"c"}, g.Successors("a"))
	assert.Empty(t, g.Predecessors("a"))
	assert.Empty(t, g.Inputs())

	outs, err := g.Outputs()
	require.NoError(t, err)
	assert.Equal(t, []Connection{{ID: "r3", Source: "c"}}, outs)
}

func TestConnectIdempotent(t *testing.T) {
	g := fanIn()
	require.NoError(t, g.Connect())
	first := g.Edges()
	require.NoError(t, g.Connect())
	assert.Equal(t, first, g.Edges())
}

func TestUnresolvedInputs(t *testing.T) {
	g := New([]testNode{
		node("a", []string{"ext"}, "r1"),
		node("b", []string{"r1", "ext2"}, "r2"),
	})
	assert.Equal(t, []Connection{
		{ID: "ext", Dest: "a"},
		{ID: "ext2", Dest: "b"},
	}, g.Inputs())
}

func TestSelfReferenceIsNotAnEdge(t *testing.T) {
	g := New([]testNode{node("a", []string{"r1"}, "r1")})
	require.NoError(t, g.Connect())
	assert.Empty(t, g.Edges())
	assert.Equal(t, []Connection{{ID: "r1", Dest: "a"}}, g.Inputs())
}

func TestDuplicateInputsCollapse(t *testing.T) {
	g := New([]testNode{
		node("a", nil, "r1"),
		node("b", []string{"r1", "r1"}, "r2"),
	})
	assert.Len(t, g.Edges(), 1)
}

func TestAddRemoveMarksDirty(t *testing.T) {
	g := fanIn()
	require.Len(t, g.Edges(), 2)

	g.Remove("b")
	assert.Equal(t, []string{"a", "c"}, g.IDs())
	assert.Len(t, g.Edges(), 1)
	assert.Equal(t, []Connection{{ID: "r2", Dest: "c"}}, g.Inputs())

	g.Add(node("b", nil, "r2"))
	assert.Len(t, g.Edges(), 2)
	assert.Equal(t, []string{"a", "c", "b"}, g.IDs())

	g.Add(node("b", nil, "other"))
	assert.Equal(t, 3, g.Len())
	assert.Len(t, g.Edges(), 1)
}

func TestOutputsPolicy(t *testing.T) {
	g := New([]testNode{
		node("a", nil, "r1"),
		node("b", nil, "r2"),
	})
	_, err := g.Outputs()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))

	multi := New([]testNode{
		node("a", nil, "r1"),
		node("b", nil, "r2"),
	}, WithMultipleOutputs(true))
	outs, err := multi.Outputs()
	require.NoError(t, err)
	assert.Len(t, outs, 2)

	empty := New[testNode](nil, WithMultipleOutputs(true))
	_, err = empty.Outputs()
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}

func TestConnectDetectsCycle(t *testing.T) {
	g := New([]testNode{
		node("a", []string{"r3"}, "r1"),
		node("b", []string{"r1"}, "r2"),
		node("c", []string{"r2"}, "r3"),
	})
	err := g.Connect()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
	assert.True(t, errors.Is(err, domain.ErrCyclicDependency))

	var cyc *domain.CycleError
	require.True(t, errors.As(err, &cyc))
	assert.Equal(t, []string{"a", "b", "c", "a"}, cyc.Path)
	assert.Len(t, g.Edges(), 3)

	_, err = g.TopologicalOrder()
	assert.True(t, errors.Is(err, domain.ErrCyclicDependency))
}

func TestConnectedComponentsPartition(t *testing.T) {
	g := New([]testNode{
		node("a", nil, "r1"),
		node("x", nil, "q1"),
		node("b", []string{"r1"}, "r2"),
		node("y", []string{"q1"}, "q2"),
		node("lonely", nil, "z"),
	})
	comps := g.ConnectedComponents()
	assert.Equal(t, [][]string{{"a", "b"}, {"x", "y"}, {"lonely"}}, comps)

	where := make(map[string]int)
	total := 0
	for i, comp := range comps {
		for _, id := range comp {
			where[id] = i
			total++
		}
	}
	assert.Equal(t, g.Len(), total)
	for _, e := range g.Edges() {
		assert.Equal(t, where[e.Source], where[e.Dest], "edge %s crosses components", e)
	}
}

func TestFilterInducedSubgraph(t *testing.T) {
	g := New([]testNode{
		node("a", nil, "r1"),
		node("b", []string{"r1"}, "r2"),
		node("c", []string{"r2"}, "r3"),
	})
	sub := g.Filter([]string{"b", "c", "missing"})
	assert.Equal(t, []string{"b", "c"}, sub.IDs())
	assert.Equal(t, []Connection{{ID: "r2", Source: "b", Dest: "c"}}, sub.Edges())
	assert.Equal(t, []Connection{{ID: "r1", Dest: "b"}}, sub.Inputs())
	assert.Equal(t, 3, g.Len())
}

func TestTopologicalOrder(t *testing.T) {
	g := New([]testNode{
		node("c", []string{"r1", "r2"}, "r3"),
		node("b", nil, "r2"),
		node("a", nil, "r1"),
	})
	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, order)
}
