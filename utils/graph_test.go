package utils

import (
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diffusion-sim/data"
)

func TestSerializeAndDeserializeGraph(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	g := CreateRandomNetwork(100, 0.3, rng)
	assert.Greater(t, g.NumEdges(), 0)

	nxGraph := SerializeGraph(g, nil)
	deserialized, users, err := DeserializeGraph(nxGraph)
	require.NoError(t, err)

	assert.True(t, CompareGraphs(g, deserialized))
	assert.Equal(t, 100, users.Len())
	assert.Equal(t, 42, users.ID("42"))
}

func TestSaveAndLoadGraphToFile(t *testing.T) {
	users := data.NewIndexFrom("alice", "bob", "carol")
	g := data.NewGraph(3, true, true)
	require.NoError(t, g.AddEdge(0, 1, 5.5, data.Original))
	require.NoError(t, g.AddEdge(0, 1, 1, data.Recommended))
	require.NoError(t, g.AddEdge(1, 2, 2.3, data.Original))

	filename := filepath.Join(t.TempDir(), "graph.msgpack")
	require.NoError(t, SaveGraphToFile(g, users, filename))

	loaded, loadedUsers, err := LoadGraphFromFile(filename)
	require.NoError(t, err)

	assert.True(t, CompareGraphs(g, loaded))
	assert.True(t, loaded.Multigraph())
	assert.Equal(t, users.Objects(), loadedUsers.Objects())
	assert.Equal(t, 6.5, loaded.EdgeWeight(0, 1))
	et, ok := loaded.EdgeType(0, 1)
	require.True(t, ok)
	assert.Equal(t, data.Original, et)
}

func TestUndirectedGraphSerialization(t *testing.T) {
	g := data.NewGraph(3, false, false)
	require.NoError(t, g.AddEdge(2, 0, 1, data.Original))
	require.NoError(t, g.AddEdge(1, 2, 3, data.Recommended))

	loaded, _, err := DeserializeGraph(SerializeGraph(g, nil))
	require.NoError(t, err)
	assert.True(t, CompareGraphs(g, loaded))
	assert.False(t, loaded.Directed())
	assert.Equal(t, 2, loaded.NumEdges())
}

func TestSmallWorldNetwork(t *testing.T) {
	rng := rand.New(rand.NewPCG(2, 3))
	g := CreateSmallWorldNetwork(100, 4, 0.1, rng)
	assert.Equal(t, 100*4, g.NumEdges())
	for _, l := range g.Lines() {
		assert.NotEqual(t, l.From().ID(), l.To().ID())
	}

	loaded, _, err := DeserializeGraph(SerializeGraph(g, nil))
	require.NoError(t, err)
	assert.True(t, CompareGraphs(g, loaded))
}

func TestCompareGraphs(t *testing.T) {
	a := data.NewGraph(3, true, true)
	b := data.NewGraph(3, true, true)
	require.NoError(t, a.AddEdge(0, 1, 1, data.Original))
	require.NoError(t, b.AddEdge(0, 1, 1, data.Recommended))
	assert.False(t, CompareGraphs(a, b))

	c := data.NewGraph(3, true, true)
	require.NoError(t, c.AddEdge(0, 1, 2, data.Original))
	assert.False(t, CompareGraphs(a, c))

	d := data.NewGraph(3, true, true)
	require.NoError(t, d.AddEdge(0, 1, 1, data.Original))
	assert.True(t, CompareGraphs(a, d))
}

func TestTopK(t *testing.T) {
	nums := []float64{3, 9, 1, 9, 7, 2}
	f := NewTopKFinder(3)
	top := f.FindTopK(nums, 3)
	f.SortIndices(nums)
	assert.Equal(t, []int{1, 3, 4}, top)

	assert.Empty(t, f.FindTopK(nums, 0))
	got := f.FindTopK([]float64{1, 2}, 5)
	f.SortIndices([]float64{1, 2})
	assert.Equal(t, []int{1, 0}, got)
}
