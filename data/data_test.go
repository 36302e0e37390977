package data

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex(t *testing.T) {
	idx := NewIndexFrom("a", "b", "a", "c")
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, 0, idx.ID("a"))
	assert.Equal(t, 2, idx.ID("c"))
	assert.Equal(t, -1, idx.ID("z"))

	o, ok := idx.Object(1)
	assert.True(t, ok)
	assert.Equal(t, "b", o)
	_, ok = idx.Object(3)
	assert.False(t, ok)
	assert.Equal(t, []string{"a", "b", "c"}, idx.Objects())
}

func TestRelation(t *testing.T) {
	r := NewRelation[float64]()
	assert.True(t, r.Add(0, 5, 1.5))
	assert.True(t, r.Add(0, 2, 2.5))
	assert.True(t, r.Add(3, 2, 1))
	assert.False(t, r.Add(0, 5, 9))
	assert.True(t, r.Update(0, 5, 7))
	assert.False(t, r.Update(1, 1, 1))

	v, ok := r.Value(0, 5)
	assert.True(t, ok)
	assert.Equal(t, 7.0, v)
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []Pair[float64]{{2, 2.5}, {5, 7}}, r.Seconds(0))
	assert.Equal(t, []Pair[float64]{{0, 2.5}, {3, 1}}, r.Firsts(2))
	assert.Equal(t, 2, r.NumSeconds(0))
	assert.Equal(t, 2, r.NumFirsts(2))
	assert.Nil(t, r.Seconds(42))
}

func TestGraphDirected(t *testing.T) {
	g := NewGraph(4, true, true)
	require.NoError(t, g.AddEdge(0, 1, 1, Original))
	require.NoError(t, g.AddEdge(0, 1, 2, Recommended))
	require.NoError(t, g.AddEdge(2, 0, 1, Recommended))
	require.NoError(t, g.AddEdge(1, 2, 0.5, Original))

	assert.ErrorIs(t, g.AddEdge(1, 1, 1, Original), ErrSelfLoop)
	assert.ErrorIs(t, g.AddEdge(1, 9, 1, Original), ErrNodeOutOfRange)

	assert.True(t, g.ContainsEdge(0, 1))
	assert.False(t, g.ContainsEdge(1, 0))
	assert.Equal(t, 3.0, g.EdgeWeight(0, 1))
	assert.Equal(t, 0.0, g.EdgeWeight(1, 0))
	assert.Equal(t, 4, g.NumEdges())

	et, ok := g.EdgeType(0, 1)
	assert.True(t, ok)
	assert.Equal(t, Original, et)
	et, ok = g.EdgeType(2, 0)
	assert.True(t, ok)
	assert.Equal(t, Recommended, et)
	_, ok = g.EdgeType(3, 0)
	assert.False(t, ok)

	g.Freeze()
	assert.ErrorIs(t, g.AddEdge(3, 0, 1, Original), ErrFrozen)

	assert.Equal(t, []int{1}, g.Neighbors(0, Out))
	assert.Equal(t, []int{2}, g.Neighbors(0, In))
	assert.Equal(t, []int{1, 2}, g.Neighbors(0, Und))
	assert.Equal(t, 0, g.NeighborsCount(3, Und))

	lines := g.Lines()
	require.Len(t, lines, 4)
	assert.Equal(t, int64(0), lines[0].From().ID())
	assert.Equal(t, int64(1), lines[0].To().ID())
}

func TestGraphSimpleReplacesLines(t *testing.T) {
	g := NewGraph(3, false, false)
	require.NoError(t, g.AddEdge(0, 1, 1, Original))
	require.NoError(t, g.AddEdge(1, 0, 4, Recommended))

	assert.Equal(t, 1, g.NumEdges())
	assert.Equal(t, 4.0, g.EdgeWeight(0, 1))
	assert.True(t, g.ContainsEdge(1, 0))
	assert.Equal(t, []int{1}, g.Neighbors(0, In))
	assert.Equal(t, []int{0}, g.Neighbors(1, Out))
}

func TestAddRecommendations(t *testing.T) {
	g := NewGraph(4, true, false)
	require.NoError(t, g.AddEdge(0, 1, 1, Original))

	recs := []Recommendation{
		{User: 0, Candidate: 1}, // already followed
		{User: 0, Candidate: 2},
		{User: 0, Candidate: 3},
		{User: 1, Candidate: 1},
		{User: 1, Candidate: 3},
	}
	n, err := g.AddRecommendations(recs, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	et, _ := g.EdgeType(0, 2)
	assert.Equal(t, Recommended, et)
	assert.False(t, g.ContainsEdge(0, 3))
	assert.True(t, g.ContainsEdge(1, 3))
}

func TestTie(t *testing.T) {
	g := NewGraph(3, true, false)
	require.NoError(t, g.AddEdge(0, 1, 1, Original))
	require.NoError(t, g.AddEdge(1, 0, 1, Recommended))
	require.NoError(t, g.AddEdge(2, 1, 1, Recommended))

	tie := func(sender, user int, o Orientation) string {
		et, ok := g.Tie(sender, user, o)
		if !ok {
			return "none"
		}
		return et.String()
	}
	assert.Equal(t, Original.String(), tie(0, 1, In))
	assert.Equal(t, Recommended.String(), tie(0, 1, Out))
	assert.Equal(t, Recommended.String(), tie(0, 1, Und))
	assert.Equal(t, Recommended.String(), tie(2, 1, In))
	assert.Equal(t, "none", tie(2, 1, Out))
	assert.Equal(t, Recommended.String(), tie(1, 2, Und))
	assert.Equal(t, "none", tie(0, 2, Und))
}

func chainData(t *testing.T) *Data {
	t.Helper()
	users := NewIndexFrom("u1", "u2", "u3")
	g := NewGraph(3, true, false)
	require.NoError(t, g.AddEdge(0, 1, 1, Original))
	require.NoError(t, g.AddEdge(1, 2, 1, Original))

	b := NewBuilder(users, g)
	assert.True(t, b.AddPiece("p1", "u1", 10))
	assert.True(t, b.AddPiece("p2", "u2", 20))
	assert.False(t, b.AddPiece("p3", "nobody", 5))
	assert.True(t, b.AddUserFeature("community", "u1", "0", 1))
	assert.True(t, b.AddUserFeature("community", "u2", "1", 1))
	assert.True(t, b.AddPieceFeature("hashtag", "p1", "#go", 1))
	assert.True(t, b.AddPieceFeature("hashtag", "p1", "#go", 1))
	assert.True(t, b.AddRealPropagation("u2", "p1", 30))
	assert.True(t, b.AddRealPropagation("u2", "p1", 15))
	assert.False(t, b.AddRealPropagation("u1", "p1", 15))

	d, err := b.Build()
	require.NoError(t, err)
	return d
}

func TestBuilder(t *testing.T) {
	d := chainData(t)

	assert.Equal(t, 3, d.NumUsers())
	assert.Equal(t, 2, d.NumPieces())
	assert.Equal(t, 0, d.Creator(0))
	assert.Equal(t, -1, d.Creator(7))
	assert.Equal(t, []int{1}, d.PiecesOf(1))
	assert.True(t, d.Graph.Frozen())

	assert.Equal(t, []int64{10, 15, 20, EndOfTime}, d.Timestamps())
	assert.Equal(t, int64(10), d.FirstTimestamp())
	next, ok := d.NextTimestamp(10)
	assert.True(t, ok)
	assert.Equal(t, int64(15), next)
	_, ok = d.NextTimestamp(EndOfTime)
	assert.False(t, ok)

	assert.Equal(t, []int{0}, d.PiecesCreatedAt(10, 0))
	assert.Equal(t, []int{1}, d.UsersCreatingAt(20))
	assert.Equal(t, []int{0}, d.RealPropagatedAt(15, 1))
	assert.Equal(t, []int{1}, d.UsersRealPropagatingAt(15))
	ts, ok := d.RealPropagationTime(1, 0)
	assert.True(t, ok)
	assert.Equal(t, int64(15), ts)
	assert.True(t, d.HasRealPropagation())

	f, err := d.Feature("hashtag")
	require.NoError(t, err)
	assert.False(t, f.OnUsers)
	assert.Equal(t, []Pair[float64]{{0, 2}}, d.PieceFeatures(f, 0))

	c, err := d.Feature("community")
	require.NoError(t, err)
	assert.Equal(t, []Pair[float64]{{1, 1}}, d.PieceFeatures(c, 1))

	_, err = d.Feature("nope")
	assert.ErrorIs(t, err, ErrUnknownFeature)

	uf, pf := d.FeatureNames()
	assert.Equal(t, []string{"community"}, uf)
	assert.Equal(t, []string{"hashtag"}, pf)
	assert.Contains(t, d.Summary(), "users: 3, pieces: 2")
}

func TestBuilderErrors(t *testing.T) {
	t.Run("graph size", func(t *testing.T) {
		_, err := NewBuilder(NewIndexFrom("a", "b"), NewGraph(3, true, false)).Build()
		assert.ErrorIs(t, err, ErrIndexMismatch)
	})
	t.Run("duplicate piece", func(t *testing.T) {
		b := NewBuilder(NewIndexFrom("a"), NewGraph(1, true, false))
		b.AddPiece("p", "a", 1)
		b.AddPiece("p", "a", 2)
		_, err := b.Build()
		assert.ErrorIs(t, err, ErrIndexMismatch)
	})
	t.Run("propagation before creation", func(t *testing.T) {
		b := NewBuilder(NewIndexFrom("a", "b"), NewGraph(2, true, false))
		b.AddPiece("p", "a", 10)
		b.AddRealPropagation("b", "p", 5)
		_, err := b.Build()
		assert.ErrorIs(t, err, ErrIndexMismatch)
	})
}

func TestReaders(t *testing.T) {
	users, err := ReadIndex(strings.NewReader("u1\nu2\n\nu3\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, users.Len())

	g, err := ReadGraph(strings.NewReader("u1\tu2\t0.5\t0\nu2\tu3\t2\trecommended\nu3\tghost\t1\t0\n"),
		users, GraphOptions{Directed: true, Weighted: true, Typed: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, g.NumEdges())
	assert.Equal(t, 0.5, g.EdgeWeight(0, 1))
	et, _ := g.EdgeType(1, 2)
	assert.Equal(t, Recommended, et)

	_, err = ReadGraph(strings.NewReader("u1\tu2\tabc\n"), users, GraphOptions{Weighted: true}, nil)
	assert.ErrorIs(t, err, ErrMalformedLine)

	b := NewBuilder(users, g)
	require.NoError(t, ReadPieces(strings.NewReader("piece\tcreator\tts\np1\tu1\t1\np2\tu3\t2\n"), b))
	name, err := ReadFeatures(strings.NewReader("piece\ttopic\tweight\np1\tsports\t2\np2\tpolitics\t1\n"), b, false)
	require.NoError(t, err)
	assert.Equal(t, "topic", name)
	require.NoError(t, ReadRealPropagation(strings.NewReader("u2\tp1\t3\n"), b))

	err = ReadPieces(strings.NewReader("header\np1\tu1\n"), b)
	assert.True(t, errors.Is(err, ErrMalformedLine))

	d, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, 2, d.NumPieces())
	assert.True(t, d.IsRealPropagated(1, 0))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		return path
	}

	files := Files{
		Users:           write("users.txt", "a\nb\nc\n"),
		Graph:           write("graph.txt", "a\tb\nb\tc\n"),
		Pieces:          write("pieces.txt", "piece\tcreator\tts\np1\ta\t1\n"),
		UserFeatures:    []string{write("community.txt", "user\tcommunity\na\t0\nb\t1\nc\t1\n")},
		Recommendations: write("recs.txt", "a\tc\t0.9\n"),
	}
	d, err := Load(files, GraphOptions{Directed: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Graph.NumEdges())
	et, _ := d.Graph.EdgeType(0, 2)
	assert.Equal(t, Recommended, et)

	files.Users = filepath.Join(dir, "missing.txt")
	_, err = Load(files, GraphOptions{Directed: true}, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
