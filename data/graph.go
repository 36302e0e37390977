package data

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/multi"
)

// EdgeType distinguishes the ties of the social network from the ties injected by a recommender
type EdgeType int

const (
	Original EdgeType = iota
	Recommended
)

func (t EdgeType) String() string {
	switch t {
	case Original:
		return "original"
	case Recommended:
		return "recommended"
	}
	return fmt.Sprintf("EdgeType(%d)", int(t))
}

// Orientation selects which neighbourhood of a node is considered
type Orientation int

const (
	Out Orientation = iota // followees: u -> v
	In                     // followers: v -> u
	Und                    // both
)

func (o Orientation) String() string {
	switch o {
	case Out:
		return "out"
	case In:
		return "in"
	case Und:
		return "und"
	}
	return fmt.Sprintf("Orientation(%d)", int(o))
}

// ParseOrientation parses "out", "in" or "und"
func ParseOrientation(s string) (Orientation, error) {
	switch s {
	case "out", "OUT", "":
		return Out, nil
	case "in", "IN":
		return In, nil
	case "und", "UND", "both":
		return Und, nil
	}
	return Out, fmt.Errorf("unknown orientation %q", s)
}

var (
	ErrNodeOutOfRange = errors.New("node out of range")
	ErrSelfLoop       = errors.New("self loops are not allowed")
	ErrFrozen         = errors.New("graph is frozen")
)

// Line is a typed, weighted line of the social graph
type Line struct {
	F, T graph.Node
	UID  int64
	W    float64
	Type EdgeType
}

func (l Line) From() graph.Node { return l.F }
func (l Line) To() graph.Node   { return l.T }
func (l Line) ID() int64        { return l.UID }
func (l Line) Weight() float64  { return l.W }

func (l Line) ReversedLine() graph.Line {
	l.F, l.T = l.T, l.F
	return l
}

// for type check
func _() graph.WeightedLine {
	return Line{}
}

// lineGraph is the subset of the gonum multigraph API both orientations share
type lineGraph interface {
	graph.Graph
	AddNode(graph.Node)
	NewWeightedLine(from, to graph.Node, weight float64) graph.WeightedLine
	SetWeightedLine(l graph.WeightedLine)
	RemoveLine(fid, tid, id int64)
	WeightedLines(uid, vid int64) graph.WeightedLines
}

// Graph is the social network over user ids [0, n).
// It is mutable until Freeze is called; afterwards it is safe for concurrent reads.
type Graph struct {
	directed   bool
	multigraph bool
	numNodes   int
	numEdges   int
	g          lineGraph

	frozen bool
	adj    [3][][]int
}

// NewGraph creates a graph with nodes 0..numNodes-1 and no edges
func NewGraph(numNodes int, directed, multigraph bool) *Graph {
	var g lineGraph
	if directed {
		g = multi.NewWeightedDirectedGraph()
	} else {
		g = multi.NewWeightedUndirectedGraph()
	}
	for i := range numNodes {
		g.AddNode(multi.Node(i))
	}
	return &Graph{
		directed:   directed,
		multigraph: multigraph,
		numNodes:   numNodes,
		g:          g,
	}
}

func (g *Graph) Directed() bool   { return g.directed }
func (g *Graph) Multigraph() bool { return g.multigraph }
func (g *Graph) NumNodes() int    { return g.numNodes }
func (g *Graph) NumEdges() int    { return g.numEdges }

// Gonum exposes the underlying gonum graph for read-only algorithms
func (g *Graph) Gonum() graph.Graph {
	return g.g
}

func (g *Graph) valid(u int) bool {
	return u >= 0 && u < g.numNodes
}

// AddEdge adds a line u -> v. On a simple graph an existing line between
// the same endpoints is replaced.
func (g *Graph) AddEdge(u, v int, weight float64, t EdgeType) error {
	if g.frozen {
		return ErrFrozen
	}
	if !g.valid(u) || !g.valid(v) {
		return fmt.Errorf("edge (%d, %d): %w", u, v, ErrNodeOutOfRange)
	}
	if u == v {
		return fmt.Errorf("edge (%d, %d): %w", u, v, ErrSelfLoop)
	}

	if !g.multigraph {
		lines := graph.WeightedLinesOf(g.g.WeightedLines(int64(u), int64(v)))
		for _, l := range lines {
			g.g.RemoveLine(l.From().ID(), l.To().ID(), l.ID())
			g.numEdges--
		}
	}

	from, to := g.g.Node(int64(u)), g.g.Node(int64(v))
	proto := g.g.NewWeightedLine(from, to, weight)
	g.g.SetWeightedLine(Line{F: from, T: to, UID: proto.ID(), W: weight, Type: t})
	g.numEdges++
	return nil
}

func (g *Graph) lines(u, v int) []graph.WeightedLine {
	if !g.valid(u) || !g.valid(v) {
		return nil
	}
	return graph.WeightedLinesOf(g.g.WeightedLines(int64(u), int64(v)))
}

// ContainsEdge reports whether there is at least one line u -> v
// (or u - v on undirected graphs)
func (g *Graph) ContainsEdge(u, v int) bool {
	if !g.valid(u) || !g.valid(v) {
		return false
	}
	if d, ok := g.g.(graph.Directed); ok {
		return d.HasEdgeFromTo(int64(u), int64(v))
	}
	return g.g.HasEdgeBetween(int64(u), int64(v))
}

// EdgeType returns the type of the tie u -> v. When parallel lines disagree
// the tie counts as Original: it only counts as Recommended if it exists
// solely because of a recommendation.
func (g *Graph) EdgeType(u, v int) (EdgeType, bool) {
	lines := g.lines(u, v)
	if len(lines) == 0 {
		return Original, false
	}
	for _, l := range lines {
		if tl, ok := l.(Line); ok && tl.Type == Original {
			return Original, true
		}
	}
	return Recommended, true
}

// Tie returns the type of the tie through which sender reaches user.
// In looks at sender -> user, Out at user -> sender, Und accepts either and
// counts as Recommended if one of both directions is.
func (g *Graph) Tie(sender, user int, o Orientation) (EdgeType, bool) {
	switch o {
	case In:
		return g.EdgeType(sender, user)
	case Out:
		return g.EdgeType(user, sender)
	}
	t1, ok1 := g.EdgeType(sender, user)
	t2, ok2 := g.EdgeType(user, sender)
	switch {
	case ok1 && ok2:
		if t1 == Recommended || t2 == Recommended {
			return Recommended, true
		}
		return Original, true
	case ok1:
		return t1, true
	case ok2:
		return t2, true
	}
	return Original, false
}

// EdgeWeight returns the summed weight of the lines u -> v, or 0 if there are none
func (g *Graph) EdgeWeight(u, v int) float64 {
	w := 0.0
	for _, l := range g.lines(u, v) {
		w += l.Weight()
	}
	return w
}

// Neighbors returns the sorted neighbourhood of u in the given orientation
func (g *Graph) Neighbors(u int, o Orientation) []int {
	if !g.valid(u) {
		return nil
	}
	if !g.directed {
		o = Out
	}
	if g.frozen {
		return g.adj[o][u]
	}
	return g.computeNeighbors(u, o)
}

// NeighborsCount returns the size of the neighbourhood of u in the given orientation
func (g *Graph) NeighborsCount(u int, o Orientation) int {
	return len(g.Neighbors(u, o))
}

func (g *Graph) computeNeighbors(u int, o Orientation) []int {
	seen := make(map[int]bool)
	collect := func(it graph.Nodes) {
		for it.Next() {
			seen[int(it.Node().ID())] = true
		}
	}

	id := int64(u)
	switch {
	case !g.directed || o == Out:
		collect(g.g.From(id))
	case o == In:
		collect(g.g.(graph.Directed).To(id))
	default:
		collect(g.g.From(id))
		collect(g.g.(graph.Directed).To(id))
	}

	ret := make([]int, 0, len(seen))
	for v := range seen {
		ret = append(ret, v)
	}
	slices.Sort(ret)
	return ret
}

// Freeze caches every neighbourhood and forbids further changes
func (g *Graph) Freeze() {
	if g.frozen {
		return
	}
	orientations := []Orientation{Out}
	if g.directed {
		orientations = append(orientations, In, Und)
	}
	for _, o := range orientations {
		g.adj[o] = make([][]int, g.numNodes)
		for u := range g.numNodes {
			g.adj[o][u] = g.computeNeighbors(u, o)
		}
	}
	g.frozen = true
}

// Frozen reports whether Freeze has been called
func (g *Graph) Frozen() bool {
	return g.frozen
}

// Lines returns every line of the graph, ordered by endpoints and id.
// Undirected lines are reported once, with From < To.
func (g *Graph) Lines() []Line {
	ret := make([]Line, 0, g.numEdges)
	for u := range g.numNodes {
		for _, v := range g.computeNeighbors(u, Out) {
			if !g.directed && v < u {
				continue
			}
			for _, l := range g.lines(u, v) {
				tl, ok := l.(Line)
				if !ok {
					tl = Line{F: l.From(), T: l.To(), UID: l.ID(), W: l.Weight()}
				}
				tl.F, tl.T = g.g.Node(int64(u)), g.g.Node(int64(v))
				ret = append(ret, tl)
			}
		}
	}
	slices.SortStableFunc(ret, func(a, b Line) int {
		if c := cmp.Compare(a.F.ID(), b.F.ID()); c != 0 {
			return c
		}
		if c := cmp.Compare(a.T.ID(), b.T.ID()); c != 0 {
			return c
		}
		return cmp.Compare(a.UID, b.UID)
	})
	return ret
}
