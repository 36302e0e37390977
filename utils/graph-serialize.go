package utils

import (
	"fmt"
	"os"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"

	"diffusion-sim/data"
)

// NetworkXGraph mirrors the adjacency layout of a networkx multigraph:
// from -> to -> parallel lines, each with its attributes
type NetworkXGraph struct {
	Adjacency  map[int64]map[int64][]map[string]any `msgpack:"adjacency"`
	Directed   bool                                 `msgpack:"directed"`
	Multigraph bool                                 `msgpack:"multigraph"`
	Nodes      map[int64]map[string]any             `msgpack:"nodes"`
	Graph      map[string]any                       `msgpack:"graph"`
}

// SerializeGraph converts g; users names the nodes and may be nil
func SerializeGraph(g *data.Graph, users *data.Index[string]) *NetworkXGraph {
	nxGraph := &NetworkXGraph{
		Adjacency:  make(map[int64]map[int64][]map[string]any),
		Directed:   g.Directed(),
		Multigraph: g.Multigraph(),
		Nodes:      make(map[int64]map[string]any),
		Graph:      make(map[string]any),
	}

	for u := range g.NumNodes() {
		attrs := make(map[string]any)
		if users != nil {
			if name, ok := users.Object(u); ok {
				attrs["name"] = name
			}
		}
		nxGraph.Nodes[int64(u)] = attrs
		nxGraph.Adjacency[int64(u)] = make(map[int64][]map[string]any)
	}

	for _, l := range g.Lines() {
		from, to := l.From().ID(), l.To().ID()
		nxGraph.Adjacency[from][to] = append(nxGraph.Adjacency[from][to], map[string]any{
			"weight": l.W,
			"type":   l.Type.String(),
		})
	}

	nxGraph.Graph["name"] = "social network"
	nxGraph.Graph["edges"] = g.NumEdges()

	return nxGraph
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	return 0, false
}

// DeserializeGraph rebuilds the graph and the user index. Nodes are expected
// to be numbered densely from 0; unnamed nodes are named by their id.
func DeserializeGraph(nxGraph *NetworkXGraph) (*data.Graph, *data.Index[string], error) {
	n := int64(len(nxGraph.Nodes))
	for id := range nxGraph.Adjacency {
		n = max(n, id+1)
	}

	users := data.NewIndex[string]()
	for id := range n {
		name := strconv.FormatInt(id, 10)
		if attrs, ok := nxGraph.Nodes[id]; ok {
			if s, ok := attrs["name"].(string); ok {
				name = s
			}
		}
		if users.Add(name) != int(id) {
			return nil, nil, fmt.Errorf("duplicate node name %q: %w", name, data.ErrIndexMismatch)
		}
	}

	g := data.NewGraph(int(n), nxGraph.Directed, nxGraph.Multigraph)
	for from := range n {
		for to, lines := range nxGraph.Adjacency[from] {
			for _, attrs := range lines {
				weight := 1.0
				if w, ok := toFloat(attrs["weight"]); ok {
					weight = w
				}
				t := data.Original
				if s, _ := attrs["type"].(string); s == data.Recommended.String() {
					t = data.Recommended
				}
				if err := g.AddEdge(int(from), int(to), weight, t); err != nil {
					return nil, nil, err
				}
			}
		}
	}

	return g, users, nil
}

func SaveGraphToFile(g *data.Graph, users *data.Index[string], filename string) error {
	nxGraph := SerializeGraph(g, users)

	raw, err := msgpack.Marshal(nxGraph)
	if err != nil {
		return err
	}

	return os.WriteFile(filename, raw, 0644)
}

func LoadGraphFromFile(filename string) (*data.Graph, *data.Index[string], error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, nil, err
	}

	var nxGraph NetworkXGraph
	if err := msgpack.Unmarshal(raw, &nxGraph); err != nil {
		return nil, nil, err
	}

	return DeserializeGraph(&nxGraph)
}
