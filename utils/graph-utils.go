package utils

import (
	"fmt"
	"maps"
	"slices"

	"diffusion-sim/data"
)

// edgeKey identifies the endpoints of a line
func edgeKey(from, to int64) string {
	return fmt.Sprintf("%d->%d", from, to)
}

// lineSignature is what two lines must share to be equal; line ids are ignored
func lineSignature(l data.Line) string {
	return fmt.Sprintf("%g/%s", l.W, l.Type)
}

func lineMap(g *data.Graph) map[string][]string {
	ret := make(map[string][]string)
	for _, l := range g.Lines() {
		key := edgeKey(l.From().ID(), l.To().ID())
		ret[key] = append(ret[key], lineSignature(l))
	}
	for _, sigs := range ret {
		slices.Sort(sigs)
	}
	return ret
}

// CompareGraphs reports whether both graphs have the same nodes, the same
// orientation and the same lines with equal weights and types
func CompareGraphs(g1, g2 *data.Graph) bool {
	if g1.NumNodes() != g2.NumNodes() ||
		g1.Directed() != g2.Directed() ||
		g1.NumEdges() != g2.NumEdges() {
		return false
	}
	return maps.EqualFunc(lineMap(g1), lineMap(g2), func(a, b []string) bool {
		return slices.Equal(a, b)
	})
}
