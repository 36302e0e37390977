package utils

import (
	"math/rand/v2"

	"diffusion-sim/data"
)

// CreateRandomNetwork builds a directed G(n, p) graph
//
// p = m / (n - 1), m being the expected out-degree
func CreateRandomNetwork(nodeCount int, edgeProbability float64, rng *rand.Rand) *data.Graph {
	g := data.NewGraph(nodeCount, true, false)

	for i := range nodeCount {
		for j := range nodeCount {
			if i != j && rng.Float64() < edgeProbability {
				g.AddEdge(i, j, 1, data.Original)
			}
		}
	}

	return g
}

// CreateSmallWorldNetwork builds a directed Watts-Strogatz ring: every node
// follows its k/2 neighbours on each side, then every right-hand tie is
// rewired to a random node with probability rewireProbability
func CreateSmallWorldNetwork(nodeCount int, k int, rewireProbability float64, rng *rand.Rand) *data.Graph {
	targets := make([]map[int]bool, nodeCount)
	for i := range nodeCount {
		targets[i] = make(map[int]bool)
		for j := 1; j <= k/2; j++ {
			right := (i + j) % nodeCount
			left := (i - j + nodeCount) % nodeCount
			if right != i {
				targets[i][right] = true
			}
			if left != i {
				targets[i][left] = true
			}
		}
	}

	// random reconnect
	for i := range nodeCount {
		for j := 1; j <= k/2; j++ {
			if rng.Float64() >= rewireProbability {
				continue
			}
			oldTarget := (i + j) % nodeCount
			if !targets[i][oldTarget] || len(targets[i]) >= nodeCount-1 {
				continue
			}
			var newTarget int
			for {
				newTarget = rng.IntN(nodeCount)
				if newTarget != i && !targets[i][newTarget] {
					break
				}
			}
			delete(targets[i], oldTarget)
			targets[i][newTarget] = true
		}
	}

	g := data.NewGraph(nodeCount, true, false)
	for i := range nodeCount {
		for t := range targets[i] {
			g.AddEdge(i, t, 1, data.Original)
		}
	}
	return g
}
