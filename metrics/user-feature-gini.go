package metrics

import (
	"math"

	"diffusion-sim/data"
	"diffusion-sim/model"
	"diffusion-sim/utils"
)

// incrementalGini keeps the Gini index of n frequencies, all starting at zero.
// S = sum over pairs i<j of |x_i - x_j| is patched on every change, so a change
// costs O(log distinct frequencies) instead of a re-sort.
type incrementalGini struct {
	tree   *utils.OrderStatTree
	spread float64 // S
	n      int
}

func newIncrementalGini(n int) *incrementalGini {
	g := &incrementalGini{tree: utils.NewOrderStatTree(), n: n}
	g.tree.Insert(0, n)
	return g
}

// move replaces one frequency a by b
func (g *incrementalGini) move(a, b float64) {
	g.tree.Remove(a)
	g.spread += g.tree.AbsDeviation(b) - g.tree.AbsDeviation(a)
	g.tree.Insert(b, 1)
}

func (g *incrementalGini) value() float64 {
	if g.n <= 1 {
		return math.NaN()
	}
	sum := g.tree.Sum()
	if sum == 0 {
		return math.NaN()
	}
	return g.spread / (float64(g.n-1) * sum)
}

// UserFeatureGini is the complement of the Gini index over every (user, feature value)
// pair, where each pair is weighted by how often the user received the value
type UserFeatureGini struct {
	featureMetric
	counts map[[2]int]float64
	gini   *incrementalGini
}

func _() Metric {
	return &UserFeatureGini{}
}

func NewUserFeatureGini(feature string, userFeature, unique bool) *UserFeatureGini {
	return &UserFeatureGini{featureMetric: newFeatureMetric("user-feature-gini", feature, unique, userFeature, true)}
}

func (m *UserFeatureGini) Initialize(d *data.Data) error {
	ok, err := m.bind(d)
	if !ok || err != nil {
		return err
	}
	m.counts = make(map[[2]int]float64)
	m.gini = newIncrementalGini(d.NumUsers() * m.numValues())
	m.initialized = true
	return nil
}

func (m *UserFeatureGini) Update(it *model.Iteration) error {
	if err := m.prepare(it); err != nil {
		return err
	}
	m.visit(it, func(u, v int, w float64) {
		key := [2]int{u, v}
		a := m.counts[key]
		m.gini.move(a, a+w)
		m.counts[key] = a + w
	})
	return nil
}

// Gini returns the raw index, NaN while nothing has been received
func (m *UserFeatureGini) Gini() float64 {
	if !m.initialized {
		return math.NaN()
	}
	return m.gini.value()
}

func (m *UserFeatureGini) Calculate() float64 {
	return 1 - m.Gini()
}

// Frequencies returns the dense (user, value) matrix of accumulated weights
func (m *UserFeatureGini) Frequencies() []float64 {
	if !m.initialized {
		return nil
	}
	out := make([]float64, m.gini.n)
	k := m.numValues()
	for key, c := range m.counts {
		out[key[0]*k+key[1]] = c
	}
	return out
}

func (m *UserFeatureGini) Clear() {
	m.counts = nil
	m.gini = nil
	m.unbind()
}
