package metrics

import (
	"math"

	"diffusion-sim/data"
	"diffusion-sim/model"
)

// distribution accumulates weight per feature value
type distribution struct {
	featureMetric
	values []float64
	sum    float64
}

func (m *distribution) Initialize(d *data.Data) error {
	ok, err := m.bind(d)
	if !ok || err != nil {
		return err
	}
	m.values = make([]float64, m.numValues())
	m.sum = 0
	m.initialized = true
	return nil
}

func (m *distribution) Update(it *model.Iteration) error {
	if err := m.prepare(it); err != nil {
		return err
	}
	m.visit(it, func(_, v int, w float64) {
		m.values[v] += w
		m.sum += w
	})
	return nil
}

func (m *distribution) Clear() {
	m.values = nil
	m.sum = 0
	m.unbind()
}

// Values returns a copy of the accumulated distribution, indexed by feature value id
func (m *distribution) Values() []float64 {
	return append([]float64(nil), m.values...)
}

// FeatureGlobalEntropy is the entropy of the feature values of every received piece
type FeatureGlobalEntropy struct {
	distribution
}

func _() Metric {
	return &FeatureGlobalEntropy{}
}

func NewFeatureGlobalEntropy(feature string, userFeature, unique bool) *FeatureGlobalEntropy {
	return &FeatureGlobalEntropy{distribution{featureMetric: newFeatureMetric("feat-gl-entropy", feature, unique, userFeature, true)}}
}

func (m *FeatureGlobalEntropy) Calculate() float64 {
	if !m.initialized {
		return math.NaN()
	}
	return Entropy(m.values)
}

// FeatureGlobalGini is the complement of the Gini index of the feature values of
// every received piece: 1 means every value was received equally often
type FeatureGlobalGini struct {
	distribution
}

func _() Metric {
	return &FeatureGlobalGini{}
}

func NewFeatureGlobalGini(feature string, userFeature, unique bool) *FeatureGlobalGini {
	return &FeatureGlobalGini{distribution{featureMetric: newFeatureMetric("feat-gl-ginicompl", feature, unique, userFeature, true)}}
}

func (m *FeatureGlobalGini) Calculate() float64 {
	if !m.initialized {
		return math.NaN()
	}
	return 1 - GiniIndex(m.values)
}

// FeatureGlobalKLDivergence compares the received feature distribution with the
// distribution of the created pieces. Both are Laplace smoothed.
// Inverse swaps the arguments: KL(prior || received).
type FeatureGlobalKLDivergence struct {
	distribution
	Inverse bool
	prior   []float64
}

func _() Metric {
	return &FeatureGlobalKLDivergence{}
}

func NewFeatureGlobalKLDivergence(feature string, userFeature, unique, inverse bool) *FeatureGlobalKLDivergence {
	prefix := "feat-gl-kld"
	if inverse {
		prefix = "feat-gl-inv-kld"
	}
	return &FeatureGlobalKLDivergence{
		distribution: distribution{featureMetric: newFeatureMetric(prefix, feature, unique, userFeature, true)},
		Inverse:      inverse,
	}
}

func (m *FeatureGlobalKLDivergence) Initialize(d *data.Data) error {
	if m.initialized {
		return nil
	}
	if err := m.distribution.Initialize(d); err != nil {
		return err
	}
	m.prior = make([]float64, m.numValues())
	for p := range d.NumPieces() {
		for _, f := range d.PieceFeatures(m.space, p) {
			m.prior[f.ID] += f.Value
		}
	}
	return nil
}

func (m *FeatureGlobalKLDivergence) Calculate() float64 {
	if !m.initialized || m.sum == 0 {
		return math.NaN()
	}
	if m.Inverse {
		return SmoothedKL(m.prior, m.values)
	}
	return SmoothedKL(m.values, m.prior)
}

func (m *FeatureGlobalKLDivergence) Clear() {
	m.prior = nil
	m.distribution.Clear()
}

// FeatureGlobalUserEntropy is the entropy of the number of distinct users
// that have received each feature value
type FeatureGlobalUserEntropy struct {
	featureMetric
	seen   []map[int]bool // value -> users
	counts []float64
	sum    float64
}

func _() Metric {
	return &FeatureGlobalUserEntropy{}
}

func NewFeatureGlobalUserEntropy(feature string, userFeature bool) *FeatureGlobalUserEntropy {
	return &FeatureGlobalUserEntropy{featureMetric: newFeatureMetric("global-feat-user-entropy", feature, true, userFeature, false)}
}

func (m *FeatureGlobalUserEntropy) Initialize(d *data.Data) error {
	ok, err := m.bind(d)
	if !ok || err != nil {
		return err
	}
	m.seen = make([]map[int]bool, m.numValues())
	for i := range m.seen {
		m.seen[i] = make(map[int]bool)
	}
	m.counts = make([]float64, m.numValues())
	m.sum = 0
	m.initialized = true
	return nil
}

func (m *FeatureGlobalUserEntropy) Update(it *model.Iteration) error {
	if err := m.prepare(it); err != nil {
		return err
	}
	m.visit(it, func(u, v int, _ float64) {
		if !m.seen[v][u] {
			m.seen[v][u] = true
			m.counts[v]++
			m.sum++
		}
	})
	return nil
}

func (m *FeatureGlobalUserEntropy) Calculate() float64 {
	if !m.initialized {
		return math.NaN()
	}
	return Entropy(m.counts)
}

func (m *FeatureGlobalUserEntropy) Clear() {
	m.seen = nil
	m.counts = nil
	m.sum = 0
	m.unbind()
}

// ExternalFeatureGlobalRate is the share of received feature weight whose value
// the receiver does not hold itself. A user holds the values of its user feature,
// or the values of the pieces it created for a piece feature.
type ExternalFeatureGlobalRate struct {
	featureMetric
	own      []map[int]bool
	external float64
	total    float64
}

func _() Metric {
	return &ExternalFeatureGlobalRate{}
}

func NewExternalFeatureGlobalRate(feature string, userFeature, unique bool) *ExternalFeatureGlobalRate {
	return &ExternalFeatureGlobalRate{featureMetric: newFeatureMetric("global-ext-featrate", feature, unique, userFeature, true)}
}

// ownFeatures returns, per user, the feature values the user holds
func ownFeatures(d *data.Data, space *data.FeatureSpace) []map[int]bool {
	own := make([]map[int]bool, d.NumUsers())
	for u := range own {
		own[u] = make(map[int]bool)
		if space.OnUsers {
			for _, p := range space.Weights.Seconds(u) {
				own[u][p.ID] = true
			}
			continue
		}
		for _, piece := range d.PiecesOf(u) {
			for _, p := range space.Weights.Seconds(piece) {
				own[u][p.ID] = true
			}
		}
	}
	return own
}

func (m *ExternalFeatureGlobalRate) Initialize(d *data.Data) error {
	ok, err := m.bind(d)
	if !ok || err != nil {
		return err
	}
	m.own = ownFeatures(d, m.space)
	m.external, m.total = 0, 0
	m.initialized = true
	return nil
}

func (m *ExternalFeatureGlobalRate) Update(it *model.Iteration) error {
	if err := m.prepare(it); err != nil {
		return err
	}
	m.visit(it, func(u, v int, w float64) {
		if !m.own[u][v] {
			m.external += w
		}
		m.total += w
	})
	return nil
}

func (m *ExternalFeatureGlobalRate) Calculate() float64 {
	if !m.initialized || m.total == 0 {
		return math.NaN()
	}
	return m.external / m.total
}

func (m *ExternalFeatureGlobalRate) Clear() {
	m.own = nil
	m.external, m.total = 0, 0
	m.unbind()
}
