package metrics

import (
	"math"
	"slices"

	"diffusion-sim/data"
	"diffusion-sim/model"
)

// perUser accumulates, for every user, the weight received per feature value
type perUser struct {
	featureMetric
	counts []map[int]float64
}

func (m *perUser) Initialize(d *data.Data) error {
	ok, err := m.bind(d)
	if !ok || err != nil {
		return err
	}
	m.counts = make([]map[int]float64, d.NumUsers())
	for u := range m.counts {
		m.counts[u] = make(map[int]float64)
	}
	m.initialized = true
	return nil
}

func (m *perUser) Update(it *model.Iteration) error {
	if err := m.prepare(it); err != nil {
		return err
	}
	m.visit(it, func(u, v int, w float64) {
		m.counts[u][v] += w
	})
	return nil
}

func (m *perUser) Clear() {
	m.counts = nil
	m.unbind()
}

func (m *perUser) weights(u int) []float64 {
	ws := make([]float64, 0, len(m.counts[u]))
	for _, w := range m.counts[u] {
		ws = append(ws, w)
	}
	slices.Sort(ws)
	return ws
}

// individuals evaluates fn for every user
func (m *perUser) individuals(fn func(u int) float64) map[int]float64 {
	if !m.initialized {
		return nil
	}
	out := make(map[int]float64, len(m.counts))
	for u := range m.counts {
		out[u] = fn(u)
	}
	return out
}

// average is the mean of fn over the users where it is not NaN
func (m *perUser) average(fn func(u int) float64) float64 {
	if !m.initialized {
		return math.NaN()
	}
	sum, n := 0.0, 0
	for u := range m.counts {
		if v := fn(u); !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

func (m *perUser) known(u int) bool {
	return m.initialized && u >= 0 && u < len(m.counts)
}

// FeatureIndividualEntropy is the entropy of the feature values each user received,
// averaged over the users who received something
type FeatureIndividualEntropy struct {
	perUser
}

func _() IndividualMetric {
	return &FeatureIndividualEntropy{}
}

func NewFeatureIndividualEntropy(feature string, userFeature, unique bool) *FeatureIndividualEntropy {
	return &FeatureIndividualEntropy{perUser{featureMetric: newFeatureMetric("indiv-feat-entropy", feature, unique, userFeature, true)}}
}

func (m *FeatureIndividualEntropy) CalculateUser(u int) float64 {
	if !m.known(u) {
		return math.NaN()
	}
	return Entropy(m.weights(u))
}

func (m *FeatureIndividualEntropy) CalculateIndividuals() map[int]float64 {
	return m.individuals(m.CalculateUser)
}

func (m *FeatureIndividualEntropy) Calculate() float64 {
	return m.average(m.CalculateUser)
}

// FeatureIndividualGini is the complement of the Gini index of each user's
// received distribution over every feature value, averaged over the users who
// received something
type FeatureIndividualGini struct {
	perUser
}

func _() IndividualMetric {
	return &FeatureIndividualGini{}
}

func NewFeatureIndividualGini(feature string, userFeature, unique bool) *FeatureIndividualGini {
	return &FeatureIndividualGini{perUser{featureMetric: newFeatureMetric("indiv-feat-gini", feature, unique, userFeature, true)}}
}

func (m *FeatureIndividualGini) CalculateUser(u int) float64 {
	if !m.known(u) {
		return math.NaN()
	}
	return 1 - sparseGini(m.weights(u), m.numValues())
}

func (m *FeatureIndividualGini) CalculateIndividuals() map[int]float64 {
	return m.individuals(m.CalculateUser)
}

func (m *FeatureIndividualGini) Calculate() float64 {
	return m.average(m.CalculateUser)
}

// FeatureRecall is the share of feature values each user has received at least once
type FeatureRecall struct {
	perUser
}

func _() IndividualMetric {
	return &FeatureRecall{}
}

func NewFeatureRecall(feature string, userFeature bool) *FeatureRecall {
	return &FeatureRecall{perUser{featureMetric: newFeatureMetric("feat-recall", feature, true, userFeature, false)}}
}

func (m *FeatureRecall) CalculateUser(u int) float64 {
	if !m.known(u) || m.numValues() == 0 {
		return math.NaN()
	}
	return float64(len(m.counts[u])) / float64(m.numValues())
}

func (m *FeatureRecall) CalculateIndividuals() map[int]float64 {
	return m.individuals(m.CalculateUser)
}

func (m *FeatureRecall) Calculate() float64 {
	return m.average(m.CalculateUser)
}
