package metrics

import (
	"math"

	"diffusion-sim/data"
	"diffusion-sim/model"
)

// external is perUser plus the feature values each user holds itself;
// values a user does not hold are external to it
type external struct {
	perUser
	own []map[int]bool
}

func (m *external) Initialize(d *data.Data) error {
	if m.initialized {
		return nil
	}
	if err := m.perUser.Initialize(d); err != nil {
		return err
	}
	m.own = ownFeatures(d, m.space)
	return nil
}

func (m *external) Clear() {
	m.own = nil
	m.perUser.Clear()
}

// numExternal is the number of feature values u does not hold
func (m *external) numExternal(u int) int {
	return m.numValues() - len(m.own[u])
}

// externalWeights returns the received weights of the values u does not hold
func (m *external) externalWeights(u int) []float64 {
	ws := make([]float64, 0, len(m.counts[u]))
	for v, w := range m.counts[u] {
		if !m.own[u][v] {
			ws = append(ws, w)
		}
	}
	return ws
}

// ExternalFeatureRecall is the share of the values a user does not hold that
// reached it at least once
type ExternalFeatureRecall struct {
	external
}

func _() IndividualMetric {
	return &ExternalFeatureRecall{}
}

func NewExternalFeatureRecall(feature string, userFeature bool) *ExternalFeatureRecall {
	return &ExternalFeatureRecall{external{perUser: perUser{featureMetric: newFeatureMetric("ext-recall", feature, true, userFeature, false)}}}
}

func (m *ExternalFeatureRecall) CalculateUser(u int) float64 {
	if !m.known(u) || m.numExternal(u) == 0 {
		return math.NaN()
	}
	return float64(len(m.externalWeights(u))) / float64(m.numExternal(u))
}

func (m *ExternalFeatureRecall) CalculateIndividuals() map[int]float64 {
	return m.individuals(m.CalculateUser)
}

func (m *ExternalFeatureRecall) Calculate() float64 {
	return m.average(m.CalculateUser)
}

// ExternalFeatureRate is the share of the weight a user received that
// belongs to values it does not hold
type ExternalFeatureRate struct {
	external
}

func _() IndividualMetric {
	return &ExternalFeatureRate{}
}

func NewExternalFeatureRate(feature string, userFeature, unique bool) *ExternalFeatureRate {
	return &ExternalFeatureRate{external{perUser: perUser{featureMetric: newFeatureMetric("ext-featrate", feature, unique, userFeature, true)}}}
}

func (m *ExternalFeatureRate) CalculateUser(u int) float64 {
	if !m.known(u) {
		return math.NaN()
	}
	total, ext := 0.0, 0.0
	for v, w := range m.counts[u] {
		total += w
		if !m.own[u][v] {
			ext += w
		}
	}
	if total == 0 {
		return math.NaN()
	}
	return ext / total
}

func (m *ExternalFeatureRate) CalculateIndividuals() map[int]float64 {
	return m.individuals(m.CalculateUser)
}

func (m *ExternalFeatureRate) Calculate() float64 {
	return m.average(m.CalculateUser)
}

// ExternalFeatureGini is the complement of the Gini index of each user's
// received distribution over the values it does not hold
type ExternalFeatureGini struct {
	external
}

func _() IndividualMetric {
	return &ExternalFeatureGini{}
}

func NewExternalFeatureGini(feature string, userFeature, unique bool) *ExternalFeatureGini {
	return &ExternalFeatureGini{external{perUser: perUser{featureMetric: newFeatureMetric("ext-feat-gini", feature, unique, userFeature, true)}}}
}

func (m *ExternalFeatureGini) CalculateUser(u int) float64 {
	if !m.known(u) {
		return math.NaN()
	}
	return 1 - sparseGini(m.externalWeights(u), m.numExternal(u))
}

func (m *ExternalFeatureGini) CalculateIndividuals() map[int]float64 {
	return m.individuals(m.CalculateUser)
}

func (m *ExternalFeatureGini) Calculate() float64 {
	return m.average(m.CalculateUser)
}

// FeatureNormalizedRecall divides the share of values a user received by
// the number of new pieces it took to receive them
type FeatureNormalizedRecall struct {
	perUser
	pieces []int
}

func _() IndividualMetric {
	return &FeatureNormalizedRecall{}
}

func NewFeatureNormalizedRecall(feature string, userFeature bool) *FeatureNormalizedRecall {
	return &FeatureNormalizedRecall{perUser: perUser{featureMetric: newFeatureMetric("norm-recall", feature, true, userFeature, false)}}
}

func (m *FeatureNormalizedRecall) Initialize(d *data.Data) error {
	if m.initialized {
		return nil
	}
	if err := m.perUser.Initialize(d); err != nil {
		return err
	}
	m.pieces = make([]int, d.NumUsers())
	return nil
}

func (m *FeatureNormalizedRecall) Update(it *model.Iteration) error {
	if err := m.perUser.Update(it); err != nil {
		return err
	}
	for _, u := range it.ReceivingUsers() {
		m.pieces[u] += len(it.Received[u])
	}
	return nil
}

func (m *FeatureNormalizedRecall) CalculateUser(u int) float64 {
	if !m.known(u) || m.numValues() == 0 {
		return math.NaN()
	}
	if m.pieces[u] == 0 {
		return 0
	}
	return float64(len(m.counts[u])) / float64(m.numValues()*m.pieces[u])
}

func (m *FeatureNormalizedRecall) CalculateIndividuals() map[int]float64 {
	return m.individuals(m.CalculateUser)
}

func (m *FeatureNormalizedRecall) Calculate() float64 {
	return m.average(m.CalculateUser)
}

func (m *FeatureNormalizedRecall) Clear() {
	m.pieces = nil
	m.perUser.Clear()
}

// ExternalFeatureGlobalGini is the complement of the Gini index of the
// received weight, counting each delivery only for values its receiver does
// not hold
type ExternalFeatureGlobalGini struct {
	distribution
	own []map[int]bool
}

func _() Metric {
	return &ExternalFeatureGlobalGini{}
}

func NewExternalFeatureGlobalGini(feature string, userFeature, unique bool) *ExternalFeatureGlobalGini {
	return &ExternalFeatureGlobalGini{distribution: distribution{featureMetric: newFeatureMetric("ext-feat-gl-ginicompl", feature, unique, userFeature, true)}}
}

func (m *ExternalFeatureGlobalGini) Initialize(d *data.Data) error {
	if m.initialized {
		return nil
	}
	if err := m.distribution.Initialize(d); err != nil {
		return err
	}
	m.own = ownFeatures(d, m.space)
	return nil
}

func (m *ExternalFeatureGlobalGini) Update(it *model.Iteration) error {
	if err := m.prepare(it); err != nil {
		return err
	}
	m.visit(it, func(u, v int, w float64) {
		if !m.own[u][v] {
			m.values[v] += w
			m.sum += w
		}
	})
	return nil
}

func (m *ExternalFeatureGlobalGini) Calculate() float64 {
	if !m.initialized {
		return math.NaN()
	}
	return 1 - GiniIndex(m.values)
}

func (m *ExternalFeatureGlobalGini) Clear() {
	m.own = nil
	m.distribution.Clear()
}
