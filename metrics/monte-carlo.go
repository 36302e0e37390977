package metrics

import (
	"math"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"diffusion-sim/data"
	"diffusion-sim/model"
)

// giniSample is one draw of the null distribution: the same total mass as the
// observed distribution, spread unit by unit over uniformly random values.
// With a positive limit no value grows beyond it.
type giniSample struct {
	counts []float64
	gini   *incrementalGini
	rng    *rand.Rand
	limit  float64
	open   []int // values below the limit
}

func newGiniSamples(n, numSamples int, seed uint64, limit float64) []*giniSample {
	samples := make([]*giniSample, max(numSamples, 0))
	for i := range samples {
		s := &giniSample{
			counts: make([]float64, n),
			gini:   newIncrementalGini(n),
			rng:    rand.New(rand.NewPCG(seed, uint64(i))),
			limit:  limit,
		}
		if limit > 0 {
			s.open = make([]int, n)
			for v := range s.open {
				s.open[v] = v
			}
		}
		samples[i] = s
	}
	return samples
}

func (s *giniSample) add(units int) {
	for range units {
		if s.limit <= 0 {
			i := s.rng.IntN(len(s.counts))
			s.gini.move(s.counts[i], s.counts[i]+1)
			s.counts[i]++
			continue
		}
		if len(s.open) == 0 {
			return
		}
		k := s.rng.IntN(len(s.open))
		i := s.open[k]
		s.gini.move(s.counts[i], s.counts[i]+1)
		s.counts[i]++
		if s.counts[i] >= s.limit {
			s.open[k] = s.open[len(s.open)-1]
			s.open = s.open[:len(s.open)-1]
		}
	}
}

// grow adds the same number of units to every sample, in parallel
func grow(samples []*giniSample, units int) error {
	if units <= 0 {
		return nil
	}
	var g errgroup.Group
	for _, s := range samples {
		g.Go(func() error {
			s.add(units)
			return nil
		})
	}
	return g.Wait()
}

// normalizeGini compares g with the Gini indexes of the samples: with
// g' = (g - mean) / (max - mean) it returns (1 - g') / 2
func normalizeGini(g float64, samples []*giniSample) float64 {
	if len(samples) == 0 {
		return math.NaN()
	}
	null := make([]float64, len(samples))
	for i, s := range samples {
		null[i] = s.gini.value()
	}
	mean := stat.Mean(null, nil)
	top := floats.Max(null)
	if math.IsNaN(g) || math.IsNaN(mean) || top == mean {
		return math.NaN()
	}
	norm := (g - mean) / (top - mean)
	return (1 - norm) / 2
}

// MonteCarloFeatureGlobalGini normalizes the Gini index of the received feature
// distribution against Gini indexes of random distributions of the same mass.
// With g' = (g - mean) / (max - mean) over the samples, it reports (1 - g') / 2.
type MonteCarloFeatureGlobalGini struct {
	distribution
	NumSamples int
	Seed       uint64
	samples    []*giniSample
}

func _() Metric {
	return &MonteCarloFeatureGlobalGini{}
}

func NewMonteCarloFeatureGlobalGini(feature string, userFeature, unique bool, numSamples int, seed uint64) *MonteCarloFeatureGlobalGini {
	return &MonteCarloFeatureGlobalGini{
		distribution: distribution{featureMetric: newFeatureMetric("mc-feat-gl-ginicompl", feature, unique, userFeature, true)},
		NumSamples:   numSamples,
		Seed:         seed,
	}
}

func (m *MonteCarloFeatureGlobalGini) Initialize(d *data.Data) error {
	if m.initialized {
		return nil
	}
	if err := m.distribution.Initialize(d); err != nil {
		return err
	}
	m.samples = newGiniSamples(m.numValues(), m.NumSamples, m.Seed, 0)
	return nil
}

func (m *MonteCarloFeatureGlobalGini) Update(it *model.Iteration) error {
	before := m.sum
	if err := m.distribution.Update(it); err != nil {
		return err
	}
	if m.numValues() == 0 {
		return nil
	}
	return grow(m.samples, int(math.Round(m.sum-before)))
}

func (m *MonteCarloFeatureGlobalGini) Calculate() float64 {
	if !m.initialized || len(m.samples) == 0 {
		return math.NaN()
	}
	return normalizeGini(GiniIndex(m.values), m.samples)
}

func (m *MonteCarloFeatureGlobalGini) Clear() {
	m.samples = nil
	m.distribution.Clear()
}

// MonteCarloFeatureGlobalUserGini normalizes the Gini index of the number of
// distinct users that received each feature value against random samples
// with as many (user, value) pairs. A value reaches at most every user.
type MonteCarloFeatureGlobalUserGini struct {
	featureMetric
	NumSamples int
	Seed       uint64
	seen       []map[int]bool // value -> users
	counts     []float64
	samples    []*giniSample
}

func _() Metric {
	return &MonteCarloFeatureGlobalUserGini{}
}

func NewMonteCarloFeatureGlobalUserGini(feature string, userFeature bool, numSamples int, seed uint64) *MonteCarloFeatureGlobalUserGini {
	return &MonteCarloFeatureGlobalUserGini{
		featureMetric: newFeatureMetric("mc-feat-gl-user-ginicompl", feature, true, userFeature, false),
		NumSamples:    numSamples,
		Seed:          seed,
	}
}

func (m *MonteCarloFeatureGlobalUserGini) Initialize(d *data.Data) error {
	ok, err := m.bind(d)
	if !ok || err != nil {
		return err
	}
	n := m.numValues()
	m.seen = make([]map[int]bool, n)
	for i := range m.seen {
		m.seen[i] = make(map[int]bool)
	}
	m.counts = make([]float64, n)
	m.samples = newGiniSamples(n, m.NumSamples, m.Seed, float64(d.NumUsers()))
	m.initialized = true
	return nil
}

func (m *MonteCarloFeatureGlobalUserGini) Update(it *model.Iteration) error {
	if err := m.prepare(it); err != nil {
		return err
	}
	units := 0
	m.visit(it, func(u, v int, _ float64) {
		if !m.seen[v][u] {
			m.seen[v][u] = true
			m.counts[v]++
			units++
		}
	})
	return grow(m.samples, units)
}

func (m *MonteCarloFeatureGlobalUserGini) Calculate() float64 {
	if !m.initialized {
		return math.NaN()
	}
	return normalizeGini(GiniIndex(m.counts), m.samples)
}

func (m *MonteCarloFeatureGlobalUserGini) Clear() {
	m.seen = nil
	m.counts = nil
	m.samples = nil
	m.unbind()
}
