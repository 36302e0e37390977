package simulation

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strconv"

	"diffusion-sim/data"
	"diffusion-sim/metrics"
	"diffusion-sim/propagation"
	"diffusion-sim/selection"
	"diffusion-sim/sight"
	"diffusion-sim/utils"
)

var ErrInvalidMetadata = errors.New("invalid scenario metadata")

// NetworkParams describes a synthetic input, used when no files are given
type NetworkParams struct {
	NetworkType       string  `json:"networkType"` // random | small-world
	NodeCount         int     `json:"nodeCount"`
	NodeFollowCount   int     `json:"nodeFollowCount"`
	RewireProbability float64 `json:"rewireProbability"`
	PiecesPerUser     int     `json:"piecesPerUser"`
	// users are split round robin into communities, exposed as the
	// "community" user feature
	Communities int `json:"communities"`
}

// SelectionParams names a selection factory and carries every parameter
// any of the factories may read
type SelectionParams struct {
	Name string `json:"name"`
	selection.Counts
	Threshold   float64 `json:"threshold"`
	Probability float64 `json:"probability"`
	Orientation string  `json:"orientation"`
}

type PropagationParams struct {
	Name        string `json:"name"` // all-neighbors | push | pull | pull-push
	WaitTime    int    `json:"waitTime"`
	Orientation string `json:"orientation"`
}

// SightParams names the sight mechanism; the probabilities only apply to
// "recommended"
type SightParams struct {
	Name        string  `json:"name"` // all | recommended
	ProbRec     float64 `json:"probRec"`
	ProbTrain   float64 `json:"probTrain"`
	Orientation string  `json:"orientation"`
}

// MetricParams names a metric factory and the feature it observes
type MetricParams struct {
	Name        string `json:"name"`
	Feature     string `json:"feature"`
	UserFeature bool   `json:"userFeature"`
	Unique      bool   `json:"unique"`
	Samples     int    `json:"samples"`
}

type ScenarioMetadata struct {
	UniqueName string `json:"uniqueName"`

	Files   data.Files        `json:"files"`
	Graph   data.GraphOptions `json:"graph"`
	Network *NetworkParams    `json:"network,omitempty"`

	Selection   SelectionParams   `json:"selection"`
	Propagation PropagationParams `json:"propagation"`
	Sight       SightParams       `json:"sight"`
	Stop        StopParams        `json:"stop"`
	Metrics     []MetricParams    `json:"metrics"`

	Seed uint64 `json:"seed"`
}

// DefaultScenarioMetadata returns a small count-based scenario over a
// random network
func DefaultScenarioMetadata() *ScenarioMetadata {
	return &ScenarioMetadata{
		UniqueName: "default",
		Graph:      data.GraphOptions{Directed: true},
		Network: &NetworkParams{
			NetworkType:     "random",
			NodeCount:       500,
			NodeFollowCount: 15,
			PiecesPerUser:   1,
			Communities:     4,
		},
		Selection: SelectionParams{
			Name:   "Count",
			Counts: selection.Counts{Own: 1, Propagate: 1},
		},
		Propagation: PropagationParams{Name: "all-neighbors", Orientation: "out"},
		Stop:        StopParams{MaxIterations: 1000, NoPropagation: true},
		Metrics: []MetricParams{
			{Name: "feat-gl-entropy", Feature: "community", UserFeature: true, Unique: true},
			{Name: "feat-gl-ginicompl", Feature: "community", UserFeature: true, Unique: true},
			{Name: "feat-recall", Feature: "community", UserFeature: true},
		},
		Seed: 42,
	}
}

type SelectionFactory func(p SelectionParams) (selection.Mechanism, error)

func GetDefaultSelectionFactoryDefs() map[string]SelectionFactory {
	orientation := func(p SelectionParams) (data.Orientation, error) {
		return data.ParseOrientation(p.Orientation)
	}

	ret := map[string]SelectionFactory{

		"Count": func(p SelectionParams) (selection.Mechanism, error) {
			return selection.NewCount(p.Counts), nil
		},

		"Threshold": func(p SelectionParams) (selection.Mechanism, error) {
			return selection.NewThreshold(p.Own, int(p.Threshold), p.Repropagate), nil
		},

		"DegreeThreshold": func(p SelectionParams) (selection.Mechanism, error) {
			m := selection.NewDegreeThreshold(p.Own, p.Threshold, p.Repropagate)
			if p.Orientation != "" {
				o, err := orientation(p)
				if err != nil {
					return nil, err
				}
				m.Orientation = o
			}
			return m, nil
		},

		"IndependentCascade": func(p SelectionParams) (selection.Mechanism, error) {
			return selection.NewIndependentCascade(p.Own, p.Probability, p.Repropagate), nil
		},

		"EdgeWeightCascade": func(p SelectionParams) (selection.Mechanism, error) {
			o, err := orientation(p)
			if err != nil {
				return nil, err
			}
			return selection.NewEdgeWeightCascade(p.Own, p.Repropagate, o), nil
		},

		"Timestamp": func(p SelectionParams) (selection.Mechanism, error) {
			return selection.NewTimestamp(), nil
		},

		"LooseTimestamp": func(p SelectionParams) (selection.Mechanism, error) {
			return selection.NewLooseTimestamp(), nil
		},

		"Recommender": func(p SelectionParams) (selection.Mechanism, error) {
			o, err := orientation(p)
			if err != nil {
				return nil, err
			}
			return selection.NewRecommender(p.Counts, p.Probability, o), nil
		},

		"BatchRecommender": func(p SelectionParams) (selection.Mechanism, error) {
			o, err := orientation(p)
			if err != nil {
				return nil, err
			}
			return selection.NewBatchRecommender(p.Counts, p.Probability, o), nil
		},

		"PureRecommender": func(p SelectionParams) (selection.Mechanism, error) {
			o, err := orientation(p)
			if err != nil {
				return nil, err
			}
			return selection.NewPureRecommender(p.Counts, o), nil
		},

		"CountRealPropagated": func(p SelectionParams) (selection.Mechanism, error) {
			return selection.NewCountRealPropagated(p.Counts), nil
		},

		"AllRealPropagated": func(p SelectionParams) (selection.Mechanism, error) {
			return selection.NewAllRealPropagated(p.Own, p.Repropagate), nil
		},
	}

	return ret
}

var SelectionFactories = GetDefaultSelectionFactoryDefs()

func (p PropagationParams) Build() (propagation.Mechanism, error) {
	o, err := data.ParseOrientation(p.Orientation)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMetadata, err)
	}
	switch p.Name {
	case "", "all-neighbors":
		return propagation.NewAllNeighbors(o), nil
	case "push":
		if p.WaitTime < 0 {
			return nil, fmt.Errorf("negative push wait time %d: %w", p.WaitTime, ErrInvalidMetadata)
		}
		return propagation.NewPush(p.WaitTime, o), nil
	case "pull":
		if p.WaitTime < 0 {
			return nil, fmt.Errorf("negative pull wait time %d: %w", p.WaitTime, ErrInvalidMetadata)
		}
		return propagation.NewPull(p.WaitTime, o), nil
	case "pull-push":
		if p.WaitTime < 0 {
			return nil, fmt.Errorf("negative pull-push wait time %d: %w", p.WaitTime, ErrInvalidMetadata)
		}
		return propagation.NewPullPush(p.WaitTime, o), nil
	}
	return nil, fmt.Errorf("unknown propagation %q: %w", p.Name, ErrInvalidMetadata)
}

func (p SightParams) Build() (sight.Mechanism, error) {
	o, err := data.ParseOrientation(p.Orientation)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMetadata, err)
	}
	switch p.Name {
	case "", "all":
		return sight.NewAll(), nil
	case "recommended":
		for _, prob := range []float64{p.ProbRec, p.ProbTrain} {
			if prob < 0 || prob > 1 {
				return nil, fmt.Errorf("sight probability %v: %w", prob, ErrInvalidMetadata)
			}
		}
		return sight.NewRecommended(p.ProbRec, p.ProbTrain, o), nil
	}
	return nil, fmt.Errorf("unknown sight %q: %w", p.Name, ErrInvalidMetadata)
}

type MetricFactory func(p MetricParams, seed uint64) metrics.Metric

func GetDefaultMetricFactoryDefs() map[string]MetricFactory {
	return map[string]MetricFactory{
		"feat-gl-entropy": func(p MetricParams, _ uint64) metrics.Metric {
			return metrics.NewFeatureGlobalEntropy(p.Feature, p.UserFeature, p.Unique)
		},
		"feat-gl-ginicompl": func(p MetricParams, _ uint64) metrics.Metric {
			return metrics.NewFeatureGlobalGini(p.Feature, p.UserFeature, p.Unique)
		},
		"feat-gl-kld": func(p MetricParams, _ uint64) metrics.Metric {
			return metrics.NewFeatureGlobalKLDivergence(p.Feature, p.UserFeature, p.Unique, false)
		},
		"feat-gl-inv-kld": func(p MetricParams, _ uint64) metrics.Metric {
			return metrics.NewFeatureGlobalKLDivergence(p.Feature, p.UserFeature, p.Unique, true)
		},
		"global-feat-user-entropy": func(p MetricParams, _ uint64) metrics.Metric {
			return metrics.NewFeatureGlobalUserEntropy(p.Feature, p.UserFeature)
		},
		"user-feature-gini": func(p MetricParams, _ uint64) metrics.Metric {
			return metrics.NewUserFeatureGini(p.Feature, p.UserFeature, p.Unique)
		},
		"mc-feat-gl-ginicompl": func(p MetricParams, seed uint64) metrics.Metric {
			return metrics.NewMonteCarloFeatureGlobalGini(p.Feature, p.UserFeature, p.Unique, max(p.Samples, 1), seed)
		},
		"mc-feat-gl-user-ginicompl": func(p MetricParams, seed uint64) metrics.Metric {
			return metrics.NewMonteCarloFeatureGlobalUserGini(p.Feature, p.UserFeature, max(p.Samples, 1), seed)
		},
		"ext-feat-gl-ginicompl": func(p MetricParams, _ uint64) metrics.Metric {
			return metrics.NewExternalFeatureGlobalGini(p.Feature, p.UserFeature, p.Unique)
		},
		"global-ext-featrate": func(p MetricParams, _ uint64) metrics.Metric {
			return metrics.NewExternalFeatureGlobalRate(p.Feature, p.UserFeature, p.Unique)
		},
		"indiv-feat-entropy": func(p MetricParams, _ uint64) metrics.Metric {
			return metrics.NewFeatureIndividualEntropy(p.Feature, p.UserFeature, p.Unique)
		},
		"indiv-feat-gini": func(p MetricParams, _ uint64) metrics.Metric {
			return metrics.NewFeatureIndividualGini(p.Feature, p.UserFeature, p.Unique)
		},
		"feat-recall": func(p MetricParams, _ uint64) metrics.Metric {
			return metrics.NewFeatureRecall(p.Feature, p.UserFeature)
		},
		"norm-recall": func(p MetricParams, _ uint64) metrics.Metric {
			return metrics.NewFeatureNormalizedRecall(p.Feature, p.UserFeature)
		},
		"ext-recall": func(p MetricParams, _ uint64) metrics.Metric {
			return metrics.NewExternalFeatureRecall(p.Feature, p.UserFeature)
		},
		"ext-featrate": func(p MetricParams, _ uint64) metrics.Metric {
			return metrics.NewExternalFeatureRate(p.Feature, p.UserFeature, p.Unique)
		},
		"ext-feat-gini": func(p MetricParams, _ uint64) metrics.Metric {
			return metrics.NewExternalFeatureGini(p.Feature, p.UserFeature, p.Unique)
		},
	}
}

var MetricFactories = GetDefaultMetricFactoryDefs()

func (m *ScenarioMetadata) Validate() error {
	if m.UniqueName == "" {
		return fmt.Errorf("empty unique name: %w", ErrInvalidMetadata)
	}
	if m.Network == nil && (m.Files.Users == "" || m.Files.Graph == "" || m.Files.Pieces == "") {
		return fmt.Errorf("neither input files nor a synthetic network: %w", ErrInvalidMetadata)
	}
	if n := m.Network; n != nil {
		if n.NodeCount < 2 || n.NodeFollowCount < 1 || n.NodeFollowCount >= n.NodeCount {
			return fmt.Errorf("network of %d nodes following %d: %w", n.NodeCount, n.NodeFollowCount, ErrInvalidMetadata)
		}
		if !slices.Contains([]string{"", "random", "small-world"}, n.NetworkType) {
			return fmt.Errorf("unknown network type %q: %w", n.NetworkType, ErrInvalidMetadata)
		}
		if n.PiecesPerUser < 0 || n.Communities < 0 {
			return fmt.Errorf("negative pieces or communities: %w", ErrInvalidMetadata)
		}
	}
	if _, ok := SelectionFactories[m.Selection.Name]; !ok {
		return fmt.Errorf("unknown selection %q: %w", m.Selection.Name, ErrInvalidMetadata)
	}
	if _, err := m.Propagation.Build(); err != nil {
		return err
	}
	if _, err := m.Sight.Build(); err != nil {
		return err
	}
	if _, err := m.Stop.Build(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMetadata, err)
	}
	seen := make(map[string]bool)
	for _, mp := range m.Metrics {
		f, ok := MetricFactories[mp.Name]
		if !ok {
			return fmt.Errorf("unknown metric %q: %w", mp.Name, ErrInvalidMetadata)
		}
		name := f(mp, m.Seed).Name()
		if seen[name] {
			return fmt.Errorf("duplicate metric %q: %w", name, ErrInvalidMetadata)
		}
		seen[name] = true
	}
	return nil
}

// BuildSimulator creates the simulator described by the metadata
func (m *ScenarioMetadata) BuildSimulator(opts SimulatorOptions) (*Simulator, error) {
	sel, err := SelectionFactories[m.Selection.Name](m.Selection)
	if err != nil {
		return nil, err
	}
	prop, err := m.Propagation.Build()
	if err != nil {
		return nil, err
	}
	sgt, err := m.Sight.Build()
	if err != nil {
		return nil, err
	}
	stop, err := m.Stop.Build()
	if err != nil {
		return nil, err
	}
	opts.Seed = m.Seed
	sim := NewSimulator(sel, prop, stop, opts)
	sim.Sight = sgt
	return sim, nil
}

// BuildMetrics creates a runner over the metrics of the metadata
func (m *ScenarioMetadata) BuildMetrics(log *slog.Logger) *metrics.Runner {
	ms := make([]metrics.Metric, 0, len(m.Metrics))
	for _, mp := range m.Metrics {
		ms = append(ms, MetricFactories[mp.Name](mp, m.Seed))
	}
	return metrics.NewRunner(log, ms...)
}

// LoadData reads the input files, or generates the synthetic network
func (m *ScenarioMetadata) LoadData(log *slog.Logger) (*data.Data, error) {
	if log == nil {
		log = slog.Default()
	}
	if m.Network == nil {
		return data.Load(m.Files, m.Graph, log)
	}
	return m.Network.generate(m.Seed, log)
}

func (n *NetworkParams) generate(seed uint64, log *slog.Logger) (*data.Data, error) {
	rng := rand.New(rand.NewPCG(seed, 0))

	var g *data.Graph
	switch n.NetworkType {
	case "small-world":
		g = utils.CreateSmallWorldNetwork(n.NodeCount, n.NodeFollowCount, n.RewireProbability, rng)
	default:
		g = utils.CreateRandomNetwork(
			n.NodeCount,
			float64(n.NodeFollowCount)/(float64(n.NodeCount)-1),
			rng,
		)
	}

	users := data.NewIndex[string]()
	for u := range n.NodeCount {
		users.Add("u" + strconv.Itoa(u))
	}

	b := data.NewBuilder(users, g).SetLogger(log)
	for u := range n.NodeCount {
		user := "u" + strconv.Itoa(u)
		for j := range n.PiecesPerUser {
			b.AddPiece(fmt.Sprintf("p%d-%d", u, j), user, int64(j))
		}
	}
	if n.Communities > 0 {
		b.DeclareUserFeature("community")
		for u := range n.NodeCount {
			b.AddUserFeature("community", "u"+strconv.Itoa(u), strconv.Itoa(u%n.Communities), 1)
		}
	}
	return b.Build()
}
