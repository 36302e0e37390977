package metrics

import (
	"errors"
	"fmt"

	"diffusion-sim/data"
	"diffusion-sim/model"
)

var (
	ErrMalformedIteration = errors.New("malformed iteration")
	ErrNotInitialized     = errors.New("metric not initialized")
	ErrNoData             = errors.New("no data")
)

// Metric consumes iterations one at a time, in order, and reports a single value.
// Calculate returns NaN when the value is not computable.
type Metric interface {
	Name() string

	// Initialize prepares the accumulators. Calling it again is a no-op until Clear.
	Initialize(d *data.Data) error

	// Update consumes exactly one iteration
	Update(it *model.Iteration) error

	Calculate() float64

	// Clear resets the metric to its state before Initialize
	Clear()
}

// IndividualMetric also reports a value per user
type IndividualMetric interface {
	Metric
	CalculateUser(u int) float64
	CalculateIndividuals() map[int]float64
}

// validateIteration checks every user and piece id before anything is accumulated
func validateIteration(d *data.Data, it *model.Iteration) error {
	if it == nil {
		return fmt.Errorf("nil iteration: %w", ErrMalformedIteration)
	}
	check := func(group map[int][]model.Delivery) error {
		for u, ds := range group {
			if u < 0 || u >= d.NumUsers() {
				return fmt.Errorf("iteration %d: unknown user %d: %w", it.Number, u, ErrMalformedIteration)
			}
			for _, del := range ds {
				if del.Piece < 0 || del.Piece >= d.NumPieces() {
					return fmt.Errorf("iteration %d: unknown piece %d: %w", it.Number, del.Piece, ErrMalformedIteration)
				}
				if len(del.Senders) == 0 {
					return fmt.Errorf("iteration %d: piece %d has no sender: %w", it.Number, del.Piece, ErrMalformedIteration)
				}
			}
		}
		return nil
	}
	if err := check(it.Received); err != nil {
		return err
	}
	return check(it.Rereceived)
}

// featureMetric holds what every feature based metric shares
type featureMetric struct {
	name        string
	feature     string
	unique      bool
	d           *data.Data
	space       *data.FeatureSpace
	initialized bool
}

func newFeatureMetric(prefix, feature string, unique, userFeature bool, withMode bool) featureMetric {
	kind := "info"
	if userFeature {
		kind = "user"
	}
	name := prefix + "-" + kind + "-" + feature
	if withMode {
		if unique {
			name += "-unique"
		} else {
			name += "-repetitions"
		}
	}
	return featureMetric{name: name, feature: feature, unique: unique}
}

func (m *featureMetric) Name() string {
	return m.name
}

// bind resolves the feature space; it reports false if already initialized
func (m *featureMetric) bind(d *data.Data) (bool, error) {
	if m.initialized {
		return false, nil
	}
	if d == nil {
		return false, ErrNoData
	}
	space, err := d.Feature(m.feature)
	if err != nil {
		return false, err
	}
	m.d = d
	m.space = space
	return true, nil
}

func (m *featureMetric) unbind() {
	m.d = nil
	m.space = nil
	m.initialized = false
}

func (m *featureMetric) numValues() int {
	return m.space.Values.Len()
}

// visit calls fn for every (user, feature value, weight) observed in the iteration.
// In unique mode each new piece counts once; otherwise a piece counts once per
// sender and re-received pieces count as well.
func (m *featureMetric) visit(it *model.Iteration, fn func(u, value int, weight float64)) {
	apply := func(u int, del model.Delivery, times float64) {
		for _, p := range m.d.PieceFeatures(m.space, del.Piece) {
			if w := p.Value * times; w != 0 {
				fn(u, p.ID, w)
			}
		}
	}
	for _, u := range it.ReceivingUsers() {
		for _, del := range it.Received[u] {
			times := 1.0
			if !m.unique {
				times = float64(len(del.Senders))
			}
			apply(u, del, times)
		}
	}
	if m.unique {
		return
	}
	for _, u := range it.RereceivingUsers() {
		for _, del := range it.Rereceived[u] {
			apply(u, del, float64(len(del.Senders)))
		}
	}
}

// prepare validates an update
func (m *featureMetric) prepare(it *model.Iteration) error {
	if !m.initialized {
		return ErrNotInitialized
	}
	return validateIteration(m.d, it)
}
