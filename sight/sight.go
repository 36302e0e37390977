package sight

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"diffusion-sim/data"
	"diffusion-sim/model"
)

var ErrInvalidParams = errors.New("invalid sight parameters")

// Mechanism decides whether a delivery is noticed by the user it reaches.
// Deliveries that are not seen leave no trace in the receiver's state.
type Mechanism interface {
	// Init checks the parameters against the data, before the first step
	Init(d *data.Data) error

	// Reset is called sequentially once per iteration, before any delivery
	Reset(d *data.Data, iteration int, rng *rand.Rand)

	// Sees is called sequentially in commit order for every delivery
	Sees(user *model.UserState, d *data.Data, piece, sender int) bool
}

// All sees every delivery
type All struct{}

func _() Mechanism {
	return &All{}
}

func NewAll() *All {
	return &All{}
}

func (m *All) Init(d *data.Data) error {
	return nil
}

func (m *All) Reset(d *data.Data, iteration int, rng *rand.Rand) {
}

func (m *All) Sees(user *model.UserState, d *data.Data, piece, sender int) bool {
	return true
}

// Recommended sees a delivery with probability ProbRec when the sender is
// tied to the user through a recommendation, with ProbTrain otherwise.
// Pieces the user already propagated are never seen again.
type Recommended struct {
	ProbRec     float64
	ProbTrain   float64
	Orientation data.Orientation

	rng *rand.Rand
}

func _() Mechanism {
	return &Recommended{}
}

func NewRecommended(probRec, probTrain float64, o data.Orientation) *Recommended {
	return &Recommended{ProbRec: probRec, ProbTrain: probTrain, Orientation: o}
}

func (m *Recommended) Init(d *data.Data) error {
	for _, p := range []float64{m.ProbRec, m.ProbTrain} {
		if p < 0 || p > 1 {
			return fmt.Errorf("probability %v: %w", p, ErrInvalidParams)
		}
	}
	if !d.Graph.Directed() {
		m.Orientation = data.Und
	}
	return nil
}

func (m *Recommended) Reset(d *data.Data, iteration int, rng *rand.Rand) {
	m.rng = rng
}

func (m *Recommended) Sees(user *model.UserState, d *data.Data, piece, sender int) bool {
	if user.HasPropagated(piece) {
		return false
	}
	prob := m.ProbTrain
	if t, ok := d.Graph.Tie(sender, user.User, m.Orientation); ok && t == data.Recommended {
		prob = m.ProbRec
	}
	if prob >= 1 {
		return true
	}
	if prob <= 0 || m.rng == nil {
		return false
	}
	return m.rng.Float64() < prob
}
