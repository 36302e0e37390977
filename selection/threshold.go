package selection

import (
	"fmt"

	"diffusion-sim/data"
	"diffusion-sim/model"
)

// Threshold forwards every received piece once it has come from at least
// Threshold distinct neighbours
type Threshold struct {
	Base
	Own         int
	Repropagate int
	Threshold   int
}

func _() Mechanism {
	return &Threshold{}
}

func NewThreshold(numOwn, threshold, numRepropagate int) *Threshold {
	return &Threshold{Own: numOwn, Threshold: threshold, Repropagate: numRepropagate}
}

func (m *Threshold) counts() Counts {
	return Counts{Own: m.Own, Repropagate: m.Repropagate}
}

func (m *Threshold) Init(d *data.Data, st *model.SimulationState) error {
	if m.Threshold < 1 {
		return fmt.Errorf("threshold %d: %w", m.Threshold, ErrInvalidParams)
	}
	return m.counts().validate()
}

func (m *Threshold) Select(user *model.UserState, d *data.Data, st *model.SimulationState, step model.Step) model.Selection {
	pool := make([]*model.ReceivedPiece, 0)
	for _, r := range user.ReceivedPieces() {
		if r.Count() >= m.Threshold {
			pool = append(pool, r)
		}
	}
	c := m.counts()
	return model.Selection{
		Own:          c.own(user, step),
		Received:     receivedInfo(d, pool),
		Repropagated: c.repropagated(d, user, step),
	}
}

// DegreeThreshold forwards a received piece once the fraction of the user's
// neighbourhood that sent it reaches Threshold
type DegreeThreshold struct {
	Base
	Own         int
	Repropagate int
	Threshold   float64
	Orientation data.Orientation
}

func _() Mechanism {
	return &DegreeThreshold{}
}

// NewDegreeThreshold counts senders against the In neighbourhood, the users
// whose transmissions reach the user under out-neighbour propagation
func NewDegreeThreshold(numOwn int, threshold float64, numRepropagate int) *DegreeThreshold {
	return &DegreeThreshold{Own: numOwn, Threshold: threshold, Repropagate: numRepropagate, Orientation: data.In}
}

func (m *DegreeThreshold) counts() Counts {
	return Counts{Own: m.Own, Repropagate: m.Repropagate}
}

func (m *DegreeThreshold) Init(d *data.Data, st *model.SimulationState) error {
	if m.Threshold <= 0 || m.Threshold > 1 {
		return fmt.Errorf("degree threshold %v: %w", m.Threshold, ErrInvalidParams)
	}
	return m.counts().validate()
}

func (m *DegreeThreshold) Select(user *model.UserState, d *data.Data, st *model.SimulationState, step model.Step) model.Selection {
	pool := make([]*model.ReceivedPiece, 0)
	degree := d.Graph.NeighborsCount(user.User, m.Orientation)
	if degree > 0 {
		for _, r := range user.ReceivedPieces() {
			if float64(r.Count())/float64(degree) >= m.Threshold {
				pool = append(pool, r)
			}
		}
	}
	c := m.counts()
	return model.Selection{
		Own:          c.own(user, step),
		Received:     receivedInfo(d, pool),
		Repropagated: c.repropagated(d, user, step),
	}
}
