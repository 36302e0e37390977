package selection

import (
	"fmt"

	"diffusion-sim/data"
	"diffusion-sim/model"
)

func realPool(d *data.Data, user *model.UserState) []*model.ReceivedPiece {
	pool := make([]*model.ReceivedPiece, 0)
	for _, r := range user.ReceivedPieces() {
		if d.IsRealPropagated(user.User, r.Piece) {
			pool = append(pool, r)
		}
	}
	return pool
}

func requireRealPropagation(d *data.Data) error {
	if !d.HasRealPropagation() {
		return fmt.Errorf("no real propagation data: %w", ErrUnsupported)
	}
	return nil
}

// CountRealPropagated samples Propagate received pieces among those the
// user really repropagated
type CountRealPropagated struct {
	Base
	Counts
}

func _() Mechanism {
	return &CountRealPropagated{}
}

func NewCountRealPropagated(c Counts) *CountRealPropagated {
	return &CountRealPropagated{Counts: c}
}

func (m *CountRealPropagated) Init(d *data.Data, st *model.SimulationState) error {
	if err := requireRealPropagation(d); err != nil {
		return err
	}
	return m.Counts.validate()
}

func (m *CountRealPropagated) Select(user *model.UserState, d *data.Data, st *model.SimulationState, step model.Step) model.Selection {
	return model.Selection{
		Own:          m.own(user, step),
		Received:     m.received(d, realPool(d, user), step),
		Repropagated: m.repropagated(d, user, step),
	}
}

// AllRealPropagated forwards every received piece the user really repropagated
type AllRealPropagated struct {
	Base
	Own         int
	Repropagate int
}

func _() Mechanism {
	return &AllRealPropagated{}
}

func NewAllRealPropagated(numOwn, numRepropagate int) *AllRealPropagated {
	return &AllRealPropagated{Own: numOwn, Repropagate: numRepropagate}
}

func (m *AllRealPropagated) counts() Counts {
	return Counts{Own: m.Own, Repropagate: m.Repropagate}
}

func (m *AllRealPropagated) Init(d *data.Data, st *model.SimulationState) error {
	if err := requireRealPropagation(d); err != nil {
		return err
	}
	return m.counts().validate()
}

func (m *AllRealPropagated) Select(user *model.UserState, d *data.Data, st *model.SimulationState, step model.Step) model.Selection {
	c := m.counts()
	return model.Selection{
		Own:          c.own(user, step),
		Received:     receivedInfo(d, realPool(d, user)),
		Repropagated: c.repropagated(d, user, step),
	}
}
