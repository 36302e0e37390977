package selection

import (
	"diffusion-sim/data"
	"diffusion-sim/model"
)

// Count transmits up to Own own pieces, Propagate received pieces and
// Repropagate already transmitted pieces, chosen uniformly at random
type Count struct {
	Base
	Counts
}

func _() Mechanism {
	return &Count{}
}

func NewCount(c Counts) *Count {
	return &Count{Counts: c}
}

func (m *Count) Init(d *data.Data, st *model.SimulationState) error {
	return m.Counts.validate()
}

func (m *Count) Select(user *model.UserState, d *data.Data, st *model.SimulationState, step model.Step) model.Selection {
	return model.Selection{
		Own:          m.own(user, step),
		Received:     m.received(d, user.ReceivedPieces(), step),
		Repropagated: m.repropagated(d, user, step),
	}
}
