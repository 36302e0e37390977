package selection

import (
	"fmt"

	"diffusion-sim/data"
	"diffusion-sim/model"
)

// IndependentCascade gives every sender one chance to activate the user:
// a received piece is forwarded if any sender that reached the user since
// the previous step succeeds with probability Prob
type IndependentCascade struct {
	Base
	Own         int
	Repropagate int
	Prob        float64
}

func _() Mechanism {
	return &IndependentCascade{}
}

func NewIndependentCascade(numOwn int, prob float64, numRepropagate int) *IndependentCascade {
	return &IndependentCascade{Own: numOwn, Prob: prob, Repropagate: numRepropagate}
}

func (m *IndependentCascade) counts() Counts {
	return Counts{Own: m.Own, Repropagate: m.Repropagate}
}

func (m *IndependentCascade) Init(d *data.Data, st *model.SimulationState) error {
	if m.Prob < 0 || m.Prob > 1 {
		return fmt.Errorf("probability %v: %w", m.Prob, ErrInvalidParams)
	}
	return m.counts().validate()
}

func (m *IndependentCascade) Select(user *model.UserState, d *data.Data, st *model.SimulationState, step model.Step) model.Selection {
	pool := make([]*model.ReceivedPiece, 0)
	for _, r := range user.ReceivedPieces() {
		for range r.FreshSenders(step.Iteration - 1) {
			if Bernoulli(step.Rand, m.Prob) {
				pool = append(pool, r)
				break
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

// EdgeWeightCascade is an independent cascade where each sender succeeds
// with the weight of its tie to the user as probability.
// With In orientation the tie is sender -> user, with Out it is user -> sender,
// with Und both directions are summed.
type EdgeWeightCascade struct {
	Base
	Own         int
	Repropagate int
	Orientation data.Orientation
}

func _() Mechanism {
	return &EdgeWeightCascade{}
}

func NewEdgeWeightCascade(numOwn, numRepropagate int, orientation data.Orientation) *EdgeWeightCascade {
	return &EdgeWeightCascade{Own: numOwn, Repropagate: numRepropagate, Orientation: orientation}
}

func (m *EdgeWeightCascade) counts() Counts {
	return Counts{Own: m.Own, Repropagate: m.Repropagate}
}

func (m *EdgeWeightCascade) Init(d *data.Data, st *model.SimulationState) error {
	if !d.Graph.Directed() && m.Orientation != data.Und {
		return fmt.Errorf("%v orientation on an undirected graph: %w", m.Orientation, ErrUnsupported)
	}
	return m.counts().validate()
}

func (m *EdgeWeightCascade) weight(d *data.Data, sender, user int) float64 {
	g := d.Graph
	if !g.Directed() {
		return g.EdgeWeight(sender, user)
	}
	switch m.Orientation {
	case data.In:
		return g.EdgeWeight(sender, user)
	case data.Out:
		return g.EdgeWeight(user, sender)
	}
	return g.EdgeWeight(sender, user) + g.EdgeWeight(user, sender)
}

func (m *EdgeWeightCascade) Select(user *model.UserState, d *data.Data, st *model.SimulationState, step model.Step) model.Selection {
	pool := make([]*model.ReceivedPiece, 0)
	for _, r := range user.ReceivedPieces() {
		for _, s := range r.FreshSenders(step.Iteration - 1) {
			if s < 0 || s >= d.NumUsers() {
				continue
			}
			if Bernoulli(step.Rand, m.weight(d, s, user.User)) {
				pool = append(pool, r)
				break
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
