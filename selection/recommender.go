package selection

import (
	"fmt"

	"diffusion-sim/data"
	"diffusion-sim/model"
)

// partitionByTie splits the received pieces into those that reached the user
// through at least one recommended tie and the rest. Pieces whose senders are
// not tied to the user, or are not users at all, belong to the rest.
func partitionByTie(d *data.Data, user *model.UserState, o data.Orientation) (recommended, original []*model.ReceivedPiece) {
	for _, r := range user.ReceivedPieces() {
		if recommendedTie(d, r, user.User, o) {
			recommended = append(recommended, r)
		} else {
			original = append(original, r)
		}
	}
	return
}

func recommendedTie(d *data.Data, r *model.ReceivedPiece, user int, o data.Orientation) bool {
	for _, s := range r.SenderIDs() {
		if s < 0 || s >= d.NumUsers() {
			continue
		}
		if t, ok := d.Graph.Tie(s, user, o); ok && t == data.Recommended {
			return true
		}
	}
	return false
}

// Recommender favours pieces that arrived through recommended ties: each of
// the Propagate draws comes from the recommended group with probability Prob,
// from the original group otherwise, falling back on the other group when
// the chosen one is exhausted
type Recommender struct {
	Base
	Counts
	Prob        float64
	Orientation data.Orientation
}

func _() Mechanism {
	return &Recommender{}
}

func NewRecommender(c Counts, prob float64, orientation data.Orientation) *Recommender {
	return &Recommender{Counts: c, Prob: prob, Orientation: orientation}
}

func (m *Recommender) Init(d *data.Data, st *model.SimulationState) error {
	if m.Prob < 0 || m.Prob > 1 {
		return fmt.Errorf("probability %v: %w", m.Prob, ErrInvalidParams)
	}
	if !d.Graph.Directed() && m.Orientation != data.Und {
		m.Orientation = data.Und
	}
	return m.Counts.validate()
}

func (m *Recommender) Select(user *model.UserState, d *data.Data, st *model.SimulationState, step model.Step) model.Selection {
	rec, orig := partitionByTie(d, user, m.Orientation)

	var picked []*model.ReceivedPiece
	total := len(rec) + len(orig)
	n := m.Propagate
	if n == All || n > total {
		n = total
	}
	if n > 0 {
		// shuffle both groups once, then draw heads
		step.Rand.Shuffle(len(rec), func(i, j int) { rec[i], rec[j] = rec[j], rec[i] })
		step.Rand.Shuffle(len(orig), func(i, j int) { orig[i], orig[j] = orig[j], orig[i] })
		picked = make([]*model.ReceivedPiece, 0, n)
		for len(picked) < n {
			fromRec := Bernoulli(step.Rand, m.Prob)
			if len(rec) == 0 {
				fromRec = false
			} else if len(orig) == 0 {
				fromRec = true
			}
			if fromRec {
				picked = append(picked, rec[0])
				rec = rec[1:]
			} else {
				picked = append(picked, orig[0])
				orig = orig[1:]
			}
		}
	}

	return model.Selection{
		Own:          m.own(user, step),
		Received:     receivedInfo(d, picked),
		Repropagated: m.repropagated(d, user, step),
	}
}

// PureRecommender only forwards pieces that arrived through recommended ties
type PureRecommender struct {
	Base
	Counts
	Orientation data.Orientation
}

func _() Mechanism {
	return &PureRecommender{}
}

func NewPureRecommender(c Counts, orientation data.Orientation) *PureRecommender {
	return &PureRecommender{Counts: c, Orientation: orientation}
}

func (m *PureRecommender) Init(d *data.Data, st *model.SimulationState) error {
	if !d.Graph.Directed() && m.Orientation != data.Und {
		m.Orientation = data.Und
	}
	return m.Counts.validate()
}

func (m *PureRecommender) Select(user *model.UserState, d *data.Data, st *model.SimulationState, step model.Step) model.Selection {
	rec, _ := partitionByTie(d, user, m.Orientation)
	return model.Selection{
		Own:          m.own(user, step),
		Received:     m.received(d, rec, step),
		Repropagated: m.repropagated(d, user, step),
	}
}

// BatchRecommender flips a single coin per user and step: with probability
// Prob the forwarded pieces are sampled from the recommended group only,
// otherwise from the original group only
type BatchRecommender struct {
	Base
	Counts
	Prob        float64
	Orientation data.Orientation
}

func _() Mechanism {
	return &BatchRecommender{}
}

func NewBatchRecommender(c Counts, prob float64, orientation data.Orientation) *BatchRecommender {
	return &BatchRecommender{Counts: c, Prob: prob, Orientation: orientation}
}

func (m *BatchRecommender) Init(d *data.Data, st *model.SimulationState) error {
	if m.Prob < 0 || m.Prob > 1 {
		return fmt.Errorf("probability %v: %w", m.Prob, ErrInvalidParams)
	}
	if !d.Graph.Directed() && m.Orientation != data.Und {
		m.Orientation = data.Und
	}
	return m.Counts.validate()
}

func (m *BatchRecommender) Select(user *model.UserState, d *data.Data, st *model.SimulationState, step model.Step) model.Selection {
	rec, orig := partitionByTie(d, user, m.Orientation)
	pool := orig
	if Bernoulli(step.Rand, m.Prob) {
		pool = rec
	}
	return model.Selection{
		Own:          m.own(user, step),
		Received:     m.received(d, pool, step),
		Repropagated: m.repropagated(d, user, step),
	}
}
