package selection

import (
	"errors"

	"diffusion-sim/data"
	"diffusion-sim/model"
)

// Sentinel counts
const (
	All  = -1
	None = 0
)

var (
	ErrInvalidParams = errors.New("invalid selection parameters")
	ErrUnsupported   = errors.New("unsupported configuration")
)

// Mechanism decides which pieces each user transmits in an iteration.
//
// Select is called concurrently for distinct users within one iteration and
// must only read shared state. Per-user state may be kept in dense slices
// indexed by user id.
type Mechanism interface {
	// Init is called once the simulation state exists, before the first step
	Init(d *data.Data, st *model.SimulationState) error

	// SelectableUsers returns the users allowed to act, sorted
	SelectableUsers(d *data.Data, st *model.SimulationState, step model.Step) []int

	// Select returns what the user transmits in this step
	Select(user *model.UserState, d *data.Data, st *model.SimulationState, step model.Step) model.Selection

	// PostStep is called sequentially after the iteration is committed
	PostStep(d *data.Data, st *model.SimulationState, it *model.Iteration)

	// Dump returns internal state for snapshots
	Dump() []byte

	// Restore loads the output of Dump; nil means nothing to restore
	Restore(dump []byte) error
}

// Base provides default empty methods
type Base struct{}

// for type check
func _() Mechanism {
	return &struct{ Base }{}
}

func (b *Base) Init(d *data.Data, st *model.SimulationState) error {
	return nil
}

// SelectableUsers returns every user
func (b *Base) SelectableUsers(d *data.Data, st *model.SimulationState, step model.Step) []int {
	ret := make([]int, st.NumUsers())
	for i := range ret {
		ret[i] = i
	}
	return ret
}

func (b *Base) Select(user *model.UserState, d *data.Data, st *model.SimulationState, step model.Step) model.Selection {
	return model.Selection{}
}

func (b *Base) PostStep(d *data.Data, st *model.SimulationState, it *model.Iteration) {
}

func (b *Base) Dump() []byte {
	return nil
}

func (b *Base) Restore(dump []byte) error {
	return nil
}

// Counts is the count-based behaviour shared by most mechanisms
type Counts struct {
	Own         int `json:"numOwn"`
	Propagate   int `json:"numPropagate"`
	Repropagate int `json:"numRepropagate"`
}

func (c Counts) validate() error {
	if c.Own < All || c.Propagate < All || c.Repropagate < All {
		return ErrInvalidParams
	}
	return nil
}

// own samples the own pieces to release
func (c Counts) own(user *model.UserState, step model.Step) []model.PropagatedInformation {
	picked := Sample(step.Rand, user.OwnPieces(), c.Own)
	return ownInfo(user, picked, step)
}

// received samples among the given received pieces
func (c Counts) received(d *data.Data, pool []*model.ReceivedPiece, step model.Step) []model.PropagatedInformation {
	picked := Sample(step.Rand, pool, c.Propagate)
	return receivedInfo(d, picked)
}

// repropagated samples among the pieces already transmitted
func (c Counts) repropagated(d *data.Data, user *model.UserState, step model.Step) []model.PropagatedInformation {
	if c.Repropagate == None {
		return nil
	}
	picked := Sample(step.Rand, user.PropagatedPieces(), c.Repropagate)
	ret := make([]model.PropagatedInformation, 0, len(picked))
	for _, p := range picked {
		it, _ := user.PropagatedAt(p)
		ret = append(ret, model.PropagatedInformation{Piece: p, Iteration: it, Creator: d.Creator(p)})
	}
	return ret
}

func ownInfo(user *model.UserState, pieces []int, step model.Step) []model.PropagatedInformation {
	if len(pieces) == 0 {
		return nil
	}
	ret := make([]model.PropagatedInformation, 0, len(pieces))
	for _, p := range pieces {
		ret = append(ret, model.PropagatedInformation{Piece: p, Iteration: step.Iteration, Creator: user.User})
	}
	return ret
}

func receivedInfo(d *data.Data, pieces []*model.ReceivedPiece) []model.PropagatedInformation {
	if len(pieces) == 0 {
		return nil
	}
	ret := make([]model.PropagatedInformation, 0, len(pieces))
	for _, r := range pieces {
		ret = append(ret, model.PropagatedInformation{Piece: r.Piece, Iteration: r.Iteration, Creator: d.Creator(r.Piece)})
	}
	return ret
}
