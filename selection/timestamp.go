package selection

import (
	"fmt"
	"maps"
	"slices"

	"github.com/vmihailenco/msgpack/v5"

	"diffusion-sim/data"
	"diffusion-sim/model"
)

func requireTimestamps(d *data.Data) error {
	if !d.HasRealPropagation() && len(d.Timestamps()) <= 1 {
		return fmt.Errorf("no timestamps in data: %w", ErrUnsupported)
	}
	return nil
}

// timestampUsers returns the users that created or really repropagated something at ts
func timestampUsers(d *data.Data, ts int64) []int {
	users := append(slices.Clone(d.UsersCreatingAt(ts)), d.UsersRealPropagatingAt(ts)...)
	slices.Sort(users)
	return slices.Compact(users)
}

// ownAt returns the pending own pieces the user created at ts
func ownAt(user *model.UserState, d *data.Data, step model.Step) []model.PropagatedInformation {
	pieces := make([]int, 0)
	for _, p := range d.PiecesCreatedAt(step.Timestamp, user.User) {
		if user.IsOwnPending(p) {
			pieces = append(pieces, p)
		}
	}
	return ownInfo(user, pieces, step)
}

// Replaying is implemented by mechanisms that act on the recorded timeline.
// A step in which nobody transmits does not end their run while timestamps
// remain.
type Replaying interface {
	ReplaysTimestamps() bool
}

// Timestamp replays the recorded history: own pieces are released at their
// creation timestamp, received pieces at the timestamp the user really
// repropagated them. Pieces due before they arrive are never forwarded.
type Timestamp struct {
	Base
}

func _() Mechanism {
	return &Timestamp{}
}

func _() Replaying {
	return &Timestamp{}
}

func NewTimestamp() *Timestamp {
	return &Timestamp{}
}

func (m *Timestamp) ReplaysTimestamps() bool {
	return true
}

func (m *Timestamp) Init(d *data.Data, st *model.SimulationState) error {
	return requireTimestamps(d)
}

func (m *Timestamp) SelectableUsers(d *data.Data, st *model.SimulationState, step model.Step) []int {
	return timestampUsers(d, step.Timestamp)
}

func (m *Timestamp) Select(user *model.UserState, d *data.Data, st *model.SimulationState, step model.Step) model.Selection {
	received := make([]*model.ReceivedPiece, 0)
	for _, p := range d.RealPropagatedAt(step.Timestamp, user.User) {
		if r, ok := user.Received(p); ok {
			received = append(received, r)
		}
	}
	return model.Selection{
		Own:      ownAt(user, d, step),
		Received: receivedInfo(d, received),
	}
}

// LooseTimestamp behaves like Timestamp, but a piece that is due before the
// user has received it is kept pending and forwarded as soon as it arrives
type LooseTimestamp struct {
	Base
	// user -> pieces due but not yet received
	pending []map[int]bool
}

func _() Mechanism {
	return &LooseTimestamp{}
}

func _() Replaying {
	return &LooseTimestamp{}
}

func NewLooseTimestamp() *LooseTimestamp {
	return &LooseTimestamp{}
}

func (m *LooseTimestamp) ReplaysTimestamps() bool {
	return true
}

func (m *LooseTimestamp) Init(d *data.Data, st *model.SimulationState) error {
	if err := requireTimestamps(d); err != nil {
		return err
	}
	if m.pending == nil {
		m.pending = make([]map[int]bool, d.NumUsers())
		for i := range m.pending {
			m.pending[i] = make(map[int]bool)
		}
	}
	return nil
}

// Pending returns the pieces user u is waiting for, sorted
func (m *LooseTimestamp) Pending(u int) []int {
	if u < 0 || u >= len(m.pending) {
		return nil
	}
	return slices.Sorted(maps.Keys(m.pending[u]))
}

func (m *LooseTimestamp) SelectableUsers(d *data.Data, st *model.SimulationState, step model.Step) []int {
	users := timestampUsers(d, step.Timestamp)
	for u, pend := range m.pending {
		if len(pend) > 0 {
			users = append(users, u)
		}
	}
	slices.Sort(users)
	return slices.Compact(users)
}

// Select only writes the pending set of its own user
func (m *LooseTimestamp) Select(user *model.UserState, d *data.Data, st *model.SimulationState, step model.Step) model.Selection {
	pend := m.pending[user.User]
	for _, p := range d.RealPropagatedAt(step.Timestamp, user.User) {
		// own pieces are released by ownAt and can never be received
		if !user.IsOwn(p) && !user.HasPropagated(p) {
			pend[p] = true
		}
	}

	received := make([]*model.ReceivedPiece, 0)
	for _, p := range slices.Sorted(maps.Keys(pend)) {
		if r, ok := user.Received(p); ok {
			received = append(received, r)
			delete(pend, p)
		} else if user.IsOwn(p) || user.HasPropagated(p) {
			delete(pend, p)
		}
	}
	return model.Selection{
		Own:      ownAt(user, d, step),
		Received: receivedInfo(d, received),
	}
}

func (m *LooseTimestamp) Dump() []byte {
	dump := make(map[int][]int)
	for u := range m.pending {
		if ps := m.Pending(u); len(ps) > 0 {
			dump[u] = ps
		}
	}
	ret, err := msgpack.Marshal(dump)
	if err != nil {
		return nil
	}
	return ret
}

// Restore must be called after Init
func (m *LooseTimestamp) Restore(dump []byte) error {
	if dump == nil {
		return nil
	}
	var pending map[int][]int
	if err := msgpack.Unmarshal(dump, &pending); err != nil {
		return fmt.Errorf("failed to restore pending pieces: %w", err)
	}
	for u, ps := range pending {
		if u < 0 || u >= len(m.pending) {
			return fmt.Errorf("pending pieces of unknown user %d: %w", u, ErrInvalidParams)
		}
		for _, p := range ps {
			m.pending[u][p] = true
		}
	}
	return nil
}
