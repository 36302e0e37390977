package model

import (
	"maps"
	"slices"
)

// ReceptionResult tells what a delivery did to the receiver
type ReceptionResult int

const (
	// the piece is owned or was already propagated by the receiver
	Ignored ReceptionResult = iota
	NewReception
	Rereception
)

func (r ReceptionResult) String() string {
	switch r {
	case NewReception:
		return "new"
	case Rereception:
		return "rereceived"
	}
	return "ignored"
}

// ReceivedPiece is a piece waiting to be repropagated, with its provenance
type ReceivedPiece struct {
	Piece     int
	Iteration int         // first reception
	Senders   map[int]int // sender -> deliveries
	Arrivals  map[int]int // sender -> iteration of its first delivery
}

// Count returns the number of distinct senders
func (r *ReceivedPiece) Count() int {
	return len(r.Senders)
}

// Deliveries returns the total number of deliveries, repeated senders included
func (r *ReceivedPiece) Deliveries() int {
	n := 0
	for _, c := range r.Senders {
		n += c
	}
	return n
}

// SenderIDs returns the distinct senders, sorted
func (r *ReceivedPiece) SenderIDs() []int {
	return slices.Sorted(maps.Keys(r.Senders))
}

// FreshSenders returns the senders whose first delivery happened at or after iteration, sorted
func (r *ReceivedPiece) FreshSenders(iteration int) []int {
	ret := make([]int, 0, len(r.Arrivals))
	for s, it := range r.Arrivals {
		if it >= iteration {
			ret = append(ret, s)
		}
	}
	slices.Sort(ret)
	return ret
}

// UserState is the diffusion state of one user.
// Selection mechanisms only read it; the simulator mutates it between evaluations.
type UserState struct {
	User int

	own        map[int]int // piece -> iteration released, -1 if not yet
	received   map[int]*ReceivedPiece
	propagated map[int]int // piece -> iteration first propagated
}

// NewUserState creates the state of user u, owning the given pieces
func NewUserState(u int, own []int) *UserState {
	s := &UserState{
		User:       u,
		own:        make(map[int]int, len(own)),
		received:   make(map[int]*ReceivedPiece),
		propagated: make(map[int]int),
	}
	for _, p := range own {
		s.own[p] = -1
	}
	return s
}

// OwnPieces returns the own pieces not yet released, sorted
func (s *UserState) OwnPieces() []int {
	ret := make([]int, 0, len(s.own))
	for p, it := range s.own {
		if it < 0 {
			ret = append(ret, p)
		}
	}
	slices.Sort(ret)
	return ret
}

// NumOwnPieces returns how many own pieces are not yet released
func (s *UserState) NumOwnPieces() int {
	n := 0
	for _, it := range s.own {
		if it < 0 {
			n++
		}
	}
	return n
}

// IsOwn reports whether the user created p
func (s *UserState) IsOwn(p int) bool {
	_, ok := s.own[p]
	return ok
}

// IsOwnPending reports whether p is an own piece not yet released
func (s *UserState) IsOwnPending(p int) bool {
	it, ok := s.own[p]
	return ok && it < 0
}

// ReceivedPieces returns the pieces received and not yet propagated, sorted by piece
func (s *UserState) ReceivedPieces() []*ReceivedPiece {
	ret := make([]*ReceivedPiece, 0, len(s.received))
	for _, p := range slices.Sorted(maps.Keys(s.received)) {
		ret = append(ret, s.received[p])
	}
	return ret
}

func (s *UserState) NumReceivedPieces() int {
	return len(s.received)
}

// Received returns the pending received piece p
func (s *UserState) Received(p int) (*ReceivedPiece, bool) {
	r, ok := s.received[p]
	return r, ok
}

// PropagatedPieces returns the pieces already propagated, own released pieces included, sorted
func (s *UserState) PropagatedPieces() []int {
	return slices.Sorted(maps.Keys(s.propagated))
}

func (s *UserState) NumPropagatedPieces() int {
	return len(s.propagated)
}

// PropagatedAt returns the iteration in which p was first transmitted by the user
func (s *UserState) PropagatedAt(p int) (int, bool) {
	it, ok := s.propagated[p]
	return it, ok
}

// HasPropagated reports whether p was already transmitted by the user
func (s *UserState) HasPropagated(p int) bool {
	_, ok := s.propagated[p]
	return ok
}

// HasSeen reports whether the user owns, holds or propagated p
func (s *UserState) HasSeen(p int) bool {
	if s.IsOwn(p) || s.HasPropagated(p) {
		return true
	}
	_, ok := s.received[p]
	return ok
}

// Receive delivers p from sender. The received count only grows when the sender is new.
func (s *UserState) Receive(p, sender, iteration int) ReceptionResult {
	if s.IsOwn(p) || s.HasPropagated(p) {
		return Ignored
	}
	if r, ok := s.received[p]; ok {
		if _, known := r.Senders[sender]; !known {
			r.Arrivals[sender] = iteration
		}
		r.Senders[sender]++
		return Rereception
	}
	s.received[p] = &ReceivedPiece{
		Piece:     p,
		Iteration: iteration,
		Senders:   map[int]int{sender: 1},
		Arrivals:  map[int]int{sender: iteration},
	}
	return NewReception
}

// ReleaseOwn marks an own piece as transmitted
func (s *UserState) ReleaseOwn(p, iteration int) bool {
	if !s.IsOwnPending(p) {
		return false
	}
	s.own[p] = iteration
	s.propagated[p] = iteration
	return true
}

// Propagate moves a received piece to the propagated set
func (s *UserState) Propagate(p, iteration int) bool {
	if _, ok := s.received[p]; !ok {
		return false
	}
	delete(s.received, p)
	s.propagated[p] = iteration
	return true
}
