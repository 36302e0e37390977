package model

import (
	"diffusion-sim/data"
)

// SimulationState is the global state shared by every selection mechanism.
// Users are stored densely by id.
type SimulationState struct {
	Users     []*UserState
	Iteration int
	Timestamp int64
}

// NewSimulationState seeds every user with the pieces it created
func NewSimulationState(d *data.Data) *SimulationState {
	users := make([]*UserState, d.NumUsers())
	for u := range users {
		users[u] = NewUserState(u, d.PiecesOf(u))
	}
	return &SimulationState{
		Users:     users,
		Iteration: 0,
		Timestamp: d.FirstTimestamp(),
	}
}

// User returns the state of user u, or nil
func (s *SimulationState) User(u int) *UserState {
	if u < 0 || u >= len(s.Users) {
		return nil
	}
	return s.Users[u]
}

// NumUsers returns the number of users
func (s *SimulationState) NumUsers() int {
	return len(s.Users)
}

// Holders returns the users currently holding p, either pending or propagated
func (s *SimulationState) Holders(p int) []int {
	ret := make([]int, 0)
	for u, us := range s.Users {
		if _, ok := us.Received(p); ok || us.HasPropagated(p) || us.IsOwnPending(p) {
			ret = append(ret, u)
		}
	}
	return ret
}
