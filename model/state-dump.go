package model

import (
	"fmt"
	"maps"
	"slices"

	"diffusion-sim/data"
)

type ReceivedPieceDump struct {
	Piece     int         `msgpack:"p"`
	Iteration int         `msgpack:"i"`
	Senders   map[int]int `msgpack:"s"`
	Arrivals  map[int]int `msgpack:"a"`
}

type UserStateDump struct {
	User       int                 `msgpack:"u"`
	Own        map[int]int         `msgpack:"o"`
	Received   []ReceivedPieceDump `msgpack:"r"`
	Propagated map[int]int         `msgpack:"pr"`
}

// StateDump is a msgpack friendly snapshot of a SimulationState
type StateDump struct {
	Iteration int             `msgpack:"iteration"`
	Timestamp int64           `msgpack:"timestamp"`
	Users     []UserStateDump `msgpack:"users"`
}

func (s *UserState) Dump() UserStateDump {
	ret := UserStateDump{
		User:       s.User,
		Own:        maps.Clone(s.own),
		Received:   make([]ReceivedPieceDump, 0, len(s.received)),
		Propagated: maps.Clone(s.propagated),
	}
	for _, p := range slices.Sorted(maps.Keys(s.received)) {
		r := s.received[p]
		ret.Received = append(ret.Received, ReceivedPieceDump{
			Piece:     r.Piece,
			Iteration: r.Iteration,
			Senders:   maps.Clone(r.Senders),
			Arrivals:  maps.Clone(r.Arrivals),
		})
	}
	return ret
}

// LoadUserState rebuilds a user state from its dump
func LoadUserState(d UserStateDump) *UserState {
	s := &UserState{
		User:       d.User,
		own:        maps.Clone(d.Own),
		received:   make(map[int]*ReceivedPiece, len(d.Received)),
		propagated: maps.Clone(d.Propagated),
	}
	if s.own == nil {
		s.own = make(map[int]int)
	}
	if s.propagated == nil {
		s.propagated = make(map[int]int)
	}
	for _, r := range d.Received {
		senders, arrivals := maps.Clone(r.Senders), maps.Clone(r.Arrivals)
		if senders == nil {
			senders = make(map[int]int)
		}
		if arrivals == nil {
			arrivals = make(map[int]int)
		}
		s.received[r.Piece] = &ReceivedPiece{
			Piece:     r.Piece,
			Iteration: r.Iteration,
			Senders:   senders,
			Arrivals:  arrivals,
		}
	}
	return s
}

func (s *SimulationState) Dump() *StateDump {
	ret := &StateDump{
		Iteration: s.Iteration,
		Timestamp: s.Timestamp,
		Users:     make([]UserStateDump, len(s.Users)),
	}
	for i, u := range s.Users {
		ret.Users[i] = u.Dump()
	}
	return ret
}

// Load rebuilds the simulation state, checking it against the data it was dumped from
func (d *StateDump) Load(dt *data.Data) (*SimulationState, error) {
	if len(d.Users) != dt.NumUsers() {
		return nil, fmt.Errorf("dump has %d users, data has %d: %w", len(d.Users), dt.NumUsers(), data.ErrIndexMismatch)
	}
	s := &SimulationState{
		Users:     make([]*UserState, len(d.Users)),
		Iteration: d.Iteration,
		Timestamp: d.Timestamp,
	}
	for i, ud := range d.Users {
		if ud.User != i {
			return nil, fmt.Errorf("user dump %d holds user %d: %w", i, ud.User, data.ErrIndexMismatch)
		}
		for p := range ud.Own {
			if dt.Creator(p) != i {
				return nil, fmt.Errorf("user %d owns piece %d it did not create: %w", i, p, data.ErrIndexMismatch)
			}
		}
		s.Users[i] = LoadUserState(ud)
	}
	return s, nil
}
