package model

import "math/rand/v2"

// PropagatedInformation is a piece moved by a selection
type PropagatedInformation struct {
	Piece     int `msgpack:"p"`
	Iteration int `msgpack:"i"` // when the holder got it
	Creator   int `msgpack:"c"`
}

// Selection is what one user transmits in one iteration
type Selection struct {
	Own          []PropagatedInformation
	Received     []PropagatedInformation
	Repropagated []PropagatedInformation
}

// Len returns the number of pieces in the selection
func (s *Selection) Len() int {
	return len(s.Own) + len(s.Received) + len(s.Repropagated)
}

func (s *Selection) Empty() bool {
	return s.Len() == 0
}

// Pieces returns every selected piece id, own pieces first
func (s *Selection) Pieces() []int {
	ret := make([]int, 0, s.Len())
	for _, group := range [][]PropagatedInformation{s.Own, s.Received, s.Repropagated} {
		for _, info := range group {
			ret = append(ret, info.Piece)
		}
	}
	return ret
}

// Step carries what a selection mechanism knows about the current iteration
type Step struct {
	Iteration int
	Timestamp int64
	// Rand is private to one (iteration, user) evaluation
	Rand *rand.Rand
}
