package simulation

import (
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"diffusion-sim/model"
)

// Simulation is the ordered record of the iterations of a run
type Simulation struct {
	Iterations []*model.Iteration `msgpack:"iterations"`
}

func NewSimulation() *Simulation {
	return &Simulation{Iterations: make([]*model.Iteration, 0)}
}

func (s *Simulation) Add(it *model.Iteration) {
	s.Iterations = append(s.Iterations, it)
}

func (s *Simulation) Len() int {
	return len(s.Iterations)
}

// Iteration returns the iteration with the given number, or nil
func (s *Simulation) Iteration(number int) *model.Iteration {
	for _, it := range s.Iterations {
		if it.Number == number {
			return it
		}
	}
	return nil
}

// Replay hands every recorded iteration to the observer, in order
func (s *Simulation) Replay(o Observer) error {
	for _, it := range s.Iterations {
		if err := o.Observe(it); err != nil {
			return fmt.Errorf("iteration %d: %w", it.Number, err)
		}
	}
	return nil
}

func (s *Simulation) Write(w io.Writer) error {
	return msgpack.NewEncoder(w).Encode(s)
}

func ReadSimulation(r io.Reader) (*Simulation, error) {
	var s Simulation
	if err := msgpack.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode simulation: %w", err)
	}
	return &s, nil
}

// ReadIterations decodes a stream of iterations written one after another,
// as the iteration logger does. A truncated tail is dropped.
func ReadIterations(r io.Reader) (*Simulation, error) {
	s := NewSimulation()
	dec := msgpack.NewDecoder(r)
	for {
		var it model.Iteration
		err := dec.Decode(&it)
		if errors.Is(err, io.EOF) {
			return s, nil
		}
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return s, nil
			}
			return s, fmt.Errorf("failed to decode iteration %d: %w", s.Len()+1, err)
		}
		s.Add(&it)
	}
}
