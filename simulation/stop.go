package simulation

import (
	"fmt"
	"strings"

	"diffusion-sim/data"
	"diffusion-sim/model"
	"diffusion-sim/selection"
)

// StopCondition is checked after every committed iteration
type StopCondition interface {
	Done(s *Simulator, it *model.Iteration) bool
}

type StopFunc func(s *Simulator, it *model.Iteration) bool

func (f StopFunc) Done(s *Simulator, it *model.Iteration) bool {
	return f(s, it)
}

// MaxIterations stops after n iterations
func MaxIterations(n int) StopCondition {
	return StopFunc(func(s *Simulator, it *model.Iteration) bool {
		return it.Number >= n
	})
}

// NoSelectableUsers stops once an iteration had nobody to act
func NoSelectableUsers() StopCondition {
	return StopFunc(func(s *Simulator, it *model.Iteration) bool {
		return s.lastSelectable == 0
	})
}

// NoPropagation stops once an iteration transmitted nothing. Mechanisms
// replaying the recorded timeline keep going until the timestamps run out.
func NoPropagation() StopCondition {
	return StopFunc(func(s *Simulator, it *model.Iteration) bool {
		if it.NumPropagated() > 0 {
			return false
		}
		if r, ok := s.Selection.(selection.Replaying); ok && r.ReplaysTimestamps() {
			return s.st.Timestamp == data.EndOfTime
		}
		return true
	})
}

// TimestampsExhausted stops after the last recorded timestamp was simulated
func TimestampsExhausted() StopCondition {
	return StopFunc(func(s *Simulator, it *model.Iteration) bool {
		return s.st.Timestamp == data.EndOfTime
	})
}

// AnyOf stops as soon as one of the conditions holds
func AnyOf(conds ...StopCondition) StopCondition {
	return StopFunc(func(s *Simulator, it *model.Iteration) bool {
		for _, c := range conds {
			if c.Done(s, it) {
				return true
			}
		}
		return false
	})
}

// StopParams names the stop conditions of a scenario; every set field
// is combined with AnyOf
type StopParams struct {
	MaxIterations       int  `json:"maxIterations"`
	NoSelectableUsers   bool `json:"noSelectableUsers"`
	NoPropagation       bool `json:"noPropagation"`
	TimestampsExhausted bool `json:"timestampsExhausted"`
}

func (p StopParams) Build() (StopCondition, error) {
	conds := make([]StopCondition, 0)
	if p.MaxIterations < 0 {
		return nil, fmt.Errorf("negative max iterations %d", p.MaxIterations)
	}
	if p.MaxIterations > 0 {
		conds = append(conds, MaxIterations(p.MaxIterations))
	}
	if p.NoSelectableUsers {
		conds = append(conds, NoSelectableUsers())
	}
	if p.NoPropagation {
		conds = append(conds, NoPropagation())
	}
	if p.TimestampsExhausted {
		conds = append(conds, TimestampsExhausted())
	}
	if len(conds) == 0 {
		return nil, fmt.Errorf("no stop condition")
	}
	return AnyOf(conds...), nil
}

func (p StopParams) String() string {
	parts := make([]string, 0)
	if p.MaxIterations > 0 {
		parts = append(parts, fmt.Sprintf("max %d iterations", p.MaxIterations))
	}
	if p.NoSelectableUsers {
		parts = append(parts, "no selectable users")
	}
	if p.NoPropagation {
		parts = append(parts, "no propagation")
	}
	if p.TimestampsExhausted {
		parts = append(parts, "timestamps exhausted")
	}
	return strings.Join(parts, " | ")
}
