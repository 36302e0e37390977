package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"

	"diffusion-sim/data"
	"diffusion-sim/model"
	"diffusion-sim/propagation"
	"diffusion-sim/selection"
	"diffusion-sim/sight"
)

var (
	ErrInvalidSelection = errors.New("invalid selection")
	ErrNotInitialized   = errors.New("simulator not initialized")
	ErrTerminated       = errors.New("simulation terminated")
	ErrUnsupported      = selection.ErrUnsupported
)

// State is the lifecycle of a Simulator
type State int

const (
	Created State = iota
	Initialized
	Running
	Terminated
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Observer consumes every committed iteration, in order
type Observer interface {
	Observe(it *model.Iteration) error
}

type ObserverFunc func(it *model.Iteration) error

func (f ObserverFunc) Observe(it *model.Iteration) error {
	return f(it)
}

type SimulatorOptions struct {
	Seed uint64
	// Workers bounds the concurrent Select calls; <= 0 means GOMAXPROCS
	Workers int
	Log     *slog.Logger
}

// Simulator runs the iteration loop: every selectable user picks what to
// transmit in parallel, then the selections are committed one user at a time
// in ascending id order.
type Simulator struct {
	Selection   selection.Mechanism
	Propagation propagation.Mechanism
	Sight       sight.Mechanism
	Stop        StopCondition

	opts SimulatorOptions
	log  *slog.Logger

	d     *data.Data
	st    *model.SimulationState
	state State

	lastSelectable int
}

// NewSimulator creates a simulator. A nil propagation mechanism reaches every
// out-neighbour, a nil stop condition stops once nothing is propagated.
// Every delivery is seen unless Sight is replaced before initialization.
func NewSimulator(sel selection.Mechanism, prop propagation.Mechanism, stop StopCondition, opts SimulatorOptions) *Simulator {
	if prop == nil {
		prop = propagation.NewAllNeighbors(data.Out)
	}
	if stop == nil {
		stop = NoPropagation()
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Simulator{
		Selection:   sel,
		Propagation: prop,
		Sight:       sight.NewAll(),
		Stop:        stop,
		opts:        opts,
		log:         log,
	}
}

func (s *Simulator) State() State { return s.state }

func (s *Simulator) Data() *data.Data { return s.d }

func (s *Simulator) SimulationState() *model.SimulationState { return s.st }

// Initialize seeds a fresh simulation state from d
func (s *Simulator) Initialize(d *data.Data) error {
	if d == nil {
		return fmt.Errorf("nil data: %w", ErrNotInitialized)
	}
	return s.start(d, model.NewSimulationState(d), nil)
}

// Resume continues from a snapshot. selectionDump is the output of the
// selection mechanism's Dump, or nil.
func (s *Simulator) Resume(d *data.Data, dump *model.StateDump, selectionDump []byte) error {
	if d == nil || dump == nil {
		return fmt.Errorf("nothing to resume: %w", ErrNotInitialized)
	}
	st, err := dump.Load(d)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	return s.start(d, st, selectionDump)
}

func (s *Simulator) start(d *data.Data, st *model.SimulationState, selectionDump []byte) error {
	if s.Selection == nil {
		return fmt.Errorf("no selection mechanism: %w", ErrNotInitialized)
	}
	if s.Sight == nil {
		s.Sight = sight.NewAll()
	}
	if err := s.Sight.Init(d); err != nil {
		return fmt.Errorf("failed to initialize sight mechanism: %w", err)
	}
	if err := s.Selection.Init(d, st); err != nil {
		return fmt.Errorf("failed to initialize selection mechanism: %w", err)
	}
	if selectionDump != nil {
		if err := s.Selection.Restore(selectionDump); err != nil {
			return fmt.Errorf("failed to restore selection mechanism: %w", err)
		}
	}
	s.d = d
	s.st = st
	s.state = Initialized
	s.lastSelectable = -1
	return nil
}

// rand returns the generator of one (iteration, user) evaluation; users -1,
// -2 and -3 are the selectable users, the propagation and the sight draws
func (s *Simulator) rand(iteration, user int) *rand.Rand {
	return rand.New(rand.NewPCG(s.opts.Seed, uint64(iteration)<<32|uint64(uint32(user))))
}

// validate checks a selection against the state of the user that produced it
func validate(d *data.Data, user *model.UserState, sel model.Selection) error {
	seen := make(map[int]bool, sel.Len())
	check := func(kind string, infos []model.PropagatedInformation, ok func(p int) bool) error {
		for _, info := range infos {
			p := info.Piece
			if p < 0 || p >= d.NumPieces() || seen[p] || !ok(p) {
				return fmt.Errorf("user %d: %s piece %d: %w", user.User, kind, p, ErrInvalidSelection)
			}
			seen[p] = true
		}
		return nil
	}
	if err := check("own", sel.Own, user.IsOwnPending); err != nil {
		return err
	}
	received := func(p int) bool {
		_, ok := user.Received(p)
		return ok
	}
	if err := check("received", sel.Received, received); err != nil {
		return err
	}
	return check("repropagated", sel.Repropagated, user.HasPropagated)
}

// evaluate calls Select for every user in parallel. A panicking mechanism is
// reported as an invalid selection.
func (s *Simulator) evaluate(ctx context.Context, users []int, iteration int, ts int64) ([]model.Selection, error) {
	for _, u := range users {
		if u < 0 || u >= s.st.NumUsers() {
			return nil, fmt.Errorf("selectable user %d out of range: %w", u, ErrInvalidSelection)
		}
	}
	selections := make([]model.Selection, len(users))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, u := range users {
		g.Go(func() (err error) {
			if err := ctx.Err(); err != nil {
				return err
			}
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("user %d: selection panicked: %v: %w", u, r, ErrInvalidSelection)
				}
			}()
			user := s.st.Users[u]
			step := model.Step{Iteration: iteration, Timestamp: ts, Rand: s.rand(iteration, u)}
			sel := s.Selection.Select(user, s.d, s.st, step)
			if err := validate(s.d, user, sel); err != nil {
				return err
			}
			selections[i] = sel
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return selections, nil
}

// Step runs one iteration and returns it. Invalid selections abort the run.
func (s *Simulator) Step(ctx context.Context) (*model.Iteration, error) {
	switch s.state {
	case Created:
		return nil, ErrNotInitialized
	case Terminated:
		return nil, ErrTerminated
	}
	s.state = Running

	iteration := s.st.Iteration + 1
	ts := s.st.Timestamp
	users := s.Selection.SelectableUsers(s.d, s.st, model.Step{Iteration: iteration, Timestamp: ts, Rand: s.rand(iteration, -1)})

	selections, err := s.evaluate(ctx, users, iteration, ts)
	if err != nil {
		s.state = Terminated
		return nil, fmt.Errorf("iteration %d: %w", iteration, err)
	}

	s.Propagation.Reset(s.d, iteration, s.rand(iteration, -2))
	s.Sight.Reset(s.d, iteration, s.rand(iteration, -3))
	b := model.NewIterationBuilder(iteration, ts)
	for i, u := range users {
		s.commit(b, u, selections[i], iteration)
	}
	it := b.Build()

	s.st.Iteration = iteration
	if next, ok := s.d.NextTimestamp(ts); ok {
		s.st.Timestamp = next
	}
	s.Selection.PostStep(s.d, s.st, it)
	s.lastSelectable = len(users)

	s.log.Debug("iteration committed",
		"iteration", iteration,
		"selectable", len(users),
		"propagated", it.NumPropagated(),
		"received", it.NumReceived(),
		"rereceived", it.NumRereceived(),
	)

	if s.Stop.Done(s, it) {
		s.state = Terminated
	}
	return it, nil
}

func (s *Simulator) commit(b *model.IterationBuilder, u int, sel model.Selection, iteration int) {
	user := s.st.Users[u]
	transmit := func(p int) {
		b.AddPropagated(u, p)
		for _, r := range s.Propagation.Receivers(u, s.d) {
			if r == u || r < 0 || r >= s.st.NumUsers() {
				continue
			}
			if !s.Sight.Sees(s.st.Users[r], s.d, p, u) {
				continue
			}
			res := s.st.Users[r].Receive(p, u, iteration)
			b.AddDelivery(r, p, u, res)
		}
	}
	for _, info := range sel.Own {
		user.ReleaseOwn(info.Piece, iteration)
		transmit(info.Piece)
	}
	for _, info := range sel.Received {
		user.Propagate(info.Piece, iteration)
		transmit(info.Piece)
	}
	for _, info := range sel.Repropagated {
		transmit(info.Piece)
	}
}

// Run steps until the stop condition holds, handing every iteration to the
// observers. It returns the record of the iterations run by this call.
func (s *Simulator) Run(ctx context.Context, observers ...Observer) (*Simulation, error) {
	rec := NewSimulation()
	for s.state != Terminated {
		if err := ctx.Err(); err != nil {
			return rec, err
		}
		it, err := s.Step(ctx)
		if err != nil {
			return rec, err
		}
		rec.Add(it)
		for _, o := range observers {
			if err := o.Observe(it); err != nil {
				return rec, fmt.Errorf("iteration %d: observer: %w", it.Number, err)
			}
		}
	}
	return rec, nil
}
