package simulation

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"diffusion-sim/data"
	"diffusion-sim/model"
	"diffusion-sim/selection"
	"diffusion-sim/sight"
	"diffusion-sim/utils"
)

// chainData builds u0 -> u1 -> u2 where u0 created p0 at timestamp 0
func chainData(t *testing.T) *data.Data {
	t.Helper()
	users := data.NewIndexFrom("u0", "u1", "u2")
	g := data.NewGraph(3, true, false)
	require.NoError(t, g.AddEdge(0, 1, 1, data.Original))
	require.NoError(t, g.AddEdge(1, 2, 1, data.Original))
	b := data.NewBuilder(users, g)
	require.True(t, b.AddPiece("p0", "u0", 0))
	d, err := b.Build()
	require.NoError(t, err)
	return d
}

// randomData builds a random network where every user created one piece
func randomData(t *testing.T, n int, seed uint64) *data.Data {
	t.Helper()
	g := utils.CreateRandomNetwork(n, 0.15, rand.New(rand.NewPCG(seed, 0)))
	users := data.NewIndex[string]()
	for u := range n {
		users.Add("u" + strconv.Itoa(u))
	}
	b := data.NewBuilder(users, g)
	for u := range n {
		require.True(t, b.AddPiece("p"+strconv.Itoa(u), "u"+strconv.Itoa(u), int64(u%3)))
	}
	d, err := b.Build()
	require.NoError(t, err)
	return d
}

// facts flattens an iteration into comparable lines
func facts(it *model.Iteration) []string {
	ret := []string{fmt.Sprintf("iteration %d at %d", it.Number, it.Timestamp)}
	for _, u := range it.PropagatingUsers() {
		ret = append(ret, fmt.Sprintf("propagated %d %v", u, it.Propagated[u]))
	}
	for _, u := range it.ReceivingUsers() {
		for _, d := range it.Received[u] {
			ret = append(ret, fmt.Sprintf("received %d %d %v", u, d.Piece, d.Senders))
		}
	}
	for _, u := range it.RereceivingUsers() {
		for _, d := range it.Rereceived[u] {
			ret = append(ret, fmt.Sprintf("rereceived %d %d %v", u, d.Piece, d.Senders))
		}
	}
	return ret
}

func recordFacts(rec *Simulation) [][]string {
	ret := make([][]string, 0, rec.Len())
	for _, it := range rec.Iterations {
		ret = append(ret, facts(it))
	}
	return ret
}

func TestFirstIterationOfChain(t *testing.T) {
	d := chainData(t)
	sim := NewSimulator(
		selection.NewCount(selection.Counts{Own: selection.All}),
		nil,
		MaxIterations(5),
		SimulatorOptions{Seed: 1},
	)
	require.NoError(t, sim.Initialize(d))
	assert.Equal(t, Initialized, sim.State())

	it, err := sim.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, it.Number)
	assert.Equal(t, Running, sim.State())

	st := sim.SimulationState()
	r, ok := st.Users[1].Received(0)
	require.True(t, ok)
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, []int{0}, r.SenderIDs())
	assert.False(t, st.Users[2].HasSeen(0))

	assert.Equal(t, []int{0}, it.Propagated[0])
	require.Len(t, it.Received[1], 1)
	assert.Equal(t, model.Delivery{Piece: 0, Senders: []int{0}}, it.Received[1][0])
	assert.Empty(t, it.Received[2])
	assert.Equal(t, 1, st.Iteration)
}

func TestSimulatorStates(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator(selection.NewCount(selection.Counts{Own: selection.All}), nil, MaxIterations(1), SimulatorOptions{})

	_, err := sim.Step(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, sim.Initialize(nil), ErrNotInitialized)

	require.NoError(t, sim.Initialize(chainData(t)))
	_, err = sim.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, Terminated, sim.State())

	_, err = sim.Step(ctx)
	assert.ErrorIs(t, err, ErrTerminated)
	assert.Equal(t, "terminated", sim.State().String())
}

func TestDeliveriesFollowTheGraph(t *testing.T) {
	d := randomData(t, 40, 3)
	sim := NewSimulator(
		selection.NewCount(selection.Counts{Own: selection.All, Propagate: 1}),
		nil,
		AnyOf(MaxIterations(30), NoPropagation()),
		SimulatorOptions{Seed: 5, Workers: 4},
	)
	require.NoError(t, sim.Initialize(d))
	st := sim.SimulationState()

	held := make([]map[int]bool, d.NumUsers())
	for u := range held {
		held[u] = make(map[int]bool)
		for _, p := range d.PiecesOf(u) {
			held[u][p] = true
		}
	}
	counts := make(map[[2]int]int)

	ctx := context.Background()
	for sim.State() != Terminated {
		it, err := sim.Step(ctx)
		require.NoError(t, err)

		for s, pieces := range it.Propagated {
			for _, p := range pieces {
				assert.True(t, held[s][p], "user %d sent piece %d it did not hold", s, p)
			}
		}
		check := func(group map[int][]model.Delivery) {
			for u, deliveries := range group {
				for _, dl := range deliveries {
					for _, s := range dl.Senders {
						assert.Contains(t, d.Graph.Neighbors(s, data.Out), u)
						assert.Contains(t, it.Propagated[s], dl.Piece)
					}
				}
			}
		}
		check(it.Received)
		check(it.Rereceived)

		for u, deliveries := range it.Received {
			for _, dl := range deliveries {
				held[u][dl.Piece] = true
			}
		}
		for u, user := range st.Users {
			for _, r := range user.ReceivedPieces() {
				key := [2]int{u, r.Piece}
				assert.GreaterOrEqual(t, r.Count(), counts[key])
				counts[key] = r.Count()
			}
		}
	}
}

func runRecord(t *testing.T, d *data.Data, workers int) *Simulation {
	t.Helper()
	sim := NewSimulator(
		selection.NewIndependentCascade(selection.All, 0.5, 0),
		nil,
		AnyOf(MaxIterations(20), NoPropagation()),
		SimulatorOptions{Seed: 11, Workers: workers},
	)
	require.NoError(t, sim.Initialize(d))
	observed := 0
	rec, err := sim.Run(context.Background(), ObserverFunc(func(it *model.Iteration) error {
		observed++
		assert.Equal(t, observed, it.Number)
		return nil
	}))
	require.NoError(t, err)
	assert.Equal(t, rec.Len(), observed)
	return rec
}

func TestRunIsReproducible(t *testing.T) {
	d := randomData(t, 50, 7)
	serial := runRecord(t, d, 1)
	parallel := runRecord(t, d, 8)
	assert.Greater(t, serial.Len(), 1)
	assert.Equal(t, recordFacts(serial), recordFacts(parallel))
}

type rogue struct {
	selection.Base
	panics bool
}

func (m *rogue) Select(user *model.UserState, d *data.Data, st *model.SimulationState, step model.Step) model.Selection {
	if m.panics {
		panic("boom")
	}
	// every user claims to own piece 0
	return model.Selection{Own: []model.PropagatedInformation{{Piece: 0}}}
}

func TestInvalidSelectionIsFatal(t *testing.T) {
	for _, panics := range []bool{false, true} {
		t.Run(fmt.Sprintf("panics=%v", panics), func(t *testing.T) {
			sim := NewSimulator(&rogue{panics: panics}, nil, MaxIterations(3), SimulatorOptions{})
			require.NoError(t, sim.Initialize(chainData(t)))

			_, err := sim.Step(context.Background())
			assert.ErrorIs(t, err, ErrInvalidSelection)
			assert.Equal(t, Terminated, sim.State())

			_, err = sim.Run(context.Background())
			assert.NoError(t, err)
		})
	}
}

type idle struct {
	selection.Base
}

func (m *idle) SelectableUsers(d *data.Data, st *model.SimulationState, step model.Step) []int {
	return nil
}

func TestStopConditions(t *testing.T) {
	relay := func() selection.Mechanism {
		return selection.NewCount(selection.Counts{Own: selection.All, Propagate: selection.All})
	}
	tests := []struct {
		name       string
		sel        selection.Mechanism
		stop       StopCondition
		iterations int
	}{
		{"max iterations", relay(), MaxIterations(2), 2},
		// the last user of the chain still propagates in iteration 3
		{"no propagation", relay(), NoPropagation(), 4},
		{"no selectable users", &idle{}, NoSelectableUsers(), 1},
		{"timestamps exhausted", relay(), TimestampsExhausted(), 1},
		{"any of", relay(), AnyOf(MaxIterations(10), NoPropagation()), 4},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sim := NewSimulator(test.sel, nil, test.stop, SimulatorOptions{Seed: 2})
			require.NoError(t, sim.Initialize(chainData(t)))
			rec, err := sim.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, test.iterations, rec.Len())
			assert.Equal(t, Terminated, sim.State())
		})
	}
}

func TestSightFiltersDeliveries(t *testing.T) {
	relay := selection.NewCount(selection.Counts{Own: selection.All, Propagate: selection.All})
	blind := NewSimulator(relay, nil, MaxIterations(3), SimulatorOptions{Seed: 1})
	blind.Sight = sight.NewRecommended(0, 0, data.Out)
	require.NoError(t, blind.Initialize(chainData(t)))
	rec, err := blind.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"iteration 1 at 0", "propagated 0 [0]"}, facts(rec.Iterations[0]))
	for _, it := range rec.Iterations {
		assert.Zero(t, it.NumReceived())
	}
	assert.Zero(t, blind.SimulationState().User(1).NumReceivedPieces())

	// seeing everything matches the default
	seeing := NewSimulator(selection.NewCount(selection.Counts{Own: selection.All, Propagate: selection.All}), nil, nil, SimulatorOptions{Seed: 1})
	seeing.Sight = sight.NewRecommended(1, 1, data.Out)
	require.NoError(t, seeing.Initialize(chainData(t)))
	got, err := seeing.Run(context.Background())
	require.NoError(t, err)
	plain := NewSimulator(selection.NewCount(selection.Counts{Own: selection.All, Propagate: selection.All}), nil, nil, SimulatorOptions{Seed: 1})
	require.NoError(t, plain.Initialize(chainData(t)))
	want, err := plain.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, recordFacts(want), recordFacts(got))

	bad := NewSimulator(relay, nil, nil, SimulatorOptions{})
	bad.Sight = sight.NewRecommended(2, 0, data.Out)
	assert.ErrorIs(t, bad.Initialize(chainData(t)), sight.ErrInvalidParams)
}

// quietData builds u0 -> u1 -> u2: u0 posts p0 at 1, u2 reposts p0 at 2
// without ever getting it, u1 posts p1 at 3
func quietData(t *testing.T) *data.Data {
	t.Helper()
	users := data.NewIndexFrom("u0", "u1", "u2")
	g := data.NewGraph(3, true, false)
	require.NoError(t, g.AddEdge(0, 1, 1, data.Original))
	require.NoError(t, g.AddEdge(1, 2, 1, data.Original))
	b := data.NewBuilder(users, g)
	require.True(t, b.AddPiece("p0", "u0", 1))
	require.True(t, b.AddPiece("p1", "u1", 3))
	require.True(t, b.AddRealPropagation("u2", "p0", 2))
	d, err := b.Build()
	require.NoError(t, err)
	return d
}

func TestReplayOutlastsQuietTimestamps(t *testing.T) {
	stop, err := DefaultScenarioMetadata().Stop.Build()
	require.NoError(t, err)

	for _, sel := range []selection.Mechanism{selection.NewTimestamp(), selection.NewLooseTimestamp()} {
		sim := NewSimulator(sel, nil, stop, SimulatorOptions{Seed: 1})
		require.NoError(t, sim.Initialize(quietData(t)))
		rec, err := sim.Run(context.Background())
		require.NoError(t, err)

		require.Equal(t, 4, rec.Len(), "%T", sel)
		assert.Zero(t, rec.Iterations[1].NumPropagated())
		assert.Equal(t, []int{1}, rec.Iterations[2].Propagated[1])
		assert.True(t, sim.SimulationState().User(1).HasPropagated(1))
		assert.Equal(t, data.EndOfTime, sim.SimulationState().Timestamp)
	}

	// other mechanisms still stop at the first quiet iteration
	sim := NewSimulator(&idle{}, nil, stop, SimulatorOptions{})
	require.NoError(t, sim.Initialize(quietData(t)))
	rec, err := sim.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Len())
}

func TestStopParams(t *testing.T) {
	_, err := StopParams{}.Build()
	assert.Error(t, err)
	_, err = StopParams{MaxIterations: -1, NoPropagation: true}.Build()
	assert.Error(t, err)

	p := StopParams{MaxIterations: 3, NoPropagation: true}
	cond, err := p.Build()
	require.NoError(t, err)
	assert.Equal(t, "max 3 iterations | no propagation", p.String())

	sim := NewSimulator(selection.NewCount(selection.Counts{Own: selection.All, Propagate: selection.All}), nil, cond, SimulatorOptions{})
	require.NoError(t, sim.Initialize(chainData(t)))
	rec, err := sim.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Len())
}

func TestResumeFromSnapshot(t *testing.T) {
	d := randomData(t, 40, 9)
	ctx := context.Background()
	newSim := func() *Simulator {
		return NewSimulator(
			selection.NewIndependentCascade(selection.All, 0.4, 0),
			nil,
			MaxIterations(8),
			SimulatorOptions{Seed: 21, Workers: 3},
		)
	}

	full := newSim()
	require.NoError(t, full.Initialize(d))
	expected, err := full.Run(ctx)
	require.NoError(t, err)

	first := newSim()
	require.NoError(t, first.Initialize(d))
	for range 3 {
		_, err := first.Step(ctx)
		require.NoError(t, err)
	}
	raw, err := msgpack.Marshal(&Snapshot{
		State:     first.SimulationState().Dump(),
		Selection: first.Selection.Dump(),
	})
	require.NoError(t, err)

	var snapshot Snapshot
	require.NoError(t, msgpack.Unmarshal(raw, &snapshot))
	second := newSim()
	require.NoError(t, second.Resume(d, snapshot.State, snapshot.Selection))
	rest, err := second.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, recordFacts(expected)[3:], recordFacts(rest))
}

func TestSimulationRecordRoundTrip(t *testing.T) {
	rec := runRecord(t, randomData(t, 30, 4), 2)

	var buf bytes.Buffer
	require.NoError(t, rec.Write(&buf))
	loaded, err := ReadSimulation(&buf)
	require.NoError(t, err)
	assert.Equal(t, recordFacts(rec), recordFacts(loaded))

	last := rec.Iterations[rec.Len()-1]
	assert.Equal(t, facts(last), facts(loaded.Iteration(last.Number)))
	assert.Nil(t, loaded.Iteration(rec.Len()+1))

	numbers := make([]int, 0)
	require.NoError(t, loaded.Replay(ObserverFunc(func(it *model.Iteration) error {
		numbers = append(numbers, it.Number)
		return nil
	})))
	assert.True(t, slices.IsSorted(numbers))
	assert.Len(t, numbers, rec.Len())
}
