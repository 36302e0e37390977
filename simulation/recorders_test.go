package simulation

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diffusion-sim/model"
	"diffusion-sim/selection"
)

// chainRun runs the chain until nothing moves: u0 sends p0 to u1, which
// relays it to u2, which relays it to nobody
func chainRun(t *testing.T) *Simulation {
	t.Helper()
	sim := NewSimulator(
		selection.NewCount(selection.Counts{Own: selection.All, Propagate: selection.All}),
		nil, NoPropagation(), SimulatorOptions{},
	)
	require.NoError(t, sim.Initialize(chainData(t)))
	rec, err := sim.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, rec.Len())
	return rec
}

func TestIterationLogger(t *testing.T) {
	rec := runRecord(t, randomData(t, 30, 8), 2)
	filename := filepath.Join(t.TempDir(), "iterations.msgpack")

	logger, err := NewIterationLogger(filename, 2, true, nil)
	require.NoError(t, err)
	half := rec.Len() / 2
	for _, it := range rec.Iterations[:half] {
		require.NoError(t, logger.Observe(it))
	}
	require.NoError(t, logger.Flush())

	f, err := os.Open(filename)
	require.NoError(t, err)
	flushed, err := ReadIterations(f)
	f.Close()
	require.NoError(t, err)
	assert.Equal(t, half, flushed.Len())

	for _, it := range rec.Iterations[half:] {
		require.NoError(t, logger.Observe(it))
	}
	require.NoError(t, logger.Stop())
	assert.Error(t, logger.Flush())

	f, err = os.Open(filename)
	require.NoError(t, err)
	defer f.Close()
	loaded, err := ReadIterations(f)
	require.NoError(t, err)
	assert.Equal(t, recordFacts(rec), recordFacts(loaded))
}

func TestIterationLoggerAppends(t *testing.T) {
	rec := chainRun(t)
	filename := filepath.Join(t.TempDir(), "iterations.msgpack")

	logger, err := NewIterationLogger(filename, 10, true, nil)
	require.NoError(t, err)
	require.NoError(t, logger.Observe(rec.Iterations[0]))
	require.NoError(t, logger.Stop())

	logger, err = NewIterationLogger(filename, 10, false, nil)
	require.NoError(t, err)
	require.NoError(t, logger.Observe(rec.Iterations[1]))
	require.NoError(t, logger.Stop())

	raw, err := os.ReadFile(filename)
	require.NoError(t, err)
	// a torn tail is dropped
	require.NoError(t, os.WriteFile(filename, raw[:len(raw)-1], 0644))

	f, err := os.Open(filename)
	require.NoError(t, err)
	defer f.Close()
	loaded, err := ReadIterations(f)
	require.NoError(t, err)
	require.Equal(t, 1, loaded.Len())
	assert.Equal(t, facts(rec.Iterations[0]), facts(loaded.Iterations[0]))
}

func TestEventDB(t *testing.T) {
	rec := chainRun(t)
	db, err := OpenEventDB(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, rec.Replay(db))

	events, err := db.GetEvents()
	require.NoError(t, err)
	assert.Equal(t, []Event{
		{Kind: PropagateEvent, Iteration: 1, User: 0, Piece: 0, Sender: -1},
		{Kind: ReceiveEvent, Iteration: 1, User: 1, Piece: 0, Sender: 0},
		{Kind: PropagateEvent, Iteration: 2, User: 1, Piece: 0, Sender: -1},
		{Kind: ReceiveEvent, Iteration: 2, User: 2, Piece: 0, Sender: 1},
		{Kind: PropagateEvent, Iteration: 3, User: 2, Piece: 0, Sender: -1},
	}, events)

	n, err := db.CountEvents(PropagateEvent, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = db.CountEvents(ReceiveEvent, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, db.DeleteEventsAfterStep(2))
	events, err = db.GetEvents()
	require.NoError(t, err)
	assert.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, 1, e.Iteration)
	}
}

func TestEventDBRereceptions(t *testing.T) {
	// u0 and u1 both send to u2
	b := model.NewIterationBuilder(1, 0)
	b.AddPropagated(0, 0)
	b.AddPropagated(1, 0)
	b.AddDelivery(2, 0, 0, model.NewReception)
	b.AddDelivery(2, 0, 1, model.Rereception)

	db, err := OpenEventDB(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Observe(b.Build()))

	n, err := db.CountEvents(RereceiveEvent, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = db.CountEvents(PropagateEvent, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func equalFloats(t *testing.T, expected, actual []float64) {
	t.Helper()
	require.Len(t, actual, len(expected))
	for i := range expected {
		if math.IsNaN(expected[i]) {
			assert.True(t, math.IsNaN(actual[i]), "value %d", i)
			continue
		}
		assert.InDelta(t, expected[i], actual[i], 1e-12, "value %d", i)
	}
}

func TestMetricTimeline(t *testing.T) {
	tl := NewMetricTimeline([]string{"a", "b"})
	tl.Append(map[string]float64{"a": 1, "b": 2})
	tl.Append(map[string]float64{"a": 3})
	tl.Append(map[string]float64{"a": 5, "b": 6, "c": 7})
	assert.Equal(t, 3, tl.Len())
	equalFloats(t, []float64{2, math.NaN(), 6}, tl.Series("b"))
	assert.Nil(t, tl.Series("c"))

	path := filepath.Join(t.TempDir(), "metrics.lz4")
	require.NoError(t, SaveMetricTimeline(path, tl))
	loaded, err := LoadMetricTimeline(path)
	require.NoError(t, err)
	assert.Equal(t, tl.Names, loaded.Names)
	equalFloats(t, tl.Series("a"), loaded.Series("a"))
	equalFloats(t, tl.Series("b"), loaded.Series("b"))

	loaded.Truncate(1)
	assert.Equal(t, 1, loaded.Len())
	loaded.Truncate(5)
	assert.Equal(t, 1, loaded.Len())

	require.NoError(t, os.WriteFile(path, []byte("not lz4"), 0644))
	_, err = LoadMetricTimeline(path)
	assert.Error(t, err)
}
