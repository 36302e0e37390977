package main

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diffusion-sim/simulation"
	"diffusion-sim/utils"
)

func writeLines(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
	return path
}

// historyMetadata writes a small recorded history: a posts p1 at 1, b and c
// really repost it at 2 and 3, c posts p2 at 2
func historyMetadata(t *testing.T, dir string) string {
	t.Helper()
	files := map[string]any{
		"users":  writeLines(t, dir, "users.txt", "a", "b", "c", "d"),
		"graph":  writeLines(t, dir, "graph.tsv", "a\tb", "a\tc", "b\tc", "c\td"),
		"pieces": writeLines(t, dir, "pieces.tsv", "piece\tcreator\ttimestamp", "p1\ta\t1", "p2\tc\t2"),
		"userFeatures": []string{
			writeLines(t, dir, "community.tsv", "user\tcommunity", "a\t0", "b\t0", "c\t1", "d\t1"),
		},
		"realPropagation": writeLines(t, dir, "real.tsv", "b\tp1\t2", "c\tp1\t3"),
	}
	metadata := map[string]any{
		"uniqueName": "history",
		"files":      files,
		"graph":      map[string]any{"directed": true},
		"selection":  map[string]any{"name": "Timestamp"},
		"stop":       map[string]any{"maxIterations": 0, "noPropagation": false, "timestampsExhausted": true},
		"metrics": []map[string]any{
			{"name": "feat-gl-entropy", "feature": "community", "userFeature": true, "unique": true},
			{"name": "global-ext-featrate", "feature": "community", "userFeature": true, "unique": true},
			{"name": "feat-recall", "feature": "community", "userFeature": true},
		},
	}
	raw, err := json.Marshal(metadata)
	require.NoError(t, err)
	path := filepath.Join(dir, "metadata.json")
	require.NoError(t, os.WriteFile(path, raw, 0644))
	return path
}

func TestLoadMetadata(t *testing.T) {
	m, err := loadMetadata("")
	require.NoError(t, err)
	assert.Equal(t, simulation.DefaultScenarioMetadata(), m)

	m, err = loadMetadata(historyMetadata(t, t.TempDir()))
	require.NoError(t, err)
	assert.Nil(t, m.Network)
	assert.Equal(t, "Timestamp", m.Selection.Name)
	assert.Len(t, m.Metrics, 3)

	_, err = loadMetadata(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	broken := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{"selection": {"name": "Oracle"}}`), 0644))
	_, err = loadMetadata(broken)
	assert.ErrorIs(t, err, simulation.ErrInvalidMetadata)
}

func TestSerializeAndDeserializeScenario(t *testing.T) {
	inputs := t.TempDir()
	metadata, err := loadMetadata(historyMetadata(t, inputs))
	require.NoError(t, err)

	basePath := t.TempDir()
	opts := simulation.DefaultScenarioOptions()
	opts.ProgressBar = false

	scenario1 := simulation.NewScenario(basePath, metadata, opts)
	require.NoError(t, scenario1.Init())
	require.NoError(t, scenario1.RunTillEnd(context.Background()))
	require.NoError(t, scenario1.Close())
	require.True(t, scenario1.IsFinished())

	st1 := scenario1.Simulator().SimulationState()
	assert.Equal(t, 3, st1.Iteration)

	// d got p1 from c in the last iteration, and p2 from c before
	d := st1.Users[3]
	for _, p := range []int{0, 1} {
		r, ok := d.Received(p)
		require.True(t, ok)
		assert.Equal(t, []int{2}, r.SenderIDs())
	}
	c := st1.Users[2]
	assert.True(t, c.HasPropagated(0))
	assert.True(t, c.HasPropagated(1))

	// only d heard from both communities
	assert.Equal(t, map[string][]string{"feat-recall-user-community": {"d"}}, scenario1.TopUsers(1))

	// load it to a new scenario
	scenario2 := simulation.NewScenario(basePath, metadata, opts)
	loaded, err := scenario2.Load()
	require.NoError(t, err)
	require.True(t, loaded)
	defer scenario2.Close()

	// compare everything
	st2 := scenario2.Simulator().SimulationState()
	assert.Equal(t, st1.Iteration, st2.Iteration)
	assert.Equal(t, st1.Timestamp, st2.Timestamp)
	for u := range st1.Users {
		assert.Equal(t, st1.Users[u].OwnPieces(), st2.Users[u].OwnPieces())
		assert.Equal(t, st1.Users[u].PropagatedPieces(), st2.Users[u].PropagatedPieces())
		assert.Equal(t, st1.Users[u].NumReceivedPieces(), st2.Users[u].NumReceivedPieces())
	}

	assert.True(t, utils.CompareGraphs(
		scenario1.Simulator().Data().Graph,
		scenario2.Simulator().Data().Graph,
	))
	results1, results2 := scenario1.Metrics().Results(), scenario2.Metrics().Results()
	require.Len(t, results2, len(results1))
	for name, v := range results1 {
		assertSameValue(t, v, results2[name], name)
		assert.Len(t, scenario2.Timeline().Series(name), 3)
		for i, w := range scenario1.Timeline().Series(name) {
			assertSameValue(t, w, scenario2.Timeline().Series(name)[i], name)
		}
	}
}

func assertSameValue(t *testing.T, expected, actual float64, name string) {
	t.Helper()
	if math.IsNaN(expected) {
		assert.True(t, math.IsNaN(actual), name)
		return
	}
	assert.InDelta(t, expected, actual, 1e-12, name)
}
