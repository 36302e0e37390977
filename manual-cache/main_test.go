package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diffusion-sim/simulation"
)

func finishedScenario(t *testing.T, base, name string) {
	t.Helper()
	s := simulation.NewSimulationSerializer(base, name, 0)
	require.NoError(t, s.MarkFinished(3))
	require.NoError(t, os.WriteFile(s.Path("iterations.msgpack"), []byte("log"), 0644))
	require.NoError(t, os.MkdirAll(s.Path("extra"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(s.Path("extra"), "note.txt"), []byte("note"), 0644))
}

func TestShouldCopyFolder(t *testing.T) {
	base := t.TempDir()
	finishedScenario(t, base, "done")
	finishedScenario(t, base, "locked")
	require.NoError(t, os.WriteFile(filepath.Join(base, "locked", "lock"), nil, 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "running"), 0755))

	ok, err := shouldCopyFolder(base, "done", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = shouldCopyFolder(base, "done", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = shouldCopyFolder(base, "locked", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = shouldCopyFolder(base, "running", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = shouldCopyFolder(base, "missing", 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScanCopiesOnce(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	finishedScenario(t, src, "done")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "running"), 0755))

	copied := make(map[string]time.Time)
	require.NoError(t, scan(src, dst, 0, copied, slog.Default()))

	raw, err := os.ReadFile(filepath.Join(dst, "done", "extra", "note.txt"))
	require.NoError(t, err)
	assert.Equal(t, "note", string(raw))
	assert.FileExists(t, filepath.Join(dst, "done", "iterations.msgpack"))
	assert.NoDirExists(t, filepath.Join(dst, "running"))
	assert.Contains(t, copied, "done")

	// an unchanged scenario is not copied again
	require.NoError(t, os.RemoveAll(filepath.Join(dst, "done")))
	require.NoError(t, scan(src, dst, 0, copied, slog.Default()))
	assert.NoDirExists(t, filepath.Join(dst, "done"))

	assert.Error(t, scan(filepath.Join(src, "missing"), dst, 0, copied, slog.Default()))
}
