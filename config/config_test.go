package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, New(), c)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SIM_SCENARIO_DIR", "/tmp/runs")
	t.Setenv("SIM_WORKERS", "4")
	t.Setenv("SIM_SAVE_INTERVAL", "30s")
	t.Setenv("SIM_PROGRESS_BAR", "false")
	t.Setenv("SIM_LOG_LEVEL", "debug")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/runs", c.ScenarioDir)
	assert.Equal(t, 4, c.Workers)
	assert.Equal(t, 30*time.Second, c.SaveInterval)
	assert.False(t, c.ProgressBar)
	assert.True(t, c.EventDB)

	level, err := c.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	opts := c.ScenarioOptions(nil)
	assert.Equal(t, 4, opts.Workers)
	assert.Equal(t, 3, opts.MaxSnapshotCount)
	assert.False(t, opts.ProgressBar)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"empty dir", func(c *Config) { c.ScenarioDir = "" }},
		{"negative workers", func(c *Config) { c.Workers = -1 }},
		{"negative snapshots", func(c *Config) { c.MaxSnapshots = -2 }},
		{"negative interval", func(c *Config) { c.SaveInterval = -time.Second }},
		{"zero batch", func(c *Config) { c.LogBatchSize = 0 }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
	}

	require.NoError(t, New().Validate())
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := New()
			test.modify(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("SIM_WORKERS", "-3")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("SIM_WORKERS", "many")
	_, err = Load()
	assert.Error(t, err)
}
