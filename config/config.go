// The config package loads and validates the runtime settings of the simulator
// from the environment into a [Config]
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/joho/godotenv/autoload" // autoloading .env
	"github.com/kelseyhightower/envconfig"

	"diffusion-sim/simulation"
)

// Prefix of every environment variable, e.g. SIM_WORKERS
const Prefix = "SIM"

type Config struct {
	ScenarioDir  string        `envconfig:"SCENARIO_DIR"`
	Metadata     string        `envconfig:"METADATA"`
	Workers      int           `envconfig:"WORKERS"`
	MaxSnapshots int           `envconfig:"MAX_SNAPSHOTS"`
	SaveInterval time.Duration `envconfig:"SAVE_INTERVAL"`
	LogBatchSize int           `envconfig:"LOG_BATCH_SIZE"`
	ProgressBar  bool          `envconfig:"PROGRESS_BAR"`
	EventDB      bool          `envconfig:"EVENT_DB"`
	LogLevel     string        `envconfig:"LOG_LEVEL"`
}

// New returns a config with default parameters
func New() Config {
	return Config{
		ScenarioDir:  "./run",
		Workers:      0,
		MaxSnapshots: 3,
		SaveInterval: 5 * time.Minute,
		LogBatchSize: 64,
		ProgressBar:  true,
		EventDB:      true,
		LogLevel:     "info",
	}
}

func (c Config) Validate() error {
	if c.ScenarioDir == "" {
		return errors.New("scenario dir: value cannot be empty")
	}
	if c.Workers < 0 {
		return errors.New("workers: value cannot be negative")
	}
	if c.MaxSnapshots < 0 {
		return errors.New("max snapshots: value cannot be negative")
	}
	if c.SaveInterval < 0 {
		return errors.New("save interval: value cannot be negative")
	}
	if c.LogBatchSize < 1 {
		return errors.New("log batch size: value must be positive")
	}
	if _, err := c.Level(); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	return nil
}

func (c Config) Print() {
	fmt.Println("System:")
	fmt.Printf("  ScenarioDir: %s\n", c.ScenarioDir)
	fmt.Printf("  Metadata: %s\n", c.Metadata)
	fmt.Printf("  Workers: %d\n", c.Workers)
	fmt.Printf("  MaxSnapshots: %d\n", c.MaxSnapshots)
	fmt.Printf("  SaveInterval: %v\n", c.SaveInterval)
	fmt.Printf("  LogBatchSize: %d\n", c.LogBatchSize)
	fmt.Printf("  ProgressBar: %v\n", c.ProgressBar)
	fmt.Printf("  EventDB: %v\n", c.EventDB)
	fmt.Printf("  LogLevel: %s\n", c.LogLevel)
}

// Level parses LogLevel
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(c.LogLevel))
	return l, err
}

// ScenarioOptions converts the config for a scenario logging to log
func (c Config) ScenarioOptions(log *slog.Logger) simulation.ScenarioOptions {
	return simulation.ScenarioOptions{
		Workers:          c.Workers,
		MaxSnapshotCount: c.MaxSnapshots,
		SaveInterval:     c.SaveInterval,
		LogBatchSize:     c.LogBatchSize,
		ProgressBar:      c.ProgressBar,
		EventDB:          c.EventDB,
		Log:              log,
	}
}

// Load creates a new [Config] with default parameters.
// Then, if the corresponding environment variable is set, it overwrites them.
func Load() (Config, error) {
	config := New()

	if err := envconfig.Process(Prefix, &config); err != nil {
		return Config{}, fmt.Errorf("config.Load: %w", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("config.Load: %w", err)
	}

	return config, nil
}
