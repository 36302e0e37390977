package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"diffusion-sim/config"
	"diffusion-sim/simulation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// usage: diffusion-sim [base path] [metadata file]
	basePath := cfg.ScenarioDir
	metadataPath := cfg.Metadata
	if len(os.Args) > 1 {
		basePath = os.Args[1]
	}
	if len(os.Args) > 2 {
		metadataPath = os.Args[2]
	}

	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	if level <= slog.LevelDebug {
		cfg.Print()
	}

	metadata, err := loadMetadata(metadataPath)
	if err != nil {
		log.Fatalf("Failed to load metadata file: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scenario := simulation.NewScenario(basePath, metadata, cfg.ScenarioOptions(logger))
	defer func() {
		if err := scenario.Close(); err != nil {
			logger.Warn("failed to close scenario", "err", err)
		}
	}()

	loaded, err := scenario.Load()
	if err != nil {
		log.Fatalf("Failed to resume scenario: %v", err)
	}
	if !loaded {
		if err := scenario.Init(); err != nil {
			log.Fatalf("Failed to initialize scenario: %v", err)
		}
	}

	if err := scenario.RunTillEnd(ctx); err != nil {
		logger.Error("simulation stopped", "err", err)
		return
	}
}

// loadMetadata decodes the metadata file over the defaults; an empty path
// keeps the default synthetic scenario
func loadMetadata(path string) (*simulation.ScenarioMetadata, error) {
	metadata := simulation.DefaultScenarioMetadata()
	if path == "" {
		return metadata, nil
	}
	metadataJson, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	// files replace the default synthetic network
	metadata.Network = nil
	if err := json.Unmarshal(metadataJson, metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata file: %w", err)
	}
	if err := metadata.Validate(); err != nil {
		return nil, err
	}
	return metadata, nil
}
