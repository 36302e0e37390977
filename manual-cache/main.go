// Command manual-cache mirrors finished scenario folders to a second location.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"diffusion-sim/simulation"
)

// copyDir copies a directory tree recursively
func copyDir(src string, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		targetPath := filepath.Join(dst, relPath)
		if info.IsDir() {
			return os.MkdirAll(targetPath, info.Mode())
		}
		return copyFile(path, targetPath)
	})
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		cerr := out.Close()
		if err == nil {
			err = cerr
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// shouldCopyFolder reports whether the scenario under baseDir/name finished
// at least minElapsed ago and is not locked
func shouldCopyFolder(baseDir, name string, minElapsed time.Duration) (bool, error) {
	serializer := simulation.NewSimulationSerializer(baseDir, name, 0)
	finishedAt, err := serializer.FinishedAt()
	if err != nil {
		return false, err
	}
	if finishedAt.IsZero() {
		return false, nil
	}

	entries, err := os.ReadDir(serializer.Dir())
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), "lock") {
			return false, nil
		}
	}
	return time.Since(finishedAt) > minElapsed, nil
}

// scan copies every eligible scenario once; copied keeps the finish times already mirrored
func scan(srcDir, dstDir string, minElapsed time.Duration, copied map[string]time.Time, log *slog.Logger) error {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		ok, err := shouldCopyFolder(srcDir, name, minElapsed)
		if err != nil {
			log.Warn("cannot check scenario", "name", name, "error", err)
			continue
		}
		if !ok {
			continue
		}
		finishedAt, _ := simulation.NewSimulationSerializer(srcDir, name, 0).FinishedAt()
		if last, seen := copied[name]; seen && !finishedAt.After(last) {
			continue
		}

		targetPath := filepath.Join(dstDir, name)
		log.Info("copying scenario", "name", name, "target", targetPath)
		if err := copyDir(filepath.Join(srcDir, name), targetPath); err != nil {
			log.Error("copy failed", "name", name, "error", err)
			continue
		}
		copied[name] = finishedAt
	}
	return nil
}

func main() {
	var (
		srcDir     string
		dstDir     string
		interval   time.Duration
		minElapsed time.Duration
	)

	flag.StringVar(&srcDir, "src", "", "scenario base directory")
	flag.StringVar(&dstDir, "dst", "", "target directory")
	flag.DurationVar(&interval, "interval", time.Minute, "scan interval")
	flag.DurationVar(&minElapsed, "minelapsed", 5*time.Minute, "minimum age of the finish mark")
	flag.Parse()

	if srcDir == "" || dstDir == "" {
		fmt.Fprintln(os.Stderr, "both -src and -dst are required")
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	log.Info("watching scenarios", "src", srcDir, "dst", dstDir, "interval", interval, "minElapsed", minElapsed)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	copied := make(map[string]time.Time)
	for {
		if err := scan(srcDir, dstDir, minElapsed, copied, log); err != nil {
			log.Error("cannot read source directory", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
