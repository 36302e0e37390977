package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"diffusion-sim/data"
	"diffusion-sim/metrics"
	"diffusion-sim/model"
	"diffusion-sim/utils"
)

type ScenarioOptions struct {
	Workers          int
	MaxSnapshotCount int
	SaveInterval     time.Duration
	LogBatchSize     int
	ProgressBar      bool
	EventDB          bool
	Log              *slog.Logger
}

func DefaultScenarioOptions() ScenarioOptions {
	return ScenarioOptions{
		MaxSnapshotCount: 3,
		SaveInterval:     300 * time.Second,
		LogBatchSize:     64,
		ProgressBar:      true,
		EventDB:          true,
	}
}

// Scenario runs one simulation in its own directory, checkpointing it so an
// interrupted run can be resumed
type Scenario struct {
	dir      string
	metadata *ScenarioMetadata
	opts     ScenarioOptions
	log      *slog.Logger

	data       *data.Data
	sim        *Simulator
	runner     *metrics.Runner
	timeline   *MetricTimeline
	serializer *SimulationSerializer
	iterations *IterationLogger
	db         *EventDB
}

func NewScenario(dir string, metadata *ScenarioMetadata, opts ScenarioOptions) *Scenario {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("scenario", metadata.UniqueName)
	return &Scenario{
		dir:        dir,
		metadata:   metadata,
		opts:       opts,
		log:        log,
		serializer: NewSimulationSerializer(dir, metadata.UniqueName, opts.MaxSnapshotCount),
	}
}

func (s *Scenario) Simulator() *Simulator { return s.sim }

func (s *Scenario) Timeline() *MetricTimeline { return s.timeline }

func (s *Scenario) Metrics() *metrics.Runner { return s.runner }

func (s *Scenario) Serializer() *SimulationSerializer { return s.serializer }

func (s *Scenario) prepare() error {
	if err := s.metadata.Validate(); err != nil {
		return err
	}
	d, err := s.metadata.LoadData(s.log)
	if err != nil {
		return fmt.Errorf("failed to load data: %w", err)
	}
	s.log.Info("data loaded", "summary", d.Summary())
	s.data = d

	sim, err := s.metadata.BuildSimulator(SimulatorOptions{Workers: s.opts.Workers, Log: s.log})
	if err != nil {
		return err
	}
	s.sim = sim
	s.runner = s.metadata.BuildMetrics(s.log)
	if err := s.runner.Initialize(d); err != nil {
		return err
	}
	s.timeline = NewMetricTimeline(s.runner.Names())
	return nil
}

func (s *Scenario) openEventDB() error {
	if !s.opts.EventDB {
		return nil
	}
	db, err := OpenEventDB(s.serializer.Path("events.db"))
	if err != nil {
		return fmt.Errorf("failed to create event db logger: %w", err)
	}
	s.db = db
	return nil
}

// Init starts the scenario from scratch, overwriting the outputs of an
// earlier run
func (s *Scenario) Init() error {
	if err := s.prepare(); err != nil {
		return err
	}
	if err := s.sim.Initialize(s.data); err != nil {
		return err
	}

	if err := s.serializer.SaveMetadata(s.metadata); err != nil {
		return fmt.Errorf("failed to create scenario dump folder: %w", err)
	}
	if err := s.serializer.Clear(); err != nil {
		return fmt.Errorf("failed to clear earlier run: %w", err)
	}
	if err := s.serializer.SaveGraph(s.data.Graph, s.data.Users); err != nil {
		return fmt.Errorf("failed to save graph: %w", err)
	}

	iterations, err := NewIterationLogger(s.serializer.Path("iterations.msgpack"), s.opts.LogBatchSize, true, s.log)
	if err != nil {
		return fmt.Errorf("failed to create iteration logger: %w", err)
	}
	s.iterations = iterations

	if err := s.openEventDB(); err != nil {
		return err
	}
	if s.db != nil {
		if err := s.db.DeleteEventsAfterStep(0); err != nil {
			return err
		}
	}
	return nil
}

// Load resumes from the latest snapshot. It returns false, and leaves the
// scenario unusable, if there is nothing to resume.
func (s *Scenario) Load() (bool, error) {
	snapshot, err := s.serializer.GetLatestSnapshot()
	if err != nil {
		return false, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if snapshot == nil {
		return false, nil
	}

	if err := s.prepare(); err != nil {
		return false, err
	}

	g, _, err := s.serializer.LoadGraph()
	if err != nil {
		return false, fmt.Errorf("failed to load graph: %w", err)
	}
	if g != nil && !utils.CompareGraphs(g, s.data.Graph) {
		return false, fmt.Errorf("graph differs from the one the scenario started with: %w", data.ErrIndexMismatch)
	}

	if err := s.sim.Resume(s.data, snapshot.State, snapshot.Selection); err != nil {
		return false, err
	}

	// metrics are rebuilt by replaying the logged iterations
	iteration := snapshot.State.Iteration
	rec, err := s.readIterations()
	if err != nil {
		return false, err
	}
	if rec.Len() < iteration {
		return false, fmt.Errorf("iteration log holds %d iterations, snapshot is at %d: %w",
			rec.Len(), iteration, data.ErrIndexMismatch)
	}
	rec.Iterations = rec.Iterations[:iteration]
	if err := rec.Replay(ObserverFunc(s.observeMetrics)); err != nil {
		return false, fmt.Errorf("failed to replay iterations: %w", err)
	}

	iterations, err := NewIterationLogger(s.serializer.Path("iterations.msgpack"), s.opts.LogBatchSize, true, s.log)
	if err != nil {
		return false, fmt.Errorf("failed to create iteration logger: %w", err)
	}
	s.iterations = iterations
	if err := rec.Replay(iterations); err != nil {
		return false, err
	}

	if err := s.openEventDB(); err != nil {
		return false, err
	}
	if s.db != nil {
		if err := s.db.DeleteEventsAfterStep(iteration + 1); err != nil {
			return false, err
		}
	}

	s.log.Info("scenario resumed", "iteration", iteration)
	return true, nil
}

func (s *Scenario) readIterations() (*Simulation, error) {
	f, err := os.Open(s.serializer.Path("iterations.msgpack"))
	if errors.Is(err, os.ErrNotExist) {
		return NewSimulation(), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadIterations(f)
}

func (s *Scenario) observeMetrics(it *model.Iteration) error {
	if err := s.runner.Observe(it); err != nil {
		return err
	}
	s.timeline.Append(s.runner.Results())
	return nil
}

// Dump writes a snapshot. The iteration log and the metric timeline are
// flushed first so they always cover the snapshot.
func (s *Scenario) Dump() error {
	if s.sim == nil || s.sim.SimulationState() == nil {
		return ErrNotInitialized
	}
	if err := s.iterations.Flush(); err != nil {
		return fmt.Errorf("failed to flush iterations: %w", err)
	}
	if err := s.serializer.SaveMetricTimeline(s.timeline); err != nil {
		return fmt.Errorf("failed to save metric timeline: %w", err)
	}
	return s.serializer.SaveSnapshot(&Snapshot{
		State:     s.sim.SimulationState().Dump(),
		Selection: s.sim.Selection.Dump(),
	})
}

// Step runs one iteration and hands it to every recorder
func (s *Scenario) Step(ctx context.Context) (*model.Iteration, error) {
	it, err := s.sim.Step(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.iterations.Observe(it); err != nil {
		return it, err
	}
	if s.db != nil {
		if err := s.db.Observe(it); err != nil {
			return it, fmt.Errorf("failed to store events: %w", err)
		}
	}
	return it, s.observeMetrics(it)
}

func (s *Scenario) IsFinished() bool {
	finished, err := s.serializer.IsFinished()
	if err != nil {
		s.log.Warn("failed to read finished mark", "err", err)
	}
	return finished
}

// RunTillEnd steps until the simulator terminates, saving at a fixed
// interval, then marks the scenario finished
func (s *Scenario) RunTillEnd(ctx context.Context) error {
	// if finished, jump this simulation
	if s.IsFinished() {
		return nil
	}

	var bar *progressbar.ProgressBar
	if s.opts.ProgressBar {
		total := int64(-1)
		if s.metadata.Stop.MaxIterations > 0 {
			total = int64(s.metadata.Stop.MaxIterations)
		}
		bar = progressbar.Default(total, s.metadata.UniqueName)
		bar.Set(s.sim.SimulationState().Iteration)
	}

	lastSaveTime := time.Now()

	for s.sim.State() != Terminated {
		if err := ctx.Err(); err != nil {
			if dumpErr := s.Dump(); dumpErr != nil {
				s.log.Warn("failed to save interrupted scenario", "err", dumpErr)
			}
			return err
		}

		if _, err := s.Step(ctx); err != nil {
			return err
		}
		if bar != nil {
			bar.Set(s.sim.SimulationState().Iteration)
		}

		// save at fixed interval
		if s.opts.SaveInterval > 0 && time.Since(lastSaveTime) >= s.opts.SaveInterval {
			lastSaveTime = time.Now()
			if err := s.Dump(); err != nil {
				return err
			}
		}
	}
	if bar != nil {
		bar.Finish()
	}

	// finally save everything
	if err := s.Dump(); err != nil {
		return err
	}
	iteration := s.sim.SimulationState().Iteration
	s.log.Info("scenario finished", "iteration", iteration)
	for name, users := range s.TopUsers(5) {
		s.log.Info("top users", "metric", name, "users", users)
	}
	return s.serializer.MarkFinished(iteration)
}

// TopUsers names the k best users of every individual metric
func (s *Scenario) TopUsers(k int) map[string][]string {
	ret := make(map[string][]string)
	d := s.sim.Data()
	for _, m := range s.runner.Metrics() {
		im, ok := m.(metrics.IndividualMetric)
		if !ok {
			continue
		}
		names := make([]string, 0, k)
		for _, u := range metrics.TopUsers(im, d.NumUsers(), k) {
			if name, ok := d.Users.Object(u); ok {
				names = append(names, name)
			}
		}
		ret[m.Name()] = names
	}
	return ret
}

// Close stops the recorders
func (s *Scenario) Close() error {
	var errs []error
	if s.iterations != nil {
		errs = append(errs, s.iterations.Stop())
		s.iterations = nil
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
		s.db = nil
	}
	return errors.Join(errs...)
}
