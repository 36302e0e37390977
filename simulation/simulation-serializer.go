package simulation

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"diffusion-sim/data"
	"diffusion-sim/model"
	"diffusion-sim/utils"

	"github.com/vmihailenco/msgpack/v5"
)

// Snapshot is everything needed to resume a scenario
type Snapshot struct {
	State     *model.StateDump `msgpack:"state"`
	Selection []byte           `msgpack:"selection"`
}

// SimulationSerializer manages the files of one scenario directory
type SimulationSerializer struct {
	baseDir          string
	simulationID     string
	maxSnapshotCount int

	seq int
}

func NewSimulationSerializer(baseDir string, simulationID string, maxSnapshotCount int) *SimulationSerializer {
	return &SimulationSerializer{
		baseDir:          baseDir,
		simulationID:     simulationID,
		maxSnapshotCount: maxSnapshotCount,
	}
}

func (s *SimulationSerializer) Dir() string {
	return filepath.Join(s.baseDir, s.simulationID)
}

func (s *SimulationSerializer) Path(name string) string {
	return filepath.Join(s.Dir(), name)
}

func (s *SimulationSerializer) Exists() bool {
	_, err := os.Stat(s.Dir())
	return !os.IsNotExist(err)
}

func (s *SimulationSerializer) ensureSimulationDir() error {
	return os.MkdirAll(s.Dir(), 0755)
}

// #region serialize

func (s *SimulationSerializer) _list(fileType string, suffixName string) ([]string, error) {
	dir := s.Dir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), fileType+"-") && strings.HasSuffix(entry.Name(), suffixName) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}

	// names sort by time, then by sequence
	sort.Strings(files)
	return files, nil
}

func _read[T any](filePath string) (*T, error) {
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	ret := new(T)
	if err := msgpack.Unmarshal(raw, ret); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filePath, err)
	}
	return ret, nil
}

func (s *SimulationSerializer) _getFilePath(fileType string, suffixName string) string {
	timestamp := time.Now().UTC().Format("20060102T150405.000000Z")
	s.seq++
	filename := fmt.Sprintf("%s-%s-%06d%s", fileType, timestamp, s.seq, suffixName)
	return filepath.Join(s.Dir(), filename)
}

// _write writes to a temporary file first so a crash never leaves a
// truncated latest file behind
func (s *SimulationSerializer) _write(fileType string, suffixName string, save func(path string) error) error {
	if err := s.ensureSimulationDir(); err != nil {
		return err
	}

	filePath := s._getFilePath(fileType, suffixName)
	tmp := filePath + ".tmp"
	if err := save(tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, filePath); err != nil {
		return err
	}

	return s._clean(fileType, false, suffixName)
}

func (s *SimulationSerializer) _clean(fileType string, all bool, suffixName string) error {
	if !all && s.maxSnapshotCount <= 0 {
		return nil
	}

	files, err := s._list(fileType, suffixName)
	if err != nil {
		return err
	}

	toDelete := len(files)
	if !all {
		if len(files) > s.maxSnapshotCount {
			toDelete -= s.maxSnapshotCount
		} else {
			toDelete = 0
		}
	}

	for i := range toDelete {
		if err := os.Remove(files[i]); err != nil {
			return err
		}
	}

	return nil
}

func writeMsgpack(v any) func(path string) error {
	return func(path string) error {
		raw, err := msgpack.Marshal(v)
		if err != nil {
			return err
		}
		return os.WriteFile(path, raw, 0644)
	}
}

// Clear removes the snapshots, timelines and finished marks of an earlier run
func (s *SimulationSerializer) Clear() error {
	for _, f := range [][2]string{
		{"snapshot", ".msgpack"},
		{"finished", ".msgpack"},
		{"metrics", ".lz4"},
	} {
		if err := s._clean(f[0], true, f[1]); err != nil {
			return err
		}
	}
	return nil
}

// #endregion

// #region snapshot

// GetLatestSnapshot returns nil if there is none
func (s *SimulationSerializer) GetLatestSnapshot() (*Snapshot, error) {
	if !s.Exists() {
		return nil, nil
	}
	files, err := s._list("snapshot", ".msgpack")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}

	ret, err := _read[Snapshot](files[len(files)-1])
	if err != nil {
		return nil, err
	}
	if ret.State == nil {
		return nil, fmt.Errorf("snapshot without state: %w", data.ErrIndexMismatch)
	}
	return ret, nil
}

func (s *SimulationSerializer) SaveSnapshot(snapshot *Snapshot) error {
	return s._write("snapshot", ".msgpack", writeMsgpack(snapshot))
}

// #endregion

// #region finished mark

type FinishMark struct {
	Iteration int `msgpack:"iteration"`
}

func (s *SimulationSerializer) MarkFinished(iteration int) error {
	return s._write("finished", ".msgpack", writeMsgpack(&FinishMark{Iteration: iteration}))
}

func (s *SimulationSerializer) IsFinished() (bool, error) {
	if !s.Exists() {
		return false, nil
	}
	files, err := s._list("finished", ".msgpack")
	if err != nil {
		return false, err
	}
	return len(files) > 0, nil
}

// FinishedAt returns when the finish mark was written, or the zero time
func (s *SimulationSerializer) FinishedAt() (time.Time, error) {
	if !s.Exists() {
		return time.Time{}, nil
	}
	files, err := s._list("finished", ".msgpack")
	if err != nil || len(files) == 0 {
		return time.Time{}, err
	}
	info, err := os.Stat(files[len(files)-1])
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// #endregion

// #region metric timeline

func (s *SimulationSerializer) GetLatestMetricTimeline() (*MetricTimeline, error) {
	if !s.Exists() {
		return nil, nil
	}
	files, err := s._list("metrics", ".lz4")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}
	return LoadMetricTimeline(files[len(files)-1])
}

func (s *SimulationSerializer) SaveMetricTimeline(t *MetricTimeline) error {
	return s._write("metrics", ".lz4", func(path string) error {
		return SaveMetricTimeline(path, t)
	})
}

// #endregion

// #region graph

func (s *SimulationSerializer) SaveGraph(g *data.Graph, users *data.Index[string]) error {
	if err := s.ensureSimulationDir(); err != nil {
		return err
	}
	return utils.SaveGraphToFile(g, users, s.Path("graph.msgpack"))
}

// LoadGraph returns nil if no graph was saved
func (s *SimulationSerializer) LoadGraph() (*data.Graph, *data.Index[string], error) {
	path := s.Path("graph.msgpack")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil, nil
	}
	return utils.LoadGraphFromFile(path)
}

// #endregion

func (s *SimulationSerializer) SaveMetadata(metadata *ScenarioMetadata) error {
	if err := s.ensureSimulationDir(); err != nil {
		return err
	}

	raw, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.Path("metadata.json"), raw, 0644)
}

// LoadMetadata returns nil if the scenario has no metadata
func (s *SimulationSerializer) LoadMetadata() (*ScenarioMetadata, error) {
	raw, err := os.ReadFile(s.Path("metadata.json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var metadata ScenarioMetadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, err
	}
	return &metadata, nil
}
