package metrics

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"diffusion-sim/data"
	"diffusion-sim/model"
	"diffusion-sim/utils"
)

var ErrOutOfOrder = errors.New("iteration out of order")

// Runner feeds every iteration, in order, to a set of metrics.
// A metric whose update fails is logged and reported as NaN from then on.
type Runner struct {
	metrics []Metric
	failed  []bool
	next    int
	log     *slog.Logger
}

func NewRunner(log *slog.Logger, ms ...Metric) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		metrics: ms,
		failed:  make([]bool, len(ms)),
		log:     log,
	}
}

func (r *Runner) Metrics() []Metric {
	return r.metrics
}

func (r *Runner) Names() []string {
	names := make([]string, len(r.metrics))
	for i, m := range r.metrics {
		names[i] = m.Name()
	}
	return names
}

// Initialize prepares every metric; the next expected iteration is 1
func (r *Runner) Initialize(d *data.Data) error {
	for _, m := range r.metrics {
		if err := m.Initialize(d); err != nil {
			return fmt.Errorf("initialize metric %s: %w", m.Name(), err)
		}
	}
	r.next = 1
	clear(r.failed)
	return nil
}

// Next returns the number of the iteration the runner expects
func (r *Runner) Next() int {
	return r.next
}

// Observe updates every metric with the iteration. Only ordering violations are
// returned; a failing metric is marked uncomputable.
func (r *Runner) Observe(it *model.Iteration) error {
	if it == nil || it.Number != r.next {
		got := -1
		if it != nil {
			got = it.Number
		}
		return fmt.Errorf("expected iteration %d, got %d: %w", r.next, got, ErrOutOfOrder)
	}
	for i, m := range r.metrics {
		if r.failed[i] {
			continue
		}
		if err := m.Update(it); err != nil {
			r.log.Warn("metric update failed", "metric", m.Name(), "iteration", it.Number, "err", err)
			r.failed[i] = true
		}
	}
	r.next++
	return nil
}

// Failed reports whether a metric called name stopped updating
func (r *Runner) Failed(name string) bool {
	for i, m := range r.metrics {
		if r.failed[i] && m.Name() == name {
			return true
		}
	}
	return false
}

// Values returns the current value of every metric, in runner order
func (r *Runner) Values() []float64 {
	out := make([]float64, len(r.metrics))
	for i, m := range r.metrics {
		if r.failed[i] {
			out[i] = math.NaN()
			continue
		}
		out[i] = m.Calculate()
	}
	return out
}

// Results returns the current value of every metric, keyed by name
func (r *Runner) Results() map[string]float64 {
	out := make(map[string]float64, len(r.metrics))
	for i, v := range r.Values() {
		out[r.metrics[i].Name()] = v
	}
	return out
}

func (r *Runner) Clear() {
	for _, m := range r.metrics {
		m.Clear()
	}
	clear(r.failed)
	r.next = 0
}

// TopUsers returns the k users with the largest individual values, best first.
// Users with no value are left out.
func TopUsers(m IndividualMetric, numUsers, k int) []int {
	values := make([]float64, numUsers)
	for u := range values {
		values[u] = m.CalculateUser(u)
	}
	f := utils.NewTopKFinder(max(k, 0))
	top := f.FindTopK(values, k)
	f.SortIndices(values)
	return append([]int(nil), top...)
}
