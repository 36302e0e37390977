package simulation

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/pierrec/lz4/v4"
)

// MetricTimeline holds the value of every metric after every iteration
type MetricTimeline struct {
	Names []string
	// (iteration, metric)
	Values [][]float64
}

func NewMetricTimeline(names []string) *MetricTimeline {
	return &MetricTimeline{
		Names:  names,
		Values: make([][]float64, 0),
	}
}

// Append records one row; metrics missing from results are NaN
func (t *MetricTimeline) Append(results map[string]float64) {
	row := make([]float64, len(t.Names))
	for i, name := range t.Names {
		v, ok := results[name]
		if !ok {
			v = math.NaN()
		}
		row[i] = v
	}
	t.Values = append(t.Values, row)
}

func (t *MetricTimeline) Len() int {
	return len(t.Values)
}

// Series returns the values of one metric over the iterations
func (t *MetricTimeline) Series(name string) []float64 {
	for i, n := range t.Names {
		if n != name {
			continue
		}
		ret := make([]float64, len(t.Values))
		for step, row := range t.Values {
			ret[step] = row[i]
		}
		return ret
	}
	return nil
}

// Truncate keeps the first n rows
func (t *MetricTimeline) Truncate(n int) {
	if n < len(t.Values) {
		t.Values = t.Values[:max(n, 0)]
	}
}

func SaveMetricTimeline(path string, t *MetricTimeline) error {
	var buf bytes.Buffer

	w := func(v any) {
		binary.Write(&buf, binary.LittleEndian, v)
	}

	w(int32(len(t.Values)))
	w(int32(len(t.Names)))
	for _, name := range t.Names {
		w(int32(len(name)))
		buf.WriteString(name)
	}
	for _, row := range t.Values {
		w(row)
	}

	var out bytes.Buffer
	zw := lz4.NewWriter(&out)
	if _, err := zw.Write(buf.Bytes()); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	return os.WriteFile(path, out.Bytes(), 0644)
}

func LoadMetricTimeline(path string) (*MetricTimeline, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, lz4.NewReader(bytes.NewReader(raw))); err != nil {
		return nil, fmt.Errorf("failed to decompress %s: %w", path, err)
	}
	reader := bytes.NewReader(buf.Bytes())

	r := func(v any) error {
		return binary.Read(reader, binary.LittleEndian, v)
	}

	var steps, metrics int32
	if err := r(&steps); err != nil {
		return nil, err
	}
	if err := r(&metrics); err != nil {
		return nil, err
	}
	if steps < 0 || metrics < 0 {
		return nil, fmt.Errorf("corrupt metric timeline %s", path)
	}

	names := make([]string, metrics)
	for i := range names {
		var n int32
		if err := r(&n); err != nil {
			return nil, err
		}
		if n < 0 || int(n) > reader.Len() {
			return nil, fmt.Errorf("corrupt metric timeline %s", path)
		}
		name := make([]byte, n)
		if _, err := io.ReadFull(reader, name); err != nil {
			return nil, err
		}
		names[i] = string(name)
	}

	values := make([][]float64, steps)
	for i := range values {
		values[i] = make([]float64, metrics)
		if err := r(values[i]); err != nil {
			return nil, err
		}
	}

	return &MetricTimeline{Names: names, Values: values}, nil
}
