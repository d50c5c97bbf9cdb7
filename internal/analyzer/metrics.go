package analyzer

import (
	"context"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/mstefan99/beacon/internal/appstore"
)

// sketchAccuracy is the DDSketch relative accuracy for quantile summaries.
const sketchAccuracy = 0.01

// QuantileSummary summarizes one metric dimension over a window.
type QuantileSummary struct {
	Count int64   `json:"count"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Max   float64 `json:"max"`
}

// MetricsOverview is the device metrics summary: the latest sample per
// device plus quantile summaries of CPU and memory usage across all
// samples in the window.
type MetricsOverview struct {
	Devices map[string]*appstore.Metric `json:"devices"`
	CPU     *QuantileSummary            `json:"cpu"`
	Memory  *QuantileSummary            `json:"memory"`
}

// MetricsOverviewAggregate summarizes metric samples in [startMs, endMs).
// Memory usage is the used/total ratio; samples missing either field do
// not contribute to the memory summary.
func MetricsOverviewAggregate(ctx context.Context, src DataSource, startMs, endMs int64) (*MetricsOverview, error) {
	samples, err := src.GetMetrics(ctx, startMs, endMs)
	if err != nil {
		return nil, err
	}

	out := &MetricsOverview{Devices: map[string]*appstore.Metric{}}

	cpu := newSketchSummary()
	mem := newSketchSummary()

	for _, m := range samples {
		device := ""
		if m.Device != nil {
			device = *m.Device
		}
		// Samples arrive time-ascending, so the last one wins.
		out.Devices[device] = m

		if m.CPU != nil {
			cpu.add(*m.CPU)
		}
		if m.MemUsed != nil && m.MemTotal != nil && *m.MemTotal > 0 {
			mem.add(*m.MemUsed / *m.MemTotal)
		}
	}

	out.CPU = cpu.summary()
	out.Memory = mem.summary()
	return out, nil
}

// sketchSummary accumulates values into a DDSketch alongside exact count,
// sum and max.
type sketchSummary struct {
	sketch *ddsketch.DDSketch
	count  int64
	sum    float64
	max    float64
}

func newSketchSummary() *sketchSummary {
	// The error is only possible for accuracy outside (0, 1).
	sketch, _ := ddsketch.NewDefaultDDSketch(sketchAccuracy)
	return &sketchSummary{sketch: sketch}
}

func (s *sketchSummary) add(v float64) {
	if s.sketch != nil {
		// DDSketch rejects values outside its representable range;
		// the exact stats still count them.
		_ = s.sketch.Add(v)
	}
	s.count++
	s.sum += v
	if v > s.max {
		s.max = v
	}
}

// summary returns nil when no values were added.
func (s *sketchSummary) summary() *QuantileSummary {
	if s.count == 0 {
		return nil
	}

	out := &QuantileSummary{
		Count: s.count,
		Avg:   s.sum / float64(s.count),
		Max:   s.max,
	}

	if s.sketch != nil {
		if v, err := s.sketch.GetValueAtQuantile(0.5); err == nil {
			out.P50 = v
		}
		if v, err := s.sketch.GetValueAtQuantile(0.95); err == nil {
			out.P95 = v
		}
		if v, err := s.sketch.GetValueAtQuantile(0.99); err == nil {
			out.P99 = v
		}
	}

	return out
}
