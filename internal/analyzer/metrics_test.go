package analyzer

import (
	"context"
	"math"
	"testing"

	"github.com/mstefan99/beacon/internal/appstore"
)

func fptr(v float64) *float64 { return &v }
func sptr(v string) *string   { return &v }

func TestMetricsOverviewLatestPerDevice(t *testing.T) {
	t0 := int64(1_700_000_000_000)

	src := &fixtureSource{metrics: []*appstore.Metric{
		{Device: sptr("web-1"), CPU: fptr(0.2), TimeMs: t0},
		{Device: sptr("web-1"), CPU: fptr(0.8), TimeMs: t0 + 60_000},
		{Device: sptr("web-2"), CPU: fptr(0.4), TimeMs: t0 + 30_000},
	}}

	o, err := MetricsOverviewAggregate(context.Background(), src, t0, t0+10*60_000)
	if err != nil {
		t.Fatal(err)
	}

	if len(o.Devices) != 2 {
		t.Fatalf("devices = %v, want 2 entries", o.Devices)
	}
	if *o.Devices["web-1"].CPU != 0.8 {
		t.Errorf("web-1 latest cpu = %v, want 0.8", *o.Devices["web-1"].CPU)
	}
	if *o.Devices["web-2"].CPU != 0.4 {
		t.Errorf("web-2 latest cpu = %v, want 0.4", *o.Devices["web-2"].CPU)
	}
}

func TestMetricsOverviewCPUSummary(t *testing.T) {
	t0 := int64(1_700_000_000_000)

	src := &fixtureSource{metrics: []*appstore.Metric{
		{Device: sptr("web-1"), CPU: fptr(0.1), TimeMs: t0},
		{Device: sptr("web-1"), CPU: fptr(0.5), TimeMs: t0 + 1000},
		{Device: sptr("web-1"), CPU: fptr(0.9), TimeMs: t0 + 2000},
	}}

	o, err := MetricsOverviewAggregate(context.Background(), src, t0, t0+10_000)
	if err != nil {
		t.Fatal(err)
	}

	if o.CPU == nil {
		t.Fatal("cpu summary is nil")
	}
	if o.CPU.Count != 3 {
		t.Errorf("count = %d, want 3", o.CPU.Count)
	}
	if math.Abs(o.CPU.Avg-0.5) > 1e-9 {
		t.Errorf("avg = %v, want 0.5", o.CPU.Avg)
	}
	if o.CPU.Max != 0.9 {
		t.Errorf("max = %v, want 0.9", o.CPU.Max)
	}
	// DDSketch quantiles carry 1% relative error.
	if math.Abs(o.CPU.P50-0.5) > 0.5*0.02 {
		t.Errorf("p50 = %v, want ~0.5", o.CPU.P50)
	}
}

func TestMetricsOverviewMemoryRatio(t *testing.T) {
	t0 := int64(1_700_000_000_000)

	src := &fixtureSource{metrics: []*appstore.Metric{
		{Device: sptr("db-1"), MemUsed: fptr(4), MemTotal: fptr(16), TimeMs: t0},
		// Missing total: must not contribute.
		{Device: sptr("db-1"), MemUsed: fptr(8), TimeMs: t0 + 1000},
		// Zero total: must not contribute.
		{Device: sptr("db-1"), MemUsed: fptr(8), MemTotal: fptr(0), TimeMs: t0 + 2000},
	}}

	o, err := MetricsOverviewAggregate(context.Background(), src, t0, t0+10_000)
	if err != nil {
		t.Fatal(err)
	}

	if o.Memory == nil {
		t.Fatal("memory summary is nil")
	}
	if o.Memory.Count != 1 {
		t.Errorf("count = %d, want 1", o.Memory.Count)
	}
	if math.Abs(o.Memory.Avg-0.25) > 1e-9 {
		t.Errorf("avg = %v, want 0.25", o.Memory.Avg)
	}
}

func TestMetricsOverviewEmptyWindow(t *testing.T) {
	src := &fixtureSource{}

	o, err := MetricsOverviewAggregate(context.Background(), src, 0, 1)
	if err != nil {
		t.Fatal(err)
	}

	if o.CPU != nil || o.Memory != nil {
		t.Errorf("summaries for empty window must be nil: cpu=%v mem=%v", o.CPU, o.Memory)
	}
	if len(o.Devices) != 0 {
		t.Errorf("devices = %v, want empty", o.Devices)
	}
}
