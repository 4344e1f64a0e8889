package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %s not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %s: unexpected data type %T", name, met.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestRecordLine(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordLine(ctx, "stdin", 0.0002, 4, 2, 1)
	m.RecordLine(ctx, "stdin", 0.0001, 3, 0, 0)

	rm := collect(t, reader)
	if got := sumOf(t, rm, "typohmm.lines"); got != 2 {
		t.Errorf("lines = %d, want 2", got)
	}
	if got := sumOf(t, rm, "typohmm.words"); got != 7 {
		t.Errorf("words = %d, want 7", got)
	}
	if got := sumOf(t, rm, "typohmm.corrections"); got != 2 {
		t.Errorf("corrections = %d, want 2", got)
	}
	if got := sumOf(t, rm, "typohmm.fallbacks"); got != 1 {
		t.Errorf("fallbacks = %d, want 1", got)
	}

	met := findMetric(rm, "typohmm.decode.duration")
	if met == nil {
		t.Fatal("duration histogram not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("unexpected data type %T", met.Data)
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 2 {
		t.Fatalf("expected one data point with 2 observations, got %+v", hist.DataPoints)
	}
}

func TestRecordLineNilMetrics(t *testing.T) {
	var m *Metrics
	m.RecordLine(context.Background(), "stdin", 0, 1, 1, 1)
}

func TestDefaultMetrics(t *testing.T) {
	if DefaultMetrics() == nil || DefaultMetrics() != DefaultMetrics() {
		t.Fatal("DefaultMetrics should return a stable non-nil instance")
	}
}
