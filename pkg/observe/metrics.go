// Package observe provides metrics and tracing for typohmm through the
// OpenTelemetry API. [InitProvider] installs an SDK that exports metrics in
// Prometheus format; without it every instrument is a no-op. Tests should use
// [NewMetrics] with their own [metric.MeterProvider].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all typohmm metrics.
const meterName = "github.com/japaniel/typohmm"

// Metrics holds the instruments recorded by the correction pipeline.
type Metrics struct {
	// DecodeDuration tracks the time to correct one input line.
	DecodeDuration metric.Float64Histogram

	// Lines counts corrected input lines. Use with attribute.String("source", ...).
	Lines metric.Int64Counter

	// Words counts decoded words.
	Words metric.Int64Counter

	// Corrections counts words whose decoded form differs from the typed form.
	Corrections metric.Int64Counter

	// Fallbacks counts words returned unchanged because no state could explain them.
	Fallbacks metric.Int64Counter
}

var decodeBuckets = []float64{
	0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1,
}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.DecodeDuration, err = m.Float64Histogram("typohmm.decode.duration",
		metric.WithDescription("Latency of correcting one input line."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(decodeBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Lines, err = m.Int64Counter("typohmm.lines",
		metric.WithDescription("Input lines corrected, by source."),
	); err != nil {
		return nil, err
	}
	if met.Words, err = m.Int64Counter("typohmm.words",
		metric.WithDescription("Words decoded."),
	); err != nil {
		return nil, err
	}
	if met.Corrections, err = m.Int64Counter("typohmm.corrections",
		metric.WithDescription("Words changed by decoding."),
	); err != nil {
		return nil, err
	}
	if met.Fallbacks, err = m.Int64Counter("typohmm.fallbacks",
		metric.WithDescription("Words returned unchanged because no path explained them."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level Metrics, created on first call from
// the global meter provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordLine records the outcome of correcting one line.
func (m *Metrics) RecordLine(ctx context.Context, source string, seconds float64, words, corrected, fallbacks int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("source", source))
	m.DecodeDuration.Record(ctx, seconds, attrs)
	m.Lines.Add(ctx, 1, attrs)
	m.Words.Add(ctx, int64(words), attrs)
	m.Corrections.Add(ctx, int64(corrected), attrs)
	m.Fallbacks.Add(ctx, int64(fallbacks), attrs)
}
