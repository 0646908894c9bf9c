package metrics

import (
	"go.opentelemetry.io/otel/metric"
)

// Counter creates an Int64 counter with the given name, description and unit.
func Counter(meter metric.Meter, name, description, unit string) (metric.Int64Counter, error) {
	return meter.Int64Counter(
		name,
		metric.WithDescription(description),
		metric.WithUnit(unit),
	)
}

// Histogram creates a Float64 histogram. Explicit bucket boundaries are
// applied when buckets is non-empty.
func Histogram(meter metric.Meter, name, description, unit string, buckets []float64) (metric.Float64Histogram, error) {
	opts := []metric.Float64HistogramOption{
		metric.WithDescription(description),
		metric.WithUnit(unit),
	}

	if len(buckets) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}

	return meter.Float64Histogram(name, opts...)
}

// Gauge creates an Int64 up-down counter, used for values that rise and fall
// such as in-flight requests.
func Gauge(meter metric.Meter, name, description, unit string) (metric.Int64UpDownCounter, error) {
	return meter.Int64UpDownCounter(
		name,
		metric.WithDescription(description),
		metric.WithUnit(unit),
	)
}
