package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// EchoMetrics counts echoed messages and rejected payloads per route.
type EchoMetrics struct {
	echoed         metric.Int64Counter
	decodeFailures metric.Int64Counter
}

// NewEchoMetrics registers the echo counters on meter.
func NewEchoMetrics(meter metric.Meter) (*EchoMetrics, error) {
	echoed, err := Counter(meter, "hellotrace.messages.echoed", "Messages received and echoed back", "{message}")
	if err != nil {
		return nil, err
	}
	decodeFailures, err := Counter(meter, "hellotrace.decode.failures", "Request payloads that could not be decoded", "{request}")
	if err != nil {
		return nil, err
	}
	return &EchoMetrics{echoed: echoed, decodeFailures: decodeFailures}, nil
}

// NopEchoMetrics returns counters that record nothing.
func NopEchoMetrics() *EchoMetrics {
	m, _ := NewEchoMetrics(noop.NewMeterProvider().Meter(""))
	return m
}

// MessageEchoed counts one message received on route.
func (m *EchoMetrics) MessageEchoed(ctx context.Context, route string) {
	m.echoed.Add(ctx, 1, metric.WithAttributes(attribute.String("http.route", route)))
}

// DecodeFailed counts one undecodable payload on route.
func (m *EchoMetrics) DecodeFailed(ctx context.Context, route string) {
	m.decodeFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("http.route", route)))
}
