// Package metrics defines the OpenTelemetry instruments recorded by the server.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetrics provides OpenTelemetry instruments for HTTP server observability.
//
// It tracks total request count, duration distributions, request and response sizes,
// and the number of requests in flight. Names follow the OpenTelemetry semantic
// conventions (`http.server.*`).
//
// Safe for concurrent use by any number of handlers.
type HTTPMetrics struct {
	requestsTotal   metric.Int64Counter
	requestDuration metric.Float64Histogram
	requestSize     metric.Int64Histogram
	responseSize    metric.Int64Histogram
	activeRequests  metric.Int64UpDownCounter
}

var sizeBuckets = []float64{100, 1000, 10000, 100000, 1000000}

// NewHTTPMetrics registers the HTTP server instruments on meter.
//
// Example:
//
//	httpMetrics, err := metrics.NewHTTPMetrics(provider.Meter("hellotrace"))
//	if err != nil {
//	    return fmt.Errorf("failed to create HTTP metrics: %w", err)
//	}
//	router.Use(httpMetrics.Middleware())
func NewHTTPMetrics(meter metric.Meter) (*HTTPMetrics, error) {
	requestsTotal, err := Counter(meter, "http.server.requests", "Total number of HTTP requests", "{request}")
	if err != nil {
		return nil, err
	}

	requestDuration, err := Histogram(meter, "http.server.duration", "HTTP request duration", "s",
		[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5})
	if err != nil {
		return nil, err
	}

	requestSize, err := meter.Int64Histogram(
		"http.server.request.size",
		metric.WithDescription("HTTP request size in bytes"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(sizeBuckets...),
	)
	if err != nil {
		return nil, err
	}

	responseSize, err := meter.Int64Histogram(
		"http.server.response.size",
		metric.WithDescription("HTTP response size in bytes"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(sizeBuckets...),
	)
	if err != nil {
		return nil, err
	}

	activeRequests, err := Gauge(meter, "http.server.active_requests", "Number of active HTTP requests", "{request}")
	if err != nil {
		return nil, err
	}

	return &HTTPMetrics{
		requestsTotal:   requestsTotal,
		requestDuration: requestDuration,
		requestSize:     requestSize,
		responseSize:    responseSize,
		activeRequests:  activeRequests,
	}, nil
}

// RecordRequest records a completed HTTP request.
//
// Attributes are method, route pattern and status code. The request size is
// only recorded when the client declared one.
func (h *HTTPMetrics) RecordRequest(
	ctx context.Context,
	method, route string,
	statusCode int,
	duration time.Duration,
	requestSize, responseSize int64,
) {
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", statusCode),
	)

	h.requestsTotal.Add(ctx, 1, attrs)
	h.requestDuration.Record(ctx, duration.Seconds(), attrs)

	if requestSize > 0 {
		h.requestSize.Record(ctx, requestSize,
			metric.WithAttributes(
				attribute.String("http.method", method),
				attribute.String("http.route", route),
			))
	}

	h.responseSize.Record(ctx, responseSize, attrs)
}

// Middleware returns a Chi-compatible middleware that records HTTP metrics for
// every request, grouped by route template (e.g. "/hello") rather than raw path.
//
// Mount it after the tracing middleware so both share one wrapped writer.
func (h *HTTPMetrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()
			methodAttr := metric.WithAttributes(attribute.String("http.method", r.Method))

			h.activeRequests.Add(ctx, 1, methodAttr)
			defer h.activeRequests.Add(ctx, -1, methodAttr)

			ww, ok := w.(middleware.WrapResponseWriter)
			if !ok {
				ww = middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			}

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			h.RecordRequest(
				ctx,
				r.Method,
				getRoutePattern(r),
				status,
				time.Since(start),
				r.ContentLength,
				int64(ww.BytesWritten()),
			)
		})
	}
}

// getRoutePattern extracts the route pattern from Chi router context.
// Falls back to the request path if no route pattern is found.
func getRoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return r.URL.Path
}
