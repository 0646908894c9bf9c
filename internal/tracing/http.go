package tracing

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Lifecycle events recorded on every server span by the middleware.
const (
	EventHandlerStart   = "handler.start"
	EventResponseSent   = "response.sent"
	EventRequestAborted = "request.aborted"
)

// Attribute keys shared by the middleware and the handlers.
const (
	AttrRoute = attribute.Key("http.route")
)

// HTTPTracing provides OpenTelemetry distributed tracing for HTTP requests.
//
// It creates one server span per request following the OpenTelemetry semantic
// conventions for HTTP servers. Spans include request method, route, status
// code and error information, plus the handler.start and response.sent
// lifecycle events.
type HTTPTracing struct {
	tracing    *Tracing
	propagator propagation.TextMapPropagator
}

// NewHTTPTracing initializes HTTP tracing instrumentation.
//
// The propagator extracts the caller's trace context from request headers; pass
// nil to use W3C TraceContext and Baggage.
//
// Example:
//
//	httpTracing := tracing.NewHTTPTracing(tracing.New(tp.Tracer("hellotrace/http")), nil)
//	router.Use(httpTracing.Middleware())
//
// Production recommendations:
//   - Instantiate once per application.
//   - Combine with HTTP metrics for complete observability.
func NewHTTPTracing(t *Tracing, propagator propagation.TextMapPropagator) *HTTPTracing {
	if propagator == nil {
		propagator = propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
	}
	return &HTTPTracing{
		tracing:    t,
		propagator: propagator,
	}
}

// Middleware returns a Chi-compatible middleware that creates a span for each HTTP request.
//
// This middleware uses LAZY ROUTE PATTERN CAPTURE to avoid cardinality explosion.
// It creates the span with a temporary name, executes the handler (allowing Chi to
// populate RouteContext), then renames the span to "METHOD /route/pattern".
//
// The middleware:
//   - Extracts trace context from incoming request headers
//   - Starts a server span and injects it into the request context
//   - Records handler.start before and response.sent after the handler
//   - Records request attributes (method, route pattern, status)
//   - Marks the span as failed for 5xx responses
//   - Closes the span on every path, including aborted requests and panics
//
// Handlers reach the span with SpanFromContext(r.Context()).
//
// Example:
//
//	router := chi.NewRouter()
//	router.Use(httpTracing.Middleware())
//	router.Get("/hello", handler) // Traced as "GET /hello"
func (h *HTTPTracing) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := h.propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			ww, ok := w.(middleware.WrapResponseWriter)
			if !ok {
				ww = middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			}

			// The returned error is always nil; the body never fails.
			_ = h.tracing.Wrap(ctx, "HTTP "+r.Method, trace.SpanKindServer, func(ctx context.Context) error {
				span := SpanFromContext(ctx)
				span.SetAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.scheme", scheme(r)),
					attribute.String("http.host", r.Host),
					attribute.String("http.user_agent", r.UserAgent()),
					attribute.String("http.client_ip", clientIP(r)),
				)
				span.AddEvent(EventHandlerStart)

				// Chi populates RouteContext during this call.
				next.ServeHTTP(ww, r.WithContext(ctx))

				h.finish(ctx, span, r, ww)
				return nil
			})
		})
	}
}

// finish names the span after the matched route and records the outcome.
func (h *HTTPTracing) finish(ctx context.Context, span *Span, r *http.Request, ww middleware.WrapResponseWriter) {
	routePattern := getRoutePattern(r)
	span.SetName(r.Method + " " + routePattern)

	status := ww.Status()
	if status == 0 {
		// Nothing written: net/http will send 200.
		status = http.StatusOK
	}

	span.SetAttributes(
		AttrRoute.String(routePattern),
		attribute.Int("http.status_code", status),
		attribute.Int("http.response_content_length", ww.BytesWritten()),
	)

	if err := ctx.Err(); err != nil && errors.Is(err, context.Canceled) {
		span.SetAttributes(attribute.Bool("http.request.aborted", true))
		span.AddEvent(EventRequestAborted)
	}

	if status >= 400 {
		span.SetAttributes(attribute.Bool("error", true))
	}
	if status >= 500 {
		span.SetStatus(codes.Error, http.StatusText(status))
	}

	span.AddEvent(EventResponseSent)
}

// getRoutePattern extracts the route pattern from Chi's RouteContext.
// Returns the templated route (e.g., "/api/users/{id}") instead of the actual path.
// Falls back to the actual path if route pattern is not available.
func getRoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// scheme extracts the request scheme (http or https).
func scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}

// clientIP extracts the real client IP from common headers.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}
