package tracing

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func newTracedRouter(t *testing.T) (*chi.Mux, func() []sdktrace.ReadOnlySpan, func() int) {
	t.Helper()
	tr, rec := newTestTracing(t)

	r := chi.NewRouter()
	r.Use(NewHTTPTracing(tr, nil).Middleware())
	r.Get("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		SpanFromContext(r.Context()).AddEvent("lookup")
		_, _ = w.Write([]byte("user " + chi.URLParam(r, "id")))
	})
	r.Get("/fail", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	})
	r.Get("/silent", func(w http.ResponseWriter, r *http.Request) {})
	r.Get("/soft-error", func(w http.ResponseWriter, r *http.Request) {
		SpanFromContext(r.Context()).RecordError(fmt.Errorf("decode failed"))
		_, _ = w.Write([]byte("ok anyway"))
	})

	return r, rec.Ended, func() int { return len(rec.Started()) }
}

func TestMiddleware_NamesSpanAfterRoutePattern(t *testing.T) {
	router, ended, started := newTracedRouter(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/users/42", nil)
	req.Header.Set("User-Agent", "test-agent")
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "user 42", rr.Body.String())

	require.Equal(t, 1, started())
	spans := ended()
	require.Len(t, spans, 1)
	s := spans[0]

	assert.Equal(t, "GET /users/{id}", s.Name())
	assert.Equal(t, trace.SpanKindServer, s.SpanKind())
	assert.Equal(t, []string{EventHandlerStart, "lookup", EventResponseSent}, eventNames(s))

	route, _ := attrValue(s, "http.route")
	assert.Equal(t, "/users/{id}", route.AsString())
	status, _ := attrValue(s, "http.status_code")
	assert.Equal(t, int64(200), status.AsInt64())
	ua, _ := attrValue(s, "http.user_agent")
	assert.Equal(t, "test-agent", ua.AsString())
	length, _ := attrValue(s, "http.response_content_length")
	assert.Equal(t, int64(len("user 42")), length.AsInt64())
	assert.Equal(t, codes.Unset, s.Status().Code)
}

func TestMiddleware_ServerErrorStatus(t *testing.T) {
	router, ended, _ := newTracedRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/fail", nil))

	require.Len(t, ended(), 1)
	s := ended()[0]
	assert.Equal(t, codes.Error, s.Status().Code)
	flag, ok := attrValue(s, "error")
	require.True(t, ok)
	assert.True(t, flag.AsBool())
}

func TestMiddleware_KeepsHandlerErrorOnSuccess(t *testing.T) {
	router, ended, _ := newTracedRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/soft-error", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	s := ended()[0]
	assert.Equal(t, codes.Error, s.Status().Code)
	assert.Equal(t, "decode failed", s.Status().Description)
}

func TestMiddleware_EmptyResponseIsOK(t *testing.T) {
	router, ended, _ := newTracedRouter(t)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/silent", nil))

	status, _ := attrValue(ended()[0], "http.status_code")
	assert.Equal(t, int64(200), status.AsInt64())
}

func TestMiddleware_UnmatchedRouteFallsBackToPath(t *testing.T) {
	router, ended, _ := newTracedRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	require.Len(t, ended(), 1)
	assert.Equal(t, "GET /nowhere", ended()[0].Name())
	assert.NotEqual(t, codes.Error, ended()[0].Status().Code)
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	router, ended, _ := newTracedRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/users/1", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	router.ServeHTTP(httptest.NewRecorder(), req)

	s := ended()[0]
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", s.SpanContext().TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", s.Parent().SpanID().String())
}

func TestMiddleware_AbortedRequestStillClosesSpan(t *testing.T) {
	router, ended, started := newTracedRouter(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/users/7", nil).WithContext(ctx)
	router.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, 1, started())
	require.Len(t, ended(), 1)
	s := ended()[0]
	aborted, ok := attrValue(s, "http.request.aborted")
	require.True(t, ok)
	assert.True(t, aborted.AsBool())
	assert.Contains(t, eventNames(s), EventRequestAborted)
}

func TestMiddleware_PanicClosesSpan(t *testing.T) {
	tr, rec := newTestTracing(t)

	r := chi.NewRouter()
	r.Use(NewHTTPTracing(tr, nil).Middleware())
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("handler exploded") })

	assert.Panics(t, func() {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))
	})
	require.Len(t, rec.Ended(), 1)
	assert.Equal(t, codes.Error, rec.Ended()[0].Status().Code)
}

func TestMiddleware_ConcurrentRequestsGetIndependentSpans(t *testing.T) {
	router, ended, started := newTracedRouter(t)
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, fmt.Sprintf("/users/%d", i), nil))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, started())
	spans := ended()
	require.Len(t, spans, n)

	seen := make(map[trace.SpanID]bool, n)
	for _, s := range spans {
		assert.False(t, seen[s.SpanContext().SpanID()], "span exported twice")
		seen[s.SpanContext().SpanID()] = true
		assert.Equal(t, []string{EventHandlerStart, "lookup", EventResponseSent}, eventNames(s))
	}
}
