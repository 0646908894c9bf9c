// Package api serves the hello, goodbye and hellojson endpoints.
//
// Handlers annotate the server span opened by the tracing middleware; they
// never start or close spans themselves.
package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/gath-stack/hellotrace/internal/metrics"
	"github.com/gath-stack/hellotrace/internal/tracing"
)

// Response bodies of the plain-text endpoints.
const (
	HelloBody   = "Hello World!!!"
	GoodbyeBody = "Goodbye World! :)"
)

// Span attribute keys.
const (
	AttrMessage    = attribute.Key("app.message")
	AttrBodyLength = attribute.Key("app.body.length")
	AttrParseError = attribute.Key("parse.error")
)

// Span events recorded by the handlers.
const (
	EventQueryMessagePresent = "query.message.present"
	EventQueryMessageAbsent  = "query.message.absent"
	EventPayloadReadStart    = "payload.read.start"
	EventPayloadReadComplete = "payload.read.complete"
	EventMessageParsed       = "message.parsed.success"
	EventMessageEmpty        = "message.parsed.empty"
	EventDeserializeFailed   = "json.deserialize.failed"
)

// Handlers holds the endpoint dependencies.
type Handlers struct {
	log     *zap.Logger
	metrics *metrics.EchoMetrics
}

// NewHandlers returns the endpoint handlers. A nil echo metrics value records nothing.
func NewHandlers(log *zap.Logger, echoMetrics *metrics.EchoMetrics) *Handlers {
	if echoMetrics == nil {
		echoMetrics = metrics.NopEchoMetrics()
	}
	return &Handlers{log: log, metrics: echoMetrics}
}

// Hello handles GET /hello?message=<m>. The message is only traced and
// logged; the response body is fixed.
func (h *Handlers) Hello(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	span := tracing.SpanFromContext(ctx)

	msg := r.URL.Query().Get("message")
	if msg != "" {
		span.SetAttributes(AttrMessage.String(msg))
		span.AddEvent(EventQueryMessagePresent)
		h.metrics.MessageEchoed(ctx, "/hello")
	} else {
		span.AddEvent(EventQueryMessageAbsent)
	}

	h.log.Info("Hello endpoint called", zap.String("message", displayMessage(msg)))

	writeText(w, HelloBody)
}

// Goodbye handles GET /goodbye.
func (h *Handlers) Goodbye(w http.ResponseWriter, r *http.Request) {
	h.log.Info("Goodbye endpoint called")
	writeText(w, GoodbyeBody)
}

// HelloJSON handles POST /hellojson and echoes the message field back.
//
// Unreadable or malformed bodies are not client errors: the failure is
// recorded on the span and the response is {"Echo": null} with status 200.
func (h *Handlers) HelloJSON(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	span := tracing.SpanFromContext(ctx)

	span.AddEvent(EventPayloadReadStart)
	body, readErr := readBody(r.Body, maxBodyBytes)
	span.SetAttributes(AttrBodyLength.Int(len(body)))
	span.AddEvent(EventPayloadReadComplete)

	var result decodeResult
	if readErr != nil {
		result = decodeResult{kind: decodeFailed, err: readErr}
	} else {
		result = decodeHelloRequest(body)
	}

	switch result.kind {
	case decodePresent:
		span.SetAttributes(AttrMessage.String(*result.message))
		span.AddEvent(EventMessageParsed)
		h.metrics.MessageEchoed(ctx, "/hellojson")
	case decodeEmpty:
		span.AddEvent(EventMessageEmpty)
	case decodeFailed:
		span.SetAttributes(AttrParseError.Bool(true))
		span.RecordError(result.err)
		span.AddEvent(EventDeserializeFailed)
		h.metrics.DecodeFailed(ctx, "/hellojson")
		h.log.Warn("HelloJson payload rejected", zap.Error(result.err))
	}

	var shown string
	if result.message != nil {
		shown = *result.message
	}
	h.log.Info("HelloJson endpoint called", zap.String("message", displayMessage(shown)))

	writeJSON(w, http.StatusOK, EchoResponse{Echo: result.message})
}

// Health handles GET /healthz.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func displayMessage(msg string) string {
	if msg == "" {
		return "(none)"
	}
	return msg
}

func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// writeJSON writes v as a single JSON document with no trailing newline.
// HTML characters are left unescaped so the echo matches the input text.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
}
