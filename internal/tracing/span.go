// Package tracing wraps units of work in OpenTelemetry spans.
//
// A Tracing value owns a trace.Tracer handed to it by the caller; nothing in
// this package reads the global tracer provider. Spans started through Begin
// or Wrap are carried in the context and closed exactly once.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrEmptyOperationName is returned by Begin when the span name is empty.
	ErrEmptyOperationName = errors.New("tracing: operation name must not be empty")

	// ErrUnsupportedSpanKind is returned by Begin for kinds other than server, client or internal.
	ErrUnsupportedSpanKind = errors.New("tracing: span kind must be server, client or internal")
)

// Span is a single-owner handle on an OpenTelemetry span.
//
// All recording methods are safe to call after Close; they are ignored by the
// SDK once the span has ended.
type Span struct {
	span      trace.Span
	closeOnce sync.Once
	closed    atomic.Bool
}

// Tracing begins spans using an injected tracer.
type Tracing struct {
	tracer trace.Tracer
}

// New returns a Tracing that starts spans on tracer.
//
// Example:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	tr := tracing.New(tp.Tracer("hellotrace"))
func New(tracer trace.Tracer) *Tracing {
	return &Tracing{tracer: tracer}
}

// Tracer returns the underlying OpenTelemetry tracer.
func (t *Tracing) Tracer() trace.Tracer {
	return t.tracer
}

// Begin starts a span named operationName and returns a context carrying it.
//
// The caller owns the span and must Close it, typically with defer. Nested
// code finds it again through SpanFromContext.
//
// Example:
//
//	ctx, span, err := tr.Begin(ctx, "GET /hello", trace.SpanKindServer)
//	if err != nil {
//	    return err
//	}
//	defer span.Close()
func (t *Tracing) Begin(ctx context.Context, operationName string, kind trace.SpanKind, opts ...trace.SpanStartOption) (context.Context, *Span, error) {
	if operationName == "" {
		return ctx, nil, ErrEmptyOperationName
	}
	if !supportedKind(kind) {
		return ctx, nil, fmt.Errorf("%w: got %s", ErrUnsupportedSpanKind, kind)
	}

	opts = append(opts, trace.WithSpanKind(kind))
	ctx, otelSpan := t.tracer.Start(ctx, operationName, opts...)

	span := &Span{span: otelSpan}
	return ContextWithSpan(ctx, span), span, nil
}

// Wrap runs body inside a span and returns body's error unchanged.
//
// The span is closed on every exit path. An error returned by body is also
// recorded on the span. If body panics, the panic is recorded, the span is
// closed and the panic continues up the stack.
//
// Example:
//
//	err := tr.Wrap(ctx, "render", trace.SpanKindInternal, func(ctx context.Context) error {
//	    tracing.SpanFromContext(ctx).AddEvent("render.start")
//	    return render(ctx)
//	})
func (t *Tracing) Wrap(ctx context.Context, operationName string, kind trace.SpanKind, body func(ctx context.Context) error) error {
	_, err := WrapValue(ctx, t, operationName, kind, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, body(ctx)
	})
	return err
}

// WrapValue is Wrap for bodies that produce a value.
func WrapValue[T any](ctx context.Context, t *Tracing, operationName string, kind trace.SpanKind, body func(ctx context.Context) (T, error)) (result T, err error) {
	ctx, span, err := t.Begin(ctx, operationName, kind)
	if err != nil {
		return result, err
	}
	defer span.Close()
	defer func() {
		if rec := recover(); rec != nil {
			span.recordPanic(rec)
			panic(rec)
		}
	}()

	result, err = body(ctx)
	if err != nil {
		span.RecordError(err)
	}
	return result, err
}

// SetName replaces the span name.
func (s *Span) SetName(name string) {
	s.span.SetName(name)
}

// SetAttribute attaches key=value to the span. A later call with the same key
// replaces the earlier value.
//
// Strings, booleans, every signed and unsigned integer type, float32/float64
// and the slice types []string, []bool, []int, []int64 and []float64 keep
// their type. A uint64 or uint above math.MaxInt64 is stored in decimal string
// form. Any other value is stored via String() or its fmt %v form.
func (s *Span) SetAttribute(key string, value any) {
	s.span.SetAttributes(toAttribute(key, value))
}

// SetAttributes attaches typed attributes to the span.
func (s *Span) SetAttributes(kv ...attribute.KeyValue) {
	s.span.SetAttributes(kv...)
}

// AddEvent appends a timestamped event. Events keep their call order.
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	if len(attrs) == 0 {
		s.span.AddEvent(name)
		return
	}
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// RecordError marks the span as failed. It adds an exception event with the
// error type and message and sets the status to Error. nil is ignored.
func (s *Span) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// SetStatus sets the span status.
func (s *Span) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

// SpanContext returns the identifiers of the span.
func (s *Span) SpanContext() trace.SpanContext {
	return s.span.SpanContext()
}

// IsRecording reports whether the span records data. Spans from a disabled
// tracer provider never record.
func (s *Span) IsRecording() bool {
	return s.span.IsRecording()
}

// Close ends the span and hands it to the export pipeline. Only the first call
// has an effect.
func (s *Span) Close() {
	s.closeOnce.Do(func() {
		s.span.End()
		s.closed.Store(true)
	})
}

// Closed reports whether Close has been called.
func (s *Span) Closed() bool {
	return s.closed.Load()
}

func (s *Span) recordPanic(rec any) {
	err, ok := rec.(error)
	if !ok {
		err = fmt.Errorf("%v", rec)
	}
	s.span.RecordError(err, trace.WithStackTrace(true))
	s.span.AddEvent("panic")
	s.span.SetStatus(codes.Error, "panic: "+err.Error())
}

type spanKey struct{}

// ContextWithSpan returns a copy of ctx carrying span as both the active Span
// and the active OpenTelemetry span.
func ContextWithSpan(ctx context.Context, span *Span) context.Context {
	ctx = trace.ContextWithSpan(ctx, span.span)
	return context.WithValue(ctx, spanKey{}, span)
}

// SpanFromContext returns the active Span.
//
// Without one, it returns a Span over whatever OpenTelemetry span the context
// holds, which is a non-recording span when there is none. The result is never nil.
func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanKey{}).(*Span); ok && span != nil {
		return span
	}
	return &Span{span: trace.SpanFromContext(ctx)}
}

func supportedKind(kind trace.SpanKind) bool {
	switch kind {
	case trace.SpanKindServer, trace.SpanKindClient, trace.SpanKindInternal:
		return true
	}
	return false
}

func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int8:
		return attribute.Int64(key, int64(v))
	case int16:
		return attribute.Int64(key, int64(v))
	case int32:
		return attribute.Int64(key, int64(v))
	case int64:
		return attribute.Int64(key, v)
	case uint8:
		return attribute.Int64(key, int64(v))
	case uint16:
		return attribute.Int64(key, int64(v))
	case uint32:
		return attribute.Int64(key, int64(v))
	case uint:
		return unsignedAttribute(key, uint64(v))
	case uint64:
		return unsignedAttribute(key, v)
	case float32:
		return attribute.Float64(key, float64(v))
	case float64:
		return attribute.Float64(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	case []bool:
		return attribute.BoolSlice(key, v)
	case []int:
		return attribute.IntSlice(key, v)
	case []int64:
		return attribute.Int64Slice(key, v)
	case []float64:
		return attribute.Float64Slice(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}

func unsignedAttribute(key string, v uint64) attribute.KeyValue {
	if v > math.MaxInt64 {
		return attribute.String(key, strconv.FormatUint(v, 10))
	}
	return attribute.Int64(key, int64(v))
}
