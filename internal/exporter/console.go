// Package exporter provides span sinks for the OpenTelemetry SDK.
package exporter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ErrExporterShutdown is returned by ExportSpans after Shutdown.
var ErrExporterShutdown = errors.New("exporter: console exporter is shut down")

// Span is the JSON document written for each finished span.
type Span struct {
	TraceID      string         `json:"traceId"`
	SpanID       string         `json:"spanId"`
	ParentSpanID string         `json:"parentSpanId,omitempty"`
	Name         string         `json:"name"`
	Kind         string         `json:"kind"`
	StartTime    *time.Time     `json:"startTime,omitempty"`
	EndTime      *time.Time     `json:"endTime,omitempty"`
	DurationMs   float64        `json:"durationMs"`
	Attributes   map[string]any `json:"attributes,omitempty"`
	Events       []Event        `json:"events,omitempty"`
	Status       Status         `json:"status"`
	Resource     map[string]any `json:"resource,omitempty"`
	Scope        string         `json:"scope,omitempty"`
}

// Event is a span event.
type Event struct {
	Name       string         `json:"name"`
	Timestamp  *time.Time     `json:"timestamp,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Status is the terminal status of a span.
type Status struct {
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
}

// Console writes finished spans as JSON documents, one per span.
//
// It is safe for concurrent use: whole documents are written under a lock so
// output from simultaneous batches never interleaves.
type Console struct {
	mu         sync.Mutex
	w          io.Writer
	pretty     bool
	timestamps bool
	stopped    bool
}

// Option configures a Console exporter.
type Option func(*Console)

// WithPrettyPrint indents each document.
func WithPrettyPrint() Option {
	return func(c *Console) { c.pretty = true }
}

// WithTimestamps controls whether start, end and event times are written.
// Disabling them makes output deterministic. Default: true.
func WithTimestamps(enabled bool) Option {
	return func(c *Console) { c.timestamps = enabled }
}

// NewConsole returns a Console exporter writing to w.
//
// Example:
//
//	exp := exporter.NewConsole(os.Stdout, exporter.WithPrettyPrint())
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
func NewConsole(w io.Writer, opts ...Option) *Console {
	c := &Console{w: w, timestamps: true}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ExportSpans writes spans to the underlying writer.
func (c *Console) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(spans) == 0 {
		return nil
	}

	docs := make([][]byte, 0, len(spans))
	for _, s := range spans {
		doc, err := c.marshal(convertSpan(s, c.timestamps))
		if err != nil {
			return fmt.Errorf("failed to marshal span %q: %w", s.Name(), err)
		}
		docs = append(docs, doc)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return ErrExporterShutdown
	}
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := c.w.Write(doc); err != nil {
			return fmt.Errorf("failed to write span: %w", err)
		}
	}
	return nil
}

// Shutdown stops the exporter. Later exports return ErrExporterShutdown.
func (c *Console) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	return ctx.Err()
}

func (c *Console) marshal(s Span) ([]byte, error) {
	var (
		b   []byte
		err error
	)
	if c.pretty {
		b, err = json.MarshalIndent(s, "", "  ")
	} else {
		b, err = json.Marshal(s)
	}
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func convertSpan(s sdktrace.ReadOnlySpan, timestamps bool) Span {
	out := Span{
		TraceID:    s.SpanContext().TraceID().String(),
		SpanID:     s.SpanContext().SpanID().String(),
		Name:       s.Name(),
		Kind:       s.SpanKind().String(),
		DurationMs: float64(s.EndTime().Sub(s.StartTime()).Microseconds()) / 1000,
		Attributes: attributesToMap(s.Attributes()),
		Status: Status{
			Code:        s.Status().Code.String(),
			Description: s.Status().Description,
		},
		Scope: s.InstrumentationScope().Name,
	}
	if s.Parent().HasSpanID() {
		out.ParentSpanID = s.Parent().SpanID().String()
	}
	if res := s.Resource(); res != nil {
		out.Resource = attributesToMap(res.Attributes())
	}
	if timestamps {
		start, end := s.StartTime(), s.EndTime()
		out.StartTime, out.EndTime = &start, &end
	}

	for _, e := range s.Events() {
		ev := Event{Name: e.Name, Attributes: attributesToMap(e.Attributes)}
		if timestamps {
			ts := e.Time
			ev.Timestamp = &ts
		}
		out.Events = append(out.Events, ev)
	}
	return out
}

func attributesToMap(kvs []attribute.KeyValue) map[string]any {
	if len(kvs) == 0 {
		return nil
	}
	m := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}
