// Package logs bridges zap logging into the OpenTelemetry logs pipeline.
package logs

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/zap/zapcore"
)

const bridgeName = "hellotrace/zap"

// Provider manages an OpenTelemetry logs pipeline.
type Provider struct {
	provider *sdklog.LoggerProvider
}

// NewOTLPProvider creates a provider exporting over OTLP gRPC to endpoint.
func NewOTLPProvider(ctx context.Context, endpoint string, res *resource.Resource) (*Provider, error) {
	exporter, err := otlploggrpc.New(
		ctx,
		otlploggrpc.WithEndpoint(endpoint),
		otlploggrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
	}

	return NewProvider(sdklog.NewBatchProcessor(exporter,
		sdklog.WithExportTimeout(10*time.Second),
		sdklog.WithExportMaxBatchSize(512),
	), res), nil
}

// NewProvider creates a provider sending records through processor.
func NewProvider(processor sdklog.Processor, res *resource.Resource) *Provider {
	opts := []sdklog.LoggerProviderOption{sdklog.WithProcessor(processor)}
	if res != nil {
		opts = append(opts, sdklog.WithResource(res))
	}
	return &Provider{provider: sdklog.NewLoggerProvider(opts...)}
}

// Shutdown flushes pending records and shuts the provider down.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider != nil {
		return p.provider.Shutdown(ctx)
	}
	return nil
}

// Core returns a zapcore.Core that forwards entries at or above level to
// this provider.
//
// Example:
//
//	log = log.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
//	    return zapcore.NewTee(c, provider.Core(zapcore.InfoLevel))
//	}))
func (p *Provider) Core(level zapcore.LevelEnabler) zapcore.Core {
	return &otelCore{
		logger: p.provider.Logger(bridgeName),
		level:  level,
	}
}

// otelCore is a zapcore.Core implementation that sends logs to OpenTelemetry.
type otelCore struct {
	logger log.Logger
	level  zapcore.LevelEnabler
	fields []zapcore.Field
}

func (c *otelCore) Enabled(level zapcore.Level) bool {
	return c.level.Enabled(level)
}

func (c *otelCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = append(clone.fields[:len(c.fields):len(c.fields)], fields...)
	return &clone
}

func (c *otelCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return ce.AddCore(entry, c)
	}
	return ce
}

func (c *otelCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, field := range c.fields {
		field.AddTo(enc)
	}
	for _, field := range fields {
		field.AddTo(enc)
	}

	attrs := make([]log.KeyValue, 0, len(enc.Fields)+3)
	attrs = append(attrs, log.String("level", entry.Level.String()))
	if entry.LoggerName != "" {
		attrs = append(attrs, log.String("logger", entry.LoggerName))
	}
	if entry.Caller.Defined {
		attrs = append(attrs, log.String("caller", entry.Caller.TrimmedPath()))
	}
	for key, value := range enc.Fields {
		attrs = append(attrs, convertToLogKeyValue(key, value))
	}

	var record log.Record
	record.SetTimestamp(entry.Time)
	record.SetBody(log.StringValue(entry.Message))
	record.SetSeverity(convertLevel(entry.Level))
	record.SetSeverityText(entry.Level.CapitalString())
	record.AddAttributes(attrs...)

	c.logger.Emit(context.Background(), record)
	return nil
}

func (c *otelCore) Sync() error {
	return nil
}

// convertLevel converts zap level to OTEL severity.
func convertLevel(level zapcore.Level) log.Severity {
	switch level {
	case zapcore.DebugLevel:
		return log.SeverityDebug
	case zapcore.InfoLevel:
		return log.SeverityInfo
	case zapcore.WarnLevel:
		return log.SeverityWarn
	case zapcore.ErrorLevel:
		return log.SeverityError
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return log.SeverityFatal
	default:
		return log.SeverityInfo
	}
}

// convertToLogKeyValue converts a map-encoded zap field to an OTEL log.KeyValue.
func convertToLogKeyValue(key string, value any) log.KeyValue {
	switch v := value.(type) {
	case string:
		return log.String(key, v)
	case int:
		return log.Int(key, v)
	case int64:
		return log.Int64(key, v)
	case float64:
		return log.Float64(key, v)
	case bool:
		return log.Bool(key, v)
	case time.Duration:
		return log.String(key, v.String())
	case time.Time:
		return log.String(key, v.Format(time.RFC3339Nano))
	default:
		return log.String(key, fmt.Sprintf("%v", v))
	}
}
