// Package hellotrace wires the observability stack of the hello/goodbye/hellojson
// demo server.
//
// The stack owns its tracer, meter and logger providers: nothing is installed
// globally, so several stacks (for example one per test) can coexist in a process.
// Configuration is environment-based with strict validation.
//
// # Features
//
//   - One server span per request with lifecycle events, exported as JSON lines
//     (stderr by default, away from the stdout log stream) or over OTLP gRPC
//   - Request, echo, Go runtime and host metrics exported over OTLP gRPC
//   - zap logs forwarded to an OTLP collector
//   - Graceful shutdown flushing every pipeline
//
// # Quick Start
//
//	log, _ := logging.New(logging.Config{Level: "info", ServiceName: "HelloWorldWebServer"})
//
//	stack, err := hellotrace.Init(log, nil)
//	if err != nil {
//	    log.Fatal("failed to init observability", zap.Error(err))
//	}
//	defer func() {
//	    if err := stack.Shutdown(context.Background()); err != nil {
//	        log.Error("Failed to shutdown observability", zap.Error(err))
//	    }
//	}()
//
//	router := api.NewRouter(log, api.NewHandlers(log, stack.Echo), stack.HTTPObservabilityMiddleware())
//
// # Environment Variables
//
// See package internal/config for the full list. The most relevant ones:
//   - APP_NAME, APP_VERSION, APP_ENV: service identity
//   - OBSERVABILITY_TRACING_ENABLED: record spans (default true)
//   - OBSERVABILITY_TRACE_EXPORTER: console or otlp (default console)
//   - OBSERVABILITY_OTLP_ENDPOINT: OTLP collector endpoint (if OTLP export is used)
package hellotrace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gath-stack/hellotrace/internal/config"
	"github.com/gath-stack/hellotrace/internal/exporter"
	"github.com/gath-stack/hellotrace/internal/logs"
	"github.com/gath-stack/hellotrace/internal/metrics"
	"github.com/gath-stack/hellotrace/internal/tracing"
)

const instrumentationName = "github.com/gath-stack/hellotrace"

// Logger is the interface for logging operations used throughout the observability stack.
// It is compatible with zap.Logger and other structured logging packages that follow
// the same field-based logging pattern.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}

// InitOptions configures optional behaviors during observability stack initialization.
//
// The zero value exports according to the configuration.
type InitOptions struct {
	// SpanExporter replaces the exporter selected by OBSERVABILITY_TRACE_EXPORTER.
	SpanExporter sdktrace.SpanExporter

	// SyncExport exports each span as soon as it ends instead of batching.
	SyncExport bool

	// ConsoleWriter receives console span output. Defaults to the destination
	// named by OBSERVABILITY_TRACE_CONSOLE_OUTPUT.
	ConsoleWriter io.Writer

	// MetricReader replaces the periodic OTLP metric reader.
	MetricReader sdkmetric.Reader

	// LogProcessor replaces the batching OTLP log processor.
	LogProcessor sdklog.Processor

	// DisableSystemMetrics prevents host metrics collection if true.
	// This is useful in containerized environments where the host view
	// is misleading or not accessible.
	DisableSystemMetrics bool

	// SystemDiskPath specifies the disk path to monitor for disk metrics.
	// Defaults to "/" if not specified.
	SystemDiskPath string
}

// Stack represents a fully initialized observability stack.
//
// Tracing and HTTPTracing are always set; with tracing disabled they are
// backed by a no-op tracer and record nothing. HTTP, Runtime and System are nil
// when metrics are disabled, Echo then records nothing. System is also nil when
// InitOptions.DisableSystemMetrics is set. Logs is nil when logs export is disabled.
//
// The Stack must be properly shut down using Shutdown() to ensure spans, metrics
// and logs are flushed.
type Stack struct {
	obs *Observability
	log Logger

	// Tracing begins and wraps spans.
	Tracing *tracing.Tracing

	// HTTPTracing opens one server span per request.
	HTTPTracing *tracing.HTTPTracing

	// HTTP provides metrics for HTTP request/response tracking.
	HTTP *metrics.HTTPMetrics

	// Echo counts echoed messages and rejected payloads.
	Echo *metrics.EchoMetrics

	// Runtime reports Go runtime metrics (goroutines, heap, GC, CPU time).
	Runtime *metrics.RuntimeMetrics

	// System reports host CPU, memory, disk and network usage.
	System *metrics.SystemMetrics

	// Logs exports zap entries over OTLP.
	Logs *logs.Provider
}

// Observability manages the lifecycle of the tracer, meter and logger providers.
//
// This is a lower-level type used internally by Stack. Most applications should
// use Init() to create a Stack rather than working with Observability directly.
type Observability struct {
	config       config.Config
	log          Logger
	opts         InitOptions
	cleanupFuncs []func(context.Context) error
	initialized  bool

	resource   *resource.Resource
	tracer     trace.Tracer
	meter      metric.Meter
	logs       *logs.Provider
	propagator propagation.TextMapPropagator
}

// Init initializes the complete observability stack from environment variables.
//
// Init will return an error if:
//   - The configuration is invalid
//   - An exporter cannot be created
//
// Example:
//
//	stack, err := hellotrace.Init(log, nil)
//	if err != nil {
//	    log.Fatal("failed to init observability", zap.Error(err))
//	}
//	defer stack.Shutdown(context.Background())
func Init(log Logger, opts *InitOptions) (*Stack, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return NewWithConfig(cfg, log, opts)
}

// MustInit is like Init but panics if initialization fails.
//
// Example:
//
//	func main() {
//	    stack := hellotrace.MustInit(log, nil)
//	    defer stack.Shutdown(context.Background())
//	    // ...
//	}
func MustInit(log Logger, opts *InitOptions) *Stack {
	stack, err := Init(log, opts)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize observability stack: %v", err))
	}
	return stack
}

// NewWithConfig initializes the observability stack from an explicit configuration.
//
// Example:
//
//	stack, err := hellotrace.NewWithConfig(cfg, log, &hellotrace.InitOptions{
//	    SpanExporter: tracetest.NewInMemoryExporter(),
//	    SyncExport:   true,
//	})
func NewWithConfig(cfg config.Config, log Logger, opts *InitOptions) (*Stack, error) {
	if opts == nil {
		opts = &InitOptions{}
	}

	log.Info("Initializing observability stack")

	obs, err := newWithConfig(cfg, log, *opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create observability: %w", err)
	}

	ctx := context.Background()
	if err := obs.Start(ctx); err != nil {
		if shutdownErr := obs.Shutdown(ctx); shutdownErr != nil {
			log.Error("failed to shutdown observability after initialization error",
				zap.Error(shutdownErr))
		}
		return nil, fmt.Errorf("failed to start observability: %w", err)
	}

	stack := &Stack{obs: obs, log: log, Logs: obs.logs}
	if err := stack.initializeComponents(); err != nil {
		if shutdownErr := obs.Shutdown(ctx); shutdownErr != nil {
			log.Error("failed to shutdown observability after initialization error",
				zap.Error(shutdownErr))
		}
		return nil, err
	}

	log.Info("Observability stack initialized successfully",
		zap.Bool("tracing", cfg.TracingEnabled),
		zap.Bool("metrics", cfg.MetricsEnabled),
		zap.Bool("logs", cfg.LogsEnabled))

	return stack, nil
}

// New creates a new Observability instance by loading configuration from environment variables.
//
// This is a lower-level function compared to Init(). It requires a manual call to Start().
func New(log Logger) (*Observability, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	return newWithConfig(cfg, log, InitOptions{})
}

// Start initializes all enabled providers.
//
// Start will return an error if called multiple times or if a provider cannot
// be created. Disabled tracing and metrics are backed by no-op providers, so
// Tracer and Meter are usable after any successful Start.
func (o *Observability) Start(ctx context.Context) error {
	if o.initialized {
		return fmt.Errorf("observability already initialized")
	}

	o.tracer = tracenoop.NewTracerProvider().Tracer(instrumentationName)
	o.meter = metricnoop.NewMeterProvider().Meter(instrumentationName)

	if !o.config.IsEnabled() {
		o.log.Info("Observability stack disabled - no components enabled")
		o.initialized = true
		return nil
	}

	o.log.Info("Starting observability stack",
		zap.Strings("components", o.config.EnabledComponents()))

	startTime := time.Now()

	res, err := o.newResource(ctx)
	if err != nil {
		return err
	}
	o.resource = res

	if o.config.TracingEnabled {
		if err := o.initTracing(ctx); err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	if o.config.MetricsEnabled {
		if err := o.initMetrics(ctx); err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	if o.config.LogsEnabled {
		if err := o.initLogs(ctx); err != nil {
			return fmt.Errorf("failed to initialize logs: %w", err)
		}
	}

	o.log.Info("Observability stack started successfully",
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("components", len(o.cleanupFuncs)))

	o.initialized = true
	return nil
}

// Shutdown performs graceful shutdown of the observability stack.
//
// Pending spans, metrics and logs are flushed. The provided context controls
// the shutdown timeout.
//
// Example:
//
//	stack, _ := hellotrace.Init(log, nil)
//	defer stack.Shutdown(context.Background())
func (s *Stack) Shutdown(ctx context.Context) error {
	return s.obs.Shutdown(ctx)
}

// Shutdown performs graceful shutdown of all providers, in initialization order.
//
// It attempts to shut down every provider even if some fail and returns an
// error joining all failures. Calling Shutdown on an instance that holds no
// providers is a no-op.
func (o *Observability) Shutdown(ctx context.Context) error {
	if len(o.cleanupFuncs) == 0 {
		o.log.Debug("No cleanup functions registered")
		o.initialized = false
		return nil
	}

	o.log.Info("Shutting down observability stack",
		zap.Int("components", len(o.cleanupFuncs)))

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var errs []error
	for i, cleanup := range o.cleanupFuncs {
		o.log.Debug("Shutting down component",
			zap.Int("index", i+1),
			zap.Int("total", len(o.cleanupFuncs)))

		if err := cleanup(shutdownCtx); err != nil {
			o.log.Error("Failed to shutdown component",
				zap.Int("index", i+1),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	o.cleanupFuncs = nil
	o.initialized = false

	if len(errs) > 0 {
		o.log.Error("Observability shutdown completed with errors",
			zap.Int("error_count", len(errs)))
		return fmt.Errorf("shutdown had %d errors: %w", len(errs), errors.Join(errs...))
	}

	o.log.Info("Observability stack shutdown complete")
	return nil
}

// newWithConfig validates the configuration and builds an Observability
// instance. It does not start any provider.
func newWithConfig(cfg config.Config, log Logger, opts InitOptions) (*Observability, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if opts.SystemDiskPath == "" {
		opts.SystemDiskPath = "/"
	}

	return &Observability{
		config:       cfg,
		log:          log,
		opts:         opts,
		cleanupFuncs: make([]func(context.Context) error, 0),
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	}, nil
}

// newResource describes this service to every exporter.
func (o *Observability) newResource(ctx context.Context) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(o.config.ServiceName),
		semconv.ServiceVersion(o.config.ServiceVersion),
		semconv.DeploymentEnvironment(o.config.Environment),
		semconv.HostName(o.config.HostName),
	}
	if o.config.DeploymentID != "" {
		attrs = append(attrs, attribute.String("deployment.id", o.config.DeploymentID))
	}

	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// initTracing creates the tracer provider.
//
// Spans go to the console sink or to an OTLP collector, sampled with
// ParentBased(TraceIDRatioBased) so that a sampled caller is always honored.
func (o *Observability) initTracing(ctx context.Context) error {
	spanExporter, closeOutput, err := o.newSpanExporter(ctx)
	if err != nil {
		return err
	}

	var processor sdktrace.TracerProviderOption
	if o.opts.SyncExport {
		processor = sdktrace.WithSyncer(spanExporter)
	} else {
		processor = sdktrace.WithBatcher(spanExporter, sdktrace.WithMaxExportBatchSize(o.config.TraceBatchSize))
	}

	provider := sdktrace.NewTracerProvider(
		processor,
		sdktrace.WithResource(o.resource),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(o.config.TraceSamplingRate))),
	)

	o.tracer = provider.Tracer(instrumentationName)

	o.cleanupFuncs = append(o.cleanupFuncs, func(ctx context.Context) error {
		o.log.Debug("Shutting down tracer provider")
		err := provider.Shutdown(ctx)
		if closeOutput != nil {
			if closeErr := closeOutput(); closeErr != nil {
				err = errors.Join(err, fmt.Errorf("failed to close console span output: %w", closeErr))
			}
		}
		if err != nil {
			return fmt.Errorf("failed to shutdown tracer provider: %w", err)
		}
		return nil
	})

	o.log.Info("Tracing initialized",
		zap.String("exporter", o.config.TraceExporter),
		zap.Float64("sampling_rate", o.config.TraceSamplingRate))

	return nil
}

// newSpanExporter returns the configured exporter and, for a console sink
// writing to a file, the function closing that file after the provider shut down.
func (o *Observability) newSpanExporter(ctx context.Context) (sdktrace.SpanExporter, func() error, error) {
	if o.opts.SpanExporter != nil {
		return o.opts.SpanExporter, nil, nil
	}

	switch o.config.TraceExporter {
	case config.TraceExporterOTLP:
		o.log.Debug("Initializing OTLP trace exporter",
			zap.String("endpoint", o.config.OTLPEndpoint))
		exp, err := otlptracegrpc.New(
			ctx,
			otlptracegrpc.WithEndpoint(o.config.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}
		return exp, nil, nil
	default:
		w := o.opts.ConsoleWriter
		var closeOutput func() error
		if w == nil {
			out, closeFn, err := openConsoleOutput(o.config.TraceConsoleOutput)
			if err != nil {
				return nil, nil, err
			}
			w, closeOutput = out, closeFn
		}

		var opts []exporter.Option
		if o.config.TraceConsolePretty {
			opts = append(opts, exporter.WithPrettyPrint())
		}
		return exporter.NewConsole(w, opts...), closeOutput, nil
	}
}

// openConsoleOutput resolves "stdout", "stderr" or a file path opened for
// append. The close function is nil for the standard streams.
func openConsoleOutput(dest string) (io.Writer, func() error, error) {
	switch dest {
	case "", config.ConsoleOutputStderr:
		return os.Stderr, nil, nil
	case config.ConsoleOutputStdout:
		return os.Stdout, nil, nil
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open console span output: %w", err)
	}
	return f, f.Close, nil
}

// initMetrics initializes the OpenTelemetry metrics system.
//
// This method creates an OTLP gRPC exporter, unless a reader was supplied,
// and registers the meter provider for shutdown.
func (o *Observability) initMetrics(ctx context.Context) error {
	reader := o.opts.MetricReader
	if reader == nil {
		o.log.Debug("Initializing metrics exporter",
			zap.String("endpoint", o.config.OTLPEndpoint),
			zap.Int("export_interval_sec", o.config.MetricExportIntervalSec))

		exp, err := otlpmetricgrpc.New(
			ctx,
			otlpmetricgrpc.WithEndpoint(o.config.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(
			exp,
			sdkmetric.WithInterval(time.Duration(o.config.MetricExportIntervalSec)*time.Second),
		)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(o.resource),
	)

	o.meter = provider.Meter(instrumentationName)

	o.cleanupFuncs = append(o.cleanupFuncs, func(ctx context.Context) error {
		o.log.Debug("Shutting down meter provider")
		if err := provider.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown meter provider: %w", err)
		}
		return nil
	})

	o.log.Info("Metrics initialized",
		zap.String("endpoint", o.config.OTLPEndpoint),
		zap.String("service", o.config.ServiceName))

	return nil
}

// initLogs creates the OTLP logs pipeline. Attaching it to a zap logger is
// left to the caller through Stack.LogsCore.
func (o *Observability) initLogs(ctx context.Context) error {
	var provider *logs.Provider
	if o.opts.LogProcessor != nil {
		provider = logs.NewProvider(o.opts.LogProcessor, o.resource)
	} else {
		p, err := logs.NewOTLPProvider(ctx, o.config.OTLPEndpoint, o.resource)
		if err != nil {
			return err
		}
		provider = p
	}
	o.logs = provider

	o.cleanupFuncs = append(o.cleanupFuncs, func(ctx context.Context) error {
		if err := provider.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown logger provider: %w", err)
		}
		return nil
	})

	o.log.Info("Logs export initialized", zap.String("endpoint", o.config.OTLPEndpoint))
	return nil
}

// initializeComponents builds the request instrumentation on top of the providers.
func (s *Stack) initializeComponents() error {
	s.Tracing = tracing.New(s.obs.Tracer())
	s.HTTPTracing = tracing.NewHTTPTracing(s.Tracing, s.obs.propagator)

	if !s.obs.config.MetricsEnabled {
		s.Echo = metrics.NopEchoMetrics()
		return nil
	}

	meter := s.obs.Meter()

	s.log.Debug("Initializing HTTP metrics")
	httpMetrics, err := metrics.NewHTTPMetrics(meter)
	if err != nil {
		return fmt.Errorf("failed to create HTTP metrics: %w", err)
	}
	s.HTTP = httpMetrics

	echoMetrics, err := metrics.NewEchoMetrics(meter)
	if err != nil {
		return fmt.Errorf("failed to create echo metrics: %w", err)
	}
	s.Echo = echoMetrics

	s.log.Debug("Initializing runtime metrics")
	runtimeMetrics, err := metrics.NewRuntimeMetrics(meter)
	if err != nil {
		return fmt.Errorf("failed to create runtime metrics: %w", err)
	}
	s.Runtime = runtimeMetrics

	if s.obs.opts.DisableSystemMetrics {
		s.log.Info("System metrics disabled")
		return nil
	}

	s.log.Debug("Initializing system metrics",
		zap.String("disk_path", s.obs.opts.SystemDiskPath))
	systemMetrics, err := metrics.NewSystemMetrics(meter, metrics.SystemMetricsConfig{
		DiskPath: s.obs.opts.SystemDiskPath,
	})
	if err != nil {
		return fmt.Errorf("failed to create system metrics: %w", err)
	}
	s.System = systemMetrics

	return nil
}

// Tracer returns the stack's tracer. It is a no-op tracer when tracing is disabled.
func (o *Observability) Tracer() trace.Tracer {
	if o.tracer == nil {
		panic("observability not initialized")
	}
	return o.tracer
}

// Meter returns the stack's meter. It is a no-op meter when metrics are disabled.
func (o *Observability) Meter() metric.Meter {
	if o.meter == nil {
		panic("observability not initialized")
	}
	return o.meter
}

// IsInitialized returns true if the observability stack has been initialized.
func (o *Observability) IsInitialized() bool {
	return o.initialized
}

// Config returns the current observability configuration.
func (o *Observability) Config() config.Config {
	return o.config
}

// Config returns the current observability configuration.
func (s *Stack) Config() config.Config {
	return s.obs.Config()
}

// IsInitialized returns true if the stack has been initialized.
func (s *Stack) IsInitialized() bool {
	return s.obs.IsInitialized()
}

// Tracer returns the tracer backing Tracing, for instrumenting code outside
// the request path.
func (s *Stack) Tracer() trace.Tracer {
	return s.obs.Tracer()
}

// Meter returns the OpenTelemetry meter for creating custom metrics.
//
// Example:
//
//	meter := stack.Meter()
//	customCounter, _ := meter.Int64Counter("app.custom.operations")
//	customCounter.Add(ctx, 1)
func (s *Stack) Meter() metric.Meter {
	return s.obs.Meter()
}

// LogsCore returns a zapcore.Core exporting entries at or above level over
// OTLP, or nil when logs export is disabled.
//
// Example:
//
//	if core := stack.LogsCore(zapcore.InfoLevel); core != nil {
//	    log = log.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
//	        return zapcore.NewTee(c, core)
//	    }))
//	}
func (s *Stack) LogsCore(level zapcore.LevelEnabler) zapcore.Core {
	if s.Logs == nil {
		return nil
	}
	return s.Logs.Core(level)
}

// HTTPMetricsMiddleware returns a Chi-compatible middleware that records HTTP
// metrics, or a pass-through middleware when metrics are disabled.
func (s *Stack) HTTPMetricsMiddleware() func(http.Handler) http.Handler {
	if s.HTTP == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return s.HTTP.Middleware()
}

// HTTPObservabilityMiddleware returns a Chi-compatible middleware combining
// request tracing and HTTP metrics in a single pass.
//
// The tracing layer runs outermost so the span covers metric recording and
// both layers share the same response writer wrapper.
//
// Example:
//
//	router := chi.NewRouter()
//	router.Use(stack.HTTPObservabilityMiddleware())
//	router.Get("/hello", handler) // Traced as "GET /hello"
func (s *Stack) HTTPObservabilityMiddleware() func(http.Handler) http.Handler {
	traced := s.HTTPTracing.Middleware()
	measured := s.HTTPMetricsMiddleware()
	return func(next http.Handler) http.Handler {
		return traced(measured(next))
	}
}
