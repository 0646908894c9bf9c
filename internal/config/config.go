// Package config handles configuration loading and validation for the hellotrace server.
//
// Configuration is environment-based with fail-fast validation. A local .env file is
// honored through LoadDotEnv, but real environment variables always take precedence.
//
// # Environment Variables
//
// Service identity:
//   - APP_NAME: Service name (default: HelloWorldWebServer)
//   - APP_VERSION: Service version (default: 1.0.0)
//   - APP_ENV: Environment (development, dev, local, staging, stage, test, production, prod)
//
// HTTP server:
//   - HTTP_ADDR: Listen address (default: :8080)
//   - HTTP_SHUTDOWN_TIMEOUT: Graceful shutdown timeout in seconds (default: 30)
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//
// Feature flags:
//   - OBSERVABILITY_TRACING_ENABLED: Enable span recording (default: true)
//   - OBSERVABILITY_METRICS_ENABLED: Enable metrics export (default: false)
//   - OBSERVABILITY_LOGS_ENABLED: Enable OTLP log export (default: false)
//
// Exporters:
//   - OBSERVABILITY_TRACE_EXPORTER: console or otlp (default: console)
//   - OBSERVABILITY_TRACE_CONSOLE_PRETTY: Indent console span output (default: false)
//   - OBSERVABILITY_TRACE_CONSOLE_OUTPUT: stdout, stderr or a file path for console
//     spans (default: stderr, since logs are written to stdout)
//   - OBSERVABILITY_OTLP_ENDPOINT: OTLP collector endpoint in host:port format
//
// Optional tuning:
//   - DEPLOYMENT_ID: Unique deployment identifier
//   - HOSTNAME: Override system hostname
//   - OBSERVABILITY_METRIC_EXPORT_INTERVAL: Metrics export interval in seconds (default: 10)
//   - OBSERVABILITY_TRACE_SAMPLING_RATE: Trace sampling rate 0.0-1.0; 0 disables
//     sampling (default: 1.0 for the console exporter, otherwise environment-based)
//   - OBSERVABILITY_TRACE_BATCH_SIZE: Maximum spans per export batch (default: 512)
//
// # Example Usage
//
//	if err := config.LoadDotEnv(); err != nil {
//	    log.Fatal("Invalid .env file", err)
//	}
//	cfg, err := config.LoadFromEnv()
//	if err != nil {
//	    log.Fatal("Invalid configuration", err)
//	}
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Trace exporter names accepted by OBSERVABILITY_TRACE_EXPORTER.
const (
	TraceExporterConsole = "console"
	TraceExporterOTLP    = "otlp"
)

// Console span destinations accepted by OBSERVABILITY_TRACE_CONSOLE_OUTPUT.
// Any other value is a file path.
const (
	ConsoleOutputStdout = "stdout"
	ConsoleOutputStderr = "stderr"
)

// Default service identity, used when the corresponding variables are unset.
const (
	DefaultServiceName    = "HelloWorldWebServer"
	DefaultServiceVersion = "1.0.0"
	DefaultEnvironment    = "development"
	DefaultHTTPAddr       = ":8080"
)

// Config defines the complete server and observability configuration.
//
// All fields are populated from environment variables during LoadFromEnv().
type Config struct {
	// ServiceName identifies the application (from APP_NAME).
	ServiceName string

	// ServiceVersion is the application version (from APP_VERSION).
	ServiceVersion string

	// Environment specifies the deployment environment (from APP_ENV).
	Environment string

	// DeploymentID is an optional unique identifier for this deployment.
	DeploymentID string

	// HostName is the system hostname, auto-detected if not provided.
	HostName string

	// HTTPAddr is the address the HTTP server listens on.
	HTTPAddr string

	// ShutdownTimeoutSec bounds graceful HTTP shutdown.
	ShutdownTimeoutSec int

	// LogLevel is the minimum zap level name.
	LogLevel string

	// TracingEnabled controls whether spans are recorded and exported.
	TracingEnabled bool

	// MetricsEnabled controls whether metrics are exported.
	MetricsEnabled bool

	// LogsEnabled controls whether logs are exported over OTLP.
	LogsEnabled bool

	// TraceExporter selects the span sink: "console" or "otlp".
	TraceExporter string

	// TraceConsolePretty indents console span output.
	TraceConsolePretty bool

	// TraceConsoleOutput is where console spans go: "stdout", "stderr" or a
	// file path opened for append.
	TraceConsoleOutput string

	// OTLPEndpoint is the OTLP collector endpoint in host:port format.
	// Required when metrics or logs are enabled, or when TraceExporter is "otlp".
	OTLPEndpoint string

	// MetricExportIntervalSec is the interval in seconds between metric exports.
	// Valid range: 1-300. Default: 10.
	MetricExportIntervalSec int

	// TraceSamplingRate determines what fraction of traces to sample.
	// Valid range: 0.0-1.0. An explicit 0 samples nothing. When unset:
	//   - console exporter: 1.0 (every request prints its span)
	//   - development/staging: 1.0 (100%)
	//   - production: 0.1 (10%)
	TraceSamplingRate float64

	// TraceBatchSize is the maximum number of spans per export batch.
	// Default: 512.
	TraceBatchSize int
}

// Common validation errors returned by LoadFromEnv and Validate.
var (
	// ErrInvalidEnvironment indicates APP_ENV has an invalid value.
	ErrInvalidEnvironment = errors.New("APP_ENV must be one of: development, dev, local, staging, stage, test, production, prod")

	// ErrInvalidOTLPEndpoint indicates the OTLP endpoint format is invalid.
	ErrInvalidOTLPEndpoint = errors.New("OBSERVABILITY_OTLP_ENDPOINT must be in format host:port")

	// ErrMissingOTLPEndpoint indicates OTLP endpoint is required but not set.
	ErrMissingOTLPEndpoint = errors.New("OBSERVABILITY_OTLP_ENDPOINT is required when OTLP export is enabled")

	// ErrInvalidTraceExporter indicates OBSERVABILITY_TRACE_EXPORTER is not a known exporter.
	ErrInvalidTraceExporter = errors.New("OBSERVABILITY_TRACE_EXPORTER must be one of: console, otlp")

	// ErrInvalidSamplingRate indicates trace sampling rate is out of valid range.
	ErrInvalidSamplingRate = errors.New("OBSERVABILITY_TRACE_SAMPLING_RATE must be between 0.0 and 1.0")
)

var validEnvs = map[string]bool{
	"development": true,
	"dev":         true,
	"local":       true,
	"staging":     true,
	"stage":       true,
	"test":        true,
	"production":  true,
	"prod":        true,
}

// LoadDotEnv loads variables from the given .env files (default: ".env") without
// overriding variables already present in the environment.
//
// Missing files are ignored so that deployments configured purely through the
// environment need no file on disk. Malformed files are reported.
func LoadDotEnv(filenames ...string) error {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	for _, name := range filenames {
		if err := godotenv.Load(name); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", name, err)
		}
	}
	return nil
}

// LoadFromEnv loads and validates configuration from environment variables.
//
// This function performs strict validation with fail-fast behavior. It will return
// an error if:
//   - APP_ENV contains an invalid environment name
//   - OTLP export is enabled but OBSERVABILITY_OTLP_ENDPOINT is missing or not host:port
//   - OBSERVABILITY_TRACE_EXPORTER names an unknown exporter
//   - Numeric values are out of valid ranges
//
// Example:
//
//	cfg, err := config.LoadFromEnv()
//	if err != nil {
//	    log.Fatal("Configuration error:", err)
//	}
//
//	fmt.Printf("Service: %s v%s\n", cfg.ServiceName, cfg.ServiceVersion)
//	fmt.Printf("Enabled: %v\n", cfg.EnabledComponents())
func LoadFromEnv() (Config, error) {
	environment := getEnvString("APP_ENV", DefaultEnvironment)
	if !validEnvs[strings.ToLower(environment)] {
		return Config{}, fmt.Errorf("%w: got '%s'", ErrInvalidEnvironment, environment)
	}

	cfg := Config{
		ServiceName:             getEnvString("APP_NAME", DefaultServiceName),
		ServiceVersion:          getEnvString("APP_VERSION", DefaultServiceVersion),
		Environment:             environment,
		DeploymentID:            getEnvString("DEPLOYMENT_ID", ""),
		HTTPAddr:                getEnvString("HTTP_ADDR", DefaultHTTPAddr),
		ShutdownTimeoutSec:      getEnvInt("HTTP_SHUTDOWN_TIMEOUT", 30),
		LogLevel:                strings.ToLower(getEnvString("LOG_LEVEL", "info")),
		TracingEnabled:          getEnvBool("OBSERVABILITY_TRACING_ENABLED", true),
		MetricsEnabled:          getEnvBool("OBSERVABILITY_METRICS_ENABLED", false),
		LogsEnabled:             getEnvBool("OBSERVABILITY_LOGS_ENABLED", false),
		TraceExporter:           strings.ToLower(getEnvString("OBSERVABILITY_TRACE_EXPORTER", TraceExporterConsole)),
		TraceConsolePretty:      getEnvBool("OBSERVABILITY_TRACE_CONSOLE_PRETTY", false),
		TraceConsoleOutput:      strings.TrimSpace(getEnvString("OBSERVABILITY_TRACE_CONSOLE_OUTPUT", ConsoleOutputStderr)),
		OTLPEndpoint:            strings.TrimSpace(getEnvString("OBSERVABILITY_OTLP_ENDPOINT", "")),
		MetricExportIntervalSec: getEnvInt("OBSERVABILITY_METRIC_EXPORT_INTERVAL", 10),
		TraceSamplingRate:       getEnvFloat("OBSERVABILITY_TRACE_SAMPLING_RATE", 0),
		TraceBatchSize:          getEnvInt("OBSERVABILITY_TRACE_BATCH_SIZE", 512),
	}

	if cfg.TraceExporter != TraceExporterConsole && cfg.TraceExporter != TraceExporterOTLP {
		return Config{}, fmt.Errorf("%w: got '%s'", ErrInvalidTraceExporter, cfg.TraceExporter)
	}

	if cfg.NeedsOTLP() {
		if cfg.OTLPEndpoint == "" {
			return Config{}, ErrMissingOTLPEndpoint
		}
		if !isValidEndpoint(cfg.OTLPEndpoint) {
			return Config{}, fmt.Errorf("%w: got '%s'", ErrInvalidOTLPEndpoint, cfg.OTLPEndpoint)
		}
	}

	if cfg.TraceSamplingRate < 0.0 || cfg.TraceSamplingRate > 1.0 {
		return Config{}, fmt.Errorf("%w: got %f", ErrInvalidSamplingRate, cfg.TraceSamplingRate)
	}

	cfg = applyDefaults(cfg, isEnvSet("OBSERVABILITY_TRACE_SAMPLING_RATE"))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// MustLoadFromEnv loads configuration from environment or panics on error.
func MustLoadFromEnv() Config {
	cfg, err := LoadFromEnv()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration from environment: %v", err))
	}
	return cfg
}

// Validate verifies that the configuration is internally consistent and complete.
//
// Validation checks include:
//   - Required fields (ServiceName, ServiceVersion, Environment, HTTPAddr) are non-empty
//   - The trace exporter is known
//   - If OTLP export is needed, the endpoint is configured in host:port format
//   - Trace sampling rate is between 0.0 and 1.0
//   - Metric export interval is between 1 and 300 seconds
//   - Batch size and shutdown timeout are positive
//
// Returns nil if validation passes, or an error describing all validation failures.
func (c Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.ServiceName) == "" {
		errs = append(errs, "ServiceName is required")
	}
	if strings.TrimSpace(c.ServiceVersion) == "" {
		errs = append(errs, "ServiceVersion is required")
	}
	if strings.TrimSpace(c.Environment) == "" {
		errs = append(errs, "Environment is required")
	} else if !validEnvs[strings.ToLower(c.Environment)] {
		errs = append(errs, fmt.Sprintf("APP_ENV invalid value '%s'", c.Environment))
	}
	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, "HTTPAddr is required")
	}

	if c.TraceExporter != TraceExporterConsole && c.TraceExporter != TraceExporterOTLP {
		errs = append(errs, fmt.Sprintf("OBSERVABILITY_TRACE_EXPORTER invalid value '%s'", c.TraceExporter))
	}

	if c.NeedsOTLP() {
		if c.OTLPEndpoint == "" {
			errs = append(errs, "OBSERVABILITY_OTLP_ENDPOINT is required when OTLP export is enabled")
		} else if !isValidEndpoint(c.OTLPEndpoint) {
			errs = append(errs, fmt.Sprintf("OBSERVABILITY_OTLP_ENDPOINT invalid format '%s' (expected host:port)", c.OTLPEndpoint))
		}
	}

	if c.TraceSamplingRate < 0.0 || c.TraceSamplingRate > 1.0 {
		errs = append(errs, fmt.Sprintf("OBSERVABILITY_TRACE_SAMPLING_RATE must be 0.0-1.0, got: %f", c.TraceSamplingRate))
	}

	if c.MetricExportIntervalSec < 1 || c.MetricExportIntervalSec > 300 {
		errs = append(errs, fmt.Sprintf("OBSERVABILITY_METRIC_EXPORT_INTERVAL must be 1-300, got: %d", c.MetricExportIntervalSec))
	}

	if c.TraceBatchSize < 1 {
		errs = append(errs, fmt.Sprintf("OBSERVABILITY_TRACE_BATCH_SIZE must be positive, got: %d", c.TraceBatchSize))
	}

	if c.ShutdownTimeoutSec < 1 {
		errs = append(errs, fmt.Sprintf("HTTP_SHUTDOWN_TIMEOUT must be positive, got: %d", c.ShutdownTimeoutSec))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// NeedsOTLP reports whether any enabled component exports over OTLP.
func (c Config) NeedsOTLP() bool {
	return c.MetricsEnabled || c.LogsEnabled || (c.TracingEnabled && c.TraceExporter == TraceExporterOTLP)
}

// IsEnabled returns true if at least one observability component is enabled.
func (c Config) IsEnabled() bool {
	return c.TracingEnabled || c.MetricsEnabled || c.LogsEnabled
}

// EnabledComponents returns the names of enabled observability components.
//
// The returned slice contains zero or more of: "tracing", "metrics", "logs".
//
// Example:
//
//	log.Info("Observability enabled", zap.Strings("components", cfg.EnabledComponents()))
func (c Config) EnabledComponents() []string {
	components := []string{}
	if c.TracingEnabled {
		components = append(components, "tracing")
	}
	if c.MetricsEnabled {
		components = append(components, "metrics")
	}
	if c.LogsEnabled {
		components = append(components, "logs")
	}
	return components
}

// IsDevelopment reports whether the environment is a local/development one.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.Environment) {
	case "development", "dev", "local":
		return true
	}
	return false
}

// applyDefaults fills in default values for unset configuration fields.
//
// Default values:
//   - MetricExportIntervalSec: 10 seconds
//   - TraceBatchSize: 512
//   - TraceSamplingRate: only when samplingRateSet is false (see getDefaultSamplingRate)
//   - TraceConsoleOutput: stderr
//   - HostName: auto-detected from system or HOSTNAME environment variable
func applyDefaults(cfg Config, samplingRateSet bool) Config {
	if cfg.MetricExportIntervalSec == 0 {
		cfg.MetricExportIntervalSec = 10
	}
	if cfg.TraceBatchSize == 0 {
		cfg.TraceBatchSize = 512
	}
	if !samplingRateSet {
		cfg.TraceSamplingRate = getDefaultSamplingRate(cfg.Environment, cfg.TraceExporter)
	}
	if cfg.TraceConsoleOutput == "" {
		cfg.TraceConsoleOutput = ConsoleOutputStderr
	}
	if cfg.HostName == "" {
		cfg.HostName = getHostName()
	}
	return cfg
}

// getDefaultSamplingRate returns the default trace sampling rate.
//
// The console exporter always gets 1.0: it is the local sink and a dropped
// span never shows up anywhere. Otherwise the rate follows the environment:
//   - development, dev, local: 1.0 (100% - sample everything)
//   - staging, stage, test: 1.0 (100% - sample everything)
//   - production, prod: 0.1 (10% - sample 1 in 10 traces)
//   - unknown: 0.05 (5% - conservative default)
func getDefaultSamplingRate(env, exporter string) float64 {
	if exporter == TraceExporterConsole {
		return 1.0
	}
	switch strings.ToLower(env) {
	case "development", "dev", "local":
		return 1.0
	case "staging", "stage", "test":
		return 1.0
	case "production", "prod":
		return 0.1
	default:
		return 0.05
	}
}

// getHostName returns the HOSTNAME variable, then os.Hostname(), then "unknown".
func getHostName() string {
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	if hostname, err := os.Hostname(); err == nil {
		return hostname
	}
	return "unknown"
}

// isValidEndpoint verifies that an endpoint string is in valid host:port format.
func isValidEndpoint(endpoint string) bool {
	parts := strings.Split(endpoint, ":")
	if len(parts) != 2 {
		return false
	}
	if _, err := strconv.Atoi(parts[1]); err != nil {
		return false
	}
	return parts[0] != ""
}

func getEnvString(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool treats "true" (case-insensitive) and "1" as true and any other
// non-empty value as false. Unset variables yield defaultValue.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// isEnvSet reports whether key holds a non-empty value.
func isEnvSet(key string) bool {
	v, ok := os.LookupEnv(key)
	return ok && v != ""
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
