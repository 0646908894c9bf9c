package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"APP_NAME", "APP_VERSION", "APP_ENV", "DEPLOYMENT_ID", "HOSTNAME",
	"HTTP_ADDR", "HTTP_SHUTDOWN_TIMEOUT", "LOG_LEVEL",
	"OBSERVABILITY_TRACING_ENABLED", "OBSERVABILITY_METRICS_ENABLED", "OBSERVABILITY_LOGS_ENABLED",
	"OBSERVABILITY_TRACE_EXPORTER", "OBSERVABILITY_TRACE_CONSOLE_PRETTY", "OBSERVABILITY_TRACE_CONSOLE_OUTPUT", "OBSERVABILITY_OTLP_ENDPOINT",
	"OBSERVABILITY_METRIC_EXPORT_INTERVAL", "OBSERVABILITY_TRACE_SAMPLING_RATE", "OBSERVABILITY_TRACE_BATCH_SIZE",
}

// clearEnv blanks every variable the loader reads; t.Setenv restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOSTNAME", "box-1")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, DefaultServiceName, cfg.ServiceName)
	assert.Equal(t, DefaultServiceVersion, cfg.ServiceVersion)
	assert.Equal(t, DefaultEnvironment, cfg.Environment)
	assert.Equal(t, DefaultHTTPAddr, cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30, cfg.ShutdownTimeoutSec)
	assert.True(t, cfg.TracingEnabled)
	assert.False(t, cfg.MetricsEnabled)
	assert.False(t, cfg.LogsEnabled)
	assert.Equal(t, TraceExporterConsole, cfg.TraceExporter)
	assert.Equal(t, 1.0, cfg.TraceSamplingRate)
	assert.Equal(t, ConsoleOutputStderr, cfg.TraceConsoleOutput)
	assert.Equal(t, 512, cfg.TraceBatchSize)
	assert.Equal(t, 10, cfg.MetricExportIntervalSec)
	assert.Equal(t, "box-1", cfg.HostName)
	assert.False(t, cfg.NeedsOTLP())
	assert.Equal(t, []string{"tracing"}, cfg.EnabledComponents())
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadFromEnv_DefaultSampling(t *testing.T) {
	tests := []struct {
		name     string
		env      string
		exporter string
		want     float64
	}{
		{"production console", "production", "console", 1.0},
		{"production otlp", "production", "otlp", 0.1},
		{"staging otlp", "staging", "otlp", 1.0},
		{"dev otlp", "dev", "otlp", 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("APP_ENV", tt.env)
			t.Setenv("OBSERVABILITY_TRACE_EXPORTER", tt.exporter)
			t.Setenv("OBSERVABILITY_OTLP_ENDPOINT", "localhost:4317")

			cfg, err := LoadFromEnv()
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.TraceSamplingRate)
		})
	}
}

func TestLoadFromEnv_ProductionIsNotDevelopment(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoadFromEnv_ExplicitZeroSamplingIsKept(t *testing.T) {
	clearEnv(t)
	t.Setenv("OBSERVABILITY_TRACE_SAMPLING_RATE", "0")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.TraceSamplingRate)
}

func TestLoadFromEnv_ExplicitSamplingOverridesConsoleDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("OBSERVABILITY_TRACE_SAMPLING_RATE", "0.25")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 0.25, cfg.TraceSamplingRate)
}

func TestLoadFromEnv_ConsoleOutput(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "spans.jsonl")
	t.Setenv("OBSERVABILITY_TRACE_CONSOLE_OUTPUT", " "+path+" ")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, path, cfg.TraceConsoleOutput)
}

func TestLoadFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr error
	}{
		{
			name:    "invalid environment",
			env:     map[string]string{"APP_ENV": "moon"},
			wantErr: ErrInvalidEnvironment,
		},
		{
			name:    "unknown trace exporter",
			env:     map[string]string{"OBSERVABILITY_TRACE_EXPORTER": "zipkin"},
			wantErr: ErrInvalidTraceExporter,
		},
		{
			name:    "otlp traces without endpoint",
			env:     map[string]string{"OBSERVABILITY_TRACE_EXPORTER": "otlp"},
			wantErr: ErrMissingOTLPEndpoint,
		},
		{
			name:    "metrics without endpoint",
			env:     map[string]string{"OBSERVABILITY_METRICS_ENABLED": "true"},
			wantErr: ErrMissingOTLPEndpoint,
		},
		{
			name: "malformed endpoint",
			env: map[string]string{
				"OBSERVABILITY_LOGS_ENABLED":  "1",
				"OBSERVABILITY_OTLP_ENDPOINT": "collector",
			},
			wantErr: ErrInvalidOTLPEndpoint,
		},
		{
			name:    "sampling rate out of range",
			env:     map[string]string{"OBSERVABILITY_TRACE_SAMPLING_RATE": "1.5"},
			wantErr: ErrInvalidSamplingRate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFromEnv()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadFromEnv_OTLPTracesWithEndpoint(t *testing.T) {
	clearEnv(t)
	t.Setenv("OBSERVABILITY_TRACE_EXPORTER", "OTLP")
	t.Setenv("OBSERVABILITY_OTLP_ENDPOINT", "localhost:4317")
	t.Setenv("OBSERVABILITY_METRICS_ENABLED", "true")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, TraceExporterOTLP, cfg.TraceExporter)
	assert.True(t, cfg.NeedsOTLP())
	assert.Equal(t, []string{"tracing", "metrics"}, cfg.EnabledComponents())
}

func TestLoadFromEnv_TracingDisabledIgnoresExporterEndpoint(t *testing.T) {
	clearEnv(t)
	t.Setenv("OBSERVABILITY_TRACING_ENABLED", "false")
	t.Setenv("OBSERVABILITY_TRACE_EXPORTER", "otlp")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.IsEnabled())
	assert.Empty(t, cfg.EnabledComponents())
}

func TestValidate_CollectsAllFailures(t *testing.T) {
	cfg := Config{
		TraceExporter:           "bogus",
		TraceSamplingRate:       2,
		MetricExportIntervalSec: 0,
	}
	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "ServiceName is required")
	assert.Contains(t, msg, "HTTPAddr is required")
	assert.Contains(t, msg, "OBSERVABILITY_TRACE_EXPORTER invalid value 'bogus'")
	assert.Contains(t, msg, "OBSERVABILITY_TRACE_SAMPLING_RATE")
	assert.Contains(t, msg, "OBSERVABILITY_METRIC_EXPORT_INTERVAL")
	assert.Contains(t, msg, "OBSERVABILITY_TRACE_BATCH_SIZE")
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("APP_NAME=from-dotenv\nHTTP_ADDR=:9999\n"), 0o600))

	// Present variables win over the file, even when empty, so APP_NAME must be absent.
	t.Setenv("HTTP_ADDR", ":7000")
	require.NoError(t, os.Unsetenv("APP_NAME"))

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	t.Cleanup(func() { _ = os.Unsetenv("APP_NAME") })

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.ServiceName)
	assert.Equal(t, ":7000", cfg.HTTPAddr)
}

func TestLoadDotEnv_Malformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.env")
	require.NoError(t, os.WriteFile(path, []byte("NOT A VALID LINE WITHOUT EQUALS 'unterminated\n"), 0o600))

	err := LoadDotEnv(path)
	assert.Error(t, err)
}

func TestIsValidEndpoint(t *testing.T) {
	assert.True(t, isValidEndpoint("localhost:4317"))
	assert.False(t, isValidEndpoint("localhost"))
	assert.False(t, isValidEndpoint(":4317"))
	assert.False(t, isValidEndpoint("localhost:port"))
	assert.False(t, isValidEndpoint("http://localhost:4317"))
}
