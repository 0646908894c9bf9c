package logging

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// redirectStdout points os.Stdout at a pipe until the returned function is
// called, which restores it and returns what was written.
func redirectStdout(t *testing.T) func() string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)

	orig := os.Stdout
	os.Stdout = w
	t.Cleanup(func() { os.Stdout = orig })

	return func() string {
		require.NoError(t, w.Close())
		os.Stdout = orig
		data, err := io.ReadAll(r)
		require.NoError(t, err)
		return string(data)
	}
}

func TestNew_ProductionWritesJSONToStdout(t *testing.T) {
	read := redirectStdout(t)

	log, err := New(Config{Level: "info", ServiceName: "HelloWorldWebServer"})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("Goodbye endpoint called", zap.String("route", "/goodbye"))
	_ = log.Sync()

	out := read()
	assert.NotContains(t, out, "hidden")

	sc := bufio.NewScanner(strings.NewReader(out))
	require.True(t, sc.Scan())
	var line map[string]any
	require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
	assert.Equal(t, "Goodbye endpoint called", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "/goodbye", line["route"])
	assert.Equal(t, "HelloWorldWebServer", line["service"])
	assert.Equal(t, "production", line["environment"])
	assert.Contains(t, line, "timestamp")
	assert.Contains(t, line["caller"], "logger_test.go")
}

func TestNew_LevelIsCaseInsensitive(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"Warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			log, err := New(Config{Level: tt.level, Development: true, ServiceName: "svc"})
			require.NoError(t, err)
			assert.True(t, log.Core().Enabled(tt.want))
			if tt.want > zapcore.DebugLevel {
				assert.False(t, log.Core().Enabled(tt.want-1))
			}
		})
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{Level: "loud", ServiceName: "svc"})
	assert.Error(t, err)

	_, err = New(Config{Level: "info"})
	assert.Error(t, err, "service name is required")
}

func TestNew_TeesExtraCores(t *testing.T) {
	read := redirectStdout(t)
	core, observed := observer.New(zapcore.DebugLevel)

	log, err := New(Config{Level: "warn", ServiceName: "svc"}, core)
	require.NoError(t, err)

	log.Info("below primary level")
	log.Warn("shipped")
	_ = log.Sync()

	// Each core applies its own level.
	entries := observed.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "shipped", entries[1].Message)

	out := read()
	assert.NotContains(t, out, "below primary level")
	assert.Contains(t, out, "shipped")
}

func TestTee_NoCoresReturnsSameLogger(t *testing.T) {
	log := zap.NewNop()
	assert.Same(t, log, Tee(log))
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, l)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}
