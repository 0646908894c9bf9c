// Package logging builds the process zap logger on top of gologger.
//
// gologger owns the encoders and the stdout sink: JSON in production, a
// colorized console in development. Every entry carries the service and
// environment fields.
package logging

import (
	"fmt"
	"strings"

	logger "github.com/gath-stack/gologger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config defines logger configuration.
type Config struct {
	Level       string // "debug", "info", "warn", "error" (case-insensitive)
	Development bool
	ServiceName string
}

// New creates a logger writing to stdout.
//
// Extra cores are teed with the primary one, which is how the OTLP log bridge
// is attached.
func New(cfg Config, extra ...zapcore.Core) (*zap.Logger, error) {
	env := logger.EnvProduction
	if cfg.Development {
		env = logger.EnvDevelopment
	}

	l, err := logger.New(logger.Config{
		Level:       logger.LogLevel(strings.ToUpper(cfg.Level)),
		Environment: env,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		return nil, err
	}

	// gologger skips one frame for its package-level helpers; callers here
	// use the zap methods directly.
	return Tee(l.WithOptions(zap.AddCallerSkip(-1)), extra...), nil
}

// Tee returns log with cores attached next to its own core. Each core keeps
// its own level.
func Tee(log *zap.Logger, cores ...zapcore.Core) *zap.Logger {
	if len(cores) == 0 {
		return log
	}
	return log.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(append([]zapcore.Core{core}, cores...)...)
	}))
}

// ParseLevel converts a level name to zapcore.Level.
func ParseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}
