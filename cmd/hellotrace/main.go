// cmd/hellotrace/main.go
//
// # HelloWorldWebServer
//
// Serves three demo endpoints, each traced as one server span:
//   - GET  /hello?message=<m>  -> "Hello World!!!"
//   - GET  /goodbye            -> "Goodbye World! :)"
//   - POST /hellojson          -> {"Echo": <message>}
//
// Logs go to stdout. Spans are written as JSON lines on stderr by default
// (OBSERVABILITY_TRACE_CONSOLE_OUTPUT picks stdout, stderr or a file), or sent
// to an OTLP collector with OBSERVABILITY_TRACE_EXPORTER=otlp. A local .env
// file is loaded when present.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/gath-stack/hellotrace"
	"github.com/gath-stack/hellotrace/internal/api"
	"github.com/gath-stack/hellotrace/internal/config"
	"github.com/gath-stack/hellotrace/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "hellotrace: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ========================================
	// 1. Configuration
	// ========================================
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	// ========================================
	// 2. Logger
	// ========================================
	log, err := logging.New(logging.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	// ========================================
	// 3. Observability Stack
	// ========================================
	stack, err := hellotrace.NewWithConfig(cfg, log, nil)
	if err != nil {
		log.Error("Failed to initialize observability", zap.Error(err))
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := stack.Shutdown(shutdownCtx); err != nil {
			log.Error("Failed to shutdown observability", zap.Error(err))
		}
	}()

	level, _ := logging.ParseLevel(cfg.LogLevel)
	if core := stack.LogsCore(level); core != nil {
		log = logging.Tee(log, core)
		log.Info("Logs export is ACTIVE")
	}

	log.Info("Observability initialized",
		zap.Strings("components", cfg.EnabledComponents()),
		zap.String("trace_exporter", cfg.TraceExporter),
		zap.Float64("trace_sampling_rate", cfg.TraceSamplingRate))

	// ========================================
	// 4. HTTP Server
	// ========================================
	handlers := api.NewHandlers(log, stack.Echo)
	router := api.NewRouter(log, handlers, stack.HTTPObservabilityMiddleware())

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting",
			zap.String("addr", server.Addr),
			zap.String("service", cfg.ServiceName),
			zap.String("version", cfg.ServiceVersion))
		serverErrors <- server.ListenAndServe()
	}()

	// ========================================
	// 5. Wait for shutdown signal
	// ========================================
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", zap.Error(err))
			return err
		}
	case sig := <-quit:
		log.Info("Received shutdown signal", zap.String("signal", sig.String()))
	}

	// ========================================
	// 6. Graceful Shutdown
	// ========================================
	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSec)*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		_ = server.Close()
	}

	log.Info("Server exited gracefully")
	return nil
}
