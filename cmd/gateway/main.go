package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/lifecycle-gateway/internal/config"
	"github.com/tjfontaine/lifecycle-gateway/internal/interceptor"
	"github.com/tjfontaine/lifecycle-gateway/internal/metrics"
	"github.com/tjfontaine/lifecycle-gateway/internal/server"
	"github.com/tjfontaine/lifecycle-gateway/internal/telemetry"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	configPath := flag.String("config", envOr("GATEWAY_CONFIG", "config.yaml"), "path to the gateway config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(cfg.Telemetry.ServiceName, os.Stdout, logger)
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()
	}

	pluginCfg, err := interceptor.ParseConfig(cfg.Plugin)
	if err != nil {
		var fieldErr *interceptor.FieldError
		if errors.As(err, &fieldErr) {
			logger.Error("plugin configuration rejected",
				slog.Any("fields", fieldErr.Fields),
				slog.String("reason", fieldErr.Reason),
			)
		} else {
			logger.Error("plugin configuration rejected", slog.String("error", err.Error()))
		}
		os.Exit(1)
	}

	var m *metrics.Metrics
	opts := []interceptor.Option{interceptor.WithLogger(logger)}
	if cfg.Metrics.Enabled {
		m = metrics.New()
		opts = append(opts, interceptor.WithRecorder(m))
	}
	plugin := interceptor.New(pluginCfg, opts...)

	srv, err := server.New(cfg, logger, plugin, m)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	case <-sigChan:
	}

	logger.Info("Shutdown signal received, stopping gateway...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Gateway shutdown complete")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
