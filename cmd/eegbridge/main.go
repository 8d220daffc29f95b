// Package main runs the EEG bridge: it reads samples from a serial device,
// estimates band powers and pushes them to WebSocket subscribers.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Siddamnn/SpeakMind/component"
	"github.com/Siddamnn/SpeakMind/metric"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "eegbridge"
)

const healthInterval = 15 * time.Second

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := setupLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("Starting EEG bridge",
		"version", Version,
		"build_time", BuildTime,
		"serial_port", cfg.SerialPort,
		"ws_port", cfg.WSPort,
		"status_port", cfg.StatusPort,
		"reconnect", cfg.SerialReconnect)

	deps := &component.Dependencies{
		MetricsRegistry: metric.NewMetricsRegistry(),
		Logger:          logger,
	}

	a, err := newApp(cfg, deps, nil)
	if err != nil {
		return err
	}

	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := a.start(signalCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	logger.Info("EEG bridge started", "ws_address", a.hub.Addr())

	g, gctx := errgroup.WithContext(signalCtx)
	g.Go(func() error { return a.watchHealth(gctx, healthInterval) })
	_ = g.Wait()
	logger.Info("Received shutdown signal")

	if err := a.stop(); err != nil {
		// the process is exiting on a signal either way
		logger.Warn("Shutdown incomplete", "error", err)
	}
	logger.Info("EEG bridge shutdown complete")
	return nil
}
