package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/meridianlabs/toolbridge/internal/bridge"
	"github.com/meridianlabs/toolbridge/internal/config"
)

var (
	version    = flag.Bool("version", false, "Print version and exit")
	configPath = flag.String("config", "", "Path to the bridge YAML config file (required)")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Println("Toolbridge Server v0.1.0")
		os.Exit(0)
	}

	if *configPath == "" {
		log.Fatal("-config is required")
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logLevel := slog.LevelInfo
	switch cfg.Server.Logging.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var baseHandler slog.Handler
	opts := &slog.HandlerOptions{Level: logLevel}
	if cfg.Server.Logging.Format == "json" {
		baseHandler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		baseHandler = slog.NewTextHandler(os.Stderr, opts)
	}

	// This first logger has no admin broker yet: the broker is built as part of
	// the bridge, so the eventual broadcasting handler is wired in right
	// after.
	logger := slog.New(baseHandler)

	b, err := bridge.New(cfg, logger)
	if err != nil {
		log.Fatalf("building bridge: %v", err)
	}
	logger = slog.New(b.LogHandler(baseHandler))
	slog.SetDefault(logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: b.HTTP.Handler(),
	}

	logger.Info("starting toolbridge server",
		"version", "0.1.0",
		"addr", addr,
		"tenants", len(cfg.Server.APISpaces),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-sigChan:
		logger.Info("received shutdown signal")
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server error", "error", err)
		}
	}

	logger.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), bridge.ShutdownGrace)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown did not complete cleanly", "error", err)
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), bridge.ShutdownGrace)
	defer drainCancel()
	b.Shutdown(drainCtx)

	logger.Info("toolbridge shutdown complete")
}
