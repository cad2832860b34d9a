package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"polar-flow-sync/internal/analytics"
	"polar-flow-sync/internal/config"
	"polar-flow-sync/internal/database"
	"polar-flow-sync/internal/handlers"
	"polar-flow-sync/internal/polar"
	"polar-flow-sync/internal/scheduler"
	"polar-flow-sync/internal/syncer"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Set up logger
	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting polar-flow-sync server",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.DatabasePath,
		"log_level", cfg.LogLevel,
		"sync_enabled", cfg.SyncEnabled)

	// Open database (applies the schema on first run)
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("Database opened successfully")

	// Core components
	tracker := polar.NewRateLimitTracker(
		time.Duration(cfg.RateLimitShortWindowMinutes)*time.Minute,
		cfg.RateLimitShortCeiling,
		cfg.RateLimitLongCeiling,
	)
	client := polar.NewClient(cfg.PolarAPIBaseURL, time.Duration(cfg.SyncEndpointTimeout)*time.Second, logger)
	engine := analytics.NewEngine(db, logger)
	executor := syncer.NewExecutor(db, client, tracker, engine,
		time.Duration(cfg.SyncEndpointTimeout)*time.Second, logger)
	sched := scheduler.New(db, executor, tracker, scheduler.Options{
		Interval:       time.Duration(cfg.SyncInterval) * time.Minute,
		MaxUsersPerRun: cfg.SyncMaxUsersPerRun,
		Stagger:        time.Duration(cfg.SyncStaggerMs) * time.Millisecond,
		SyncOnStartup:  cfg.SyncOnStartup,
	}, logger)

	// HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handlers.NewRouter(cfg, db, engine, sched, tracker),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // manual syncs run the fetch phase inline
		IdleTimeout:  120 * time.Second,
	}

	// Start scheduler in background
	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()

	var schedDone sync.WaitGroup
	if cfg.SyncEnabled {
		schedDone.Add(1)
		go func() {
			defer schedDone.Done()
			sched.Run(schedCtx)
		}()
	}

	// Start metrics server if enabled
	var metricsServer *http.Server
	if cfg.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())

		metricsAddr := fmt.Sprintf("%s:%d", cfg.MetricsHost, cfg.MetricsPort)
		metricsServer = &http.Server{
			Addr:    metricsAddr,
			Handler: metricsMux,
		}

		go func() {
			logger.Info("Metrics server listening", "addr", metricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Start HTTP server in background
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down gracefully...")

	// Stop the scheduler and wait for in-flight syncs to finish their
	// current endpoint rather than aborting mid-write
	schedCancel()
	schedDone.Wait()

	// Shutdown HTTP servers with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown failed", "error", err)
		}
	}

	logger.Info("Server stopped")
}
