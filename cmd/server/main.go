// Package main is the entry point for the tradeguard pre-trade risk engine.
// It serves trade validation, execution recording and profit-taking over HTTP
// and runs the ledger background jobs.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/tradeguard/internal/config"
	"github.com/aristath/tradeguard/internal/di"
	"github.com/aristath/tradeguard/internal/server"
	"github.com/aristath/tradeguard/pkg/logger"
)

// main orchestrates startup:
// 1. Loads configuration (.env, environment, optional risk settings file)
// 2. Initializes logging
// 3. Wires the ledger, managers and jobs via the DI container
// 4. Starts the HTTP server and the scheduler
// 5. Waits for SIGINT/SIGTERM and shuts down gracefully
func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Int("port", cfg.Port).
		Msg("Starting tradeguard")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	// WAL checkpoints are written on close
	defer container.Close()

	complianceCfg, err := cfg.Risk.ComplianceConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid compliance configuration")
	}

	srv := server.New(server.Config{
		Log:         log,
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
		DataDir:     cfg.DataDir,
		LedgerDB:    container.LedgerDB,
		RiskHandler: container.RiskHandler,
		Metrics:     container.Metrics,
		Scheduler:   container.Scheduler,
		Calendar:    container.Calendar,
		Location:    complianceCfg.Location,
		Clock:       container.Clock,
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Settle anything that matured while the process was down before serving traffic
	if err := container.Scheduler.RunByName("settlement_sweep"); err != nil {
		log.Warn().Err(err).Msg("Initial settlement sweep failed")
	}
	container.Scheduler.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	container.Scheduler.Stop()

	log.Info().Msg("tradeguard stopped")
}
