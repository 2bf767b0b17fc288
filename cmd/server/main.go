// Package main is the entry point for the Investrack server, a household
// multi-currency investment tracker. It loads configuration, opens and
// migrates the database, wires the dependency container, starts the
// background scheduler, and serves the HTTP API until interrupted.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/weihanlu/investrack/internal/config"
	"github.com/weihanlu/investrack/internal/database"
	"github.com/weihanlu/investrack/internal/di"
	"github.com/weihanlu/investrack/internal/scheduler"
	"github.com/weihanlu/investrack/internal/server"
	"github.com/weihanlu/investrack/pkg/logger"
)

const (
	fxSyncSchedule = "0 6 * * *"
	backupSchedule = "30 3 * * *"
)

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

	log.Info().Str("home_currency", string(cfg.HomeCurrency)).Msg("Starting Investrack")

	db, err := database.New(database.Config{
		Driver: database.Driver(cfg.DatabaseDriver),
		Path:   cfg.SQLitePath(),
		DSN:    cfg.DatabaseURL,
		Name:   "investrack",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	ctx := context.Background()
	container, err := di.Wire(ctx, cfg, db, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}

	srv := server.New(cfg, container, log)

	// Background jobs: FX cache warm-up every morning, backup at night
	// when a bucket is configured.
	sched := scheduler.New(log)
	fxJob := scheduler.NewFXSyncJob(container.LedgerRepo, container.MarketData, log)
	if err := sched.AddJob(fxSyncSchedule, fxJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register FX sync job")
	}
	srv.RegisterJob(fxJob)

	if container.BackupService != nil {
		backupJob := scheduler.NewBackupJob(container.BackupService, log)
		if err := sched.AddJob(backupSchedule, backupJob); err != nil {
			log.Fatal().Err(err).Msg("Failed to register backup job")
		}
		srv.RegisterJob(backupJob)
	}

	sched.Start()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
