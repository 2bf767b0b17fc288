// Package di wires repositories and services into a single container the
// server and scheduler draw from.
package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/weihanlu/investrack/internal/clients/exchangerate"
	"github.com/weihanlu/investrack/internal/clients/stooq"
	"github.com/weihanlu/investrack/internal/clients/twse"
	"github.com/weihanlu/investrack/internal/config"
	"github.com/weihanlu/investrack/internal/database"
	"github.com/weihanlu/investrack/internal/modules/ledger"
	"github.com/weihanlu/investrack/internal/modules/performance"
	"github.com/weihanlu/investrack/internal/modules/portfolio"
	"github.com/weihanlu/investrack/internal/modules/positions"
	"github.com/weihanlu/investrack/internal/modules/snapshots"
	"github.com/weihanlu/investrack/internal/modules/splits"
	"github.com/weihanlu/investrack/internal/modules/transactions"
	"github.com/weihanlu/investrack/internal/modules/users"
	"github.com/weihanlu/investrack/internal/reliability"
	"github.com/weihanlu/investrack/internal/services/marketdata"
)

// Container is the single source of truth for service instances.
type Container struct {
	DB *database.DB

	// Repositories
	UsersRepo     *users.Repository
	TxRepo        *transactions.Repository
	SplitRepo     *splits.Repository
	LedgerRepo    *ledger.Repository
	PortfolioRepo *portfolio.Repository
	SnapshotRepo  *snapshots.Repository
	MarketCache   *marketdata.Repository

	// Clients
	TWSELimiter *twse.DailyLimiter

	// Services
	MarketData         *marketdata.Service
	Positions          *positions.Calculator
	Valuator           *portfolio.Valuator
	LedgerService      *ledger.Service
	PortfolioService   *portfolio.Service
	TradingService     *portfolio.TradingService
	SnapshotService    *snapshots.Service
	PerformanceService *performance.Service

	// Backups; nil when no bucket is configured.
	BackupService *reliability.BackupService
}

// Wire builds the full dependency graph on top of an opened, migrated
// database. Construction order follows the data flow: clients, market data,
// ledger, valuation, trading, snapshots, performance. The snapshot service
// is wired into the ledger and trading services last because it depends on
// both sides.
func Wire(ctx context.Context, cfg *config.Config, db *database.DB, log zerolog.Logger) (*Container, error) {
	c := &Container{DB: db}

	// Repositories
	c.UsersRepo = users.NewRepository(db, log)
	c.TxRepo = transactions.NewRepository(db, log)
	c.SplitRepo = splits.NewRepository(db, log)
	c.LedgerRepo = ledger.NewRepository(db, log)
	c.PortfolioRepo = portfolio.NewRepository(db, log)
	c.SnapshotRepo = snapshots.NewRepository(db, log)
	c.MarketCache = marketdata.NewRepository(db, log)

	// Market data sources behind the write-through cache
	c.TWSELimiter = twse.NewDailyLimiter(cfg.TWSEDailyLimit)
	twseClient := twse.NewClient(c.TWSELimiter, log)
	stooqClient := stooq.NewClient(log)
	fxClient := exchangerate.NewClient(log)
	c.MarketData = marketdata.NewService(c.MarketCache, twseClient, stooqClient, fxClient, log)

	// Core services
	c.LedgerService = ledger.NewService(c.LedgerRepo, db, c.MarketData, log)
	c.Positions = positions.NewCalculator(c.TxRepo, c.SplitRepo, log)
	c.Valuator = portfolio.NewValuator(c.Positions, c.LedgerRepo, c.MarketData, log)
	c.PortfolioService = portfolio.NewService(c.PortfolioRepo, c.LedgerService, c.Positions, c.Valuator, log)
	c.TradingService = portfolio.NewTradingService(db, c.PortfolioRepo, c.TxRepo, c.LedgerRepo, c.LedgerService, c.MarketData, log)

	// Snapshots close the loop between the ledger and trading sides.
	c.SnapshotService = snapshots.NewService(c.SnapshotRepo, c.PortfolioRepo, c.TxRepo, c.LedgerRepo, c.Valuator, log)
	c.LedgerService.SetSnapshotRecorder(c.SnapshotService)
	c.TradingService.SetSnapshotRecorder(c.SnapshotService)
	c.TradingService.SetBackfiller(c.SnapshotService)

	c.PerformanceService = performance.NewService(
		c.PortfolioRepo, c.PortfolioService, c.TxRepo, c.LedgerRepo, c.Valuator, c.SnapshotService, log,
	)

	if cfg.Backup != nil && cfg.Backup.Bucket != "" {
		s3Client, err := reliability.NewS3Client(ctx, cfg.Backup, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize backup storage: %w", err)
		}
		c.BackupService = reliability.NewBackupService(db, s3Client, cfg.DataDir, cfg.Backup.RetentionDays, log)
	}

	return c, nil
}
