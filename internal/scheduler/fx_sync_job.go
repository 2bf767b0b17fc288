package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/weihanlu/investrack/internal/domain"
	"github.com/weihanlu/investrack/internal/modules/ledger"
	"github.com/weihanlu/investrack/internal/services/marketdata"
)

// FXSyncJob warms the FX cache every morning with today's rate for each
// active ledger currency, so transaction entry during the day never waits
// on the external source.
type FXSyncJob struct {
	ledgerRepo *ledger.Repository
	market     *marketdata.Service
	log        zerolog.Logger
}

// NewFXSyncJob creates the FX warm-up job.
func NewFXSyncJob(ledgerRepo *ledger.Repository, market *marketdata.Service, log zerolog.Logger) *FXSyncJob {
	return &FXSyncJob{
		ledgerRepo: ledgerRepo,
		market:     market,
		log:        log.With().Str("job", "fx_sync").Logger(),
	}
}

// Name implements Job.
func (j *FXSyncJob) Name() string { return "fx-sync" }

// Run fetches today's rate for every active foreign ledger currency. The
// market-data service writes through its cache, so this is a no-op for
// pairs already fetched today.
func (j *FXSyncJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ledgers, err := j.ledgerRepo.ListActiveLedgers()
	if err != nil {
		return err
	}

	today := domain.DateOnly(time.Now()).Format(domain.DateFormat)
	seen := map[string]bool{}
	for i := range ledgers {
		l := &ledgers[i]
		if l.IsHomeCurrency() {
			continue
		}
		pair := string(l.CurrencyCode) + "/" + string(l.HomeCurrency)
		if seen[pair] {
			continue
		}
		seen[pair] = true

		if _, _, err := j.market.GetRate(ctx, l.CurrencyCode, l.HomeCurrency, today); err != nil {
			j.log.Warn().Err(err).Str("pair", pair).Msg("FX warm-up fetch failed")
			continue
		}
		j.log.Debug().Str("pair", pair).Str("date", today).Msg("FX rate warmed")
	}
	return nil
}
