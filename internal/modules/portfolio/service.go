package portfolio

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/weihanlu/investrack/internal/domain"
	"github.com/weihanlu/investrack/internal/modules/ledger"
	"github.com/weihanlu/investrack/internal/modules/positions"
)

// Service orchestrates portfolio operations: ownership checks, ledger
// binding, holdings, and valuations.
type Service struct {
	repo      *Repository
	ledgers   *ledger.Service
	positions *positions.Calculator
	valuator  *Valuator
	log       zerolog.Logger
}

// NewService creates a portfolio service.
func NewService(repo *Repository, ledgers *ledger.Service, pos *positions.Calculator, valuator *Valuator, log zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		ledgers:   ledgers,
		positions: pos,
		valuator:  valuator,
		log:       log.With().Str("service", "portfolio").Logger(),
	}
}

// Create creates a portfolio for the user.
func (s *Service) Create(userID, displayName string, base, home domain.Currency) (*Portfolio, error) {
	p := &Portfolio{
		UserID:       userID,
		DisplayName:  displayName,
		BaseCurrency: base,
		HomeCurrency: home,
	}
	if err := s.repo.Create(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Get retrieves a portfolio and verifies ownership.
func (s *Service) Get(userID, portfolioID string) (*Portfolio, error) {
	p, err := s.repo.GetByID(portfolioID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, domain.AccessDeniedf("portfolio %s does not belong to the caller", portfolioID)
	}
	return p, nil
}

// List retrieves the user's portfolios.
func (s *Service) List(userID string) ([]Portfolio, error) {
	return s.repo.ListByUser(userID)
}

// Rename updates the display name after an ownership check.
func (s *Service) Rename(userID, portfolioID, displayName string) error {
	if _, err := s.Get(userID, portfolioID); err != nil {
		return err
	}
	return s.repo.Rename(portfolioID, displayName)
}

// BindLedger binds a currency ledger to the portfolio, or unbinds when
// ledgerID is empty. Both sides must belong to the caller.
func (s *Service) BindLedger(userID, portfolioID, ledgerID string) error {
	if _, err := s.Get(userID, portfolioID); err != nil {
		return err
	}
	if ledgerID != "" {
		if _, err := s.ledgers.GetLedger(userID, ledgerID); err != nil {
			return err
		}
	}
	return s.repo.BindLedger(portfolioID, ledgerID)
}

// Holdings returns the split-adjusted positions: open holdings first,
// then positions sold out entirely, kept for their realized P&L.
func (s *Service) Holdings(userID, portfolioID string) ([]positions.Position, error) {
	if _, err := s.Get(userID, portfolioID); err != nil {
		return nil, err
	}
	return s.positions.Positions(portfolioID)
}

// Value computes the portfolio value as of date, including the bound
// ledger's balance. The balance is taken as-is even when negative.
func (s *Service) Value(ctx context.Context, userID, portfolioID, date string) (*Valuation, error) {
	p, err := s.Get(userID, portfolioID)
	if err != nil {
		return nil, err
	}
	if date == "" {
		date = domain.DateOnly(time.Now()).Format(domain.DateFormat)
	}
	return s.valuator.ValueAt(ctx, p, date, ValueOptions{})
}
