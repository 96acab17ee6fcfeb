package reports

import (
	"context"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

// LedgerPort supplies the raw trial balance.
type LedgerPort interface {
	TrialBalanceReport(ctx context.Context, asOf *time.Time) (ledger.TrialBalance, error)
}

// Service builds presentation reports over the ledger, with Redis caching
// keyed by a global version that posting bumps.
type Service struct {
	ledger LedgerPort
	cache  *Cache
}

// NewService constructs the reports service. cache may be nil.
func NewService(ledgerPort LedgerPort, cache *Cache) *Service {
	return &Service{ledger: ledgerPort, cache: cache}
}

// TrialBalance returns the grouped trial balance as of the given date, or the
// current position when asOf is nil.
func (s *Service) TrialBalance(ctx context.Context, asOf *time.Time) (GroupedTrialBalance, error) {
	token := ""
	if asOf != nil {
		token = asOf.Format("2006-01-02")
	}
	key, err := s.cache.BuildKey(ctx, keyTrialBalance(token))
	if err != nil {
		return GroupedTrialBalance{}, err
	}
	var out GroupedTrialBalance
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
		raw, err := s.ledger.TrialBalanceReport(ctx, asOf)
		if err != nil {
			return nil, err
		}
		return BuildTrialBalance(raw), nil
	})
	if err != nil {
		return GroupedTrialBalance{}, err
	}
	return out, nil
}

// Invalidate drops cached reports after a posting.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}
