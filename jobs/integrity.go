package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-erp/meridian-erp/internal/db"
)

// IntegrityReport lists rows that violate the bookkeeping invariants.
// Empty slices mean a healthy system.
type IntegrityReport struct {
	UnbalancedJournals []int64 `json:"unbalanced_journals"`
	DriftedAccounts    []int64 `json:"drifted_accounts"`
	CorruptLots        []int64 `json:"corrupt_lots"`
}

// Clean reports whether the scan found no violations.
func (r IntegrityReport) Clean() bool {
	return len(r.UnbalancedJournals) == 0 && len(r.DriftedAccounts) == 0 && len(r.CorruptLots) == 0
}

// IntegrityScanner runs read-only consistency checks over the ledger and the
// stock lots. It never repairs anything; violations are surfaced for humans.
type IntegrityScanner struct {
	reader  db.Queryer
	logger  *slog.Logger
	metrics *Metrics
}

// NewIntegrityScanner constructs the scanner. metrics may be nil.
func NewIntegrityScanner(reader db.Queryer, logger *slog.Logger, metrics *Metrics) *IntegrityScanner {
	return &IntegrityScanner{reader: reader, logger: logger, metrics: metrics}
}

// Scan runs the three invariant checks concurrently.
func (s *IntegrityScanner) Scan(ctx context.Context) (IntegrityReport, error) {
	var report IntegrityReport
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ids, err := s.unbalancedJournals(ctx)
		report.UnbalancedJournals = ids
		return err
	})
	g.Go(func() error {
		ids, err := s.driftedAccounts(ctx)
		report.DriftedAccounts = ids
		return err
	})
	g.Go(func() error {
		ids, err := s.corruptLots(ctx)
		report.CorruptLots = ids
		return err
	})
	if err := g.Wait(); err != nil {
		return IntegrityReport{}, err
	}
	return report, nil
}

// unbalancedJournals finds journals whose entries do not sum to zero within
// the one-cent tolerance, or whose stored totals disagree with their entries.
func (s *IntegrityScanner) unbalancedJournals(ctx context.Context) ([]int64, error) {
	return s.collectIDs(ctx, `
SELECT j.id
FROM journals j
JOIN ledger_entries e ON e.journal_id = j.id
GROUP BY j.id, j.total_debit, j.total_credit
HAVING ABS(SUM(CASE WHEN e.entry_type='DEBIT' THEN e.amount ELSE -e.amount END)) > 0.01
    OR ABS(SUM(CASE WHEN e.entry_type='DEBIT' THEN e.amount ELSE 0 END) - j.total_debit) > 0.01
    OR ABS(SUM(CASE WHEN e.entry_type='CREDIT' THEN e.amount ELSE 0 END) - j.total_credit) > 0.01
ORDER BY j.id`)
}

// driftedAccounts finds accounts whose cached current_balance disagrees with
// a replay of their posted entries under the normal-balance convention.
func (s *IntegrityScanner) driftedAccounts(ctx context.Context) ([]int64, error) {
	return s.collectIDs(ctx, `
SELECT a.id
FROM accounts a
LEFT JOIN ledger_entries e ON e.account_id = a.id
GROUP BY a.id, a.account_type, a.opening_balance, a.current_balance
HAVING ABS(a.current_balance - a.opening_balance - COALESCE(SUM(
  CASE WHEN a.account_type IN ('ASSET','EXPENSE')
       THEN CASE WHEN e.entry_type='DEBIT' THEN e.amount ELSE -e.amount END
       ELSE CASE WHEN e.entry_type='CREDIT' THEN e.amount ELSE -e.amount END
  END), 0)) > 0.01
ORDER BY a.id`)
}

// corruptLots finds movements whose remaining quantity escaped its bounds.
func (s *IntegrityScanner) corruptLots(ctx context.Context) ([]int64, error) {
	return s.collectIDs(ctx, `
SELECT id FROM stock_movements
WHERE remaining_qty < 0 OR remaining_qty > quantity
ORDER BY id`)
}

func (s *IntegrityScanner) collectIDs(ctx context.Context, query string) ([]int64, error) {
	rows, err := s.reader.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// HandleIntegrityScanTask adapts the scanner to an Asynq handler.
func (s *IntegrityScanner) HandleIntegrityScanTask(ctx context.Context, t *asynq.Task) error {
	var payload IntegrityScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := s.metrics.Track(TaskIntegrityScan)
	report, err := s.Scan(ctx)
	if err != nil {
		return tracker.End(err)
	}
	if report.Clean() {
		s.logger.Info("integrity scan clean", slog.String("scan_id", payload.ScanID))
		return tracker.End(nil)
	}
	s.metrics.AddViolations("unbalanced_journals", len(report.UnbalancedJournals))
	s.metrics.AddViolations("drifted_accounts", len(report.DriftedAccounts))
	s.metrics.AddViolations("corrupt_lots", len(report.CorruptLots))
	s.logger.Error("integrity scan found violations",
		slog.String("scan_id", payload.ScanID),
		slog.Any("unbalanced_journals", report.UnbalancedJournals),
		slog.Any("drifted_accounts", report.DriftedAccounts),
		slog.Any("corrupt_lots", report.CorruptLots),
	)
	return tracker.End(nil)
}
