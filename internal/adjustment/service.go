package adjustment

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/db"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/sequence"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/stock"
)

// StockPort moves inventory for the adjustment.
type StockPort interface {
	Receive(ctx context.Context, tx pgx.Tx, in stock.ReceiveInput) (int64, error)
	Consume(ctx context.Context, tx pgx.Tx, in stock.ConsumeInput) (stock.Consumption, error)
}

// LedgerPort posts the valuation journal.
type LedgerPort interface {
	PostJournal(ctx context.Context, tx pgx.Tx, input ledger.PostingInput) (ledger.Journal, error)
	ResyncJournalNumbers(ctx context.Context) error
}

// NumberPort allocates and repairs document numbers.
type NumberPort interface {
	Allocate(ctx context.Context, tx pgx.Tx, name string) (string, error)
	Resync(ctx context.Context, tx pgx.Tx, name string, floor int64) error
}

// MappingPort resolves posting roles to ledger accounts.
type MappingPort interface {
	Resolve(ctx context.Context, q db.Queryer, module string, keys []string) (map[string]int64, error)
}

// GuardPort reserves idempotency keys inside the transaction.
type GuardPort interface {
	Reserve(ctx context.Context, tx pgx.Tx, key, module string) error
}

// AuditPort records committed operations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReportInvalidator drops cached report snapshots once a posting commits.
type ReportInvalidator interface {
	Invalidate(ctx context.Context) error
}

const mappingModule = "INVENTORY"

// Service records stock adjustments. An increase books a new lot and debits
// inventory; a decrease consumes FIFO lots and credits inventory, with the
// offset going to the stock-adjustment account. The stock move and the
// valuation journal always commit together.
type Service struct {
	repo        TxRepository
	runner      db.TxRunner
	seq         NumberPort
	stock       StockPort
	ledger      LedgerPort
	mappings    MappingPort
	guard       GuardPort
	audit       AuditPort
	invalidator ReportInvalidator
	now         func() time.Time
}

// NewService constructs the adjustment orchestrator.
func NewService(repo TxRepository, runner db.TxRunner, seq NumberPort, stockPort StockPort, ledgerPort LedgerPort, mappings MappingPort, guard GuardPort, audit AuditPort) *Service {
	return &Service{
		repo:     repo,
		runner:   runner,
		seq:      seq,
		stock:    stockPort,
		ledger:   ledgerPort,
		mappings: mappings,
		guard:    guard,
		audit:    audit,
		now:      time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithReportInvalidator attaches the report cache so a committed adjustment
// drops stale snapshots.
func (s *Service) WithReportInvalidator(inv ReportInvalidator) {
	s.invalidator = inv
}

// Adjust records one stock correction atomically.
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (Adjustment, error) {
	if input.ProductID == 0 {
		return Adjustment{}, fmt.Errorf("adjustment: product required: %w", shared.ErrNotFound)
	}
	if input.Quantity.Sign() <= 0 {
		return Adjustment{}, fmt.Errorf("adjustment: quantity must be positive: %w", shared.ErrInvalidAmount)
	}
	if input.Direction == DirectionIncrease && input.UnitCost.Sign() <= 0 {
		return Adjustment{}, fmt.Errorf("adjustment: increases need a unit cost: %w", shared.ErrInvalidAmount)
	}
	if input.Direction != DirectionIncrease && input.Direction != DirectionDecrease {
		return Adjustment{}, fmt.Errorf("adjustment: unknown direction %q: %w", input.Direction, shared.ErrInvalidAmount)
	}

	var adj Adjustment
	err := shared.RetryOnDuplicateNumber(ctx, func(ctx context.Context) error {
		return s.runner.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			posted, err := s.adjustTx(ctx, tx, input)
			if err != nil {
				return err
			}
			adj = posted
			return nil
		})
	}, s.resyncAdjustmentNumbers)
	if err != nil {
		return Adjustment{}, err
	}
	if s.invalidator != nil {
		_ = s.invalidator.Invalidate(ctx)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "stock.adjust",
			Entity:   "stock_adjustment",
			EntityID: fmt.Sprintf("%d", adj.ID),
			Meta:     map[string]any{"number": adj.Number, "direction": string(adj.Direction), "value": adj.Value.String()},
			At:       s.now(),
		})
	}
	return adj, nil
}

func (s *Service) adjustTx(ctx context.Context, tx pgx.Tx, input AdjustInput) (Adjustment, error) {
	if input.IdempotencyKey != "" {
		if err := s.guard.Reserve(ctx, tx, input.IdempotencyKey, "adjustment"); err != nil {
			return Adjustment{}, err
		}
	}

	number, err := s.seq.Allocate(ctx, tx, sequence.NameStockAdjust)
	if err != nil {
		return Adjustment{}, err
	}
	accounts, err := s.mappings.Resolve(ctx, tx, mappingModule, []string{
		ledger.MappingInventory,
		ledger.MappingAdjustmentOffset,
	})
	if err != nil {
		return Adjustment{}, err
	}

	adj := Adjustment{
		Number:    number,
		Date:      input.Date,
		ProductID: input.ProductID,
		Direction: input.Direction,
		Quantity:  input.Quantity,
		Reason:    input.Reason,
	}
	adj, err = s.repo.InsertAdjustment(ctx, tx, adj)
	if err != nil {
		return Adjustment{}, err
	}

	var value, unitCost decimal.Decimal
	if input.Direction == DirectionIncrease {
		unitCost = input.UnitCost
		value = input.Quantity.Mul(input.UnitCost)
		if _, err := s.stock.Receive(ctx, tx, stock.ReceiveInput{
			ProductID:     input.ProductID,
			Quantity:      input.Quantity,
			UnitCost:      input.UnitCost,
			Type:          stock.MovementAdjustment,
			ReferenceType: "adjustment",
			ReferenceID:   adj.ID,
		}); err != nil {
			return Adjustment{}, err
		}
	} else {
		movementType := stock.MovementAdjustment
		if input.Damage {
			movementType = stock.MovementDamage
		}
		consumption, err := s.stock.Consume(ctx, tx, stock.ConsumeInput{
			ProductID:     input.ProductID,
			Quantity:      input.Quantity,
			Type:          movementType,
			ReferenceType: "adjustment",
			ReferenceID:   adj.ID,
		})
		if err != nil {
			return Adjustment{}, err
		}
		value = consumption.TotalCost
		unitCost = consumption.AverageCost()
	}

	var entries []ledger.PostingEntryInput
	if input.Direction == DirectionIncrease {
		entries = []ledger.PostingEntryInput{
			{AccountID: accounts[ledger.MappingInventory], Type: ledger.EntryDebit, Amount: value, ReferenceType: "adjustment", ReferenceID: adj.ID},
			{AccountID: accounts[ledger.MappingAdjustmentOffset], Type: ledger.EntryCredit, Amount: value, ReferenceType: "adjustment", ReferenceID: adj.ID},
		}
	} else {
		entries = []ledger.PostingEntryInput{
			{AccountID: accounts[ledger.MappingAdjustmentOffset], Type: ledger.EntryDebit, Amount: value, ReferenceType: "adjustment", ReferenceID: adj.ID},
			{AccountID: accounts[ledger.MappingInventory], Type: ledger.EntryCredit, Amount: value, ReferenceType: "adjustment", ReferenceID: adj.ID},
		}
	}

	journal, err := s.ledger.PostJournal(ctx, tx, ledger.PostingInput{
		Date:      input.Date,
		Type:      ledger.JournalTypeAdjustment,
		Narration: adjustmentNarration(input.Reason, number),
		Entries:   entries,
	})
	if err != nil {
		return Adjustment{}, err
	}
	if err := s.repo.FinalizeAdjustment(ctx, tx, adj.ID, journal.ID, value, unitCost); err != nil {
		return Adjustment{}, err
	}
	adj.JournalID = journal.ID
	adj.Value = value
	adj.UnitCost = unitCost
	return adj, nil
}

func (s *Service) resyncAdjustmentNumbers(ctx context.Context) error {
	err := s.runner.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		highest, err := s.repo.MaxAdjustmentNumber(ctx, tx)
		if err != nil {
			return err
		}
		return s.seq.Resync(ctx, tx, sequence.NameStockAdjust, highest)
	})
	if err != nil {
		return err
	}
	return s.ledger.ResyncJournalNumbers(ctx)
}

func adjustmentNarration(reason, number string) string {
	if reason != "" {
		return reason
	}
	return fmt.Sprintf("Stock adjustment %s", number)
}
