package purchasing

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

// StockPort records incoming lots.
type StockPort interface {
	Receive(ctx context.Context, tx pgx.Tx, in stock.ReceiveInput) (int64, error)
}

// LedgerPort posts the balanced purchase journal.
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

const mappingModule = "PURCHASING"

// Service records purchases: one transaction per bill covering the number,
// the received lots, and the journal (inventory and tax debited, cash or
// payable credited).
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

// NewService constructs the purchasing orchestrator.
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

// WithReportInvalidator attaches the report cache so a committed bill drops
// stale snapshots.
func (s *Service) WithReportInvalidator(inv ReportInvalidator) {
	s.invalidator = inv
}

// RecordPurchase posts a purchase bill and its goods receipt atomically.
func (s *Service) RecordPurchase(ctx context.Context, input RecordPurchaseInput) (Bill, error) {
	if len(input.Lines) == 0 {
		return Bill{}, fmt.Errorf("purchasing: at least one line required: %w", shared.ErrInvalidAmount)
	}
	for idx, line := range input.Lines {
		if line.ProductID == 0 {
			return Bill{}, fmt.Errorf("purchasing: line %d missing product: %w", idx, shared.ErrNotFound)
		}
		if line.Quantity.Sign() <= 0 || line.UnitCost.Sign() < 0 {
			return Bill{}, fmt.Errorf("purchasing: line %d invalid quantity or cost: %w", idx, shared.ErrInvalidAmount)
		}
	}
	if input.Tax.Sign() < 0 {
		return Bill{}, fmt.Errorf("purchasing: negative tax: %w", shared.ErrInvalidAmount)
	}
	if input.Payment == "" {
		input.Payment = PaymentCredit
	}

	var bill Bill
	err := shared.RetryOnDuplicateNumber(ctx, func(ctx context.Context) error {
		return s.runner.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			posted, err := s.recordPurchaseTx(ctx, tx, input)
			if err != nil {
				return err
			}
			bill = posted
			return nil
		})
	}, s.resyncBillNumbers)
	if err != nil {
		return Bill{}, err
	}
	if s.invalidator != nil {
		_ = s.invalidator.Invalidate(ctx)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "purchase.record",
			Entity:   "purchase_bill",
			EntityID: fmt.Sprintf("%d", bill.ID),
			Meta:     map[string]any{"number": bill.Number, "total": bill.Total.String()},
			At:       s.now(),
		})
	}
	return bill, nil
}

func (s *Service) recordPurchaseTx(ctx context.Context, tx pgx.Tx, input RecordPurchaseInput) (Bill, error) {
	if input.IdempotencyKey != "" {
		if err := s.guard.Reserve(ctx, tx, input.IdempotencyKey, "purchasing"); err != nil {
			return Bill{}, err
		}
	}

	number, err := s.seq.Allocate(ctx, tx, sequence.NamePurchaseBill)
	if err != nil {
		return Bill{}, err
	}

	accounts, err := s.mappings.Resolve(ctx, tx, mappingModule, []string{
		ledger.MappingCash,
		ledger.MappingPayable,
		ledger.MappingInventory,
		ledger.MappingTaxReceivable,
	})
	if err != nil {
		return Bill{}, err
	}

	subtotal := decimal.Zero
	for _, line := range input.Lines {
		subtotal = subtotal.Add(line.Quantity.Mul(line.UnitCost))
	}
	total := subtotal.Add(input.Tax)

	bill, err := s.repo.InsertBill(ctx, tx, Bill{
		Number:     number,
		SupplierID: input.SupplierID,
		Date:       input.Date,
		Payment:    input.Payment,
		Subtotal:   subtotal,
		Tax:        input.Tax,
		Total:      total,
	})
	if err != nil {
		return Bill{}, err
	}

	lines := make([]BillLine, 0, len(input.Lines))
	for _, line := range input.Lines {
		lotID, err := s.stock.Receive(ctx, tx, stock.ReceiveInput{
			ProductID:     line.ProductID,
			Quantity:      line.Quantity,
			UnitCost:      line.UnitCost,
			Type:          stock.MovementIn,
			ReferenceType: "purchase",
			ReferenceID:   bill.ID,
		})
		if err != nil {
			return Bill{}, err
		}
		lines = append(lines, BillLine{
			BillID:    bill.ID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitCost:  line.UnitCost,
			LineTotal: line.Quantity.Mul(line.UnitCost),
			LotID:     lotID,
		})
	}
	if err := s.repo.InsertBillLines(ctx, tx, bill.ID, lines); err != nil {
		return Bill{}, err
	}

	entries := []ledger.PostingEntryInput{
		{AccountID: accounts[ledger.MappingInventory], Type: ledger.EntryDebit, Amount: subtotal, ReferenceType: "purchase", ReferenceID: bill.ID},
		{AccountID: payingAccount(accounts, input.Payment), Type: ledger.EntryCredit, Amount: total, ReferenceType: "purchase", ReferenceID: bill.ID},
	}
	if input.Tax.Sign() > 0 {
		entries = append(entries, ledger.PostingEntryInput{
			AccountID: accounts[ledger.MappingTaxReceivable], Type: ledger.EntryDebit, Amount: input.Tax,
			ReferenceType: "purchase", ReferenceID: bill.ID,
		})
	}

	journal, err := s.ledger.PostJournal(ctx, tx, ledger.PostingInput{
		Date:      input.Date,
		Type:      ledger.JournalTypePurchase,
		Narration: purchaseNarration(input.Narration, number),
		Entries:   entries,
	})
	if err != nil {
		return Bill{}, err
	}
	if err := s.repo.SetBillJournal(ctx, tx, bill.ID, journal.ID); err != nil {
		return Bill{}, err
	}
	bill.JournalID = journal.ID
	bill.Lines = lines
	return bill, nil
}

func (s *Service) resyncBillNumbers(ctx context.Context) error {
	err := s.runner.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		highest, err := s.repo.MaxBillNumber(ctx, tx)
		if err != nil {
			return err
		}
		return s.seq.Resync(ctx, tx, sequence.NamePurchaseBill, highest)
	})
	if err != nil {
		return err
	}
	return s.ledger.ResyncJournalNumbers(ctx)
}

func payingAccount(accounts map[string]int64, payment PaymentKind) int64 {
	if payment == PaymentCash {
		return accounts[ledger.MappingCash]
	}
	return accounts[ledger.MappingPayable]
}

func purchaseNarration(narration, number string) string {
	if narration != "" {
		return narration
	}
	return fmt.Sprintf("Purchase %s", number)
}
