package expense

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/meridian-erp/meridian-erp/internal/db"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/sequence"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// LedgerPort posts the balanced expense journal.
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

const mappingModule = "EXPENSE"

// Service records expense vouchers: number, voucher row, and journal
// (expense and tax debited, cash or payable credited) in one transaction.
// No stock moves.
type Service struct {
	repo        TxRepository
	runner      db.TxRunner
	seq         NumberPort
	ledger      LedgerPort
	mappings    MappingPort
	guard       GuardPort
	audit       AuditPort
	invalidator ReportInvalidator
	now         func() time.Time
}

// NewService constructs the expense orchestrator.
func NewService(repo TxRepository, runner db.TxRunner, seq NumberPort, ledgerPort LedgerPort, mappings MappingPort, guard GuardPort, audit AuditPort) *Service {
	return &Service{
		repo:     repo,
		runner:   runner,
		seq:      seq,
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

// WithReportInvalidator attaches the report cache so a committed voucher
// drops stale snapshots.
func (s *Service) WithReportInvalidator(inv ReportInvalidator) {
	s.invalidator = inv
}

// RecordExpense posts an expense voucher atomically.
func (s *Service) RecordExpense(ctx context.Context, input RecordExpenseInput) (Expense, error) {
	if input.ExpenseAccountID == 0 {
		return Expense{}, fmt.Errorf("expense: account required: %w", shared.ErrNotFound)
	}
	if input.Amount.Sign() <= 0 || input.Tax.Sign() < 0 {
		return Expense{}, fmt.Errorf("expense: invalid amount: %w", shared.ErrInvalidAmount)
	}
	if input.Payment == "" {
		input.Payment = PaymentCash
	}

	var voucher Expense
	err := shared.RetryOnDuplicateNumber(ctx, func(ctx context.Context) error {
		return s.runner.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			posted, err := s.recordExpenseTx(ctx, tx, input)
			if err != nil {
				return err
			}
			voucher = posted
			return nil
		})
	}, s.resyncExpenseNumbers)
	if err != nil {
		return Expense{}, err
	}
	if s.invalidator != nil {
		_ = s.invalidator.Invalidate(ctx)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "expense.record",
			Entity:   "expense",
			EntityID: fmt.Sprintf("%d", voucher.ID),
			Meta:     map[string]any{"number": voucher.Number, "total": voucher.Total.String()},
			At:       s.now(),
		})
	}
	return voucher, nil
}

func (s *Service) recordExpenseTx(ctx context.Context, tx pgx.Tx, input RecordExpenseInput) (Expense, error) {
	if input.IdempotencyKey != "" {
		if err := s.guard.Reserve(ctx, tx, input.IdempotencyKey, "expense"); err != nil {
			return Expense{}, err
		}
	}

	number, err := s.seq.Allocate(ctx, tx, sequence.NameExpense)
	if err != nil {
		return Expense{}, err
	}

	accounts, err := s.mappings.Resolve(ctx, tx, mappingModule, []string{
		ledger.MappingCash,
		ledger.MappingPayable,
		ledger.MappingTaxReceivable,
	})
	if err != nil {
		return Expense{}, err
	}

	total := input.Amount.Add(input.Tax)
	voucher, err := s.repo.InsertExpense(ctx, tx, Expense{
		Number:           number,
		Date:             input.Date,
		ExpenseAccountID: input.ExpenseAccountID,
		Payment:          input.Payment,
		Amount:           input.Amount,
		Tax:              input.Tax,
		Total:            total,
		Narration:        input.Narration,
	})
	if err != nil {
		return Expense{}, err
	}

	creditAccount := accounts[ledger.MappingPayable]
	if input.Payment == PaymentCash {
		creditAccount = accounts[ledger.MappingCash]
	}
	entries := []ledger.PostingEntryInput{
		{AccountID: input.ExpenseAccountID, Type: ledger.EntryDebit, Amount: input.Amount, ReferenceType: "expense", ReferenceID: voucher.ID},
		{AccountID: creditAccount, Type: ledger.EntryCredit, Amount: total, ReferenceType: "expense", ReferenceID: voucher.ID},
	}
	if input.Tax.Sign() > 0 {
		entries = append(entries, ledger.PostingEntryInput{
			AccountID: accounts[ledger.MappingTaxReceivable], Type: ledger.EntryDebit, Amount: input.Tax,
			ReferenceType: "expense", ReferenceID: voucher.ID,
		})
	}

	journal, err := s.ledger.PostJournal(ctx, tx, ledger.PostingInput{
		Date:      input.Date,
		Type:      ledger.JournalTypeExpense,
		Narration: expenseNarration(input.Narration, number),
		Entries:   entries,
	})
	if err != nil {
		return Expense{}, err
	}
	if err := s.repo.SetExpenseJournal(ctx, tx, voucher.ID, journal.ID); err != nil {
		return Expense{}, err
	}
	voucher.JournalID = journal.ID
	return voucher, nil
}

func (s *Service) resyncExpenseNumbers(ctx context.Context) error {
	err := s.runner.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		highest, err := s.repo.MaxExpenseNumber(ctx, tx)
		if err != nil {
			return err
		}
		return s.seq.Resync(ctx, tx, sequence.NameExpense, highest)
	})
	if err != nil {
		return err
	}
	return s.ledger.ResyncJournalNumbers(ctx)
}

func expenseNarration(narration, number string) string {
	if narration != "" {
		return narration
	}
	return fmt.Sprintf("Expense %s", number)
}
