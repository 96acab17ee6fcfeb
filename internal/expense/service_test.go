package expense

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/db"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	_ "github.com/meridian-erp/meridian-erp/testing"
)

type fakeRunner struct{}

func (fakeRunner) WithTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, nil)
}

type fakeSeq struct {
	counter int64
	resyncs int
}

func (f *fakeSeq) Allocate(ctx context.Context, tx pgx.Tx, name string) (string, error) {
	f.counter++
	return fmt.Sprintf("EXP-%06d", f.counter), nil
}

func (f *fakeSeq) Resync(ctx context.Context, tx pgx.Tx, name string, floor int64) error {
	f.resyncs++
	if floor > f.counter {
		f.counter = floor
	}
	return nil
}

type fakeLedgerPort struct {
	postings []ledger.PostingInput
	journals int64
	resyncs  int
}

func (f *fakeLedgerPort) PostJournal(ctx context.Context, tx pgx.Tx, input ledger.PostingInput) (ledger.Journal, error) {
	if err := input.Validate(); err != nil {
		return ledger.Journal{}, err
	}
	f.postings = append(f.postings, input)
	f.journals++
	return ledger.Journal{ID: f.journals, Number: fmt.Sprintf("JRN-%06d", f.journals)}, nil
}

func (f *fakeLedgerPort) ResyncJournalNumbers(ctx context.Context) error {
	f.resyncs++
	return nil
}

type fakeMappings struct{}

func (fakeMappings) Resolve(ctx context.Context, q db.Queryer, module string, keys []string) (map[string]int64, error) {
	fixed := map[string]int64{
		ledger.MappingCash:          1,
		ledger.MappingPayable:       2,
		ledger.MappingTaxReceivable: 3,
	}
	out := make(map[string]int64, len(keys))
	for _, key := range keys {
		out[key] = fixed[key]
	}
	return out, nil
}

type fakeGuard struct {
	reserved map[string]bool
}

func (f *fakeGuard) Reserve(ctx context.Context, tx pgx.Tx, key, module string) error {
	if f.reserved == nil {
		f.reserved = make(map[string]bool)
	}
	if f.reserved[key] {
		return shared.ErrIdempotencyConflict
	}
	f.reserved[key] = true
	return nil
}

type fakeExpenseRepo struct {
	expenses       map[int64]*Expense
	nextID         int64
	duplicatesLeft int
}

func newFakeExpenseRepo() *fakeExpenseRepo {
	return &fakeExpenseRepo{expenses: make(map[int64]*Expense), nextID: 1}
}

func (f *fakeExpenseRepo) InsertExpense(ctx context.Context, tx pgx.Tx, e Expense) (Expense, error) {
	if f.duplicatesLeft > 0 {
		f.duplicatesLeft--
		return Expense{}, shared.ErrDuplicateDocumentNumber
	}
	e.ID = f.nextID
	f.nextID++
	stored := e
	f.expenses[e.ID] = &stored
	return e, nil
}

func (f *fakeExpenseRepo) SetExpenseJournal(ctx context.Context, tx pgx.Tx, expenseID, journalID int64) error {
	f.expenses[expenseID].JournalID = journalID
	return nil
}

func (f *fakeExpenseRepo) MaxExpenseNumber(ctx context.Context, tx pgx.Tx) (int64, error) {
	var highest int64
	for _, e := range f.expenses {
		var n int64
		if _, err := fmt.Sscanf(e.Number, "EXP-%d", &n); err == nil && n > highest {
			highest = n
		}
	}
	return highest, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func entryFor(t *testing.T, input ledger.PostingInput, accountID int64, entryType ledger.EntryType) ledger.PostingEntryInput {
	t.Helper()
	for _, e := range input.Entries {
		if e.AccountID == accountID && e.Type == entryType {
			return e
		}
	}
	t.Fatalf("no %s entry for account %d", entryType, accountID)
	return ledger.PostingEntryInput{}
}

func newExpenseService() (*Service, *fakeExpenseRepo, *fakeSeq, *fakeLedgerPort) {
	repo := newFakeExpenseRepo()
	seq := &fakeSeq{}
	ledgerPort := &fakeLedgerPort{}
	svc := NewService(repo, fakeRunner{}, seq, ledgerPort, fakeMappings{}, &fakeGuard{}, nil)
	svc.WithNow(func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) })
	return svc, repo, seq, ledgerPort
}

func TestRecordExpenseCashWithTax(t *testing.T) {
	svc, repo, _, ledgerPort := newExpenseService()

	voucher, err := svc.RecordExpense(context.Background(), RecordExpenseInput{
		Date:             time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC),
		ExpenseAccountID: 50,
		Payment:          PaymentCash,
		Amount:           dec("200"),
		Tax:              dec("20"),
		Narration:        "office rent",
	})
	require.NoError(t, err)

	assert.Equal(t, "EXP-000001", voucher.Number)
	assert.True(t, voucher.Total.Equal(dec("220")))
	assert.NotZero(t, voucher.JournalID)
	assert.Equal(t, voucher.JournalID, repo.expenses[voucher.ID].JournalID)

	require.Len(t, ledgerPort.postings, 1)
	posting := ledgerPort.postings[0]
	assert.Equal(t, ledger.JournalTypeExpense, posting.Type)
	assert.Equal(t, "office rent", posting.Narration)
	assert.True(t, entryFor(t, posting, 50, ledger.EntryDebit).Amount.Equal(dec("200")))
	assert.True(t, entryFor(t, posting, 3, ledger.EntryDebit).Amount.Equal(dec("20")))
	assert.True(t, entryFor(t, posting, 1, ledger.EntryCredit).Amount.Equal(dec("220")))
}

func TestRecordExpenseOnCreditUsesPayable(t *testing.T) {
	svc, _, _, ledgerPort := newExpenseService()

	_, err := svc.RecordExpense(context.Background(), RecordExpenseInput{
		Date:             time.Now(),
		ExpenseAccountID: 51,
		Payment:          PaymentCredit,
		Amount:           dec("90"),
	})
	require.NoError(t, err)

	posting := ledgerPort.postings[0]
	assert.True(t, entryFor(t, posting, 2, ledger.EntryCredit).Amount.Equal(dec("90")))
}

func TestRecordExpenseDefaultsToCash(t *testing.T) {
	svc, _, _, ledgerPort := newExpenseService()

	voucher, err := svc.RecordExpense(context.Background(), RecordExpenseInput{
		Date:             time.Now(),
		ExpenseAccountID: 52,
		Amount:           dec("30"),
	})
	require.NoError(t, err)
	assert.Equal(t, PaymentCash, voucher.Payment)

	posting := ledgerPort.postings[0]
	assert.True(t, entryFor(t, posting, 1, ledger.EntryCredit).Amount.Equal(dec("30")))
}

func TestRecordExpenseValidatesInput(t *testing.T) {
	svc, _, _, ledgerPort := newExpenseService()

	_, err := svc.RecordExpense(context.Background(), RecordExpenseInput{
		Date: time.Now(), Amount: dec("10"),
	})
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.RecordExpense(context.Background(), RecordExpenseInput{
		Date: time.Now(), ExpenseAccountID: 50, Amount: dec("0"),
	})
	assert.ErrorIs(t, err, shared.ErrInvalidAmount)

	_, err = svc.RecordExpense(context.Background(), RecordExpenseInput{
		Date: time.Now(), ExpenseAccountID: 50, Amount: dec("10"), Tax: dec("-1"),
	})
	assert.ErrorIs(t, err, shared.ErrInvalidAmount)

	assert.Empty(t, ledgerPort.postings)
}

func TestRecordExpenseRetriesAfterDuplicateNumber(t *testing.T) {
	svc, repo, seq, ledgerPort := newExpenseService()
	repo.duplicatesLeft = 1

	voucher, err := svc.RecordExpense(context.Background(), RecordExpenseInput{
		Date:             time.Now(),
		ExpenseAccountID: 50,
		Amount:           dec("10"),
	})
	require.NoError(t, err)
	assert.NotZero(t, voucher.ID)
	assert.Equal(t, 1, seq.resyncs)
	assert.Equal(t, 1, ledgerPort.resyncs)
}
