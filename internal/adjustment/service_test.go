package adjustment

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
	"github.com/meridian-erp/meridian-erp/internal/stock"
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
	return fmt.Sprintf("ADJ-%06d", f.counter), nil
}

func (f *fakeSeq) Resync(ctx context.Context, tx pgx.Tx, name string, floor int64) error {
	f.resyncs++
	if floor > f.counter {
		f.counter = floor
	}
	return nil
}

type fakeStockPort struct {
	received    []stock.ReceiveInput
	consumed    []stock.ConsumeInput
	consumption stock.Consumption
}

func (f *fakeStockPort) Receive(ctx context.Context, tx pgx.Tx, in stock.ReceiveInput) (int64, error) {
	f.received = append(f.received, in)
	return int64(len(f.received)), nil
}

func (f *fakeStockPort) Consume(ctx context.Context, tx pgx.Tx, in stock.ConsumeInput) (stock.Consumption, error) {
	f.consumed = append(f.consumed, in)
	return f.consumption, nil
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
		ledger.MappingInventory:        1,
		ledger.MappingAdjustmentOffset: 2,
	}
	out := make(map[string]int64, len(keys))
	for _, key := range keys {
		out[key] = fixed[key]
	}
	return out, nil
}

type fakeGuard struct{}

func (fakeGuard) Reserve(ctx context.Context, tx pgx.Tx, key, module string) error {
	return nil
}

type fakeAudit struct {
	logs []shared.AuditLog
}

func (f *fakeAudit) Record(ctx context.Context, log shared.AuditLog) error {
	f.logs = append(f.logs, log)
	return nil
}

type fakeAdjustmentRepo struct {
	adjustments    map[int64]*Adjustment
	nextID         int64
	duplicatesLeft int
}

func newFakeAdjustmentRepo() *fakeAdjustmentRepo {
	return &fakeAdjustmentRepo{adjustments: make(map[int64]*Adjustment), nextID: 1}
}

func (f *fakeAdjustmentRepo) InsertAdjustment(ctx context.Context, tx pgx.Tx, a Adjustment) (Adjustment, error) {
	if f.duplicatesLeft > 0 {
		f.duplicatesLeft--
		return Adjustment{}, shared.ErrDuplicateDocumentNumber
	}
	a.ID = f.nextID
	f.nextID++
	stored := a
	f.adjustments[a.ID] = &stored
	return a, nil
}

func (f *fakeAdjustmentRepo) FinalizeAdjustment(ctx context.Context, tx pgx.Tx, adjustmentID, journalID int64, value, unitCost decimal.Decimal) error {
	adj, ok := f.adjustments[adjustmentID]
	if !ok {
		return shared.ErrNotFound
	}
	adj.JournalID = journalID
	adj.Value = value
	adj.UnitCost = unitCost
	return nil
}

func (f *fakeAdjustmentRepo) MaxAdjustmentNumber(ctx context.Context, tx pgx.Tx) (int64, error) {
	var highest int64
	for _, a := range f.adjustments {
		var n int64
		if _, err := fmt.Sscanf(a.Number, "ADJ-%d", &n); err == nil && n > highest {
			highest = n
		}
	}
	return highest, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type adjustFixture struct {
	svc    *Service
	repo   *fakeAdjustmentRepo
	stock  *fakeStockPort
	ledger *fakeLedgerPort
	seq    *fakeSeq
	audit  *fakeAudit
}

func newAdjustFixture(t *testing.T) *adjustFixture {
	t.Helper()
	fix := &adjustFixture{
		repo:   newFakeAdjustmentRepo(),
		stock:  &fakeStockPort{},
		ledger: &fakeLedgerPort{},
		seq:    &fakeSeq{},
		audit:  &fakeAudit{},
	}
	fix.svc = NewService(fix.repo, fakeRunner{}, fix.seq, fix.stock, fix.ledger, fakeMappings{}, fakeGuard{}, fix.audit)
	fix.svc.WithNow(func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) })
	return fix
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

func TestAdjustIncreaseBooksLotAndDebitsInventory(t *testing.T) {
	fix := newAdjustFixture(t)

	adj, err := fix.svc.Adjust(context.Background(), AdjustInput{
		Date:      time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC),
		ProductID: 10,
		Direction: DirectionIncrease,
		Quantity:  dec("6"),
		UnitCost:  dec("45"),
		Reason:    "count correction",
		ActorID:   5,
	})
	require.NoError(t, err)

	assert.Equal(t, "ADJ-000001", adj.Number)
	assert.True(t, adj.Value.Equal(dec("270")))
	assert.True(t, adj.UnitCost.Equal(dec("45")))
	assert.NotZero(t, adj.JournalID)

	require.Len(t, fix.stock.received, 1)
	assert.Equal(t, stock.MovementAdjustment, fix.stock.received[0].Type)
	assert.Equal(t, "adjustment", fix.stock.received[0].ReferenceType)
	assert.Empty(t, fix.stock.consumed)

	posting := fix.ledger.postings[0]
	assert.Equal(t, ledger.JournalTypeAdjustment, posting.Type)
	assert.True(t, entryFor(t, posting, 1, ledger.EntryDebit).Amount.Equal(dec("270")))
	assert.True(t, entryFor(t, posting, 2, ledger.EntryCredit).Amount.Equal(dec("270")))

	stored := fix.repo.adjustments[adj.ID]
	assert.True(t, stored.Value.Equal(dec("270")))
	assert.Equal(t, adj.JournalID, stored.JournalID)
}

func TestAdjustDecreaseConsumesFIFOAndCreditsInventory(t *testing.T) {
	fix := newAdjustFixture(t)
	fix.stock.consumption = stock.Consumption{
		Satisfied: dec("4"),
		TotalCost: dec("320"),
	}

	adj, err := fix.svc.Adjust(context.Background(), AdjustInput{
		Date:      time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC),
		ProductID: 10,
		Direction: DirectionDecrease,
		Quantity:  dec("4"),
	})
	require.NoError(t, err)

	assert.True(t, adj.Value.Equal(dec("320")))
	// 320 over 4 satisfied units.
	assert.True(t, adj.UnitCost.Equal(dec("80")))

	require.Len(t, fix.stock.consumed, 1)
	assert.Equal(t, stock.MovementAdjustment, fix.stock.consumed[0].Type)

	posting := fix.ledger.postings[0]
	assert.True(t, entryFor(t, posting, 2, ledger.EntryDebit).Amount.Equal(dec("320")))
	assert.True(t, entryFor(t, posting, 1, ledger.EntryCredit).Amount.Equal(dec("320")))
}

func TestAdjustDamageUsesDamageMovement(t *testing.T) {
	fix := newAdjustFixture(t)
	fix.stock.consumption = stock.Consumption{Satisfied: dec("2"), TotalCost: dec("100")}

	_, err := fix.svc.Adjust(context.Background(), AdjustInput{
		Date:      time.Now(),
		ProductID: 10,
		Direction: DirectionDecrease,
		Quantity:  dec("2"),
		Damage:    true,
		Reason:    "dropped pallet",
	})
	require.NoError(t, err)

	require.Len(t, fix.stock.consumed, 1)
	assert.Equal(t, stock.MovementDamage, fix.stock.consumed[0].Type)
}

func TestAdjustValidatesInput(t *testing.T) {
	fix := newAdjustFixture(t)

	_, err := fix.svc.Adjust(context.Background(), AdjustInput{
		Date: time.Now(), Direction: DirectionIncrease, Quantity: dec("1"), UnitCost: dec("1"),
	})
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = fix.svc.Adjust(context.Background(), AdjustInput{
		Date: time.Now(), ProductID: 10, Direction: DirectionIncrease, Quantity: dec("0"), UnitCost: dec("1"),
	})
	assert.ErrorIs(t, err, shared.ErrInvalidAmount)

	_, err = fix.svc.Adjust(context.Background(), AdjustInput{
		Date: time.Now(), ProductID: 10, Direction: DirectionIncrease, Quantity: dec("1"),
	})
	assert.ErrorIs(t, err, shared.ErrInvalidAmount)

	_, err = fix.svc.Adjust(context.Background(), AdjustInput{
		Date: time.Now(), ProductID: 10, Direction: "SIDEWAYS", Quantity: dec("1"),
	})
	assert.ErrorIs(t, err, shared.ErrInvalidAmount)

	assert.Empty(t, fix.ledger.postings)
}

func TestAdjustRetriesAfterDuplicateNumber(t *testing.T) {
	fix := newAdjustFixture(t)
	fix.repo.duplicatesLeft = 1

	adj, err := fix.svc.Adjust(context.Background(), AdjustInput{
		Date:      time.Now(),
		ProductID: 10,
		Direction: DirectionIncrease,
		Quantity:  dec("1"),
		UnitCost:  dec("10"),
	})
	require.NoError(t, err)
	assert.NotZero(t, adj.ID)
	assert.Equal(t, 1, fix.seq.resyncs)
	assert.Equal(t, 1, fix.ledger.resyncs)

	require.Len(t, fix.audit.logs, 1)
	assert.Equal(t, "stock.adjust", fix.audit.logs[0].Action)
}
