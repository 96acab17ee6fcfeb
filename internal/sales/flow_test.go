package sales

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/purchasing"
	"github.com/meridian-erp/meridian-erp/internal/sequence"
	"github.com/meridian-erp/meridian-erp/internal/stock"
	_ "github.com/meridian-erp/meridian-erp/testing"
)

// flowBillRepo is the minimal purchasing store the composed flow needs.
type flowBillRepo struct {
	bills  map[int64]*purchasing.Bill
	nextID int64
}

func newFlowBillRepo() *flowBillRepo {
	return &flowBillRepo{bills: make(map[int64]*purchasing.Bill), nextID: 1}
}

func (f *flowBillRepo) InsertBill(ctx context.Context, tx pgx.Tx, b purchasing.Bill) (purchasing.Bill, error) {
	b.ID = f.nextID
	f.nextID++
	stored := b
	f.bills[b.ID] = &stored
	return b, nil
}

func (f *flowBillRepo) InsertBillLines(ctx context.Context, tx pgx.Tx, billID int64, lines []purchasing.BillLine) error {
	f.bills[billID].Lines = lines
	return nil
}

func (f *flowBillRepo) SetBillJournal(ctx context.Context, tx pgx.Tx, billID, journalID int64) error {
	f.bills[billID].JournalID = journalID
	return nil
}

func (f *flowBillRepo) MaxBillNumber(ctx context.Context, tx pgx.Tx) (int64, error) {
	return int64(len(f.bills)), nil
}

// The flow here runs on fakes; the FOR UPDATE contracts on lots and
// sequence counters need a Postgres-backed test to exercise real contention.
func TestPurchaseThenSaleSharesOneStockLedger(t *testing.T) {
	stockRepo := newFakeStockRepo(stock.Product{ID: 10, Name: "Widget", IsActive: true})
	stockSvc := stock.NewService(stockRepo)
	ledgerPort := &fakeLedgerPort{}
	seq := newFakeSeq()
	seq.prefixes[sequence.NamePurchaseBill] = "BILL-"
	ctx := context.Background()

	// Opening position: 10 units at 100.
	_, err := stockSvc.Receive(ctx, nil, stock.ReceiveInput{ProductID: 10, Quantity: dec("10"), UnitCost: dec("100")})
	require.NoError(t, err)

	purchSvc := purchasing.NewService(newFlowBillRepo(), fakeRunner{}, seq, stockSvc, ledgerPort, fakeMappings{}, &fakeGuard{}, nil)
	salesSvc := NewService(newFakeSalesRepo(), fakeRunner{}, seq, stockSvc, ledgerPort, fakeMappings{}, &fakeGuard{}, nil)

	bill, err := purchSvc.RecordPurchase(ctx, purchasing.RecordPurchaseInput{
		Date:       time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC),
		SupplierID: 4,
		Lines:      []purchasing.PurchaseLine{{ProductID: 10, Quantity: dec("5"), UnitCost: dec("120")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "BILL-000001", bill.Number)
	assert.True(t, stockRepo.products[10].CurrentStock.Equal(dec("15")))

	invoice, err := salesSvc.RecordSale(ctx, RecordSaleInput{
		Date:       time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		CustomerID: 3,
		Payment:    PaymentCredit,
		Lines:      []SaleLine{{ProductID: 10, Quantity: dec("12"), UnitPrice: dec("200")}},
	})
	require.NoError(t, err)

	// 10 units from the opening lot, then 2 from the purchased lot.
	assert.True(t, invoice.CostTotal.Equal(dec("1240")), "cost total %s", invoice.CostTotal)
	assert.True(t, stockRepo.products[10].CurrentStock.Equal(dec("3")))

	require.Len(t, ledgerPort.postings, 2)
	purchase := ledgerPort.postings[0]
	assert.True(t, entryFor(t, purchase, 7, ledger.EntryDebit).Amount.Equal(dec("600")))
	assert.True(t, entryFor(t, purchase, 9, ledger.EntryCredit).Amount.Equal(dec("600")))

	sale := ledgerPort.postings[1]
	assert.True(t, entryFor(t, sale, 2, ledger.EntryDebit).Amount.Equal(dec("2400")))
	assert.True(t, entryFor(t, sale, 3, ledger.EntryCredit).Amount.Equal(dec("2400")))
	assert.True(t, entryFor(t, sale, 6, ledger.EntryDebit).Amount.Equal(dec("1240")))
	assert.True(t, entryFor(t, sale, 7, ledger.EntryCredit).Amount.Equal(dec("1240")))
}
