package stock

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
	_ "github.com/meridian-erp/meridian-erp/testing"
)

type fakeLot struct {
	Lot
	productID int64
}

type fakeStockRepo struct {
	products  map[int64]*Product
	lots      []*fakeLot
	movements []Movement
	nextLotID int64
}

func newFakeStockRepo(products ...Product) *fakeStockRepo {
	repo := &fakeStockRepo{products: make(map[int64]*Product), nextLotID: 1}
	for i := range products {
		p := products[i]
		repo.products[p.ID] = &p
	}
	return repo
}

func (f *fakeStockRepo) GetProductForUpdate(ctx context.Context, tx pgx.Tx, productID int64) (Product, error) {
	p, ok := f.products[productID]
	if !ok {
		return Product{}, shared.ErrNotFound
	}
	return *p, nil
}

func (f *fakeStockRepo) LockOpenLots(ctx context.Context, tx pgx.Tx, productID int64) ([]Lot, error) {
	var open []Lot
	for _, lot := range f.lots {
		if lot.productID == productID && lot.RemainingQty.Sign() > 0 {
			open = append(open, lot.Lot)
		}
	}
	return open, nil
}

func (f *fakeStockRepo) SetLotRemaining(ctx context.Context, tx pgx.Tx, lotID int64, remaining decimal.Decimal) error {
	for _, lot := range f.lots {
		if lot.ID == lotID {
			lot.RemainingQty = remaining
			return nil
		}
	}
	return shared.ErrNotFound
}

func (f *fakeStockRepo) InsertMovement(ctx context.Context, tx pgx.Tx, m Movement) (int64, error) {
	m.ID = f.nextLotID
	f.nextLotID++
	f.movements = append(f.movements, m)
	if m.RemainingQty.Sign() > 0 {
		f.lots = append(f.lots, &fakeLot{
			Lot:       Lot{ID: m.ID, RemainingQty: m.RemainingQty, UnitCost: m.UnitCost},
			productID: m.ProductID,
		})
	}
	return m.ID, nil
}

func (f *fakeStockRepo) AdjustProductStock(ctx context.Context, tx pgx.Tx, productID int64, delta decimal.Decimal) error {
	p, ok := f.products[productID]
	if !ok {
		return shared.ErrNotFound
	}
	p.CurrentStock = p.CurrentStock.Add(delta)
	return nil
}

func (f *fakeStockRepo) SetProductCostPrice(ctx context.Context, tx pgx.Tx, productID int64, cost decimal.Decimal) error {
	p, ok := f.products[productID]
	if !ok {
		return shared.ErrNotFound
	}
	p.CostPrice = cost
	return nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestReceiveCreatesLotAndBumpsStock(t *testing.T) {
	repo := newFakeStockRepo(Product{ID: 1, Name: "Widget", CurrentStock: decimal.Zero, IsActive: true})
	svc := NewService(repo)

	lotID, err := svc.Receive(context.Background(), nil, ReceiveInput{
		ProductID: 1,
		Quantity:  dec("10"),
		UnitCost:  dec("100"),
	})
	require.NoError(t, err)
	assert.NotZero(t, lotID)
	assert.True(t, repo.products[1].CurrentStock.Equal(dec("10")))
	assert.True(t, repo.products[1].CostPrice.Equal(dec("100")))
	require.Len(t, repo.movements, 1)
	assert.Equal(t, MovementIn, repo.movements[0].Type)
	assert.True(t, repo.movements[0].RemainingQty.Equal(dec("10")))
}

func TestReceiveRejectsNonPositiveQuantity(t *testing.T) {
	svc := NewService(newFakeStockRepo(Product{ID: 1}))
	_, err := svc.Receive(context.Background(), nil, ReceiveInput{ProductID: 1, Quantity: decimal.Zero, UnitCost: dec("5")})
	assert.ErrorIs(t, err, shared.ErrInvalidAmount)
}

func TestConsumeDrawsOldestLotsFirst(t *testing.T) {
	repo := newFakeStockRepo(Product{ID: 1, CurrentStock: decimal.Zero, IsActive: true})
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Receive(ctx, nil, ReceiveInput{ProductID: 1, Quantity: dec("10"), UnitCost: dec("100")})
	require.NoError(t, err)
	_, err = svc.Receive(ctx, nil, ReceiveInput{ProductID: 1, Quantity: dec("5"), UnitCost: dec("120")})
	require.NoError(t, err)

	got, err := svc.Consume(ctx, nil, ConsumeInput{ProductID: 1, Quantity: dec("12")})
	require.NoError(t, err)

	require.Len(t, got.Breakdown, 2)
	assert.True(t, got.Breakdown[0].Quantity.Equal(dec("10")))
	assert.True(t, got.Breakdown[0].UnitCost.Equal(dec("100")))
	assert.True(t, got.Breakdown[1].Quantity.Equal(dec("2")))
	assert.True(t, got.Breakdown[1].UnitCost.Equal(dec("120")))
	assert.True(t, got.TotalCost.Equal(dec("1240")), "total cost %s", got.TotalCost)
	assert.True(t, got.Shortage.IsZero())
	assert.True(t, got.Satisfied.Equal(dec("12")))

	// 15 received minus 12 consumed.
	assert.True(t, repo.products[1].CurrentStock.Equal(dec("3")))

	var remaining decimal.Decimal
	for _, lot := range repo.lots {
		remaining = remaining.Add(lot.RemainingQty)
	}
	assert.True(t, remaining.Equal(dec("3")))
}

func TestConsumePartialLotLeavesRemainder(t *testing.T) {
	repo := newFakeStockRepo(Product{ID: 1, IsActive: true})
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Receive(ctx, nil, ReceiveInput{ProductID: 1, Quantity: dec("10"), UnitCost: dec("50")})
	require.NoError(t, err)

	got, err := svc.Consume(ctx, nil, ConsumeInput{ProductID: 1, Quantity: dec("4")})
	require.NoError(t, err)
	assert.True(t, got.TotalCost.Equal(dec("200")))
	assert.True(t, repo.lots[0].RemainingQty.Equal(dec("6")))
}

func TestConsumeShortageCostedAtLastKnownPrice(t *testing.T) {
	repo := newFakeStockRepo(Product{ID: 1, IsActive: true})
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Receive(ctx, nil, ReceiveInput{ProductID: 1, Quantity: dec("5"), UnitCost: dec("80")})
	require.NoError(t, err)

	got, err := svc.Consume(ctx, nil, ConsumeInput{ProductID: 1, Quantity: dec("8")})
	require.NoError(t, err)
	assert.True(t, got.Shortage.Equal(dec("3")))
	assert.True(t, got.Satisfied.Equal(dec("5")))
	// 5*80 from the lot plus 3*80 shortage at the last cost price.
	assert.True(t, got.TotalCost.Equal(dec("640")), "total cost %s", got.TotalCost)
	assert.True(t, got.AverageCost().Equal(dec("128")))
	// Stock goes negative; the cached quantity tracks the full draw.
	assert.True(t, repo.products[1].CurrentStock.Equal(dec("-3")))
}

func TestConsumeRecordsOutMovementForFullQuantity(t *testing.T) {
	repo := newFakeStockRepo(Product{ID: 1, IsActive: true})
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Receive(ctx, nil, ReceiveInput{ProductID: 1, Quantity: dec("10"), UnitCost: dec("100")})
	require.NoError(t, err)
	_, err = svc.Consume(ctx, nil, ConsumeInput{ProductID: 1, Quantity: dec("4")})
	require.NoError(t, err)

	out := repo.movements[len(repo.movements)-1]
	assert.Equal(t, MovementOut, out.Type)
	assert.True(t, out.Quantity.Equal(dec("4")))
	assert.True(t, out.RemainingQty.IsZero())
	assert.True(t, out.UnitCost.Mul(out.Quantity).Equal(dec("400")))
}

func TestRestoreUsesReturnType(t *testing.T) {
	repo := newFakeStockRepo(Product{ID: 1, IsActive: true})
	svc := NewService(repo)

	_, err := svc.Restore(context.Background(), nil, ReceiveInput{ProductID: 1, Quantity: dec("2"), UnitCost: dec("90")})
	require.NoError(t, err)
	assert.Equal(t, MovementReturn, repo.movements[0].Type)
}

func TestEnsureAvailableBlocksOversell(t *testing.T) {
	repo := newFakeStockRepo(Product{ID: 1, CurrentStock: dec("5"), IsActive: true})
	svc := NewService(repo)

	require.NoError(t, svc.EnsureAvailable(context.Background(), nil, 1, dec("5")))
	err := svc.EnsureAvailable(context.Background(), nil, 1, dec("6"))
	assert.ErrorIs(t, err, shared.ErrInsufficientStock)
}
