package stock

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// TxRepository exposes stock mutations bound to the caller's transaction.
type TxRepository interface {
	GetProductForUpdate(ctx context.Context, tx pgx.Tx, productID int64) (Product, error)
	// LockOpenLots returns lots with remaining quantity, oldest first.
	// Ordering is created_at ascending with id as the tie-breaker; this is a
	// contract, not an accident of row order.
	LockOpenLots(ctx context.Context, tx pgx.Tx, productID int64) ([]Lot, error)
	SetLotRemaining(ctx context.Context, tx pgx.Tx, lotID int64, remaining decimal.Decimal) error
	InsertMovement(ctx context.Context, tx pgx.Tx, m Movement) (int64, error)
	AdjustProductStock(ctx context.Context, tx pgx.Tx, productID int64, delta decimal.Decimal) error
	SetProductCostPrice(ctx context.Context, tx pgx.Tx, productID int64, cost decimal.Decimal) error
}

// Repository adds the read paths that run outside a transaction.
type Repository interface {
	TxRepository
	GetProduct(ctx context.Context, q db.Queryer, productID int64) (Product, error)
	SumRemaining(ctx context.Context, q db.Queryer, productID int64) (decimal.Decimal, error)
}

type repository struct{}

// NewRepository returns the pgx-backed stock repository.
func NewRepository() Repository {
	return repository{}
}

func (repository) GetProductForUpdate(ctx context.Context, tx pgx.Tx, productID int64) (Product, error) {
	return scanProduct(tx.QueryRow(ctx, `SELECT id, name, current_stock, cost_price, is_active
FROM products WHERE id=$1 FOR UPDATE`, productID))
}

func (repository) GetProduct(ctx context.Context, q db.Queryer, productID int64) (Product, error) {
	return scanProduct(q.QueryRow(ctx, `SELECT id, name, current_stock, cost_price, is_active
FROM products WHERE id=$1`, productID))
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.CurrentStock, &p.CostPrice, &p.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, shared.ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func (repository) LockOpenLots(ctx context.Context, tx pgx.Tx, productID int64) ([]Lot, error) {
	rows, err := tx.Query(ctx, `SELECT id, remaining_qty, unit_cost
FROM stock_movements
WHERE product_id=$1 AND remaining_qty > 0
ORDER BY created_at ASC, id ASC
FOR UPDATE`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lots []Lot
	for rows.Next() {
		var lot Lot
		if err := rows.Scan(&lot.ID, &lot.RemainingQty, &lot.UnitCost); err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func (repository) SetLotRemaining(ctx context.Context, tx pgx.Tx, lotID int64, remaining decimal.Decimal) error {
	cmd, err := tx.Exec(ctx, `UPDATE stock_movements SET remaining_qty=$2 WHERE id=$1`, lotID, remaining)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (repository) InsertMovement(ctx context.Context, tx pgx.Tx, m Movement) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `INSERT INTO stock_movements (product_id, movement_type, quantity, unit_cost, remaining_qty, reference_type, reference_id)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		m.ProductID, m.Type, m.Quantity, m.UnitCost, m.RemainingQty, m.ReferenceType, nullID(m.ReferenceID)).Scan(&id)
	return id, err
}

func (repository) AdjustProductStock(ctx context.Context, tx pgx.Tx, productID int64, delta decimal.Decimal) error {
	cmd, err := tx.Exec(ctx, `UPDATE products SET current_stock = current_stock + $2, updated_at=NOW() WHERE id=$1`, productID, delta)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (repository) SetProductCostPrice(ctx context.Context, tx pgx.Tx, productID int64, cost decimal.Decimal) error {
	_, err := tx.Exec(ctx, `UPDATE products SET cost_price=$2, updated_at=NOW() WHERE id=$1`, productID, cost)
	return err
}

func (repository) SumRemaining(ctx context.Context, q db.Queryer, productID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := q.QueryRow(ctx, `SELECT COALESCE(SUM(remaining_qty), 0) FROM stock_movements WHERE product_id=$1`, productID).Scan(&sum)
	return sum, err
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
