package adjustment

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// TxRepository persists stock adjustments inside the caller's transaction.
type TxRepository interface {
	InsertAdjustment(ctx context.Context, tx pgx.Tx, a Adjustment) (Adjustment, error)
	// FinalizeAdjustment fills in the figures only known after the stock
	// move: the journal link, the consumed value, and the effective unit cost.
	FinalizeAdjustment(ctx context.Context, tx pgx.Tx, adjustmentID, journalID int64, value, unitCost decimal.Decimal) error
	MaxAdjustmentNumber(ctx context.Context, tx pgx.Tx) (int64, error)
}

type repository struct{}

// NewRepository returns the pgx-backed adjustment repository.
func NewRepository() TxRepository {
	return repository{}
}

func (repository) InsertAdjustment(ctx context.Context, tx pgx.Tx, a Adjustment) (Adjustment, error) {
	err := tx.QueryRow(ctx, `INSERT INTO stock_adjustments (number, date, product_id, direction, quantity, unit_cost, value, reason)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, created_at`,
		a.Number, a.Date, a.ProductID, a.Direction, a.Quantity, a.UnitCost, a.Value, a.Reason).
		Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "stock_adjustments_number_key") {
			return Adjustment{}, shared.ErrDuplicateDocumentNumber
		}
		return Adjustment{}, err
	}
	return a, nil
}

func (repository) FinalizeAdjustment(ctx context.Context, tx pgx.Tx, adjustmentID, journalID int64, value, unitCost decimal.Decimal) error {
	cmd, err := tx.Exec(ctx, `UPDATE stock_adjustments SET journal_id=$2, value=$3, unit_cost=$4 WHERE id=$1`, adjustmentID, journalID, value, unitCost)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (repository) MaxAdjustmentNumber(ctx context.Context, tx pgx.Tx) (int64, error) {
	var highest int64
	err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(CAST(SUBSTRING(number FROM '[0-9]+$') AS BIGINT)), 0) FROM stock_adjustments`).Scan(&highest)
	return highest, err
}
