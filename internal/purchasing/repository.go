package purchasing

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/meridian-erp/meridian-erp/internal/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// TxRepository persists purchase documents inside the caller's transaction.
type TxRepository interface {
	InsertBill(ctx context.Context, tx pgx.Tx, b Bill) (Bill, error)
	InsertBillLines(ctx context.Context, tx pgx.Tx, billID int64, lines []BillLine) error
	SetBillJournal(ctx context.Context, tx pgx.Tx, billID, journalID int64) error
	MaxBillNumber(ctx context.Context, tx pgx.Tx) (int64, error)
}

type repository struct{}

// NewRepository returns the pgx-backed purchasing repository.
func NewRepository() TxRepository {
	return repository{}
}

func (repository) InsertBill(ctx context.Context, tx pgx.Tx, b Bill) (Bill, error) {
	err := tx.QueryRow(ctx, `INSERT INTO purchase_bills (number, supplier_id, date, payment_kind, subtotal, tax, total)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at`,
		b.Number, b.SupplierID, b.Date, b.Payment, b.Subtotal, b.Tax, b.Total).
		Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "purchase_bills_number_key") {
			return Bill{}, shared.ErrDuplicateDocumentNumber
		}
		return Bill{}, err
	}
	return b, nil
}

func (repository) InsertBillLines(ctx context.Context, tx pgx.Tx, billID int64, lines []BillLine) error {
	for _, line := range lines {
		if _, err := tx.Exec(ctx, `INSERT INTO purchase_bill_lines (bill_id, product_id, quantity, unit_cost, line_total, lot_id)
VALUES ($1,$2,$3,$4,$5,$6)`, billID, line.ProductID, line.Quantity, line.UnitCost, line.LineTotal, line.LotID); err != nil {
			return err
		}
	}
	return nil
}

func (repository) SetBillJournal(ctx context.Context, tx pgx.Tx, billID, journalID int64) error {
	cmd, err := tx.Exec(ctx, `UPDATE purchase_bills SET journal_id=$2 WHERE id=$1`, billID, journalID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (repository) MaxBillNumber(ctx context.Context, tx pgx.Tx) (int64, error) {
	var highest int64
	err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(CAST(SUBSTRING(number FROM '[0-9]+$') AS BIGINT)), 0) FROM purchase_bills`).Scan(&highest)
	return highest, err
}
