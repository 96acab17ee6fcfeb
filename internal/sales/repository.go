package sales

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// TxRepository persists sales documents inside the caller's transaction.
type TxRepository interface {
	InsertInvoice(ctx context.Context, tx pgx.Tx, inv Invoice) (Invoice, error)
	InsertInvoiceLines(ctx context.Context, tx pgx.Tx, invoiceID int64, lines []InvoiceLine) error
	SetInvoiceCostAndJournal(ctx context.Context, tx pgx.Tx, invoiceID, journalID int64, costTotal decimal.Decimal) error
	InsertQuotation(ctx context.Context, tx pgx.Tx, q Quotation) (Quotation, error)
	InsertQuotationLines(ctx context.Context, tx pgx.Tx, quotationID int64, lines []QuotationLine) error
	MaxInvoiceNumber(ctx context.Context, tx pgx.Tx) (int64, error)
	MaxQuotationNumber(ctx context.Context, tx pgx.Tx) (int64, error)
}

type repository struct{}

// NewRepository returns the pgx-backed sales repository.
func NewRepository() TxRepository {
	return repository{}
}

func (repository) InsertInvoice(ctx context.Context, tx pgx.Tx, inv Invoice) (Invoice, error) {
	err := tx.QueryRow(ctx, `INSERT INTO sales_invoices (number, customer_id, date, payment_kind, subtotal, discount, tax, total, cost_total)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at`,
		inv.Number, inv.CustomerID, inv.Date, inv.Payment, inv.Subtotal, inv.Discount, inv.Tax, inv.Total, inv.CostTotal).
		Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "sales_invoices_number_key") {
			return Invoice{}, shared.ErrDuplicateDocumentNumber
		}
		return Invoice{}, err
	}
	return inv, nil
}

func (repository) InsertInvoiceLines(ctx context.Context, tx pgx.Tx, invoiceID int64, lines []InvoiceLine) error {
	for _, line := range lines {
		if _, err := tx.Exec(ctx, `INSERT INTO sales_invoice_lines (invoice_id, product_id, quantity, unit_price, unit_cost, line_total)
VALUES ($1,$2,$3,$4,$5,$6)`, invoiceID, line.ProductID, line.Quantity, line.UnitPrice, line.UnitCost, line.LineTotal); err != nil {
			return err
		}
	}
	return nil
}

func (repository) SetInvoiceCostAndJournal(ctx context.Context, tx pgx.Tx, invoiceID, journalID int64, costTotal decimal.Decimal) error {
	cmd, err := tx.Exec(ctx, `UPDATE sales_invoices SET cost_total=$2, journal_id=$3 WHERE id=$1`, invoiceID, costTotal, journalID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (repository) InsertQuotation(ctx context.Context, tx pgx.Tx, q Quotation) (Quotation, error) {
	err := tx.QueryRow(ctx, `INSERT INTO quotations (number, customer_id, date, valid_until, subtotal, discount, tax, total)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, created_at`,
		q.Number, q.CustomerID, q.Date, q.ValidUntil, q.Subtotal, q.Discount, q.Tax, q.Total).
		Scan(&q.ID, &q.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "quotations_number_key") {
			return Quotation{}, shared.ErrDuplicateDocumentNumber
		}
		return Quotation{}, err
	}
	return q, nil
}

func (repository) InsertQuotationLines(ctx context.Context, tx pgx.Tx, quotationID int64, lines []QuotationLine) error {
	for _, line := range lines {
		if _, err := tx.Exec(ctx, `INSERT INTO quotation_lines (quotation_id, product_id, quantity, unit_price, line_total)
VALUES ($1,$2,$3,$4,$5)`, quotationID, line.ProductID, line.Quantity, line.UnitPrice, line.LineTotal); err != nil {
			return err
		}
	}
	return nil
}

func (repository) MaxInvoiceNumber(ctx context.Context, tx pgx.Tx) (int64, error) {
	var highest int64
	err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(CAST(SUBSTRING(number FROM '[0-9]+$') AS BIGINT)), 0) FROM sales_invoices`).Scan(&highest)
	return highest, err
}

func (repository) MaxQuotationNumber(ctx context.Context, tx pgx.Tx) (int64, error) {
	var highest int64
	err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(CAST(SUBSTRING(number FROM '[0-9]+$') AS BIGINT)), 0) FROM quotations`).Scan(&highest)
	return highest, err
}
