package expense

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/meridian-erp/meridian-erp/internal/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// TxRepository persists expense vouchers inside the caller's transaction.
type TxRepository interface {
	InsertExpense(ctx context.Context, tx pgx.Tx, e Expense) (Expense, error)
	SetExpenseJournal(ctx context.Context, tx pgx.Tx, expenseID, journalID int64) error
	MaxExpenseNumber(ctx context.Context, tx pgx.Tx) (int64, error)
}

type repository struct{}

// NewRepository returns the pgx-backed expense repository.
func NewRepository() TxRepository {
	return repository{}
}

func (repository) InsertExpense(ctx context.Context, tx pgx.Tx, e Expense) (Expense, error) {
	err := tx.QueryRow(ctx, `INSERT INTO expenses (number, date, expense_account_id, payment_kind, amount, tax, total, narration)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, created_at`,
		e.Number, e.Date, e.ExpenseAccountID, e.Payment, e.Amount, e.Tax, e.Total, e.Narration).
		Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "expenses_number_key") {
			return Expense{}, shared.ErrDuplicateDocumentNumber
		}
		return Expense{}, err
	}
	return e, nil
}

func (repository) SetExpenseJournal(ctx context.Context, tx pgx.Tx, expenseID, journalID int64) error {
	cmd, err := tx.Exec(ctx, `UPDATE expenses SET journal_id=$2 WHERE id=$1`, expenseID, journalID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (repository) MaxExpenseNumber(ctx context.Context, tx pgx.Tx) (int64, error) {
	var highest int64
	err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(CAST(SUBSTRING(number FROM '[0-9]+$') AS BIGINT)), 0) FROM expenses`).Scan(&highest)
	return highest, err
}
