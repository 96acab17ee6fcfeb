package sequence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// TxRepository exposes sequence mutations bound to the caller's transaction.
// The row lock taken by GetForUpdate serializes concurrent allocators for the
// same name until the surrounding transaction commits or rolls back.
type TxRepository interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, name string) (Sequence, error)
	SetValue(ctx context.Context, tx pgx.Tx, name string, value int64) error
}

type repository struct{}

// NewRepository returns the pgx-backed sequence repository.
func NewRepository() TxRepository {
	return repository{}
}

func (repository) GetForUpdate(ctx context.Context, tx pgx.Tx, name string) (Sequence, error) {
	var s Sequence
	err := tx.QueryRow(ctx, `SELECT name, prefix, current_value, pad_length, is_active
FROM sequences WHERE name=$1 FOR UPDATE`, name).
		Scan(&s.Name, &s.Prefix, &s.CurrentValue, &s.PadLength, &s.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sequence{}, ErrSequenceNotFound
		}
		return Sequence{}, err
	}
	return s, nil
}

func (repository) SetValue(ctx context.Context, tx pgx.Tx, name string, value int64) error {
	cmd, err := tx.Exec(ctx, `UPDATE sequences SET current_value=$2, updated_at=NOW() WHERE name=$1`, name, value)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrSequenceNotFound
	}
	return nil
}
