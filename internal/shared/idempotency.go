package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrIdempotencyConflict indicates a business document was already processed
// under the same key.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// IdempotencyGuard reserves processing keys inside the caller's transaction.
// Reserving the key participates in the same unit of work as the posting it
// protects, so a rolled-back operation releases its key automatically.
type IdempotencyGuard struct{}

// Reserve inserts the key; a unique violation means the document was
// already recorded and the whole operation must abort before any write.
func (IdempotencyGuard) Reserve(ctx context.Context, tx pgx.Tx, key, module string) error {
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	_, err := tx.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`, key, module, time.Now())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Cleanup removes reserved keys older than the retention window.
func (IdempotencyGuard) Cleanup(ctx context.Context, tx pgx.Tx, olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	_, err := tx.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	return err
}
