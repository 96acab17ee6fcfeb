package shared

import (
	"context"
	"errors"
	"fmt"
)

// DocumentNumberAttempts bounds the resync-and-redo loop for duplicate
// document numbers. Validation failures are never retried; only the
// unique-constraint race on a generated number qualifies.
const DocumentNumberAttempts = 3

// RetryOnDuplicateNumber runs op, and on ErrDuplicateDocumentNumber calls
// resync and runs op again from the top, up to DocumentNumberAttempts times.
// The retry wraps the whole unit of work, not just the allocation: the
// document number and the journal it produces are coupled, so a stale
// sequence means the entire operation must be redone with a fresh number.
func RetryOnDuplicateNumber(ctx context.Context, op func(ctx context.Context) error, resync func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= DocumentNumberAttempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrDuplicateDocumentNumber) {
			return err
		}
		if resync != nil {
			if rerr := resync(ctx); rerr != nil {
				return fmt.Errorf("resync sequence after duplicate number: %w", rerr)
			}
		}
	}
	return fmt.Errorf("document number collision persisted after %d attempts: %w", DocumentNumberAttempts, err)
}
