package sequence

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Service issues document numbers from named counters. Every method takes the
// caller's open transaction: the allocator participates in the surrounding
// unit of work and never commits on its own, so a rollback after allocation
// simply leaves a gap in the counter.
type Service struct {
	repo TxRepository
}

// NewService constructs the allocator.
func NewService(repo TxRepository) *Service {
	return &Service{repo: repo}
}

// Allocate locks the counter row, advances it by one, and returns the
// formatted document number. Two concurrent callers for the same name
// serialize on the row lock and never observe the same value.
func (s *Service) Allocate(ctx context.Context, tx pgx.Tx, name string) (string, error) {
	seq, err := s.repo.GetForUpdate(ctx, tx, name)
	if err != nil {
		return "", err
	}
	if !seq.IsActive {
		return "", ErrSequenceInactive
	}
	next := seq.CurrentValue + 1
	if err := s.repo.SetValue(ctx, tx, name, next); err != nil {
		return "", err
	}
	return seq.Format(next), nil
}

// Resync raises the counter to floor if it has fallen behind the numbers
// actually persisted, e.g. after manual data repair. It never decrements:
// issued values stay issued.
func (s *Service) Resync(ctx context.Context, tx pgx.Tx, name string, floor int64) error {
	seq, err := s.repo.GetForUpdate(ctx, tx, name)
	if err != nil {
		return err
	}
	if floor <= seq.CurrentValue {
		return nil
	}
	return s.repo.SetValue(ctx, tx, name, floor)
}
