package sequence

import (
	"context"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	_ "github.com/meridian-erp/meridian-erp/testing"
)

type fakeRepo struct {
	sequences map[string]*Sequence
	getErr    error
	setErr    error
}

func newFakeRepo(seqs ...Sequence) *fakeRepo {
	repo := &fakeRepo{sequences: make(map[string]*Sequence)}
	for i := range seqs {
		s := seqs[i]
		repo.sequences[s.Name] = &s
	}
	return repo
}

func (f *fakeRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, name string) (Sequence, error) {
	if f.getErr != nil {
		return Sequence{}, f.getErr
	}
	s, ok := f.sequences[name]
	if !ok {
		return Sequence{}, ErrSequenceNotFound
	}
	return *s, nil
}

func (f *fakeRepo) SetValue(ctx context.Context, tx pgx.Tx, name string, value int64) error {
	if f.setErr != nil {
		return f.setErr
	}
	s, ok := f.sequences[name]
	if !ok {
		return ErrSequenceNotFound
	}
	s.CurrentValue = value
	return nil
}

func TestAllocateAdvancesAndFormats(t *testing.T) {
	repo := newFakeRepo(Sequence{Name: NameInvoice, Prefix: "INV-", CurrentValue: 41, PadLength: 6, IsActive: true})
	svc := NewService(repo)

	number, err := svc.Allocate(context.Background(), nil, NameInvoice)
	require.NoError(t, err)
	assert.Equal(t, "INV-000042", number)
	assert.Equal(t, int64(42), repo.sequences[NameInvoice].CurrentValue)

	number, err = svc.Allocate(context.Background(), nil, NameInvoice)
	require.NoError(t, err)
	assert.Equal(t, "INV-000043", number)
}

func TestAllocateUnknownSequence(t *testing.T) {
	svc := NewService(newFakeRepo())
	_, err := svc.Allocate(context.Background(), nil, "missing")
	assert.ErrorIs(t, err, ErrSequenceNotFound)
}

func TestAllocateInactiveSequence(t *testing.T) {
	repo := newFakeRepo(Sequence{Name: NameJournal, Prefix: "JRN-", CurrentValue: 7, PadLength: 4, IsActive: false})
	svc := NewService(repo)
	_, err := svc.Allocate(context.Background(), nil, NameJournal)
	assert.ErrorIs(t, err, ErrSequenceInactive)
	assert.Equal(t, int64(7), repo.sequences[NameJournal].CurrentValue)
}

func TestResyncRaisesButNeverLowers(t *testing.T) {
	repo := newFakeRepo(Sequence{Name: NameExpense, Prefix: "EXP-", CurrentValue: 10, PadLength: 5, IsActive: true})
	svc := NewService(repo)

	require.NoError(t, svc.Resync(context.Background(), nil, NameExpense, 25))
	assert.Equal(t, int64(25), repo.sequences[NameExpense].CurrentValue)

	require.NoError(t, svc.Resync(context.Background(), nil, NameExpense, 3))
	assert.Equal(t, int64(25), repo.sequences[NameExpense].CurrentValue)
}

// lockingRepo serialises allocations the way the Postgres row lock does:
// GetForUpdate takes the lock and SetValue releases it, so two allocators
// can never read the same counter value.
type lockingRepo struct {
	mu  sync.Mutex
	seq Sequence
}

func (f *lockingRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, name string) (Sequence, error) {
	f.mu.Lock()
	return f.seq, nil
}

func (f *lockingRepo) SetValue(ctx context.Context, tx pgx.Tx, name string, value int64) error {
	f.seq.CurrentValue = value
	f.mu.Unlock()
	return nil
}

// The in-memory lock stands in for SELECT ... FOR UPDATE; the contract
// against real contention needs a Postgres-backed test.
func TestAllocateConcurrentIssuesDistinctNumbers(t *testing.T) {
	const allocators = 25
	repo := &lockingRepo{seq: Sequence{Name: NameJournal, Prefix: "JRN-", CurrentValue: 100, PadLength: 6, IsActive: true}}
	svc := NewService(repo)

	numbers := make(chan string, allocators)
	var g errgroup.Group
	for i := 0; i < allocators; i++ {
		g.Go(func() error {
			number, err := svc.Allocate(context.Background(), nil, NameJournal)
			if err != nil {
				return err
			}
			numbers <- number
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(numbers)

	seen := make(map[string]bool, allocators)
	for number := range numbers {
		assert.False(t, seen[number], "number %s issued twice", number)
		seen[number] = true
	}
	assert.Len(t, seen, allocators)
	assert.Equal(t, int64(100+allocators), repo.seq.CurrentValue)
}

func TestFormatPadding(t *testing.T) {
	s := Sequence{Prefix: "ADJ-", PadLength: 3}
	assert.Equal(t, "ADJ-007", s.Format(7))
	assert.Equal(t, "ADJ-1234", s.Format(1234))
}
