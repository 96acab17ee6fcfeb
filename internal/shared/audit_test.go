package shared

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/meridian-erp/meridian-erp/testing"
)

type fakeExecer struct {
	args [][]any
	err  error
}

func (f *fakeExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.args = append(f.args, args)
	return pgconn.CommandTag{}, f.err
}

func quietAuditLogger(db Execer) *AuditLogger {
	return NewAuditLogger(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAuditRecordRejectsIncompleteEntries(t *testing.T) {
	db := &fakeExecer{}
	logger := quietAuditLogger(db)

	err := logger.Record(context.Background(), AuditLog{Entity: "journal", EntityID: "1"})
	require.Error(t, err)
	err = logger.Record(context.Background(), AuditLog{Action: "journal.post", EntityID: "1"})
	require.Error(t, err)
	assert.Empty(t, db.args)
}

func TestAuditRecordDefaultsTimestampAndMeta(t *testing.T) {
	db := &fakeExecer{}
	logger := quietAuditLogger(db)

	before := time.Now()
	err := logger.Record(context.Background(), AuditLog{
		ActorID:  7,
		Action:   "journal.post",
		Entity:   "journal",
		EntityID: "42",
	})
	require.NoError(t, err)
	require.Len(t, db.args, 1)

	assert.Equal(t, []byte("{}"), db.args[0][4])
	at, ok := db.args[0][5].(time.Time)
	require.True(t, ok)
	assert.False(t, at.Before(before))
}

func TestAuditRecordSwallowsStorageFailure(t *testing.T) {
	db := &fakeExecer{err: errors.New("connection reset")}
	logger := quietAuditLogger(db)

	// Audit runs after the business transaction commits; a lost record must
	// not surface as an operation failure.
	err := logger.Record(context.Background(), AuditLog{
		Action:   "sale.record",
		Entity:   "sales_document",
		EntityID: "9",
		Meta:     map[string]any{"number": "INV-000009"},
		At:       time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC),
	})
	assert.NoError(t, err)
	assert.Len(t, db.args, 1)
}

func TestAuditRecordRequiresBackingStore(t *testing.T) {
	var logger *AuditLogger
	assert.Error(t, logger.Record(context.Background(), AuditLog{Action: "a", Entity: "b", EntityID: "c"}))
}
