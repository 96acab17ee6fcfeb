package shared

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// Execer is the write surface the audit logger needs, satisfied by
// *pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AuditLogger writes records into audit_logs. It runs after the business
// transaction commits and is best-effort: a failed insert is logged and
// swallowed, never rolling back or failing a posted journal.
type AuditLogger struct {
	db     Execer
	logger *slog.Logger
}

// NewAuditLogger returns a new AuditLogger. logger may be nil.
func NewAuditLogger(db Execer, logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{db: db, logger: logger}
}

// Record persists the entry. A missing action, entity, or entity id is a
// caller bug and returns an error; a storage failure does not.
func (l *AuditLogger) Record(ctx context.Context, entry AuditLog) error {
	if l == nil || l.db == nil {
		return errors.New("audit logger not initialised")
	}
	if entry.Action == "" || entry.Entity == "" || entry.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	if entry.At.IsZero() {
		entry.At = time.Now()
	}
	if entry.Meta == nil {
		entry.Meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(entry.Meta)
	if err != nil {
		return err
	}
	_, err = l.db.Exec(ctx,
		`INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ActorID, entry.Action, entry.Entity, entry.EntityID, metaJSON, entry.At)
	if err != nil {
		l.logger.Warn("audit insert failed",
			slog.String("action", entry.Action),
			slog.String("entity", entry.Entity),
			slog.String("entity_id", entry.EntityID),
			slog.Any("error", err),
		)
	}
	return nil
}
