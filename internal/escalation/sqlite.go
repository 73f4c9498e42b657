package escalation

import (
	"context"
	"database/sql"

	"github.com/rogersf/ticketflow/internal/domain"
	"github.com/rogersf/ticketflow/internal/store"
)

// SQLiteSink stores escalations in the escalations table.
type SQLiteSink struct {
	DB   *sql.DB
	Repo *store.EscalationRepo
}

// NewSQLiteSink creates a sink over an already migrated database.
func NewSQLiteSink(db *sql.DB) *SQLiteSink {
	return &SQLiteSink{DB: db, Repo: &store.EscalationRepo{}}
}

// Escalate implements Sink.
func (s *SQLiteSink) Escalate(ctx context.Context, rec domain.EscalationRecord) error {
	return s.Repo.Record(ctx, s.DB, rec)
}
