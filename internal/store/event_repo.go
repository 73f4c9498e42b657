package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rogersf/ticketflow/internal/domain"
)

// EventRepo handles persistence for RunEvent records.
type EventRepo struct{}

// Append inserts a run event. A repeated (run_id, seq_no) pair yields
// ErrDuplicateEvent.
func (r *EventRepo) Append(ctx context.Context, db *sql.DB, event domain.RunEvent) error {
	const q = `INSERT INTO run_events (run_id, seq_no, from_stage, to_stage, attempts, detail_json, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	detail := event.DetailJSON
	if detail == "" {
		detail = "{}"
	}
	_, err := db.ExecContext(ctx, q,
		event.RunID,
		event.SeqNo,
		string(event.FromStage),
		string(event.ToStage),
		event.Attempts,
		detail,
		event.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.WrapEngineError(domain.ErrDuplicateEvent.Code,
				fmt.Sprintf("%s: run %s seq %d", domain.ErrDuplicateEvent.Message, event.RunID, event.SeqNo), err)
		}
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListByRun returns events for a run with sequence numbers greater than sinceSeq,
// ordered by sequence number ascending.
func (r *EventRepo) ListByRun(ctx context.Context, db *sql.DB, runID string, sinceSeq int64) ([]domain.RunEvent, error) {
	const q = `SELECT id, run_id, seq_no, from_stage, to_stage, attempts, detail_json, created_at
FROM run_events
WHERE run_id = ? AND seq_no > ?
ORDER BY seq_no ASC`

	rows, err := db.QueryContext(ctx, q, runID, sinceSeq)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.RunEvent
	for rows.Next() {
		var e domain.RunEvent
		var from, to string
		if err := rows.Scan(&e.ID, &e.RunID, &e.SeqNo, &from, &to, &e.Attempts, &e.DetailJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.FromStage = domain.Stage(from)
		e.ToStage = domain.Stage(to)
		events = append(events, e)
	}
	return events, rows.Err()
}
