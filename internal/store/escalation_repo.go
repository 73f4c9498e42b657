package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rogersf/ticketflow/internal/domain"
)

// EscalationRepo handles persistence for EscalationRecord rows.
type EscalationRepo struct{}

// Record inserts an escalation record. Each run may be escalated once.
func (r *EscalationRepo) Record(ctx context.Context, db *sql.DB, rec domain.EscalationRecord) error {
	drafts, err := json.Marshal(nonNil(rec.Drafts))
	if err != nil {
		return fmt.Errorf("encode drafts: %w", err)
	}
	feedback, err := json.Marshal(nonNil(rec.Feedback))
	if err != nil {
		return fmt.Errorf("encode feedback: %w", err)
	}

	const q = `INSERT INTO escalations (run_id, subject, description, category, attempts, drafts_json, feedback_json, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = db.ExecContext(ctx, q,
		rec.RunID,
		rec.Subject,
		rec.Description,
		string(rec.Category),
		rec.Attempts,
		string(drafts),
		string(feedback),
		rec.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record escalation: %w", err)
	}
	return nil
}

// List returns the most recent escalations, newest first. A limit <= 0 returns all rows.
func (r *EscalationRepo) List(ctx context.Context, db *sql.DB, limit int) ([]domain.EscalationRecord, error) {
	q := `SELECT run_id, subject, description, category, attempts, drafts_json, feedback_json, created_at
FROM escalations
ORDER BY created_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}
	defer rows.Close()

	var records []domain.EscalationRecord
	for rows.Next() {
		rec, err := scanEscalation(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetByRun returns the escalation for a run, or ErrRunNotFound.
func (r *EscalationRepo) GetByRun(ctx context.Context, db *sql.DB, runID string) (*domain.EscalationRecord, error) {
	const q = `SELECT run_id, subject, description, category, attempts, drafts_json, feedback_json, created_at
FROM escalations
WHERE run_id = ?`

	rows, err := db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("get escalation: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get escalation: %w", err)
		}
		return nil, domain.ErrRunNotFound
	}
	rec, err := scanEscalation(rows)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanEscalation(rows *sql.Rows) (domain.EscalationRecord, error) {
	var (
		rec                domain.EscalationRecord
		category           string
		drafts, feedback   string
		createdAtUnixNanos int64
	)
	if err := rows.Scan(&rec.RunID, &rec.Subject, &rec.Description, &category,
		&rec.Attempts, &drafts, &feedback, &createdAtUnixNanos); err != nil {
		return rec, fmt.Errorf("scan escalation: %w", err)
	}
	rec.Category = domain.Category(category)
	rec.Timestamp = time.Unix(0, createdAtUnixNanos).UTC()
	if err := json.Unmarshal([]byte(drafts), &rec.Drafts); err != nil {
		return rec, fmt.Errorf("decode drafts: %w", err)
	}
	if err := json.Unmarshal([]byte(feedback), &rec.Feedback); err != nil {
		return rec, fmt.Errorf("decode feedback: %w", err)
	}
	return rec, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
