package store

import (
	"context"
	"database/sql"

	"github.com/rogersf/ticketflow/internal/domain"
)

// RunJournal records engine transitions into the run_events table.
type RunJournal struct {
	DB        *sql.DB
	EventRepo *EventRepo
}

// NewRunJournal creates a journal backed by db.
func NewRunJournal(db *sql.DB) *RunJournal {
	return &RunJournal{DB: db, EventRepo: &EventRepo{}}
}

// Append writes one transition event.
func (j *RunJournal) Append(ctx context.Context, event domain.RunEvent) error {
	return j.EventRepo.Append(ctx, j.DB, event)
}

// Events returns every event for a run, or ErrRunNotFound if there are none.
func (j *RunJournal) Events(ctx context.Context, runID string) ([]domain.RunEvent, error) {
	events, err := j.EventRepo.ListByRun(ctx, j.DB, runID, 0)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, domain.ErrRunNotFound
	}
	return events, nil
}
