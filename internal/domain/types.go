// Package domain defines the core types for the ticket workflow.
package domain

import (
	"strings"
	"time"
)

// Category is the classification tag applied once per ticket.
type Category string

const (
	CategoryBilling   Category = "Billing"
	CategoryTechnical Category = "Technical"
	CategorySecurity  Category = "Security"
	CategoryGeneral   Category = "General"
)

// Categories lists every valid category in declaration order.
var Categories = []Category{CategoryBilling, CategoryTechnical, CategorySecurity, CategoryGeneral}

// Valid reports whether c is a member of the fixed category set.
func (c Category) Valid() bool {
	switch c {
	case CategoryBilling, CategoryTechnical, CategorySecurity, CategoryGeneral:
		return true
	}
	return false
}

// Stage is a state of the workflow engine.
type Stage string

const (
	StageClassifying         Stage = "classifying"
	StageRetrievingContext   Stage = "retrieving_context"
	StageComposing           Stage = "composing"
	StageReviewing           Stage = "reviewing"
	StageEscalating          Stage = "escalating"
	StageTerminatedApproved  Stage = "terminated_approved"
	StageTerminatedEscalated Stage = "terminated_escalated"
)

// Terminal reports whether no further transitions leave s.
func (s Stage) Terminal() bool {
	return s == StageTerminatedApproved || s == StageTerminatedEscalated
}

// TerminalStatus is how a run ended.
type TerminalStatus string

const (
	StatusNone      TerminalStatus = ""
	StatusApproved  TerminalStatus = "approved"
	StatusEscalated TerminalStatus = "escalated"
)

// Ticket is an incoming support request. It is never modified after creation.
type Ticket struct {
	Subject     string `json:"subject"`
	Description string `json:"description"`
}

// WellFormed reports whether the ticket carries any text at all.
func (t Ticket) WellFormed() bool {
	return strings.TrimSpace(t.Subject) != "" || strings.TrimSpace(t.Description) != ""
}

// ReviewOutcome is the policy reviewer's verdict on a single draft.
type ReviewOutcome struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

// WorkflowState is the engine's working record for one run.
type WorkflowState struct {
	RunID           string         `json:"run_id"`
	Ticket          Ticket         `json:"ticket"`
	Category        Category       `json:"category,omitempty"`
	Suggestions     []string       `json:"suggestions"`
	Draft           string         `json:"draft"`
	DraftHistory    []string       `json:"draft_history"`
	ReviewOutcome   ReviewOutcome  `json:"review_outcome"`
	FeedbackHistory []string       `json:"feedback_history"`
	Attempts        int            `json:"attempts"`
	TerminalStatus  TerminalStatus `json:"terminal_status,omitempty"`
}

// TerminalResult is returned by a completed run.
type TerminalResult struct {
	State  WorkflowState  `json:"state"`
	Status TerminalStatus `json:"status"`
}

// EscalationRecord is the durable row written for a ticket that exhausted its retries.
type EscalationRecord struct {
	RunID       string    `json:"run_id"`
	Timestamp   time.Time `json:"timestamp"`
	Subject     string    `json:"subject"`
	Description string    `json:"description"`
	Category    Category  `json:"category"`
	Attempts    int       `json:"attempts"`
	Drafts      []string  `json:"drafts"`
	Feedback    []string  `json:"feedback"`
}

// NewEscalationRecord captures the full history of a state for escalation.
func NewEscalationRecord(state WorkflowState, at time.Time) EscalationRecord {
	return EscalationRecord{
		RunID:       state.RunID,
		Timestamp:   at,
		Subject:     state.Ticket.Subject,
		Description: state.Ticket.Description,
		Category:    state.Category,
		Attempts:    state.Attempts,
		Drafts:      append([]string(nil), state.DraftHistory...),
		Feedback:    append([]string(nil), state.FeedbackHistory...),
	}
}

// RunEvent is one row of the append-only run journal.
type RunEvent struct {
	ID         int64  `json:"id"`
	RunID      string `json:"run_id"`
	SeqNo      int64  `json:"seq_no"`
	FromStage  Stage  `json:"from_stage"`
	ToStage    Stage  `json:"to_stage"`
	Attempts   int    `json:"attempts"`
	DetailJSON string `json:"detail_json"`
	CreatedAt  int64  `json:"created_at"`
}
