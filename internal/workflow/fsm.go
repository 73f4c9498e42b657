// Package workflow implements the ticket pipeline's state machine: classify,
// retrieve context, compose, review, and retry or escalate.
package workflow

import (
	"github.com/rogersf/ticketflow/internal/domain"
)

// validTransitions defines the legal stage transitions.
// Each key is a source stage, and the value is the set of valid target stages.
var validTransitions = map[domain.Stage]map[domain.Stage]bool{
	domain.StageClassifying:       {domain.StageRetrievingContext: true},
	domain.StageRetrievingContext: {domain.StageComposing: true},
	domain.StageComposing:         {domain.StageReviewing: true},
	domain.StageReviewing: {
		domain.StageTerminatedApproved: true,
		domain.StageEscalating:         true,
		domain.StageRetrievingContext:  true, // retry
	},
	domain.StageEscalating: {domain.StageTerminatedEscalated: true},
}

// IsValidTransition checks if a stage transition is legal.
func IsValidTransition(from, to domain.Stage) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// DefaultRetryLimit is the number of failed reviews after which a ticket is escalated.
const DefaultRetryLimit = 2

// RetryPolicy decides what follows a review pass.
type RetryPolicy struct {
	Limit int
}

// Next applies the retry decision rule. attempts must already include the
// review pass that produced outcome.
func (p RetryPolicy) Next(outcome domain.ReviewOutcome, attempts int) domain.Stage {
	switch {
	case outcome.Approved:
		return domain.StageTerminatedApproved
	case attempts >= p.Limit:
		return domain.StageEscalating
	default:
		return domain.StageRetrievingContext
	}
}
