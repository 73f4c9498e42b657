package workflow

import (
	"fmt"
	"testing"

	"github.com/rogersf/ticketflow/internal/domain"
)

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		from  domain.Stage
		to    domain.Stage
		valid bool
	}{
		{domain.StageClassifying, domain.StageRetrievingContext, true},
		{domain.StageRetrievingContext, domain.StageComposing, true},
		{domain.StageComposing, domain.StageReviewing, true},
		{domain.StageReviewing, domain.StageTerminatedApproved, true},
		{domain.StageReviewing, domain.StageEscalating, true},
		{domain.StageReviewing, domain.StageRetrievingContext, true}, // retry
		{domain.StageEscalating, domain.StageTerminatedEscalated, true},
		// Invalid transitions:
		{domain.StageClassifying, domain.StageComposing, false},
		{domain.StageReviewing, domain.StageClassifying, false},
		{domain.StageReviewing, domain.StageTerminatedEscalated, false},
		{domain.StageComposing, domain.StageRetrievingContext, false},
		{domain.StageEscalating, domain.StageTerminatedApproved, false},
		{domain.StageTerminatedApproved, domain.StageClassifying, false},
		{domain.StageTerminatedEscalated, domain.StageRetrievingContext, false},
	}

	for _, tt := range tests {
		name := fmt.Sprintf("%s->%s", tt.from, tt.to)
		t.Run(name, func(t *testing.T) {
			got := IsValidTransition(tt.from, tt.to)
			if got != tt.valid {
				t.Errorf("IsValidTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.valid)
			}
		})
	}
}

func TestRetryPolicy_Next(t *testing.T) {
	p := RetryPolicy{Limit: 2}
	approved := domain.ReviewOutcome{Approved: true}
	rejected := domain.ReviewOutcome{Approved: false, Reason: "no"}

	tests := []struct {
		name     string
		outcome  domain.ReviewOutcome
		attempts int
		want     domain.Stage
	}{
		{"approved_first", approved, 1, domain.StageTerminatedApproved},
		{"approved_at_limit", approved, 2, domain.StageTerminatedApproved},
		{"rejected_under_limit", rejected, 1, domain.StageRetrievingContext},
		{"rejected_at_limit", rejected, 2, domain.StageEscalating},
		{"rejected_over_limit", rejected, 3, domain.StageEscalating},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Next(tt.outcome, tt.attempts); got != tt.want {
				t.Errorf("Next(%v, %d) = %s, want %s", tt.outcome.Approved, tt.attempts, got, tt.want)
			}
		})
	}
}
