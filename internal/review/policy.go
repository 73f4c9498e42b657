// Package review judges response drafts against fixed support policy rules.
package review

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rogersf/ticketflow/internal/domain"
)

// ApprovedReason is the reason attached to a draft that passes every rule.
const ApprovedReason = "Response looks good."

// Rule is a single policy check. Check returns ok=false and a human-readable
// reason when the draft violates the rule.
type Rule interface {
	Name() string
	Check(draft string) (ok bool, reason string)
}

// ProhibitedTermsRule rejects drafts that mention any of Terms, case-insensitively.
type ProhibitedTermsRule struct {
	Terms []string
}

// Name returns the rule name.
func (r *ProhibitedTermsRule) Name() string { return "prohibited_terms" }

// Check reports the first prohibited term found in draft.
func (r *ProhibitedTermsRule) Check(draft string) (bool, string) {
	lower := strings.ToLower(draft)
	for _, term := range r.Terms {
		if strings.Contains(lower, strings.ToLower(term)) {
			return false, fmt.Sprintf(
				"Policy violation: draft mentions %q. Support agents are not allowed to offer %ss directly.",
				term, term)
		}
	}
	return true, ""
}

// MinLengthRule rejects drafts shorter than Min characters.
type MinLengthRule struct {
	Min int
}

// Name returns the rule name.
func (r *MinLengthRule) Name() string { return "min_length" }

// Check counts characters, not bytes.
func (r *MinLengthRule) Check(draft string) (bool, string) {
	if utf8.RuneCountInString(draft) < r.Min {
		return false, "Draft too short and not helpful."
	}
	return true, ""
}

// PolicyReviewer evaluates rules in order; the first violation decides.
type PolicyReviewer struct {
	Rules []Rule
}

// Options configures the standard rule set.
type Options struct {
	ProhibitedTerms []string
	MinLength       int
}

// DefaultOptions returns the standard support policy.
func DefaultOptions() Options {
	return Options{
		ProhibitedTerms: []string{"refund"},
		MinLength:       30,
	}
}

// NewPolicyReviewer builds the standard prohibited-term and minimum-length rules.
func NewPolicyReviewer(opts Options) (*PolicyReviewer, error) {
	var violations []string

	if opts.MinLength < 0 {
		violations = append(violations, fmt.Sprintf("min length %d must not be negative", opts.MinLength))
	}
	for i, term := range opts.ProhibitedTerms {
		if strings.TrimSpace(term) == "" {
			violations = append(violations, fmt.Sprintf("prohibited term %d is blank", i))
		}
	}
	if len(violations) > 0 {
		return nil, domain.NewEngineError(domain.ErrConfigInvalid.Code,
			fmt.Sprintf("%s: %s", domain.ErrConfigInvalid.Message, strings.Join(violations, "; ")))
	}

	return &PolicyReviewer{Rules: []Rule{
		&ProhibitedTermsRule{Terms: opts.ProhibitedTerms},
		&MinLengthRule{Min: opts.MinLength},
	}}, nil
}

// Review implements the workflow reviewer contract. It never fails.
func (p *PolicyReviewer) Review(_ context.Context, draft string) (domain.ReviewOutcome, error) {
	for _, rule := range p.Rules {
		if ok, reason := rule.Check(draft); !ok {
			return domain.ReviewOutcome{Approved: false, Reason: reason}, nil
		}
	}
	return domain.ReviewOutcome{Approved: true, Reason: ApprovedReason}, nil
}

// Violations runs every rule and returns all reasons, for audit detail.
func (p *PolicyReviewer) Violations(draft string) []string {
	var reasons []string
	for _, rule := range p.Rules {
		if ok, reason := rule.Check(draft); !ok {
			reasons = append(reasons, fmt.Sprintf("%s: %s", rule.Name(), reason))
		}
	}
	return reasons
}
