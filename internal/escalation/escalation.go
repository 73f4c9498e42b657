// Package escalation persists the records of tickets that exhausted their
// retries so a human can follow up.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rogersf/ticketflow/internal/domain"
)

// AttemptDelimiter separates per-attempt entries in flattened history fields.
const AttemptDelimiter = "\n---\n"

// Sink is anything that can durably append an escalation record.
type Sink interface {
	Escalate(ctx context.Context, rec domain.EscalationRecord) error
}

// JoinAttempts flattens a history into one field, tagging each entry with its
// 1-based attempt number.
func JoinAttempts(entries []string) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf("[attempt %d] %s", i+1, e)
	}
	return strings.Join(parts, AttemptDelimiter)
}

// MultiSink fans a record out to every sink. All sinks are attempted; any
// failure fails the escalation.
type MultiSink []Sink

// Escalate implements Sink.
func (m MultiSink) Escalate(ctx context.Context, rec domain.EscalationRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Escalate(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
