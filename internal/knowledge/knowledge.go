// Package knowledge provides the static suggestion table consulted for each
// ticket category, plus the refinement applied when a draft is retried.
package knowledge

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rogersf/ticketflow/internal/domain"
)

// Table maps a category to its ordered suggestions.
type Table map[domain.Category][]string

// DefaultTable returns the built-in suggestions.
func DefaultTable() Table {
	return Table{
		domain.CategoryBilling:   {"Check if the payment method is valid."},
		domain.CategoryTechnical: {"Try restarting the app and clearing the cache."},
		domain.CategorySecurity:  {"Reset your password and enable 2FA."},
		domain.CategoryGeneral:   {"Please provide more information about your issue."},
	}
}

// LoadTable reads a YAML document of the form
//
//	Billing:
//	  - Check if the payment method is valid.
//
// Keys must be known categories.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge table: %w", err)
	}

	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse knowledge table: %w", err)
	}

	table := make(Table, len(raw))
	for k, v := range raw {
		cat := domain.Category(k)
		if !cat.Valid() {
			return nil, fmt.Errorf("knowledge table: unknown category %q", k)
		}
		table[cat] = v
	}
	return table, nil
}

// StaticProvider answers retrieval requests from a fixed table.
type StaticProvider struct {
	table Table
}

// NewStaticProvider creates a provider over a copy of table.
func NewStaticProvider(table Table) *StaticProvider {
	cp := make(Table, len(table))
	for k, v := range table {
		cp[k] = append([]string(nil), v...)
	}
	return &StaticProvider{table: cp}
}

// Retrieve returns the suggestions for category. Unknown categories yield an
// empty, non-nil slice.
func (p *StaticProvider) Retrieve(_ context.Context, category domain.Category) ([]string, error) {
	return append([]string{}, p.table[category]...), nil
}

// DefaultNotes returns the clarifying notes appended on retry.
func DefaultNotes() map[domain.Category]string {
	return map[domain.Category]string{
		domain.CategoryBilling: "Please contact billing support for refunds.",
	}
}

// NoteRefiner appends a category-specific clarifying note to the retrieved
// suggestions when a draft has to be redone.
type NoteRefiner struct {
	Notes map[domain.Category]string
}

// Refine returns suggestions with the category's note appended, if any.
// The input slice is not modified.
func (r *NoteRefiner) Refine(_ context.Context, category domain.Category, suggestions []string, _ domain.ReviewOutcome) ([]string, error) {
	out := append([]string{}, suggestions...)
	if note, ok := r.Notes[category]; ok && note != "" {
		out = append(out, note)
	}
	return out, nil
}
