// Package classify maps ticket text to a support category by keyword matching.
package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rogersf/ticketflow/internal/domain"
)

// Rule assigns Category to any ticket whose text contains one of Keywords.
type Rule struct {
	Category domain.Category `koanf:"category" yaml:"category"`
	Keywords []string        `koanf:"keywords" yaml:"keywords"`
}

// DefaultRules returns the standard keyword table. Rules are checked in order.
func DefaultRules() []Rule {
	return []Rule{
		{Category: domain.CategoryBilling, Keywords: []string{"payment", "card"}},
		{Category: domain.CategoryTechnical, Keywords: []string{"error", "bug"}},
		{Category: domain.CategorySecurity, Keywords: []string{"password", "hacked"}},
	}
}

// KeywordClassifier assigns the category of the first rule with a keyword
// occurring in the lower-cased subject and description. Text matching no rule
// falls back to Fallback.
type KeywordClassifier struct {
	Rules    []Rule
	Fallback domain.Category
}

// NewKeywordClassifier validates rules and builds a classifier. Keywords are
// lower-cased once here.
func NewKeywordClassifier(rules []Rule) (*KeywordClassifier, error) {
	normalized := make([]Rule, 0, len(rules))
	for i, r := range rules {
		if !r.Category.Valid() {
			return nil, fmt.Errorf("rule %d: unknown category %q", i, r.Category)
		}
		kw := make([]string, 0, len(r.Keywords))
		for _, k := range r.Keywords {
			k = strings.ToLower(strings.TrimSpace(k))
			if k != "" {
				kw = append(kw, k)
			}
		}
		normalized = append(normalized, Rule{Category: r.Category, Keywords: kw})
	}
	return &KeywordClassifier{Rules: normalized, Fallback: domain.CategoryGeneral}, nil
}

// Classify implements the workflow classifier contract. It never fails.
func (c *KeywordClassifier) Classify(_ context.Context, subject, description string) (domain.Category, error) {
	text := strings.ToLower(subject + " " + description)
	for _, r := range c.Rules {
		for _, k := range r.Keywords {
			if strings.Contains(text, k) {
				return r.Category, nil
			}
		}
	}
	return c.Fallback, nil
}
