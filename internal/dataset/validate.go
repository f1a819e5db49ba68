package dataset

import (
	"fmt"
	"strings"

	"github.com/symptom-likelihood-server/internal/domain"
)

// validateCategories records category-level problems and returns the set of
// known category ids.
func validateCategories(categories []domain.Category, problems *domain.MalformedDatasetError) map[string]bool {
	known := make(map[string]bool, len(categories))
	for _, cat := range categories {
		if strings.TrimSpace(cat.ID) == "" {
			problems.AddCategory(cat.Name, "category id is required")
			continue
		}
		if known[cat.ID] {
			problems.AddCategory(cat.ID, "duplicate category id")
			continue
		}
		known[cat.ID] = true
	}
	return known
}

// ValidateCondition checks one condition against the dataset invariants:
// a name, at least one node, unique non-empty node ids, known severities,
// a known category and edge endpoints among the condition's own nodes.
func ValidateCondition(c domain.Condition, categories map[string]bool) []domain.DatasetProblem {
	var problems []domain.DatasetProblem
	add := func(format string, args ...interface{}) {
		problems = append(problems, domain.DatasetProblem{Condition: c.Name, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(c.Name) == "" {
		add("condition name is required")
	}
	if c.Category != "" && !categories[c.Category] {
		add("unknown category %q", c.Category)
	}
	if len(c.Nodes) == 0 {
		add("condition has no symptom nodes")
	}

	ids := make(map[string]bool, len(c.Nodes))
	for i, n := range c.Nodes {
		if strings.TrimSpace(n.ID) == "" {
			add("node %d has no id", i)
			continue
		}
		if ids[n.ID] {
			add("duplicate node id %q", n.ID)
		}
		ids[n.ID] = true
		if !n.Severity.IsValid() {
			add("node %q: %v %q", n.ID, domain.ErrInvalidSeverity, n.Severity)
		}
	}

	for _, e := range c.Edges {
		if !ids[e.From] {
			add("edge %s->%s: unknown source node %q", e.From, e.To, e.From)
		}
		if !ids[e.To] {
			add("edge %s->%s: unknown target node %q", e.From, e.To, e.To)
		}
	}
	return problems
}
