package status

import (
	"strings"
)

// DefaultColumn is where a label lands when nothing in the cascade matches.
const DefaultColumn = ColumnTodo

// Normalizer resolves free-text status labels to columns.
//
// Resolution order, first match wins:
//  1. Exact match against the mapping's label table.
//  2. User-defined override, looked up by the lower-cased label.
//  3. A column's own name ("DONE", "TESTING & REVIEW"), so bare column
//     labels resolve without shadowing overrides for them.
//  4. Keyword match against the mapping's ordered keyword list.
//  5. DefaultColumn.
//
// Matching is case-insensitive and whitespace-trimmed throughout.
//
// Normalize is a pure function of the label: the mapping and overrides are
// copied at construction and never mutated, so the same input always
// yields the same column.
type Normalizer struct {
	exact     map[string]Column
	overrides map[string]Column
	keywords  []KeywordRule
}

// NewNormalizer builds a normalizer from mapping data and user overrides.
//
// Overrides come from the configuration collaborator; keys are
// lower-cased here so callers can pass them as persisted. A nil overrides
// map is valid.
func NewNormalizer(mapping Mapping, overrides map[string]Column) *Normalizer {
	n := &Normalizer{
		exact:     make(map[string]Column, len(mapping.Exact)),
		overrides: make(map[string]Column, len(overrides)),
		keywords:  make([]KeywordRule, len(mapping.Keywords)),
	}

	for label, column := range mapping.Exact {
		n.exact[lowerTrim(label)] = column
	}
	for label, column := range overrides {
		n.overrides[lowerTrim(label)] = column
	}
	for i, rule := range mapping.Keywords {
		n.keywords[i] = KeywordRule{Keyword: lowerTrim(rule.Keyword), Column: rule.Column}
	}

	return n
}

// Normalize maps a raw status label to its column.
//
// The second return reports whether the label matched anything in the
// cascade. A false value means the label fell through to DefaultColumn;
// callers surface such labels to the operator rather than swallowing them.
func (n *Normalizer) Normalize(label string) (Column, bool) {
	key := lowerTrim(label)
	if key == "" {
		return DefaultColumn, false
	}

	if column, ok := n.exact[key]; ok {
		return column, true
	}

	if column, ok := n.overrides[key]; ok {
		return column, true
	}

	if column := Column(strings.ToUpper(key)); column.Valid() {
		return column, true
	}

	for _, rule := range n.keywords {
		if strings.Contains(key, rule.Keyword) {
			return rule.Column, true
		}
	}

	return DefaultColumn, false
}

func lowerTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
