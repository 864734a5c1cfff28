// Package match evaluates window titles and application names against
// queries built from one of twelve match conditions.
package match

import (
	"fmt"
	"strings"
)

// Condition selects how a query pattern is compared with a candidate string.
// Every negative condition is the arithmetic negation of its positive
// counterpart and evaluates to its exact logical negation.
type Condition int

const (
	Is         Condition = 1
	Contains   Condition = 2
	StartsWith Condition = 3
	EndsWith   Condition = 4

	NotIs         Condition = -1
	NotContains   Condition = -2
	NotStartsWith Condition = -3
	NotEndsWith   Condition = -4

	Match    Condition = 10
	NotMatch Condition = -10

	// EditDistance compares a normalized Levenshtein similarity against the
	// query threshold.
	EditDistance Condition = 20
	// DiffRatio compares a matching-blocks similarity ratio against the query
	// threshold.
	DiffRatio Condition = 30
)

var conditionNames = map[Condition]string{
	Is:            "is",
	Contains:      "contains",
	StartsWith:    "startswith",
	EndsWith:      "endswith",
	NotIs:         "notis",
	NotContains:   "notcontains",
	NotStartsWith: "notstartswith",
	NotEndsWith:   "notendswith",
	Match:         "match",
	NotMatch:      "notmatch",
	EditDistance:  "editdistance",
	DiffRatio:     "diffratio",
}

// Conditions lists every supported condition in a stable order.
var Conditions = []Condition{
	Is, Contains, StartsWith, EndsWith,
	NotIs, NotContains, NotStartsWith, NotEndsWith,
	Match, NotMatch, EditDistance, DiffRatio,
}

func (c Condition) String() string {
	if name, ok := conditionNames[c]; ok {
		return name
	}
	return fmt.Sprintf("condition(%d)", int(c))
}

// Valid reports whether c is one of the supported conditions.
func (c Condition) Valid() bool {
	_, ok := conditionNames[c]
	return ok
}

// Negated reports whether c is a negative condition.
func (c Condition) Negated() bool {
	return c < 0
}

// Similarity reports whether c is a fuzzy similarity condition.
func (c Condition) Similarity() bool {
	return c == EditDistance || c == DiffRatio
}

// ParseCondition resolves a condition by name. Names are case-insensitive and
// may use "_" or "-" separators ("not_contains", "edit-distance").
func ParseCondition(name string) (Condition, error) {
	normalized := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(name))
	for c, n := range conditionNames {
		if n == normalized {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown match condition %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (c Condition) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("unknown match condition %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Condition) UnmarshalText(text []byte) error {
	parsed, err := ParseCondition(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
