package match

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
	"golang.org/x/text/cases"
)

// DefaultThreshold is the similarity percentage used by EditDistance and
// DiffRatio queries when no threshold is given.
const DefaultThreshold = 90

// Flags modify how a query is evaluated. IgnoreCase applies to every
// condition; the remaining flags are passed to the regular expression engine
// for Match and NotMatch.
type Flags uint32

const (
	IgnoreCase Flags = 1 << iota
	Multiline
	DotAll
	Verbose
	ExplicitCapture
)

func (f Flags) regexOptions() regexp2.RegexOptions {
	var opts regexp2.RegexOptions
	if f&IgnoreCase != 0 {
		opts |= regexp2.IgnoreCase
	}
	if f&Multiline != 0 {
		opts |= regexp2.Multiline
	}
	if f&DotAll != 0 {
		opts |= regexp2.Singleline
	}
	if f&Verbose != 0 {
		opts |= regexp2.IgnorePatternWhitespace
	}
	if f&ExplicitCapture != 0 {
		opts |= regexp2.ExplicitCapture
	}
	return opts
}

// Option configures a Query.
type Option func(*Query)

// WithFlags sets the query flags.
func WithFlags(flags Flags) Option {
	return func(q *Query) {
		q.flags |= flags
	}
}

// WithIgnoreCase makes the comparison case-insensitive.
func WithIgnoreCase() Option {
	return WithFlags(IgnoreCase)
}

// WithThreshold sets the similarity percentage for EditDistance and DiffRatio.
func WithThreshold(threshold int) Option {
	return func(q *Query) {
		q.threshold = threshold
	}
}

// Query is an immutable, validated match request. The zero value is not
// usable; build queries with NewQuery.
type Query struct {
	pattern   string
	folded    string
	condition Condition
	flags     Flags
	threshold int
	re        *regexp2.Regexp
}

// NewQuery validates and compiles a query. Malformed regular expressions fail
// with *InvalidPatternError and thresholds outside [0, 100] with
// *InvalidFlagError.
func NewQuery(pattern string, condition Condition, opts ...Option) (Query, error) {
	q := Query{
		pattern:   pattern,
		condition: condition,
		threshold: DefaultThreshold,
	}
	for _, opt := range opts {
		opt(&q)
	}

	if !condition.Valid() {
		return Query{}, fmt.Errorf("unknown match condition %d", int(condition))
	}
	if q.threshold < 0 || q.threshold > 100 {
		return Query{}, &InvalidFlagError{Flag: "threshold", Value: q.threshold}
	}

	switch condition {
	case Match, NotMatch:
		re, err := regexp2.Compile(pattern, q.flags.regexOptions())
		if err != nil {
			return Query{}, &InvalidPatternError{Pattern: pattern, Err: err}
		}
		q.re = re
	default:
		q.folded = q.fold(pattern)
	}

	return q, nil
}

// MustQuery is like NewQuery but panics on error. Use for known-good
// patterns at initialization.
func MustQuery(pattern string, condition Condition, opts ...Option) Query {
	q, err := NewQuery(pattern, condition, opts...)
	if err != nil {
		panic(err)
	}
	return q
}

func (q Query) Pattern() string      { return q.pattern }
func (q Query) Condition() Condition { return q.condition }
func (q Query) Flags() Flags         { return q.flags }
func (q Query) Threshold() int       { return q.threshold }

func (q Query) String() string {
	s := fmt.Sprintf("%s %q", q.condition, q.pattern)
	if q.flags&IgnoreCase != 0 {
		s += " (ignore case)"
	}
	if q.condition.Similarity() {
		s += fmt.Sprintf(" >= %d", q.threshold)
	}
	return s
}

// fold applies the case-insensitivity rule. A Caser is stateful, so a fresh
// one is created per call to keep Evaluate safe for concurrent use.
func (q Query) fold(s string) string {
	if q.flags&IgnoreCase == 0 {
		return s
	}
	return cases.Fold().String(s)
}

// Evaluate reports whether candidate satisfies q.
func Evaluate(candidate string, q Query) bool {
	return q.Evaluate(candidate)
}

// Evaluate reports whether candidate satisfies the query.
func (q Query) Evaluate(candidate string) bool {
	if q.condition.Negated() {
		return !q.evaluate(candidate, -q.condition)
	}
	return q.evaluate(candidate, q.condition)
}

func (q Query) evaluate(candidate string, condition Condition) bool {
	switch condition {
	case Match:
		ok, err := q.re.MatchString(candidate)
		return err == nil && ok
	case EditDistance, DiffRatio:
		return q.Score(candidate) >= float64(q.threshold)
	}

	c := q.fold(candidate)
	switch condition {
	case Is:
		return c == q.folded
	case Contains:
		return strings.Contains(c, q.folded)
	case StartsWith:
		return strings.HasPrefix(c, q.folded)
	case EndsWith:
		return strings.HasSuffix(c, q.folded)
	}
	return false
}

// Score returns the 0-100 similarity of candidate to the query pattern. For
// similarity conditions it is the condition's own metric; for every other
// condition it is 100 when the candidate satisfies the query and 0 otherwise.
func (q Query) Score(candidate string) float64 {
	switch q.condition {
	case EditDistance:
		return EditDistanceSimilarity(q.folded, q.fold(candidate))
	case DiffRatio:
		return DiffRatioSimilarity(q.folded, q.fold(candidate))
	}
	if q.Evaluate(candidate) {
		return 100
	}
	return 0
}
