package commands

import (
	"fmt"

	"github.com/bryanchriswhite/WinWatch/internal/match"
	"github.com/spf13/cobra"
)

// queryFlags holds the match flags shared by find, apps and watch
type queryFlags struct {
	condition  string
	ignoreCase bool
	multiline  bool
	dotAll     bool
	threshold  int
	apps       []string
}

func (f *queryFlags) register(cmd *cobra.Command, defaultCondition string) {
	cmd.Flags().StringVarP(&f.condition, "condition", "c", defaultCondition,
		"match condition (is, contains, startswith, endswith, notis, notcontains, notstartswith, notendswith, match, notmatch, editdistance, diffratio)")
	cmd.Flags().BoolVarP(&f.ignoreCase, "ignore-case", "i", false, "case-insensitive matching")
	cmd.Flags().BoolVar(&f.multiline, "multiline", false, "regex: ^ and $ match at line breaks")
	cmd.Flags().BoolVar(&f.dotAll, "dotall", false, "regex: . matches newlines")
	cmd.Flags().IntVarP(&f.threshold, "threshold", "t", 0, "similarity threshold 0-100 for editdistance/diffratio (default from config)")
	cmd.Flags().StringSliceVar(&f.apps, "app", nil, "only windows of these applications (repeatable)")
}

// query builds the match query for pattern
func (f *queryFlags) query(pattern string, defaultThreshold int) (match.Query, error) {
	cond, err := match.ParseCondition(f.condition)
	if err != nil {
		return match.Query{}, err
	}

	var flags match.Flags
	if f.ignoreCase {
		flags |= match.IgnoreCase
	}
	if f.multiline {
		flags |= match.Multiline
	}
	if f.dotAll {
		flags |= match.DotAll
	}

	threshold := f.threshold
	if threshold == 0 {
		threshold = defaultThreshold
	}

	q, err := match.NewQuery(pattern, cond, match.WithFlags(flags), match.WithThreshold(threshold))
	if err != nil {
		return match.Query{}, fmt.Errorf("invalid query: %w", err)
	}
	return q, nil
}
