package watchdog

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/bryanchriswhite/WinWatch/internal/logger"
	"github.com/bryanchriswhite/WinWatch/internal/match"
	"github.com/bryanchriswhite/WinWatch/internal/window"
)

// TitleRecovery looks for the window a title-identified handle turned into
// after its title changed: the most similar window of the same application.
type TitleRecovery struct {
	resolver  *window.Resolver
	condition match.Condition
	threshold int
}

var _ Recoverer = (*TitleRecovery)(nil)

// RecoveryOption configures a TitleRecovery.
type RecoveryOption func(*TitleRecovery)

// WithSimilarity selects the similarity condition and minimum score.
func WithSimilarity(condition match.Condition, threshold int) RecoveryOption {
	return func(r *TitleRecovery) {
		r.condition = condition
		r.threshold = threshold
	}
}

// NewTitleRecovery creates a recovery strategy scoring candidates with
// DiffRatio at threshold 90 unless overridden.
func NewTitleRecovery(resolver *window.Resolver, opts ...RecoveryOption) (*TitleRecovery, error) {
	r := &TitleRecovery{
		resolver:  resolver,
		condition: match.DiffRatio,
		threshold: match.DefaultThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}
	if !r.condition.Similarity() {
		return nil, fmt.Errorf("recovery needs a similarity condition, got %s", r.condition)
	}
	if _, err := r.query(""); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *TitleRecovery) query(title string) (match.Query, error) {
	return match.NewQuery(title, r.condition, match.WithThreshold(r.threshold))
}

type candidate struct {
	entry window.Entry
	score float64
}

// Recover returns a live handle for the best-scoring window of owner whose
// title clears the threshold, or nil. Equal scores resolve to the window
// enumerated first.
func (r *TitleRecovery) Recover(lostTitle string, owner window.App) *window.Handle {
	log := logger.WithComponent("recovery")

	q, err := r.query(lostTitle)
	if err != nil {
		log.Error().Err(err).Msg("Failed to build recovery query")
		return nil
	}

	entries, err := r.resolver.Backend().EnumerateWindows()
	if err != nil {
		log.Warn().Err(err).Msg("Enumeration failed during title recovery")
		return nil
	}

	var apps []string
	if owner.Name != "" {
		apps = []string{owner.Name}
	}

	var candidates []candidate
	for _, e := range window.Filter(entries, q, apps, false) {
		candidates = append(candidates, candidate{entry: e, score: q.Score(e.Title)})
	}
	slices.SortStableFunc(candidates, func(a, b candidate) int {
		return cmp.Compare(b.score, a.score)
	})

	log.Debug().
		Str("lost", lostTitle).
		Str("app", owner.Name).
		Int("candidates", len(candidates)).
		Msg("Title recovery")

	for _, c := range candidates {
		h := window.NewHandle(r.resolver.Backend(), c.entry)
		snap, err := h.Refresh()
		if err != nil {
			return nil
		}
		if snap.IsAlive {
			log.Debug().Str("title", c.entry.Title).Float64("score", c.score).Msg("Recovered window")
			return h
		}
	}
	return nil
}
