package window

import (
	"fmt"
	"slices"

	"github.com/bryanchriswhite/WinWatch/internal/logger"
	"github.com/bryanchriswhite/WinWatch/internal/match"
)

// Resolver turns match queries into window handles using one backend.
type Resolver struct {
	backend Backend
}

// NewResolver creates a resolver over backend.
func NewResolver(backend Backend) *Resolver {
	return &Resolver{backend: backend}
}

// Backend returns the backend the resolver enumerates.
func (r *Resolver) Backend() Backend {
	return r.backend
}

type findOptions struct {
	apps  []string
	byApp bool
}

// FindOption narrows a window search.
type FindOption func(*findOptions)

// InApps keeps only windows owned by one of the named applications. An empty
// list keeps every window.
func InApps(names ...string) FindOption {
	return func(o *findOptions) {
		o.apps = append(o.apps, names...)
	}
}

// ByAppName evaluates the query against the owning application name instead
// of the window title.
func ByAppName() FindOption {
	return func(o *findOptions) {
		o.byApp = true
	}
}

// Filter keeps the entries matching q, in their original order. Entries owned
// by an application outside apps are skipped when apps is non-empty. When
// byApp is set the query is evaluated against the application name.
func Filter(entries []Entry, q match.Query, apps []string, byApp bool) []Entry {
	var out []Entry
	for _, e := range entries {
		if len(apps) > 0 && !slices.Contains(apps, e.App.Name) {
			continue
		}
		candidate := e.Title
		if byApp {
			candidate = e.App.Name
		}
		if q.Evaluate(candidate) {
			out = append(out, e)
		}
	}
	return out
}

// FindWindows returns handles for every enumerated window matching q,
// preserving backend order. No match is an empty result, not an error.
func (r *Resolver) FindWindows(q match.Query, opts ...FindOption) ([]*Handle, error) {
	var o findOptions
	for _, opt := range opts {
		opt(&o)
	}

	entries, err := r.backend.EnumerateWindows()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate windows: %w", err)
	}

	matched := Filter(entries, q, o.apps, o.byApp)
	logger.WithComponent("resolver").Debug().
		Str("query", q.String()).
		Int("enumerated", len(entries)).
		Int("matched", len(matched)).
		Msg("FindWindows")

	return r.handles(matched)
}

// handles wraps and refreshes entries, dropping windows closed since the
// enumeration
func (r *Resolver) handles(entries []Entry) ([]*Handle, error) {
	handles := make([]*Handle, 0, len(entries))
	for _, e := range entries {
		h := NewHandle(r.backend, e)
		snap, err := h.Refresh()
		if err != nil {
			return nil, err
		}
		if !snap.IsAlive {
			continue
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// AllWindows returns a refreshed handle for every enumerated window.
func (r *Resolver) AllWindows() ([]*Handle, error) {
	entries, err := r.backend.EnumerateWindows()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate windows: %w", err)
	}
	return r.handles(entries)
}

// AllTitles returns the title of every enumerated window.
func (r *Resolver) AllTitles() ([]string, error) {
	entries, err := r.backend.EnumerateWindows()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate windows: %w", err)
	}
	titles := make([]string, 0, len(entries))
	for _, e := range entries {
		titles = append(titles, e.Title)
	}
	return titles, nil
}

// AllAppNames returns the distinct application names in backend order.
func (r *Resolver) AllAppNames() ([]string, error) {
	apps, err := r.backend.EnumerateApps()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate apps: %w", err)
	}
	names := make([]string, 0, len(apps))
	for _, app := range apps {
		if !slices.Contains(names, app.Name) {
			names = append(names, app.Name)
		}
	}
	return names, nil
}

// FindApps returns the application names matching q.
func (r *Resolver) FindApps(q match.Query) ([]string, error) {
	names, err := r.AllAppNames()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, name := range names {
		if q.Evaluate(name) {
			out = append(out, name)
		}
	}
	return out, nil
}

// AppWindowTitles maps every application name to the titles of its windows.
func (r *Resolver) AppWindowTitles() (map[string][]string, error) {
	entries, err := r.backend.EnumerateWindows()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate windows: %w", err)
	}
	result := make(map[string][]string)
	for _, e := range entries {
		result[e.App.Name] = append(result[e.App.Name], e.Title)
	}
	return result, nil
}

// ActiveWindow returns the foreground window, or nil when no window is
// active.
func (r *Resolver) ActiveWindow() (*Handle, error) {
	handles, err := r.AllWindows()
	if err != nil {
		return nil, err
	}
	for _, h := range handles {
		if h.Snapshot().IsActive {
			return h, nil
		}
	}
	return nil, nil
}

// WindowsAt returns the windows whose frame contains (x, y), in backend
// order.
func (r *Resolver) WindowsAt(x, y int) ([]*Handle, error) {
	handles, err := r.AllWindows()
	if err != nil {
		return nil, err
	}
	var out []*Handle
	for _, h := range handles {
		if h.Snapshot().Rect().Contains(x, y) {
			out = append(out, h)
		}
	}
	return out, nil
}
