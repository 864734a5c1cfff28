package watchdog

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/bryanchriswhite/WinWatch/internal/config"
	"github.com/bryanchriswhite/WinWatch/internal/logger"
	"github.com/bryanchriswhite/WinWatch/internal/match"
	"github.com/bryanchriswhite/WinWatch/internal/window"
)

// ErrRegistryClosed is returned by Watch after Close.
var ErrRegistryClosed = errors.New("watch registry closed")

// Event is one attribute change reported by a registered watchdog.
type Event struct {
	WatchID   string           `json:"watch_id"`
	Name      string           `json:"name,omitempty"`
	WindowID  window.WindowID  `json:"window_id"`
	Attribute window.Attribute `json:"attribute"`
	Value     any              `json:"value"`
	Time      time.Time        `json:"time"`
}

// WatchOptions configures a watchdog started by the registry.
type WatchOptions struct {
	Name       string
	Attributes []window.Attribute
	Interval   time.Duration
	TryToFind  bool
}

// WatchInfo describes one registered watch.
type WatchInfo struct {
	ID         string             `json:"id"`
	Name       string             `json:"name,omitempty"`
	WindowID   window.WindowID    `json:"window_id"`
	App        window.App         `json:"app"`
	Attributes []window.Attribute `json:"attributes"`
	Running    bool               `json:"running"`
	Snapshot   window.Snapshot    `json:"snapshot"`
}

type watch struct {
	id         string
	name       string
	attributes []window.Attribute
	dog        *Watchdog
}

// Registry owns a set of watchdogs and fans their changes out to
// subscribers as Events.
type Registry struct {
	resolver *window.Resolver
	recovery Recoverer
	interval time.Duration

	mu        sync.RWMutex
	watches   map[string]*watch
	order     []string
	nextID    int
	listeners []chan Event
	closed    bool
}

// NewRegistry creates an empty registry. recovery may be nil, which
// disables title recovery for every watch.
func NewRegistry(resolver *window.Resolver, recovery Recoverer, interval time.Duration) *Registry {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Registry{
		resolver: resolver,
		recovery: recovery,
		interval: interval,
		watches:  make(map[string]*watch),
	}
}

// Resolver returns the resolver used by WatchQuery.
func (r *Registry) Resolver() *window.Resolver {
	return r.resolver
}

// Watch starts a watchdog on h and returns its watch id.
func (r *Registry) Watch(h *window.Handle, opts WatchOptions) (string, error) {
	attrs := opts.Attributes
	if len(attrs) == 0 {
		attrs = slices.Clone(window.Attributes)
	}
	interval := opts.Interval
	if interval == 0 {
		interval = r.interval
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ErrRegistryClosed
	}
	r.nextID++
	id := fmt.Sprintf("w%d", r.nextID)
	dogOpts := []Option{WithTryToFind(opts.TryToFind)}
	if r.recovery != nil {
		dogOpts = append(dogOpts, WithRecovery(r.recovery))
	}
	wt := &watch{
		id:         id,
		name:       opts.Name,
		attributes: attrs,
		dog:        New(h, dogOpts...),
	}

	// Started under the lock so Close cannot miss it. Start never calls
	// back into the registry; events wait for the lock like any publisher.
	if err := wt.dog.Start(r.callbacks(wt), interval); err != nil {
		r.mu.Unlock()
		return "", err
	}
	r.watches[id] = wt
	r.order = append(r.order, id)
	r.mu.Unlock()

	logger.WithComponent("registry").Info().
		Str("watch", id).
		Str("name", opts.Name).
		Str("window", string(h.Identity())).
		Msg("Watch started")
	return id, nil
}

// WatchQuery starts one watch per window matching q.
func (r *Registry) WatchQuery(q match.Query, opts WatchOptions, find ...window.FindOption) ([]string, error) {
	handles, err := r.resolver.FindWindows(q, find...)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(handles))
	for _, h := range handles {
		id, err := r.Watch(h, opts)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// WatchRule starts a watch on the first window matching a configured rule
// and returns its id, or no ids when nothing matches. Rule fields left unset
// take the watchdog defaults from cfg.
func (r *Registry) WatchRule(rule config.WatchRule, cfg *config.Config) ([]string, error) {
	q, err := rule.Query(cfg.Match.DefaultThreshold)
	if err != nil {
		return nil, fmt.Errorf("watch %q: %w", rule.Name, err)
	}
	attrs, err := window.ParseAttributes(rule.Watch)
	if err != nil {
		return nil, fmt.Errorf("watch %q: %w", rule.Name, err)
	}
	tryToFind := cfg.Watchdog.TryToFind
	if rule.TryToFind != nil {
		tryToFind = *rule.TryToFind
	}

	handles, err := r.resolver.FindWindows(q, window.InApps(rule.Apps...))
	if err != nil {
		return nil, err
	}
	if len(handles) == 0 {
		return nil, nil
	}
	id, err := r.Watch(handles[0], WatchOptions{
		Name:       rule.Name,
		Attributes: attrs,
		Interval:   cfg.Watchdog.Interval,
		TryToFind:  tryToFind,
	})
	if err != nil {
		return nil, err
	}
	return []string{id}, nil
}

// callbacks builds the watchdog callbacks publishing the watched attributes
func (r *Registry) callbacks(wt *watch) Callbacks {
	emit := func(attr window.Attribute, value any) {
		r.notifyListeners(Event{
			WatchID:   wt.id,
			Name:      wt.name,
			WindowID:  wt.dog.Handle().Identity(),
			Attribute: attr,
			Value:     value,
			Time:      time.Now(),
		})
	}

	var cb Callbacks
	for _, attr := range wt.attributes {
		switch attr {
		case window.AttrAlive:
			cb.IsAlive = func(v bool) { emit(attr, v) }
		case window.AttrActive:
			cb.IsActive = func(v bool) { emit(attr, v) }
		case window.AttrVisible:
			cb.IsVisible = func(v bool) { emit(attr, v) }
		case window.AttrMinimized:
			cb.IsMinimized = func(v bool) { emit(attr, v) }
		case window.AttrMaximized:
			cb.IsMaximized = func(v bool) { emit(attr, v) }
		case window.AttrSize:
			cb.Resized = func(v window.Size) { emit(attr, v) }
		case window.AttrPosition:
			cb.Moved = func(v window.Point) { emit(attr, v) }
		case window.AttrTitle:
			cb.ChangedTitle = func(v string) { emit(attr, v) }
		case window.AttrDisplays:
			cb.ChangedDisplay = func(v []string) { emit(attr, v) }
		}
	}
	return cb
}

// Unwatch stops and removes a watch.
func (r *Registry) Unwatch(id string) error {
	r.mu.Lock()
	wt, ok := r.watches[id]
	if ok {
		delete(r.watches, id)
		r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("watch %q not found", id)
	}
	wt.dog.Stop()
	logger.WithComponent("registry").Info().Str("watch", id).Msg("Watch removed")
	return nil
}

// List returns the registered watches in creation order. Watches whose
// window was lost stay listed with Running false until removed.
func (r *Registry) List() []WatchInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]WatchInfo, 0, len(r.order))
	for _, id := range r.order {
		wt := r.watches[id]
		h := wt.dog.Handle()
		infos = append(infos, WatchInfo{
			ID:         wt.id,
			Name:       wt.name,
			WindowID:   h.Identity(),
			App:        h.App(),
			Attributes: slices.Clone(wt.attributes),
			Running:    wt.dog.IsRunning(),
			Snapshot:   wt.dog.Snapshot(),
		})
	}
	return infos
}

// Get returns the watchdog registered under id.
func (r *Registry) Get(id string) (*Watchdog, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wt, ok := r.watches[id]
	if !ok {
		return nil, false
	}
	return wt.dog, true
}

// Subscribe adds a listener for watch events
func (r *Registry) Subscribe() chan Event {
	ch := make(chan Event, 64)
	r.mu.Lock()
	if r.closed {
		close(ch)
	} else {
		r.listeners = append(r.listeners, ch)
	}
	r.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener
func (r *Registry) Unsubscribe(ch chan Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, listener := range r.listeners {
		if listener == ch {
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

// notifyListeners notifies all listeners of an event
func (r *Registry) notifyListeners(ev Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, listener := range r.listeners {
		select {
		case listener <- ev:
		default:
			// Skip if channel is full
		}
	}
}

// Close stops every watchdog and closes all listener channels.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	dogs := make([]*Watchdog, 0, len(r.watches))
	for _, id := range r.order {
		dogs = append(dogs, r.watches[id].dog)
	}
	r.mu.Unlock()

	// Stop outside the lock; a final tick may still publish.
	for _, d := range dogs {
		d.Stop()
	}

	r.mu.Lock()
	for _, ch := range r.listeners {
		close(ch)
	}
	r.listeners = nil
	r.mu.Unlock()
}
