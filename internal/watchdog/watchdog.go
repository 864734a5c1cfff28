package watchdog

import (
	"fmt"
	"sync"
	"time"

	"github.com/bryanchriswhite/WinWatch/internal/logger"
	"github.com/bryanchriswhite/WinWatch/internal/window"
)

// DefaultInterval is the polling interval used when Start gets zero.
const DefaultInterval = 300 * time.Millisecond

// Callbacks maps each observable attribute to the function notified when it
// changes. A nil field leaves the attribute unwatched.
type Callbacks struct {
	IsAlive        func(alive bool)
	IsActive       func(active bool)
	IsVisible      func(visible bool)
	IsMinimized    func(minimized bool)
	IsMaximized    func(maximized bool)
	Resized        func(size window.Size)
	Moved          func(pos window.Point)
	ChangedTitle   func(title string)
	ChangedDisplay func(displays []string)
}

// notify fires the callback for attr with its value in snap. It reports
// whether a callback was registered.
func (c Callbacks) notify(attr window.Attribute, snap window.Snapshot) bool {
	switch attr {
	case window.AttrAlive:
		if c.IsAlive != nil {
			c.IsAlive(snap.IsAlive)
			return true
		}
	case window.AttrActive:
		if c.IsActive != nil {
			c.IsActive(snap.IsActive)
			return true
		}
	case window.AttrVisible:
		if c.IsVisible != nil {
			c.IsVisible(snap.IsVisible)
			return true
		}
	case window.AttrMinimized:
		if c.IsMinimized != nil {
			c.IsMinimized(snap.IsMinimized)
			return true
		}
	case window.AttrMaximized:
		if c.IsMaximized != nil {
			c.IsMaximized(snap.IsMaximized)
			return true
		}
	case window.AttrSize:
		if c.Resized != nil {
			c.Resized(snap.Size)
			return true
		}
	case window.AttrPosition:
		if c.Moved != nil {
			c.Moved(snap.Position)
			return true
		}
	case window.AttrTitle:
		if c.ChangedTitle != nil {
			c.ChangedTitle(snap.Title)
			return true
		}
	case window.AttrDisplays:
		if c.ChangedDisplay != nil {
			c.ChangedDisplay(snap.Value(window.AttrDisplays).([]string))
			return true
		}
	}
	return false
}

// Recoverer finds a replacement for a title-identified window whose title
// changed.
type Recoverer interface {
	Recover(lostTitle string, owner window.App) *window.Handle
}

// Option configures a Watchdog.
type Option func(*Watchdog)

// WithRecovery sets the strategy used when tryToFind is enabled.
func WithRecovery(r Recoverer) Option {
	return func(w *Watchdog) {
		w.recovery = r
	}
}

// WithTryToFind enables title recovery from the start.
func WithTryToFind(enabled bool) Option {
	return func(w *Watchdog) {
		w.tryToFind = enabled
	}
}

// Watchdog polls one window in a background goroutine and reports attribute
// changes through Callbacks. Callbacks run on the polling goroutine and must
// not call Stop or Start on their own watchdog.
type Watchdog struct {
	// lifecycle serializes Start and Stop
	lifecycle sync.Mutex

	mu        sync.Mutex
	handle    *window.Handle
	callbacks Callbacks
	interval  time.Duration
	tryToFind bool
	recovery  Recoverer
	last      window.Snapshot

	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// New creates a stopped watchdog bound to handle.
func New(handle *window.Handle, opts ...Option) *Watchdog {
	w := &Watchdog{
		handle:   handle,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins polling with the given callbacks. A running watchdog is
// restarted with the new settings. Zero interval selects DefaultInterval.
// The handle is refreshed first so only changes after Start are reported;
// a *window.BackendUnavailableError from that refresh is returned and the
// watchdog stays stopped.
func (w *Watchdog) Start(cb Callbacks, interval time.Duration) error {
	if interval < 0 {
		return fmt.Errorf("invalid watchdog interval %s", interval)
	}
	if interval == 0 {
		interval = DefaultInterval
	}

	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	w.stop()

	baseline, err := w.Handle().Refresh()
	if err != nil {
		return fmt.Errorf("failed to read initial window state: %w", err)
	}

	w.mu.Lock()
	w.callbacks = cb
	w.interval = interval
	w.last = baseline
	w.running = true
	w.stopCh = make(chan struct{})
	w.done = make(chan struct{})
	stopCh, done := w.stopCh, w.done
	w.mu.Unlock()

	logger.WithComponent("watchdog").Debug().
		Str("window", string(w.Handle().Identity())).
		Dur("interval", interval).
		Msg("Watchdog started")

	go w.run(stopCh, done)
	return nil
}

// Stop signals the polling goroutine and waits for it to exit. A tick in
// progress completes first.
func (w *Watchdog) Stop() {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	w.stop()
}

func (w *Watchdog) stop() {
	w.mu.Lock()
	if !w.running {
		done := w.done
		w.mu.Unlock()
		if done != nil {
			<-done
		}
		return
	}
	w.running = false
	close(w.stopCh)
	done := w.done
	w.mu.Unlock()

	<-done
	logger.WithComponent("watchdog").Debug().
		Str("window", string(w.Handle().Identity())).
		Msg("Watchdog stopped")
}

// UpdateCallbacks replaces every callback at once; attributes left nil in cb
// stop being reported.
func (w *Watchdog) UpdateCallbacks(cb Callbacks) {
	w.mu.Lock()
	w.callbacks = cb
	w.mu.Unlock()
}

// UpdateInterval changes the polling interval. The sleep in progress keeps
// its original duration.
func (w *Watchdog) UpdateInterval(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid watchdog interval %s", interval)
	}
	w.mu.Lock()
	w.interval = interval
	w.mu.Unlock()
	return nil
}

// SetTryToFind toggles title recovery for title-identified windows.
func (w *Watchdog) SetTryToFind(enabled bool) {
	w.mu.Lock()
	w.tryToFind = enabled
	w.mu.Unlock()
}

// IsRunning reports whether the polling goroutine is active.
func (w *Watchdog) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Done returns a channel closed when the current polling goroutine exits,
// either through Stop or because the window was lost.
func (w *Watchdog) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return w.done
}

// Handle returns the window currently observed. It changes when title
// recovery rebinds the watchdog.
func (w *Watchdog) Handle() *window.Handle {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.handle
}

// Snapshot returns the last snapshot the watchdog compared against.
func (w *Watchdog) Snapshot() window.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last.Clone()
}

func (w *Watchdog) run(stopCh <-chan struct{}, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			logger.WithComponent("watchdog").Error().
				Interface("panic", r).
				Str("window", string(w.Handle().Identity())).
				Msg("Watchdog callback panicked, stopping")
			w.finish(done)
		}
	}()

	for {
		w.mu.Lock()
		interval := w.interval
		w.mu.Unlock()

		timer := time.NewTimer(interval)
		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		select {
		case <-stopCh:
			return
		default:
		}

		if !w.tick() {
			w.finish(done)
			return
		}
	}
}

// finish marks the watchdog stopped after the loop ended on its own.
func (w *Watchdog) finish(done chan struct{}) {
	w.mu.Lock()
	if w.done == done {
		w.running = false
	}
	w.mu.Unlock()
}

// tick runs one poll cycle and reports whether polling should continue.
func (w *Watchdog) tick() bool {
	log := logger.WithComponent("watchdog")

	w.mu.Lock()
	h, cb, tryToFind, recovery, last := w.handle, w.callbacks, w.tryToFind, w.recovery, w.last
	w.mu.Unlock()

	snap, err := h.Refresh()
	if err != nil {
		log.Warn().Err(err).Str("window", string(h.Identity())).Msg("Backend unavailable, stopping watchdog")
		if cb.IsAlive != nil {
			cb.IsAlive(false)
		}
		return false
	}

	if !snap.IsAlive && tryToFind && h.TitleIdentified() && recovery != nil {
		if found := recovery.Recover(last.Title, h.App()); found != nil {
			log.Info().
				Str("lost", last.Title).
				Str("found", found.Snapshot().Title).
				Str("window", string(found.Identity())).
				Msg("Window title changed, watchdog rebound")
			h = found
			snap = found.Snapshot()
			w.mu.Lock()
			w.handle = found
			w.mu.Unlock()
		}
	}

	for _, attr := range snap.Changed(last) {
		if attr == window.AttrAlive {
			continue
		}
		cb.notify(attr, snap)
	}

	w.mu.Lock()
	w.last = snap
	w.mu.Unlock()

	if !snap.IsAlive {
		log.Debug().Str("window", string(h.Identity())).Msg("Window lost, stopping watchdog")
		cb.notify(window.AttrAlive, snap)
		return false
	}
	return true
}
