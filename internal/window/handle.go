package window

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bryanchriswhite/WinWatch/internal/logger"
)

// Handle is a reference to one platform window plus the most recent snapshot
// of its attributes. Once a refresh observes the window as gone the handle is
// permanently invalid.
type Handle struct {
	backend Backend
	id      WindowID
	app     App
	byTitle bool

	mu       sync.RWMutex
	snapshot Snapshot
}

// NewHandle wraps an enumeration entry. The snapshot is seeded with the
// enumerated title and filled in by the first Refresh.
func NewHandle(backend Backend, entry Entry) *Handle {
	return &Handle{
		backend: backend,
		id:      entry.ID,
		app:     entry.App,
		byTitle: backend.Capabilities().TitleIdentified,
		snapshot: Snapshot{
			Title:   entry.Title,
			IsAlive: true,
		},
	}
}

// Identity returns the key used to tell whether two handles refer to the same
// window.
func (h *Handle) Identity() WindowID {
	return h.id
}

// App returns the owning application.
func (h *Handle) App() App {
	return h.app
}

// TitleIdentified reports whether the backend addresses this window by its
// title.
func (h *Handle) TitleIdentified() bool {
	return h.byTitle
}

// Backend returns the backend the handle reads from.
func (h *Handle) Backend() Backend {
	return h.backend
}

// Snapshot returns the cached snapshot without touching the backend.
func (h *Handle) Snapshot() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshot.Clone()
}

func (h *Handle) String() string {
	return fmt.Sprintf("%s[%s %q]", h.backend.Name(), h.id, h.Snapshot().Title)
}

// Refresh re-reads every attribute from the backend and replaces the cached
// snapshot. A failed attribute read keeps the previous value. IsAlive turns
// false only when the backend reports the window as gone, and never turns
// back. The only error returned is a *BackendUnavailableError.
func (h *Handle) Refresh() (Snapshot, error) {
	log := logger.WithComponent("handle")

	h.mu.Lock()
	defer h.mu.Unlock()

	next := h.snapshot.Clone()
	if !next.IsAlive {
		return next, nil
	}

	exists, err := h.backend.WindowExists(h.id)
	switch {
	case IsBackendUnavailable(err):
		return next, err
	case err != nil:
		log.Debug().Err(err).Str("window", string(h.id)).Msg("Existence check failed, keeping alive state")
	case !exists:
		next.IsAlive = false
		h.snapshot = next
		return next.Clone(), nil
	}

	attrs, err := h.backend.ReadAttributes(h.id)
	switch {
	case IsBackendUnavailable(err):
		return h.snapshot.Clone(), err
	case errors.Is(err, ErrWindowGone):
		next.IsAlive = false
	case err != nil:
		log.Debug().Err(err).Str("window", string(h.id)).Msg("Attribute read failed, keeping stale values")
	}
	attrs.apply(&next)

	h.snapshot = next
	return next.Clone(), nil
}

func (h *Handle) markGone() {
	h.mu.Lock()
	h.snapshot.IsAlive = false
	h.mu.Unlock()
}

// mutate runs one backend command, translating a vanished window into a
// *WindowLostError.
func (h *Handle) mutate(op string, fn func() error) error {
	lost := func() error {
		h.markGone()
		return &WindowLostError{ID: h.id, Title: h.Snapshot().Title}
	}

	if !h.Snapshot().IsAlive {
		return lost()
	}
	exists, err := h.backend.WindowExists(h.id)
	if err != nil {
		return fmt.Errorf("failed to %s window %s: %w", op, h.id, err)
	}
	if !exists {
		return lost()
	}

	if err := fn(); err != nil {
		if errors.Is(err, ErrWindowGone) {
			return lost()
		}
		return fmt.Errorf("failed to %s window %s: %w", op, h.id, err)
	}
	return nil
}

// Minimize iconifies the window.
func (h *Handle) Minimize() error {
	return h.mutate("minimize", func() error { return h.backend.Minimize(h.id) })
}

// Maximize maximizes the window.
func (h *Handle) Maximize() error {
	return h.mutate("maximize", func() error { return h.backend.Maximize(h.id) })
}

// Restore undoes minimize and maximize.
func (h *Handle) Restore() error {
	return h.mutate("restore", func() error { return h.backend.Restore(h.id) })
}

// Activate raises and focuses the window.
func (h *Handle) Activate() error {
	return h.mutate("activate", func() error { return h.backend.Activate(h.id) })
}

// MoveTo moves the window's top-left corner to (x, y).
func (h *Handle) MoveTo(x, y int) error {
	return h.mutate("move", func() error { return h.backend.MoveTo(h.id, x, y) })
}

// ResizeTo sets the window size.
func (h *Handle) ResizeTo(width, height int) error {
	return h.mutate("resize", func() error { return h.backend.ResizeTo(h.id, width, height) })
}

// Move shifts the window by the given offset from its current position.
func (h *Handle) Move(dx, dy int) error {
	snap, err := h.Refresh()
	if err != nil {
		return err
	}
	return h.MoveTo(snap.Position.X+dx, snap.Position.Y+dy)
}

// Resize grows or shrinks the window by the given offset.
func (h *Handle) Resize(dw, dh int) error {
	snap, err := h.Refresh()
	if err != nil {
		return err
	}
	return h.ResizeTo(snap.Size.Width+dw, snap.Size.Height+dh)
}

// Close asks the window to close.
func (h *Handle) Close() error {
	return h.mutate("close", func() error { return h.backend.CloseWindow(h.id) })
}
