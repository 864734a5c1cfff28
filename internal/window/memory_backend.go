package window

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/bryanchriswhite/WinWatch/internal/config"
	"github.com/bryanchriswhite/WinWatch/internal/logger"
)

// MemoryWindow is one scripted window of a MemoryBackend.
type MemoryWindow struct {
	App       App
	Title     string
	Position  Point
	Size      Size
	Minimized bool
	Maximized bool
	Active    bool
	Visible   bool
	Displays  []string
}

type memoryWindow struct {
	serial int
	MemoryWindow
}

// MemoryBackend is an in-process backend whose windows are scripted by the
// caller. By default it addresses windows by application and title, so a
// title change retires the old WindowID the way title-keyed platforms do.
// Windows sharing an application and title are told apart by a "#serial"
// suffix on every one but the earliest.
type MemoryBackend struct {
	mu          sync.Mutex
	windows     []*memoryWindow
	nextSerial  int
	stableIDs   bool
	unavailable error
	failing     map[WindowID]map[Attribute]bool
}

// MemoryOption configures a MemoryBackend.
type MemoryOption func(*MemoryBackend)

// WithStableIDs addresses windows by a creation serial instead of their
// title.
func WithStableIDs() MemoryOption {
	return func(b *MemoryBackend) {
		b.stableIDs = true
	}
}

// NewMemoryBackend creates a backend holding windows in enumeration order.
func NewMemoryBackend(windows ...MemoryWindow) *MemoryBackend {
	return NewMemoryBackendWithOptions(nil, windows...)
}

// NewMemoryBackendWithOptions is NewMemoryBackend with options.
func NewMemoryBackendWithOptions(opts []MemoryOption, windows ...MemoryWindow) *MemoryBackend {
	b := &MemoryBackend{failing: make(map[WindowID]map[Attribute]bool)}
	for _, opt := range opts {
		opt(b)
	}
	for _, w := range windows {
		b.Add(w)
	}
	return b
}

// MemoryWindowsFromConfig converts configured seed windows.
func MemoryWindowsFromConfig(seeds []config.WindowSeed) []MemoryWindow {
	windows := make([]MemoryWindow, 0, len(seeds))
	for _, s := range seeds {
		windows = append(windows, MemoryWindow{
			App:       App{Name: s.App, PID: s.PID},
			Title:     s.Title,
			Position:  Point{X: s.X, Y: s.Y},
			Size:      Size{Width: s.Width, Height: s.Height},
			Minimized: s.Minimized,
			Maximized: s.Maximized,
			Active:    s.Active,
			Visible:   !s.Hidden,
			Displays:  s.Displays,
		})
	}
	return windows
}

// idOf must be called with b.mu held.
func (b *MemoryBackend) idOf(w *memoryWindow) WindowID {
	if b.stableIDs {
		return WindowID(fmt.Sprintf("mem-%d", w.serial))
	}
	id := w.App.Name + "/" + w.Title
	for _, other := range b.windows {
		if other == w {
			break
		}
		if other.App.Name == w.App.Name && other.Title == w.Title {
			return WindowID(fmt.Sprintf("%s#%d", id, w.serial))
		}
	}
	return WindowID(id)
}

// find must be called with b.mu held.
func (b *MemoryBackend) find(id WindowID) *memoryWindow {
	for _, w := range b.windows {
		if b.idOf(w) == id {
			return w
		}
	}
	return nil
}

// Add appends a window to the enumeration and returns its current ID.
func (b *MemoryBackend) Add(w MemoryWindow) WindowID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSerial++
	mw := &memoryWindow{serial: b.nextSerial, MemoryWindow: w}
	mw.Displays = slices.Clone(w.Displays)
	b.windows = append(b.windows, mw)
	return b.idOf(mw)
}

// Update applies fn to the window and returns its ID afterwards, which
// differs from id when the title changed on a title-identified backend.
func (b *MemoryBackend) Update(id WindowID, fn func(*MemoryWindow)) (WindowID, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	w := b.find(id)
	if w == nil {
		return "", false
	}
	fn(&w.MemoryWindow)
	return b.idOf(w), true
}

// Remove deletes a window from the enumeration.
func (b *MemoryBackend) Remove(id WindowID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, w := range b.windows {
		if b.idOf(w) == id {
			b.windows = slices.Delete(b.windows, i, i+1)
			return true
		}
	}
	return false
}

// FailReads makes subsequent reads of the given attributes fail for id.
// Calling it without attributes clears the failures.
func (b *MemoryBackend) FailReads(id WindowID, attrs ...Attribute) {
	b.mu.Lock()
	defer b.mu.Unlock()

	log := logger.WithComponent("memory-backend")
	if len(attrs) == 0 {
		delete(b.failing, id)
		log.Debug().Str("window", string(id)).Msg("Attribute reads restored")
		return
	}
	set := make(map[Attribute]bool, len(attrs))
	for _, a := range attrs {
		set[a] = true
	}
	b.failing[id] = set
	log.Debug().Str("window", string(id)).Interface("attributes", attrs).Msg("Attribute reads failing")
}

// SetUnavailable makes every call fail with a *BackendUnavailableError
// wrapping err. A nil err restores the backend.
func (b *MemoryBackend) SetUnavailable(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unavailable = err

	log := logger.WithComponent("memory-backend")
	if err != nil {
		log.Debug().Err(err).Msg("Backend marked unavailable")
	} else {
		log.Debug().Msg("Backend available")
	}
}

func (b *MemoryBackend) checkAvailable() error {
	if b.unavailable != nil {
		return &BackendUnavailableError{Backend: b.Name(), Err: b.unavailable}
	}
	return nil
}

// Name returns the backend name
func (b *MemoryBackend) Name() string {
	return BackendMemory
}

// Close is a no-op; scripted windows stay in place.
func (b *MemoryBackend) Close() error {
	return nil
}

func (b *MemoryBackend) Capabilities() Capabilities {
	return Capabilities{TitleIdentified: !b.stableIDs}
}

func (b *MemoryBackend) EnumerateWindows() ([]Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkAvailable(); err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(b.windows))
	for _, w := range b.windows {
		entries = append(entries, Entry{ID: b.idOf(w), Title: w.Title, App: w.App})
	}
	return entries, nil
}

func (b *MemoryBackend) EnumerateApps() ([]App, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkAvailable(); err != nil {
		return nil, err
	}
	var apps []App
	for _, w := range b.windows {
		if !slices.Contains(apps, w.App) {
			apps = append(apps, w.App)
		}
	}
	return apps, nil
}

func (b *MemoryBackend) ReadAttributes(id WindowID) (AttributeSet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkAvailable(); err != nil {
		return AttributeSet{}, err
	}
	w := b.find(id)
	if w == nil {
		return AttributeSet{}, ErrWindowGone
	}

	failing := b.failing[id]
	var attrs AttributeSet
	if !failing[AttrTitle] {
		attrs.Title = ptr(w.Title)
	}
	if !failing[AttrPosition] {
		attrs.Position = ptr(w.Position)
	}
	if !failing[AttrSize] {
		attrs.Size = ptr(w.Size)
	}
	if !failing[AttrMinimized] {
		attrs.Minimized = ptr(w.Minimized)
	}
	if !failing[AttrMaximized] {
		attrs.Maximized = ptr(w.Maximized)
	}
	if !failing[AttrActive] {
		attrs.Active = ptr(w.Active)
	}
	if !failing[AttrVisible] {
		attrs.Visible = ptr(w.Visible)
	}
	if !failing[AttrDisplays] {
		attrs.Displays = append([]string{}, w.Displays...)
	}

	if len(failing) > 0 {
		return attrs, fmt.Errorf("memory backend: %d attribute reads failed", len(failing))
	}
	return attrs, nil
}

func (b *MemoryBackend) WindowExists(id WindowID) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkAvailable(); err != nil {
		return false, err
	}
	return b.find(id) != nil, nil
}

// command runs fn on the window under the lock.
func (b *MemoryBackend) command(id WindowID, fn func(*memoryWindow)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkAvailable(); err != nil {
		return err
	}
	w := b.find(id)
	if w == nil {
		return ErrWindowGone
	}
	fn(w)
	return nil
}

func (b *MemoryBackend) Minimize(id WindowID) error {
	return b.command(id, func(w *memoryWindow) {
		w.Minimized = true
		w.Active = false
	})
}

func (b *MemoryBackend) Maximize(id WindowID) error {
	return b.command(id, func(w *memoryWindow) {
		w.Maximized = true
		w.Minimized = false
	})
}

func (b *MemoryBackend) Restore(id WindowID) error {
	return b.command(id, func(w *memoryWindow) {
		w.Minimized = false
		w.Maximized = false
	})
}

// Activate focuses id and deactivates every other window.
func (b *MemoryBackend) Activate(id WindowID) error {
	return b.command(id, func(target *memoryWindow) {
		for _, w := range b.windows {
			w.Active = false
		}
		target.Active = true
		target.Minimized = false
		target.Visible = true
	})
}

func (b *MemoryBackend) MoveTo(id WindowID, x, y int) error {
	return b.command(id, func(w *memoryWindow) {
		w.Position = Point{X: x, Y: y}
	})
}

func (b *MemoryBackend) ResizeTo(id WindowID, width, height int) error {
	if width < 0 || height < 0 {
		return errors.New("memory backend: negative size")
	}
	return b.command(id, func(w *memoryWindow) {
		w.Size = Size{Width: width, Height: height}
	})
}

func (b *MemoryBackend) CloseWindow(id WindowID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkAvailable(); err != nil {
		return err
	}
	for i, w := range b.windows {
		if b.idOf(w) == id {
			b.windows = slices.Delete(b.windows, i, i+1)
			return nil
		}
	}
	return ErrWindowGone
}

func ptr[T any](v T) *T {
	return &v
}
