package window

import (
	"fmt"
	"os"
	"strings"

	"github.com/bryanchriswhite/WinWatch/internal/config"
	"github.com/bryanchriswhite/WinWatch/internal/logger"
)

// WindowID is an opaque, comparable key for one platform window. Two handles
// with equal IDs refer to the same underlying window.
type WindowID string

// App identifies the application owning a window. It is used for lookup
// only; a handle never owns its application.
type App struct {
	Name string `json:"name"`
	PID  int    `json:"pid"`
}

// Entry is one element of a backend window enumeration.
type Entry struct {
	ID    WindowID
	Title string
	App   App
}

// Capabilities describes backend traits the core has to account for.
type Capabilities struct {
	// TitleIdentified is set when the backend addresses windows by their
	// title, so a title change makes the old WindowID disappear.
	TitleIdentified bool
}

// AttributeSet is a partial snapshot read from a backend. A nil field means
// the attribute could not be read. Displays uses a nil slice for the same
// purpose; a window on no display reports an empty, non-nil slice.
type AttributeSet struct {
	Title     *string
	Position  *Point
	Size      *Size
	Minimized *bool
	Maximized *bool
	Active    *bool
	Visible   *bool
	Displays  []string
}

// apply overwrites the fields of s that were read successfully.
func (a AttributeSet) apply(s *Snapshot) {
	if a.Title != nil {
		s.Title = *a.Title
	}
	if a.Position != nil {
		s.Position = *a.Position
	}
	if a.Size != nil {
		s.Size = *a.Size
	}
	if a.Minimized != nil {
		s.IsMinimized = *a.Minimized
	}
	if a.Maximized != nil {
		s.IsMaximized = *a.Maximized
	}
	if a.Active != nil {
		s.IsActive = *a.Active
	}
	if a.Visible != nil {
		s.IsVisible = *a.Visible
	}
	if a.Displays != nil {
		s.Displays = append([]string(nil), a.Displays...)
	}
}

// Mutator performs window commands. Implementations return ErrWindowGone
// when the target no longer exists and ErrNotSupported when the platform
// cannot perform the command.
type Mutator interface {
	Minimize(id WindowID) error
	Maximize(id WindowID) error
	Restore(id WindowID) error
	Activate(id WindowID) error
	MoveTo(id WindowID, x, y int) error
	ResizeTo(id WindowID, width, height int) error
	CloseWindow(id WindowID) error
}

// Backend is the capability set consumed from a window-system integration
// (X11, KWin, ...). Enumeration order is backend-defined and preserved by
// every consumer.
type Backend interface {
	Mutator

	// Name returns the backend name (e.g., "x11", "kwin")
	Name() string

	// Close releases the connection to the display server
	Close() error

	Capabilities() Capabilities

	// EnumerateWindows returns the user-visible windows in stacking or
	// creation order
	EnumerateWindows() ([]Entry, error)

	// EnumerateApps returns the applications owning at least one window
	EnumerateApps() ([]App, error)

	// ReadAttributes reads every attribute independently. A failed read
	// leaves its field unset; ErrWindowGone means the window vanished.
	ReadAttributes(id WindowID) (AttributeSet, error)

	WindowExists(id WindowID) (bool, error)
}

// Backend names accepted by NewBackend.
const (
	BackendAuto   = "auto"
	BackendX11    = "x11"
	BackendKWin   = "kwin"
	BackendMemory = "memory"
)

// NewBackend selects and connects the backend named in cfg. It is called
// once at startup; the returned backend is threaded explicitly through the
// resolver and watchdogs.
func NewBackend(cfg *config.Config) (Backend, error) {
	log := logger.WithComponent("backend")

	name := strings.ToLower(cfg.Backend)
	if name == "" {
		name = BackendAuto
	}

	switch name {
	case BackendX11:
		return NewX11Backend()
	case BackendKWin:
		return NewKWinBackend()
	case BackendMemory:
		return NewMemoryBackend(MemoryWindowsFromConfig(cfg.MemoryWindows)...), nil
	case BackendAuto:
		if isKDEWayland() {
			b, err := NewKWinBackend()
			if err == nil {
				log.Info().Str("backend", BackendKWin).Msg("Selected backend")
				return b, nil
			}
			log.Warn().Err(err).Msg("KWin backend unavailable, falling back to X11")
		}
		b, err := NewX11Backend()
		if err != nil {
			return nil, err
		}
		log.Info().Str("backend", BackendX11).Msg("Selected backend")
		return b, nil
	default:
		return nil, fmt.Errorf("unknown backend %q (use auto, x11, kwin or memory)", cfg.Backend)
	}
}

func isKDEWayland() bool {
	desktop := strings.ToUpper(os.Getenv("XDG_CURRENT_DESKTOP"))
	return strings.Contains(desktop, "KDE") &&
		(os.Getenv("WAYLAND_DISPLAY") != "" || os.Getenv("XDG_SESSION_TYPE") == "wayland")
}
