package window

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/bryanchriswhite/WinWatch/internal/logger"
	"github.com/godbus/dbus/v5"
)

// KWinBackend implements the Backend interface using KWin's D-Bus interface.
// Window ids are the D-Bus object paths of KWin's window objects.
type KWinBackend struct {
	conn *dbus.Conn
}

var _ Backend = (*KWinBackend)(nil)

// KWin D-Bus constants
const (
	kwinService   = "org.kde.KWin"
	kwinPath      = "/KWin"
	kwinInterface = "org.kde.KWin"
	kwinRoot      = "/org/kde/KWin"

	introspectMethod = "org.freedesktop.DBus.Introspectable.Introspect"
)

// Interface names differ between KWin versions
var kwinWindowInterfaces = []string{
	"org.kde.KWin.Window",   // KWin6
	"org.kde.KWin.Client",   // KWin5
	"org.kde.kwin.Toplevel", // Older KWin
}

// NewKWinBackend creates a new KWin D-Bus backend
func NewKWinBackend() (*KWinBackend, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, &BackendUnavailableError{
			Backend: BackendKWin,
			Err:     fmt.Errorf("failed to connect to session bus: %w", err),
		}
	}

	// Check if KWin service is available
	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return nil, &BackendUnavailableError{
			Backend: BackendKWin,
			Err:     fmt.Errorf("failed to list D-Bus names: %w", err),
		}
	}

	if !slices.Contains(names, kwinService) {
		conn.Close()
		return nil, &BackendUnavailableError{
			Backend: BackendKWin,
			Err:     errors.New("KWin service not found on D-Bus"),
		}
	}

	logger.WithComponent("kwin-backend").Info().Msg("Connected to KWin D-Bus service")
	return &KWinBackend{conn: conn}, nil
}

// Close closes the D-Bus connection
func (b *KWinBackend) Close() error {
	return b.conn.Close()
}

// Name returns the backend name
func (b *KWinBackend) Name() string {
	return BackendKWin
}

func (b *KWinBackend) Capabilities() Capabilities {
	return Capabilities{}
}

// windowPaths introspects /org/kde/KWin for Window or Client containers and
// returns the object paths of their children
func (b *KWinBackend) windowPaths() ([]string, error) {
	containers, err := b.introspect(kwinRoot)
	if err != nil {
		return nil, &BackendUnavailableError{
			Backend: BackendKWin,
			Err:     fmt.Errorf("introspection failed: %w", err),
		}
	}

	var paths []string
	for _, node := range containers {
		if node != "Window" && node != "Client" {
			continue
		}
		containerPath := kwinRoot + "/" + node
		children, err := b.introspect(containerPath)
		if err != nil {
			logger.WithComponent("kwin-backend").Debug().Str("container", containerPath).Err(err).Msg("Failed to introspect container")
			continue
		}
		for _, child := range children {
			paths = append(paths, containerPath+"/"+child)
		}
	}
	return paths, nil
}

// introspect returns the child node names of path
func (b *KWinBackend) introspect(path string) ([]string, error) {
	obj := b.conn.Object(kwinService, dbus.ObjectPath(path))

	var introspectXML string
	if err := obj.Call(introspectMethod, 0).Store(&introspectXML); err != nil {
		return nil, err
	}

	var nodes []string
	for _, line := range strings.Split(introspectXML, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "<node name=\"") {
			continue
		}
		start := strings.Index(line, "\"") + 1
		end := strings.LastIndex(line, "\"")
		if start > 0 && end > start {
			nodes = append(nodes, line[start:end])
		}
	}
	return nodes, nil
}

// property reads name from the first window interface that exposes it
func (b *KWinBackend) property(path, name string) (dbus.Variant, error) {
	obj := b.conn.Object(kwinService, dbus.ObjectPath(path))

	var lastErr error
	for _, iface := range kwinWindowInterfaces {
		v, err := obj.GetProperty(iface + "." + name)
		if err == nil {
			return v, nil
		}
		lastErr = err
	}
	return dbus.Variant{}, lastErr
}

func (b *KWinBackend) stringProperty(path, name string) (string, bool) {
	v, err := b.property(path, name)
	if err != nil {
		return "", false
	}
	s, ok := v.Value().(string)
	return s, ok
}

func (b *KWinBackend) boolProperty(path, name string) *bool {
	v, err := b.property(path, name)
	if err != nil {
		return nil
	}
	if val, ok := v.Value().(bool); ok {
		return &val
	}
	return nil
}

func variantInt(v dbus.Variant) (int, bool) {
	switch n := v.Value().(type) {
	case float64:
		return int(n), true
	case int32:
		return int(n), true
	case uint32:
		return int(n), true
	case int64:
		return int(n), true
	}
	return 0, false
}

func (b *KWinBackend) entry(path string) Entry {
	e := Entry{ID: WindowID(path)}
	e.Title, _ = b.stringProperty(path, "caption")

	// Try resourceClass, with resourceName as fallback
	if class, ok := b.stringProperty(path, "resourceClass"); ok && class != "" {
		e.App.Name = class
	} else if name, ok := b.stringProperty(path, "resourceName"); ok {
		e.App.Name = name
	}

	if v, err := b.property(path, "pid"); err == nil {
		e.App.PID, _ = variantInt(v)
	}
	return e
}

func (b *KWinBackend) EnumerateWindows() ([]Entry, error) {
	paths, err := b.windowPaths()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(paths))
	for _, path := range paths {
		e := b.entry(path)
		if e.Title == "" && e.App.Name == "" {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (b *KWinBackend) EnumerateApps() ([]App, error) {
	entries, err := b.EnumerateWindows()
	if err != nil {
		return nil, err
	}
	var apps []App
	for _, e := range entries {
		if e.App.Name != "" && !slices.Contains(apps, e.App) {
			apps = append(apps, e.App)
		}
	}
	return apps, nil
}

func (b *KWinBackend) WindowExists(id WindowID) (bool, error) {
	paths, err := b.windowPaths()
	if err != nil {
		return false, err
	}
	return slices.Contains(paths, string(id)), nil
}

// windowInfo calls /KWin getWindowInfo with the uuid taken from the object
// path (format: /org/kde/KWin/Window/{uuid})
func (b *KWinBackend) windowInfo(id WindowID) (map[string]dbus.Variant, error) {
	_, uuid, ok := strings.Cut(string(id), "/Window/")
	if !ok || uuid == "" {
		return nil, fmt.Errorf("no window uuid in %q", id)
	}

	obj := b.conn.Object(kwinService, kwinPath)
	var result map[string]dbus.Variant
	if err := obj.Call(kwinInterface+".getWindowInfo", 0, uuid).Store(&result); err != nil {
		return nil, err
	}
	// KWin answers unknown uuids with an empty map
	if len(result) == 0 {
		return nil, ErrWindowGone
	}
	return result, nil
}

// ReadAttributes reads properties from the window object and geometry from
// getWindowInfo. KWin exposes no per-window activation state, so Active is
// never set.
func (b *KWinBackend) ReadAttributes(id WindowID) (AttributeSet, error) {
	var attrs AttributeSet
	path := string(id)

	if title, ok := b.stringProperty(path, "caption"); ok {
		attrs.Title = &title
	}
	attrs.Minimized = b.boolProperty(path, "minimized")
	if hidden := b.boolProperty(path, "hidden"); hidden != nil {
		attrs.Visible = ptr(!*hidden)
	}

	info, err := b.windowInfo(id)
	if errors.Is(err, ErrWindowGone) {
		return attrs, err
	}
	if err != nil {
		logger.WithComponent("kwin-backend").Debug().Err(err).Str("window", path).Msg("getWindowInfo failed")
		return attrs, nil
	}

	x, okX := variantInt(info["x"])
	y, okY := variantInt(info["y"])
	if okX && okY {
		attrs.Position = ptr(Point{X: x, Y: y})
	}
	w, okW := variantInt(info["width"])
	h, okH := variantInt(info["height"])
	if okW && okH {
		attrs.Size = ptr(Size{Width: w, Height: h})
	}
	if attrs.Minimized == nil {
		if v, ok := info["minimized"].Value().(bool); ok {
			attrs.Minimized = &v
		}
	}
	horz, okHorz := info["maximizeHorizontal"].Value().(bool)
	vert, okVert := info["maximizeVertical"].Value().(bool)
	if okHorz && okVert {
		attrs.Maximized = ptr(horz && vert)
	}
	if output, ok := info["output"].Value().(string); ok {
		attrs.Displays = []string{output}
	}

	return attrs, nil
}

// KWin offers no D-Bus methods for per-window commands without scripting
func (b *KWinBackend) unsupported(op string) error {
	return fmt.Errorf("kwin %s: %w", op, ErrNotSupported)
}

func (b *KWinBackend) Minimize(id WindowID) error { return b.unsupported("minimize") }
func (b *KWinBackend) Maximize(id WindowID) error { return b.unsupported("maximize") }
func (b *KWinBackend) Restore(id WindowID) error { return b.unsupported("restore") }
func (b *KWinBackend) Activate(id WindowID) error { return b.unsupported("activate") }
func (b *KWinBackend) MoveTo(id WindowID, x, y int) error { return b.unsupported("move") }
func (b *KWinBackend) ResizeTo(id WindowID, w, h int) error { return b.unsupported("resize") }
func (b *KWinBackend) CloseWindow(id WindowID) error { return b.unsupported("close") }
