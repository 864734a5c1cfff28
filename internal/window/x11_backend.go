package window

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/bryanchriswhite/WinWatch/internal/logger"
)

const (
	netWMStateRemove = 0
	netWMStateAdd    = 1

	stateHidden  = "_NET_WM_STATE_HIDDEN"
	stateMaxVert = "_NET_WM_STATE_MAXIMIZED_VERT"
	stateMaxHorz = "_NET_WM_STATE_MAXIMIZED_HORZ"
)

// X11Backend implements the Backend interface using X11 and EWMH
type X11Backend struct {
	xu      *xgbutil.XUtil
	conn    *xgb.Conn
	root    xproto.Window
	randrOK bool
}

var _ Backend = (*X11Backend)(nil)

// NewX11Backend creates a new X11 backend
func NewX11Backend() (*X11Backend, error) {
	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, &BackendUnavailableError{
			Backend: BackendX11,
			Err:     fmt.Errorf("failed to connect to X server: %w", err),
		}
	}

	b := &X11Backend{
		xu:   xu,
		conn: xu.Conn(),
		root: xu.RootWin(),
	}

	// Display names come from RandR; without it windows report no display
	if err := randr.Init(b.conn); err != nil {
		logger.WithComponent("x11-backend").Warn().Err(err).Msg("RandR unavailable, display names disabled")
	} else {
		b.randrOK = true
	}

	return b, nil
}

// Close closes the X11 connection
func (b *X11Backend) Close() error {
	b.conn.Close()
	return nil
}

// Name returns the backend name
func (b *X11Backend) Name() string {
	return BackendX11
}

// Capabilities reports that X11 windows keep their id across title changes
func (b *X11Backend) Capabilities() Capabilities {
	return Capabilities{}
}

func x11ID(win xproto.Window) WindowID {
	return WindowID(fmt.Sprintf("0x%08x", uint32(win)))
}

func parseX11ID(id WindowID) (xproto.Window, error) {
	v, err := strconv.ParseUint(string(id), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid X11 window id %q: %w", id, err)
	}
	return xproto.Window(v), nil
}

// isBadWindow reports whether err is the X server telling us the window is gone
func isBadWindow(err error) bool {
	var winErr xproto.WindowError
	var drawErr xproto.DrawableError
	return errors.As(err, &winErr) || errors.As(err, &drawErr)
}

// EnumerateWindows returns all client windows using EWMH _NET_CLIENT_LIST with QueryTree fallback
func (b *X11Backend) EnumerateWindows() ([]Entry, error) {
	log := logger.WithComponent("x11-backend")

	// Try EWMH _NET_CLIENT_LIST first (preferred method)
	clients, err := ewmh.ClientListGet(b.xu)
	if err == nil && len(clients) > 0 {
		log.Debug().Int("count", len(clients)).Msg("EnumerateWindows: using EWMH _NET_CLIENT_LIST")
		return b.entries(clients), nil
	}
	if err != nil {
		log.Debug().Err(err).Msg("EnumerateWindows: EWMH failed, falling back to QueryTree")
	} else {
		log.Debug().Msg("EnumerateWindows: EWMH returned empty, falling back to QueryTree")
	}

	// Fallback to QueryTree if EWMH fails or returns empty
	tree, err := xproto.QueryTree(b.conn, b.root).Reply()
	if err != nil {
		log.Error().Err(err).Msg("EnumerateWindows: QueryTree fallback failed")
		return nil, &BackendUnavailableError{Backend: BackendX11, Err: err}
	}
	log.Debug().Int("childCount", len(tree.Children)).Msg("EnumerateWindows: using QueryTree fallback")
	return b.entries(tree.Children), nil
}

func (b *X11Backend) entries(wins []xproto.Window) []Entry {
	log := logger.WithComponent("x11-backend")

	entries := make([]Entry, 0, len(wins))
	for _, win := range wins {
		title := b.title(win)
		app := b.app(win)

		// Skip windows without titles or class (usually not user windows)
		if title == "" && app.Name == "" {
			log.Debug().Uint32("winID", uint32(win)).Msg("skipping window without title or class")
			continue
		}
		entries = append(entries, Entry{ID: x11ID(win), Title: title, App: app})
	}
	return entries
}

// title reads _NET_WM_NAME, falling back to WM_NAME
func (b *X11Backend) title(win xproto.Window) string {
	title, _ := b.readTitle(win)
	return title
}

// readTitle is title plus whether either property could be read at all
func (b *X11Backend) readTitle(win xproto.Window) (string, bool) {
	netName, netErr := ewmh.WmNameGet(b.xu, win)
	if netErr == nil && netName != "" {
		return netName, true
	}
	name, err := icccm.WmNameGet(b.xu, win)
	return pickTitle(netName, netErr, name, err)
}

// pickTitle prefers a non-empty _NET_WM_NAME over WM_NAME. An empty title
// is a successful read as long as one of the properties was present.
func pickTitle(netName string, netErr error, name string, err error) (string, bool) {
	switch {
	case netErr == nil && netName != "":
		return netName, true
	case err == nil:
		return name, true
	case netErr == nil:
		return "", true
	}
	return "", false
}

// app reads WM_CLASS (class, falling back to instance) and _NET_WM_PID
func (b *X11Backend) app(win xproto.Window) App {
	var app App
	if class, err := icccm.WmClassGet(b.xu, win); err == nil && class != nil {
		app.Name = class.Class
		if app.Name == "" {
			app.Name = class.Instance
		}
	}
	if pid, err := ewmh.WmPidGet(b.xu, win); err == nil {
		app.PID = int(pid)
	}
	return app
}

// EnumerateApps returns the distinct owners of the enumerated windows
func (b *X11Backend) EnumerateApps() ([]App, error) {
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

// WindowExists checks the window with GetWindowAttributes; BadWindow means gone
func (b *X11Backend) WindowExists(id WindowID) (bool, error) {
	win, err := parseX11ID(id)
	if err != nil {
		return false, err
	}
	if _, err := xproto.GetWindowAttributes(b.conn, win).Reply(); err != nil {
		if isBadWindow(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ReadAttributes reads each attribute with its own request so one failure
// does not hide the others
func (b *X11Backend) ReadAttributes(id WindowID) (AttributeSet, error) {
	var attrs AttributeSet

	win, err := parseX11ID(id)
	if err != nil {
		return attrs, err
	}

	wa, err := xproto.GetWindowAttributes(b.conn, win).Reply()
	if err != nil {
		if isBadWindow(err) {
			return attrs, ErrWindowGone
		}
	} else {
		attrs.Visible = ptr(wa.MapState == xproto.MapStateViewable)
	}

	if title, ok := b.readTitle(win); ok {
		attrs.Title = ptr(title)
	}

	geom, err := xproto.GetGeometry(b.conn, xproto.Drawable(win)).Reply()
	if err == nil {
		attrs.Size = ptr(Size{Width: int(geom.Width), Height: int(geom.Height)})

		// Geometry is parent-relative; translate to root coordinates
		if tr, err := xproto.TranslateCoordinates(b.conn, win, b.root, 0, 0).Reply(); err == nil {
			attrs.Position = ptr(Point{X: int(tr.DstX), Y: int(tr.DstY)})
		}
	}

	if states, err := ewmh.WmStateGet(b.xu, win); err == nil {
		attrs.Minimized = ptr(slices.Contains(states, stateHidden))
		attrs.Maximized = ptr(slices.Contains(states, stateMaxVert) && slices.Contains(states, stateMaxHorz))
	}

	if active, err := ewmh.ActiveWindowGet(b.xu); err == nil {
		attrs.Active = ptr(active == win)
	}

	if attrs.Position != nil && attrs.Size != nil && b.randrOK {
		frame := Snapshot{Position: *attrs.Position, Size: *attrs.Size}
		if displays, err := b.displaysAt(frame.Center()); err == nil {
			attrs.Displays = displays
		}
	}

	return attrs, nil
}

// displaysAt names the monitors containing center
func (b *X11Backend) displaysAt(center Point) ([]string, error) {
	resources, err := randr.GetScreenResources(b.conn, b.root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}

	displays := []string{}
	for i, crtc := range resources.Crtcs {
		info, err := randr.GetCrtcInfo(b.conn, crtc, resources.ConfigTimestamp).Reply()
		if err != nil {
			continue
		}

		// Skip disabled CRTCs
		if info.Width == 0 || info.Height == 0 || len(info.Outputs) == 0 {
			continue
		}

		bounds := Rect{
			Left:   int(info.X),
			Top:    int(info.Y),
			Right:  int(info.X) + int(info.Width),
			Bottom: int(info.Y) + int(info.Height),
		}
		if !bounds.Contains(center.X, center.Y) {
			continue
		}

		name := fmt.Sprintf("Monitor%d", i)
		if out, err := randr.GetOutputInfo(b.conn, info.Outputs[0], resources.ConfigTimestamp).Reply(); err == nil {
			name = string(out.Name)
		}
		displays = append(displays, name)
	}
	return displays, nil
}

func (b *X11Backend) command(id WindowID, fn func(win xproto.Window) error) error {
	win, err := parseX11ID(id)
	if err != nil {
		return err
	}
	if err := fn(win); err != nil {
		if isBadWindow(err) {
			return ErrWindowGone
		}
		return err
	}
	return nil
}

// Minimize iconifies via the ICCCM WM_CHANGE_STATE client message
func (b *X11Backend) Minimize(id WindowID) error {
	return b.command(id, func(win xproto.Window) error {
		return ewmh.ClientEvent(b.xu, win, "WM_CHANGE_STATE", icccm.StateIconic)
	})
}

func (b *X11Backend) Maximize(id WindowID) error {
	return b.command(id, func(win xproto.Window) error {
		if err := ewmh.WmStateReq(b.xu, win, netWMStateAdd, stateMaxVert); err != nil {
			return err
		}
		return ewmh.WmStateReq(b.xu, win, netWMStateAdd, stateMaxHorz)
	})
}

// Restore maps a minimized window back and drops the maximized states
func (b *X11Backend) Restore(id WindowID) error {
	return b.command(id, func(win xproto.Window) error {
		states, err := ewmh.WmStateGet(b.xu, win)
		if err != nil {
			return err
		}
		if slices.Contains(states, stateHidden) {
			if err := ewmh.ActiveWindowReq(b.xu, win); err != nil {
				return err
			}
		}
		if slices.Contains(states, stateMaxVert) {
			if err := ewmh.WmStateReq(b.xu, win, netWMStateRemove, stateMaxVert); err != nil {
				return err
			}
		}
		if slices.Contains(states, stateMaxHorz) {
			return ewmh.WmStateReq(b.xu, win, netWMStateRemove, stateMaxHorz)
		}
		return nil
	})
}

func (b *X11Backend) Activate(id WindowID) error {
	return b.command(id, func(win xproto.Window) error {
		return ewmh.ActiveWindowReq(b.xu, win)
	})
}

func (b *X11Backend) MoveTo(id WindowID, x, y int) error {
	return b.command(id, func(win xproto.Window) error {
		return ewmh.MoveWindow(b.xu, win, x, y)
	})
}

func (b *X11Backend) ResizeTo(id WindowID, width, height int) error {
	return b.command(id, func(win xproto.Window) error {
		return ewmh.ResizeWindow(b.xu, win, width, height)
	})
}

// CloseWindow sends _NET_CLOSE_WINDOW so the client can prompt before exiting
func (b *X11Backend) CloseWindow(id WindowID) error {
	return b.command(id, func(win xproto.Window) error {
		return ewmh.CloseWindow(b.xu, win)
	})
}
