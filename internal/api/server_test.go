package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bryanchriswhite/WinWatch/internal/config"
	"github.com/bryanchriswhite/WinWatch/internal/watchdog"
	"github.com/bryanchriswhite/WinWatch/internal/window"
	"github.com/gorilla/websocket"
)

type fixture struct {
	backend  *window.MemoryBackend
	registry *watchdog.Registry
	server   *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	b := window.NewMemoryBackendWithOptions([]window.MemoryOption{window.WithStableIDs()},
		window.MemoryWindow{App: window.App{Name: "notepad", PID: 1}, Title: "untitled - notepad", Size: window.Size{Width: 100, Height: 100}, Active: true},
		window.MemoryWindow{App: window.App{Name: "calc", PID: 2}, Title: "Calculator", Position: window.Point{X: 200, Y: 200}, Size: window.Size{Width: 50, Height: 50}},
	)
	resolver := window.NewResolver(b)
	registry := watchdog.NewRegistry(resolver, nil, 10*time.Millisecond)
	t.Cleanup(registry.Close)

	cfgMgr, err := config.NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("config.NewManager: %v", err)
	}
	cfg := cfgMgr.Get()
	cfg.Watchdog.Interval = 10 * time.Millisecond
	if err := cfgMgr.Update(cfg); err != nil {
		t.Fatal(err)
	}

	return &fixture{
		backend:  b,
		registry: registry,
		server:   NewServer(resolver, registry, cfgMgr),
	}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestFindWindows(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		target string
		status int
		titles []string
	}{
		{"/api/windows", http.StatusOK, []string{"untitled - notepad", "Calculator"}},
		{"/api/windows?title=Notepad&condition=contains&ignore_case=true", http.StatusOK, []string{"untitled - notepad"}},
		{"/api/windows?title=Notepad&condition=contains", http.StatusOK, []string{}},
		{"/api/windows?title=Calculator&app=notepad", http.StatusOK, []string{}},
		{"/api/windows?title=Calculater&condition=editdistance&threshold=80", http.StatusOK, []string{"Calculator"}},
		{"/api/windows?title=^calc&condition=match&ignore_case=1", http.StatusOK, []string{"Calculator"}},
		{"/api/windows?title=([&condition=match", http.StatusBadRequest, nil},
		{"/api/windows?title=x&condition=fuzzy", http.StatusBadRequest, nil},
		{"/api/windows?title=x&condition=diffratio&threshold=101", http.StatusBadRequest, nil},
		{"/api/windows?title=x&ignore_case=maybe", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := f.do(t, "GET", tt.target, "")
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
			if tt.status != http.StatusOK {
				return
			}
			views := decode[[]WindowView](t, rec)
			titles := make([]string, 0, len(views))
			for _, v := range views {
				titles = append(titles, v.Snapshot.Title)
			}
			if strings.Join(titles, "|") != strings.Join(tt.titles, "|") {
				t.Errorf("titles = %v, want %v", titles, tt.titles)
			}
		})
	}
}

func TestBackendUnavailableIs503(t *testing.T) {
	f := newFixture(t)
	f.backend.SetUnavailable(errors.New("no display"))

	if rec := f.do(t, "GET", "/api/windows", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestActiveAndAt(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "GET", "/api/windows/active", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("active status = %d", rec.Code)
	}
	if v := decode[WindowView](t, rec); v.App.Name != "notepad" {
		t.Errorf("active window = %+v", v)
	}

	rec = f.do(t, "GET", "/api/windows/at?x=210&y=220", "")
	views := decode[[]WindowView](t, rec)
	if len(views) != 1 || views[0].Snapshot.Title != "Calculator" {
		t.Fatalf("windows at = %+v", views)
	}
	if views[0].Center != (window.Point{X: 225, Y: 225}) {
		t.Errorf("center = %+v, want 225,225", views[0].Center)
	}
	if views[0].Frame != (window.Rect{Left: 200, Top: 200, Right: 250, Bottom: 250}) {
		t.Errorf("frame = %+v", views[0].Frame)
	}
	if rec := f.do(t, "GET", "/api/windows/at?x=a", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad coordinates status = %d", rec.Code)
	}

	f.backend.Update("mem-1", func(w *window.MemoryWindow) { w.Active = false })
	if rec := f.do(t, "GET", "/api/windows/active", ""); rec.Code != http.StatusNotFound {
		t.Errorf("no active window status = %d, want 404", rec.Code)
	}
}

func TestApps(t *testing.T) {
	f := newFixture(t)

	if names := decode[[]string](t, f.do(t, "GET", "/api/apps", "")); strings.Join(names, ",") != "notepad,calc" {
		t.Errorf("apps = %v", names)
	}
	if names := decode[[]string](t, f.do(t, "GET", "/api/apps?name=CALC&ignore_case=true", "")); len(names) != 1 || names[0] != "calc" {
		t.Errorf("apps by name = %v", names)
	}
	if names := decode[[]string](t, f.do(t, "GET", "/api/apps?name=zzz", "")); len(names) != 0 {
		t.Errorf("apps without match = %v", names)
	}

	titles := decode[map[string][]string](t, f.do(t, "GET", "/api/apps/titles", ""))
	if len(titles["calc"]) != 1 || titles["calc"][0] != "Calculator" {
		t.Errorf("app titles = %v", titles)
	}
}

func TestWatchLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "POST", "/api/watches?persist=true", `{"name":"calc","title":"Calculator","watch":["minimized"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST status = %d (%s)", rec.Code, rec.Body.String())
	}
	ids := decode[map[string][]string](t, rec)["ids"]
	if len(ids) != 1 {
		t.Fatalf("ids = %v", ids)
	}

	list := decode[[]watchdog.WatchInfo](t, f.do(t, "GET", "/api/watches", ""))
	if len(list) != 1 || list[0].Name != "calc" || !list[0].Running {
		t.Errorf("watches = %+v", list)
	}

	cfg := decode[config.Config](t, f.do(t, "GET", "/api/config", ""))
	if len(cfg.Watches) != 1 || cfg.Watches[0].Name != "calc" {
		t.Errorf("persisted watches = %+v", cfg.Watches)
	}

	if rec := f.do(t, "DELETE", "/api/watches/"+ids[0], ""); rec.Code != http.StatusOK {
		t.Errorf("DELETE status = %d", rec.Code)
	}
	if rec := f.do(t, "DELETE", "/api/watches/"+ids[0], ""); rec.Code != http.StatusNotFound {
		t.Errorf("second DELETE status = %d", rec.Code)
	}

	// "calc" is still persisted: saving it again fails and the new watch is
	// rolled back
	if rec := f.do(t, "POST", "/api/watches?persist=true", `{"name":"calc","title":"Calculator"}`); rec.Code != http.StatusConflict {
		t.Errorf("duplicate persisted rule status = %d", rec.Code)
	}
	if list := decode[[]watchdog.WatchInfo](t, f.do(t, "GET", "/api/watches", "")); len(list) != 0 {
		t.Errorf("watches after rollback = %+v, want none", list)
	}

	rec = f.do(t, "POST", "/api/watches", `{"name":"none","title":"Browser"}`)
	if rec.Code != http.StatusCreated {
		t.Errorf("unmatched rule status = %d", rec.Code)
	}
	if ids := decode[map[string][]string](t, rec)["ids"]; ids == nil || len(ids) != 0 {
		t.Errorf("unmatched rule ids = %v, want []", ids)
	}

	if rec := f.do(t, "POST", "/api/watches", `{"title":"no name"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unnamed rule status = %d", rec.Code)
	}
	if rec := f.do(t, "POST", "/api/watches", `{`); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d", rec.Code)
	}
}

func TestEventsWebSocket(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/events", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	rec := f.do(t, "POST", "/api/watches", `{"name":"calc","title":"Calculator","watch":["minimized"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST status = %d (%s)", rec.Code, rec.Body.String())
	}
	f.backend.Update("mem-2", func(w *window.MemoryWindow) { w.Minimized = true })

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev struct {
		WatchID   string `json:"watch_id"`
		Name      string `json:"name"`
		WindowID  string `json:"window_id"`
		Attribute string `json:"attribute"`
		Value     bool   `json:"value"`
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if ev.Name != "calc" || ev.WindowID != "mem-2" || ev.Attribute != "minimized" || !ev.Value {
		t.Errorf("event = %+v", ev)
	}
}

func TestHealthAndCORS(t *testing.T) {
	f := newFixture(t)

	health := decode[map[string]string](t, f.do(t, "GET", "/api/health", ""))
	if health["status"] != "healthy" || health["backend"] != "memory" {
		t.Errorf("health = %v", health)
	}

	rec := f.do(t, "OPTIONS", "/api/windows", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight = %d %v", rec.Code, rec.Header())
	}
}
