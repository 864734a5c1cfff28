package watchdog

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bryanchriswhite/WinWatch/internal/window"
)

const testInterval = 10 * time.Millisecond

type recorder struct {
	mu     sync.Mutex
	events []string
	notify chan string
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan string, 256)}
}

func (r *recorder) add(format string, args ...any) {
	ev := fmt.Sprintf(format, args...)
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	select {
	case r.notify <- ev:
	default:
	}
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		IsAlive:        func(v bool) { r.add("alive=%t", v) },
		IsActive:       func(v bool) { r.add("active=%t", v) },
		IsVisible:      func(v bool) { r.add("visible=%t", v) },
		IsMinimized:    func(v bool) { r.add("minimized=%t", v) },
		IsMaximized:    func(v bool) { r.add("maximized=%t", v) },
		Resized:        func(v window.Size) { r.add("size=%dx%d", v.Width, v.Height) },
		Moved:          func(v window.Point) { r.add("position=%d,%d", v.X, v.Y) },
		ChangedTitle:   func(v string) { r.add("title=%s", v) },
		ChangedDisplay: func(v []string) { r.add("displays=%s", strings.Join(v, ",")) },
	}
}

// waitFor blocks until want is recorded.
func (r *recorder) waitFor(t *testing.T, want string) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-r.notify:
			if ev == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q; recorded %v", want, r.all())
		}
	}
}

func waitDone(t *testing.T, w *Watchdog) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog did not stop")
	}
}

func handleFor(t *testing.T, b window.Backend, id window.WindowID) *window.Handle {
	t.Helper()
	entries, err := b.EnumerateWindows()
	if err != nil {
		t.Fatalf("EnumerateWindows: %v", err)
	}
	for _, e := range entries {
		if e.ID == id {
			h := window.NewHandle(b, e)
			if _, err := h.Refresh(); err != nil {
				t.Fatalf("Refresh: %v", err)
			}
			return h
		}
	}
	t.Fatalf("window %s not found", id)
	return nil
}

func stableBackend() *window.MemoryBackend {
	return window.NewMemoryBackendWithOptions([]window.MemoryOption{window.WithStableIDs()})
}

func TestWatchdog_SingleChangeFiresSingleCallback(t *testing.T) {
	b := stableBackend()
	id := b.Add(window.MemoryWindow{
		App:      window.App{Name: "editor"},
		Title:    "notes.txt",
		Size:     window.Size{Width: 640, Height: 480},
		Visible:  true,
		Displays: []string{"DP-1"},
	})
	h := handleFor(t, b, id)

	rec := newRecorder()
	w := New(h)
	if err := w.Start(rec.callbacks(), testInterval); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	// A few quiet ticks produce nothing
	time.Sleep(5 * testInterval)
	if got := rec.all(); len(got) != 0 {
		t.Fatalf("callbacks fired without changes: %v", got)
	}

	b.Update(id, func(mw *window.MemoryWindow) { mw.Minimized = true })
	rec.waitFor(t, "minimized=true")

	time.Sleep(5 * testInterval)
	if got := rec.all(); !slices.Equal(got, []string{"minimized=true"}) {
		t.Errorf("events = %v, want exactly [minimized=true]", got)
	}
}

func TestWatchdog_GeometryAndDisplays(t *testing.T) {
	b := stableBackend()
	id := b.Add(window.MemoryWindow{App: window.App{Name: "editor"}, Title: "a", Displays: []string{"DP-1"}})
	h := handleFor(t, b, id)

	rec := newRecorder()
	w := New(h)
	if err := w.Start(rec.callbacks(), testInterval); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	b.Update(id, func(mw *window.MemoryWindow) { mw.Position = window.Point{X: 5, Y: 6} })
	rec.waitFor(t, "position=5,6")
	b.Update(id, func(mw *window.MemoryWindow) { mw.Size = window.Size{Width: 10, Height: 20} })
	rec.waitFor(t, "size=10x20")
	b.Update(id, func(mw *window.MemoryWindow) { mw.Displays = []string{"DP-1", "HDMI-1"} })
	rec.waitFor(t, "displays=DP-1,HDMI-1")
}

func TestWatchdog_LostWindowStops(t *testing.T) {
	b := window.NewMemoryBackend()
	w0 := window.MemoryWindow{App: window.App{Name: "calc"}, Title: "Calculator"}
	id := b.Add(w0)
	h := handleFor(t, b, id)

	rec := newRecorder()
	w := New(h, WithRecovery(mustRecovery(t, b)))
	if err := w.Start(rec.callbacks(), testInterval); err != nil {
		t.Fatal(err)
	}

	b.Remove(id)
	rec.waitFor(t, "alive=false")
	waitDone(t, w)
	if w.IsRunning() {
		t.Error("watchdog still running after the window was lost")
	}

	// The same title reappearing does not resurrect the handle
	b.Add(w0)
	time.Sleep(5 * testInterval)
	if got := rec.all(); !slices.Equal(got, []string{"alive=false"}) {
		t.Errorf("events = %v, want only [alive=false]", got)
	}
	if h.Snapshot().IsAlive {
		t.Error("lost handle became alive again")
	}
	w.Stop()
}

func TestWatchdog_TryToFindRebinds(t *testing.T) {
	b := window.NewMemoryBackend(
		window.MemoryWindow{App: window.App{Name: "browser"}, Title: "report.txt* - Editor"},
	)
	id := b.Add(window.MemoryWindow{App: window.App{Name: "editor"}, Title: "report.txt - Editor"})
	b.Add(window.MemoryWindow{App: window.App{Name: "editor"}, Title: "Preferences"})
	h := handleFor(t, b, id)

	rec := newRecorder()
	w := New(h, WithRecovery(mustRecovery(t, b)), WithTryToFind(true))
	if err := w.Start(rec.callbacks(), testInterval); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	newID, _ := b.Update(id, func(mw *window.MemoryWindow) { mw.Title = "report.txt* - Editor" })
	rec.waitFor(t, "title=report.txt* - Editor")

	if !w.IsRunning() {
		t.Fatal("watchdog stopped instead of rebinding")
	}
	if got := w.Handle().Identity(); got != newID {
		t.Fatalf("rebound to %s, want %s", got, newID)
	}

	// Notifications continue for the new handle
	b.Update(newID, func(mw *window.MemoryWindow) { mw.Maximized = true })
	rec.waitFor(t, "maximized=true")

	if slices.Contains(rec.all(), "alive=false") {
		t.Errorf("alive=false fired despite recovery: %v", rec.all())
	}
}

func TestWatchdog_TryToFindWithoutCandidate(t *testing.T) {
	b := window.NewMemoryBackend()
	id := b.Add(window.MemoryWindow{App: window.App{Name: "editor"}, Title: "report.txt - Editor"})
	h := handleFor(t, b, id)

	rec := newRecorder()
	w := New(h, WithRecovery(mustRecovery(t, b)), WithTryToFind(true))
	if err := w.Start(rec.callbacks(), testInterval); err != nil {
		t.Fatal(err)
	}

	b.Update(id, func(mw *window.MemoryWindow) { mw.Title = "Something else entirely" })
	rec.waitFor(t, "alive=false")
	waitDone(t, w)
}

func TestWatchdog_SetTryToFind(t *testing.T) {
	b := window.NewMemoryBackend()
	id := b.Add(window.MemoryWindow{App: window.App{Name: "editor"}, Title: "report.txt - Editor"})
	h := handleFor(t, b, id)

	rec := newRecorder()
	w := New(h, WithRecovery(mustRecovery(t, b)))
	w.SetTryToFind(true)
	if err := w.Start(rec.callbacks(), testInterval); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	b.Update(id, func(mw *window.MemoryWindow) { mw.Title = "report.txt* - Editor" })
	rec.waitFor(t, "title=report.txt* - Editor")
	if !w.IsRunning() {
		t.Error("watchdog stopped")
	}
}

func TestWatchdog_TitleChangeOnStableBackendIsNotLoss(t *testing.T) {
	b := stableBackend()
	id := b.Add(window.MemoryWindow{App: window.App{Name: "editor"}, Title: "draft"})
	h := handleFor(t, b, id)

	rec := newRecorder()
	w := New(h)
	if err := w.Start(rec.callbacks(), testInterval); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	b.Update(id, func(mw *window.MemoryWindow) { mw.Title = "final" })
	rec.waitFor(t, "title=final")
	if !w.IsRunning() || w.Handle() != h {
		t.Error("title change on a stable backend should keep the same handle")
	}
}

func TestWatchdog_UpdateCallbacksReplacesAll(t *testing.T) {
	b := stableBackend()
	id := b.Add(window.MemoryWindow{App: window.App{Name: "editor"}, Title: "draft"})
	h := handleFor(t, b, id)

	rec := newRecorder()
	w := New(h)
	if err := w.Start(rec.callbacks(), testInterval); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	var activeCalls atomic.Int32
	w.UpdateCallbacks(Callbacks{
		IsActive: func(bool) { activeCalls.Add(1) },
	})

	b.Update(id, func(mw *window.MemoryWindow) { mw.Title = "renamed" })
	time.Sleep(10 * testInterval)
	if got := rec.all(); len(got) != 0 {
		t.Errorf("replaced callbacks still fired: %v", got)
	}
	if n := activeCalls.Load(); n != 0 {
		t.Errorf("IsActive fired %d times on a title change", n)
	}
	if got := w.Snapshot().Title; got != "renamed" {
		t.Errorf("watchdog did not observe the title change, last title %q", got)
	}

	b.Update(id, func(mw *window.MemoryWindow) { mw.Active = true })
	deadline := time.Now().Add(2 * time.Second)
	for activeCalls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(testInterval)
	}
	if activeCalls.Load() != 1 {
		t.Errorf("IsActive fired %d times, want 1", activeCalls.Load())
	}
}

type countingBackend struct {
	*window.MemoryBackend
	reads atomic.Int32
}

func (b *countingBackend) ReadAttributes(id window.WindowID) (window.AttributeSet, error) {
	b.reads.Add(1)
	return b.MemoryBackend.ReadAttributes(id)
}

func TestWatchdog_UpdateIntervalAppliesFromNextSleep(t *testing.T) {
	b := &countingBackend{MemoryBackend: stableBackend()}
	id := b.Add(window.MemoryWindow{App: window.App{Name: "editor"}, Title: "a"})
	h := handleFor(t, b, id)

	w := New(h)
	if err := w.Start(Callbacks{}, 400*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	// Start reads the baseline once
	b.reads.Store(0)

	time.Sleep(50 * time.Millisecond)
	if err := w.UpdateInterval(testInterval); err != nil {
		t.Fatal(err)
	}

	time.Sleep(200 * time.Millisecond)
	if n := b.reads.Load(); n != 0 {
		t.Fatalf("in-flight sleep was shortened: %d reads after 250ms", n)
	}

	deadline := time.Now().Add(2 * time.Second)
	for b.reads.Load() < 5 && time.Now().Before(deadline) {
		time.Sleep(testInterval)
	}
	if n := b.reads.Load(); n < 5 {
		t.Errorf("new interval not applied: %d reads", n)
	}

	if err := w.UpdateInterval(0); err == nil {
		t.Error("zero interval accepted")
	}
}

func TestWatchdog_StopWaitsForGoroutine(t *testing.T) {
	b := stableBackend()
	id := b.Add(window.MemoryWindow{App: window.App{Name: "editor"}, Title: "a"})
	h := handleFor(t, b, id)

	rec := newRecorder()
	w := New(h)
	if err := w.Start(rec.callbacks(), testInterval); err != nil {
		t.Fatal(err)
	}
	time.Sleep(3 * testInterval)
	w.Stop()

	select {
	case <-w.Done():
	default:
		t.Fatal("Stop returned before the polling goroutine exited")
	}
	if w.IsRunning() {
		t.Error("IsRunning after Stop")
	}

	b.Update(id, func(mw *window.MemoryWindow) { mw.Minimized = true })
	time.Sleep(5 * testInterval)
	if got := rec.all(); len(got) != 0 {
		t.Errorf("callbacks fired after Stop: %v", got)
	}

	// Stopping twice is harmless
	w.Stop()
}

func TestWatchdog_StartRestarts(t *testing.T) {
	b := stableBackend()
	id := b.Add(window.MemoryWindow{App: window.App{Name: "editor"}, Title: "a"})
	h := handleFor(t, b, id)

	first, second := newRecorder(), newRecorder()
	w := New(h)
	if err := w.Start(first.callbacks(), testInterval); err != nil {
		t.Fatal(err)
	}
	oldDone := w.Done()

	if err := w.Start(second.callbacks(), testInterval); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	select {
	case <-oldDone:
	default:
		t.Fatal("previous polling goroutine still running after restart")
	}

	b.Update(id, func(mw *window.MemoryWindow) { mw.Visible = true })
	second.waitFor(t, "visible=true")
	if got := first.all(); len(got) != 0 {
		t.Errorf("old callbacks fired after restart: %v", got)
	}

	if err := w.Start(Callbacks{}, -time.Second); err == nil {
		t.Error("negative interval accepted")
	}
}

func TestWatchdog_BackendUnavailableStops(t *testing.T) {
	b := stableBackend()
	id := b.Add(window.MemoryWindow{App: window.App{Name: "editor"}, Title: "a"})
	h := handleFor(t, b, id)

	rec := newRecorder()
	w := New(h)
	if err := w.Start(rec.callbacks(), testInterval); err != nil {
		t.Fatal(err)
	}

	b.SetUnavailable(errors.New("display connection lost"))
	rec.waitFor(t, "alive=false")
	waitDone(t, w)
}

func TestWatchdog_CallbackPanicStops(t *testing.T) {
	b := stableBackend()
	id := b.Add(window.MemoryWindow{App: window.App{Name: "editor"}, Title: "a"})
	h := handleFor(t, b, id)

	w := New(h)
	if err := w.Start(Callbacks{IsMinimized: func(bool) { panic("boom") }}, testInterval); err != nil {
		t.Fatal(err)
	}

	b.Update(id, func(mw *window.MemoryWindow) { mw.Minimized = true })
	waitDone(t, w)
	if w.IsRunning() {
		t.Error("watchdog still marked running after a panic")
	}
}

func TestWatchdog_StartReadsBaseline(t *testing.T) {
	b := stableBackend()
	id := b.Add(window.MemoryWindow{
		App:      window.App{Name: "editor"},
		Title:    "notes.txt",
		Position: window.Point{X: 10, Y: 20},
		Size:     window.Size{Width: 300, Height: 200},
		Visible:  true,
	})
	entries, err := b.EnumerateWindows()
	if err != nil {
		t.Fatal(err)
	}
	// Never refreshed: the cached snapshot only carries the title
	h := window.NewHandle(b, entries[0])

	rec := newRecorder()
	w := New(h)
	if err := w.Start(rec.callbacks(), testInterval); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	time.Sleep(5 * testInterval)
	if got := rec.all(); len(got) != 0 {
		t.Fatalf("callbacks fired without changes: %v", got)
	}
	if snap := w.Snapshot(); snap.Size != (window.Size{Width: 300, Height: 200}) || !snap.IsVisible {
		t.Errorf("baseline = %+v", snap)
	}

	b.Update(id, func(mw *window.MemoryWindow) { mw.Position = window.Point{X: 15, Y: 20} })
	rec.waitFor(t, "position=15,20")
}

func TestWatchdog_StartFailsWhenBackendUnavailable(t *testing.T) {
	b := stableBackend()
	id := b.Add(window.MemoryWindow{App: window.App{Name: "editor"}, Title: "a"})
	h := handleFor(t, b, id)
	b.SetUnavailable(errors.New("no display"))

	w := New(h)
	err := w.Start(Callbacks{}, testInterval)
	if !window.IsBackendUnavailable(err) {
		t.Fatalf("Start = %v, want a backend unavailable error", err)
	}
	if w.IsRunning() {
		t.Error("watchdog running after failed Start")
	}
	waitDone(t, w)
}
