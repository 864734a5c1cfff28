package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bryanchriswhite/WinWatch/internal/match"
)

func TestNewManager_CreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	cfg := m.Get()
	if cfg.ServerPort != 8080 || cfg.Backend != "auto" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Watchdog.Interval != 300*time.Millisecond {
		t.Errorf("Interval = %s, want 300ms", cfg.Watchdog.Interval)
	}
	if cfg.Watchdog.RecoveryThreshold != 90 || cfg.Match.DefaultThreshold != 90 {
		t.Errorf("thresholds = %d/%d, want 90/90", cfg.Watchdog.RecoveryThreshold, cfg.Match.DefaultThreshold)
	}
}

func TestNewManager_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
backend: memory
watchdog:
  interval: 50ms
  try_to_find: true
watches:
  - name: editor
    title: report.txt
    condition: contains
    ignore_case: true
    watch: [title, minimized]
memory_windows:
  - app: editor
    title: report.txt - Editor
    width: 800
    height: 600
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	cfg := m.Get()

	if cfg.Backend != "memory" || cfg.ServerPort != 8080 {
		t.Errorf("Backend/Port = %s/%d", cfg.Backend, cfg.ServerPort)
	}
	if cfg.Watchdog.Interval != 50*time.Millisecond || !cfg.Watchdog.TryToFind {
		t.Errorf("Watchdog = %+v", cfg.Watchdog)
	}
	if cfg.Watchdog.RecoveryCondition != "diffratio" {
		t.Errorf("RecoveryCondition = %q, want default", cfg.Watchdog.RecoveryCondition)
	}
	if len(cfg.Watches) != 1 || cfg.Watches[0].Watch[1] != "minimized" {
		t.Fatalf("Watches = %+v", cfg.Watches)
	}
	if len(cfg.MemoryWindows) != 1 || cfg.MemoryWindows[0].Width != 800 {
		t.Errorf("MemoryWindows = %+v", cfg.MemoryWindows)
	}

	q, err := cfg.Watches[0].Query(cfg.Match.DefaultThreshold)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !q.Evaluate("REPORT.TXT - Editor") {
		t.Error("watch query should match case-insensitively")
	}
}

func TestNewManager_RejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("backend: wayland\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewManager(path); err == nil || !strings.Contains(err.Error(), "invalid backend") {
		t.Fatalf("NewManager error = %v, want invalid backend", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"port", func(c *Config) { c.ServerPort = 0 }, "server_port"},
		{"interval", func(c *Config) { c.Watchdog.Interval = 0 }, "interval"},
		{"recovery condition", func(c *Config) { c.Watchdog.RecoveryCondition = "contains" }, "recovery_condition"},
		{"recovery threshold", func(c *Config) { c.Watchdog.RecoveryThreshold = 101 }, "recovery_threshold"},
		{"default threshold", func(c *Config) { c.Match.DefaultThreshold = -1 }, "default_threshold"},
		{"unnamed watch", func(c *Config) { c.Watches = []WatchRule{{Title: "x"}} }, "name"},
		{"bad watch condition", func(c *Config) { c.Watches = []WatchRule{{Name: "a", Condition: "fuzzy"}} }, "fuzzy"},
		{"duplicate watch", func(c *Config) { c.Watches = []WatchRule{{Name: "a"}, {Name: "a"}} }, "duplicate"},
		{"editdistance recovery", func(c *Config) { c.Watchdog.RecoveryCondition = "edit_distance" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ThresholdIsInvalidFlag(t *testing.T) {
	cfg := Defaults()
	cfg.Watchdog.RecoveryThreshold = 150
	var flagErr *match.InvalidFlagError
	if err := cfg.Validate(); !errors.As(err, &flagErr) || flagErr.Value != 150 {
		t.Fatalf("Validate = %v, want *match.InvalidFlagError", err)
	}
}

func TestManager_WatchesRoundTripThroughDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if err := m.AddWatch(WatchRule{Name: "calc", Title: "Calculator"}); err != nil {
		t.Fatalf("AddWatch: %v", err)
	}
	if err := m.AddWatch(WatchRule{Name: "calc", Title: "other"}); err == nil {
		t.Error("duplicate watch name accepted")
	}
	if err := m.SetPort(9090); err != nil {
		t.Fatalf("SetPort: %v", err)
	}
	if err := m.SetPort(70000); err == nil {
		t.Error("invalid port accepted")
	}

	reloaded, err := NewManager(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	cfg := reloaded.Get()
	if cfg.ServerPort != 9090 || len(cfg.Watches) != 1 || cfg.Watches[0].Title != "Calculator" {
		t.Errorf("reloaded config = %+v", cfg)
	}
	if cfg.Watchdog.Interval != 300*time.Millisecond {
		t.Errorf("interval did not survive the round trip: %s", cfg.Watchdog.Interval)
	}

	if err := reloaded.RemoveWatch("calc"); err != nil {
		t.Fatalf("RemoveWatch: %v", err)
	}
	if err := reloaded.RemoveWatch("calc"); err == nil {
		t.Error("removing a missing watch should fail")
	}
}

func TestManager_GetReturnsCopy(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.AddWatch(WatchRule{Name: "a", Apps: []string{"x"}}); err != nil {
		t.Fatal(err)
	}
	cfg := m.Get()
	cfg.Watches[0].Apps[0] = "mutated"
	cfg.ServerPort = 1
	if got := m.Get(); got.Watches[0].Apps[0] != "x" || got.ServerPort != 8080 {
		t.Errorf("Get exposed internal state: %+v", got)
	}
}
