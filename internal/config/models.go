package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/bryanchriswhite/WinWatch/internal/match"
)

// Config represents the winwatch configuration file
type Config struct {
	Backend    string `json:"backend" yaml:"backend"`
	ServerPort int    `json:"server_port" yaml:"server_port"`
	LogLevel   string `json:"log_level" yaml:"log_level"`
	LogPretty  bool   `json:"log_pretty" yaml:"log_pretty"`

	Watchdog WatchdogConfig `json:"watchdog" yaml:"watchdog"`
	Match    MatchConfig    `json:"match" yaml:"match"`

	// Watches are started by `winwatch serve`
	Watches []WatchRule `json:"watches" yaml:"watches"`

	// MemoryWindows seeds the scripted memory backend
	MemoryWindows []WindowSeed `json:"memory_windows,omitempty" yaml:"memory_windows,omitempty"`
}

// WatchdogConfig holds the defaults applied to every watchdog
type WatchdogConfig struct {
	Interval          time.Duration `json:"interval" yaml:"interval"`
	TryToFind         bool          `json:"try_to_find" yaml:"try_to_find"`
	RecoveryCondition string        `json:"recovery_condition" yaml:"recovery_condition"`
	RecoveryThreshold int           `json:"recovery_threshold" yaml:"recovery_threshold"`
}

// MatchConfig holds query defaults
type MatchConfig struct {
	DefaultThreshold int `json:"default_threshold" yaml:"default_threshold"`
}

// WatchRule selects windows by title and names the attributes to report
type WatchRule struct {
	Name       string   `json:"name" yaml:"name"`
	Title      string   `json:"title" yaml:"title"`
	Condition  string   `json:"condition" yaml:"condition"`
	IgnoreCase bool     `json:"ignore_case" yaml:"ignore_case"`
	Threshold  int      `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Apps       []string `json:"apps,omitempty" yaml:"apps,omitempty"`
	TryToFind  *bool    `json:"try_to_find,omitempty" yaml:"try_to_find,omitempty"`

	// Watch lists attribute names; empty means every attribute
	Watch []string `json:"watch,omitempty" yaml:"watch,omitempty"`
}

// WindowSeed describes one window of the memory backend
type WindowSeed struct {
	App       string   `json:"app" yaml:"app"`
	PID       int      `json:"pid,omitempty" yaml:"pid,omitempty"`
	Title     string   `json:"title" yaml:"title"`
	X         int      `json:"x" yaml:"x"`
	Y         int      `json:"y" yaml:"y"`
	Width     int      `json:"width" yaml:"width"`
	Height    int      `json:"height" yaml:"height"`
	Minimized bool     `json:"minimized,omitempty" yaml:"minimized,omitempty"`
	Maximized bool     `json:"maximized,omitempty" yaml:"maximized,omitempty"`
	Active    bool     `json:"active,omitempty" yaml:"active,omitempty"`
	Hidden    bool     `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	Displays  []string `json:"displays,omitempty" yaml:"displays,omitempty"`
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		Backend:    "auto",
		ServerPort: 8080,
		LogLevel:   "info",
		Watchdog: WatchdogConfig{
			Interval:          300 * time.Millisecond,
			RecoveryCondition: "diffratio",
			RecoveryThreshold: match.DefaultThreshold,
		},
		Match: MatchConfig{
			DefaultThreshold: match.DefaultThreshold,
		},
		Watches: []WatchRule{},
	}
}

var backends = []string{"auto", "x11", "kwin", "memory"}

// Validate checks the configuration for values the program cannot run with
func (c *Config) Validate() error {
	backendOK := false
	for _, b := range backends {
		if strings.EqualFold(c.Backend, b) {
			backendOK = true
		}
	}
	if !backendOK {
		return fmt.Errorf("invalid backend %q (use %s)", c.Backend, strings.Join(backends, ", "))
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid server_port %d", c.ServerPort)
	}
	if c.Watchdog.Interval <= 0 {
		return fmt.Errorf("watchdog.interval must be positive, got %s", c.Watchdog.Interval)
	}

	cond, err := match.ParseCondition(c.Watchdog.RecoveryCondition)
	if err != nil {
		return fmt.Errorf("watchdog.recovery_condition: %w", err)
	}
	if !cond.Similarity() {
		return fmt.Errorf("watchdog.recovery_condition must be diffratio or editdistance, got %q", c.Watchdog.RecoveryCondition)
	}
	if err := checkPercent("watchdog.recovery_threshold", c.Watchdog.RecoveryThreshold); err != nil {
		return err
	}
	if err := checkPercent("match.default_threshold", c.Match.DefaultThreshold); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Watches))
	for i, w := range c.Watches {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("watches[%d]: %w", i, err)
		}
		if seen[w.Name] {
			return fmt.Errorf("watches[%d]: duplicate name %q", i, w.Name)
		}
		seen[w.Name] = true
	}
	return nil
}

// Validate checks a single watch rule
func (w WatchRule) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("watch rule needs a name")
	}
	if _, err := w.ConditionValue(); err != nil {
		return err
	}
	if w.Threshold != 0 {
		if err := checkPercent("threshold", w.Threshold); err != nil {
			return err
		}
	}
	return nil
}

// ConditionValue parses the rule's condition, defaulting to "is"
func (w WatchRule) ConditionValue() (match.Condition, error) {
	if w.Condition == "" {
		return match.Is, nil
	}
	return match.ParseCondition(w.Condition)
}

// Query builds the match query selecting the rule's windows. A zero
// threshold falls back to defaultThreshold.
func (w WatchRule) Query(defaultThreshold int) (match.Query, error) {
	cond, err := w.ConditionValue()
	if err != nil {
		return match.Query{}, err
	}
	threshold := w.Threshold
	if threshold == 0 {
		threshold = defaultThreshold
	}
	opts := []match.Option{match.WithThreshold(threshold)}
	if w.IgnoreCase {
		opts = append(opts, match.WithIgnoreCase())
	}
	return match.NewQuery(w.Title, cond, opts...)
}

func checkPercent(field string, v int) error {
	if v < 0 || v > 100 {
		return &match.InvalidFlagError{Flag: field, Value: v}
	}
	return nil
}
