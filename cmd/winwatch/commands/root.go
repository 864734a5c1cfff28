package commands

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bryanchriswhite/WinWatch/internal/config"
	"github.com/bryanchriswhite/WinWatch/internal/logger"
	"github.com/bryanchriswhite/WinWatch/internal/window"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "winwatch",
		Short: "WinWatch - find desktop windows and watch them change",
		Long: `WinWatch locates windows by title or application name and reports
changes to their state (title, geometry, focus, minimized/maximized,
visibility, display) as they happen.

Features:
  • Query windows with exact, substring, regex or fuzzy conditions
  • X11/EWMH and KWin (D-Bus) backends
  • Background watchdogs with title-change recovery
  • Persistent watch rules
  • REST API and WebSocket event stream`,
		SilenceUsage: true,
	}
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/winwatch/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8080)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "human-readable log output")
	rootCmd.PersistentFlags().String("backend", "", "window backend (auto, x11, kwin, memory)")
	rootCmd.PersistentFlags().Duration("interval", 0, "watchdog polling interval (default is 300ms)")

	// Bind flags to viper
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_pretty", rootCmd.PersistentFlags().Lookup("log-pretty"))
	viper.BindPFlag("backend", rootCmd.PersistentFlags().Lookup("backend"))
	viper.BindPFlag("watchdog.interval", rootCmd.PersistentFlags().Lookup("interval"))

	viper.SetEnvPrefix("WINWATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig reads the config file and applies command-line overrides to
// the in-memory copy. The logger is configured from the result.
func loadConfig() (*config.Manager, *config.Config, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()
	applyOverrides(cfg, viper.GetViper())
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger.Init(cfg.LogLevel, cfg.LogPretty)
	return configMgr, cfg, nil
}

func applyOverrides(cfg *config.Config, v *viper.Viper) {
	if port := v.GetInt("server_port"); v.IsSet("server_port") && port > 0 {
		cfg.ServerPort = port
	}
	if level := v.GetString("log_level"); level != "" {
		cfg.LogLevel = level
	}
	if v.GetBool("log_pretty") {
		cfg.LogPretty = true
	}
	if backend := v.GetString("backend"); backend != "" {
		cfg.Backend = backend
	}
	if interval := v.GetDuration("watchdog.interval"); interval > time.Duration(0) {
		cfg.Watchdog.Interval = interval
	}
}

// openBackend connects the configured window backend
func openBackend(cfg *config.Config) (window.Backend, error) {
	backend, err := window.NewBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open window backend: %w", err)
	}
	return backend, nil
}
