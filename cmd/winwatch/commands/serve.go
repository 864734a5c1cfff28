package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/WinWatch/internal/api"
	"github.com/bryanchriswhite/WinWatch/internal/logger"
	"github.com/bryanchriswhite/WinWatch/internal/window"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the WinWatch server",
	Long: `Start the WinWatch HTTP server. Watch rules from the config file are
started at launch; more can be added through the API. Changes are streamed
to WebSocket clients on /api/events.`,
	Example: `  # Start server on default port (8080)
  winwatch serve

  # Start server on custom port
  winwatch serve --port 9090

  # Start with specific config file
  winwatch serve --config /path/to/config.yaml

  # Start with debug logging
  winwatch serve --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	configMgr, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log.Info().
		Str("path", configMgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Msg("Configuration loaded")

	backend, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	resolver := window.NewResolver(backend)
	registry, err := newRegistry(resolver, cfg)
	if err != nil {
		return err
	}
	defer registry.Close()

	for _, rule := range cfg.Watches {
		ids, err := registry.WatchRule(rule, cfg)
		if err != nil {
			return fmt.Errorf("failed to start watch %q: %w", rule.Name, err)
		}
		if len(ids) == 0 {
			log.Warn().Str("watch", rule.Name).Msg("No window matches watch rule")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(resolver, registry, configMgr)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(ctx, cfg.ServerPort)
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down gracefully...")
		registry.Close()
		return nil
	})

	log.Info().
		Str("api", fmt.Sprintf("http://localhost:%d/api", cfg.ServerPort)).
		Str("events", fmt.Sprintf("ws://localhost:%d/api/events", cfg.ServerPort)).
		Str("backend", backend.Name()).
		Msg("WinWatch is running, press Ctrl+C to stop")

	return g.Wait()
}
