package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/WinWatch/internal/config"
	"github.com/bryanchriswhite/WinWatch/internal/logger"
	"github.com/bryanchriswhite/WinWatch/internal/match"
	"github.com/bryanchriswhite/WinWatch/internal/watchdog"
	"github.com/bryanchriswhite/WinWatch/internal/window"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch PATTERN",
	Short: "Watch matching windows and print their changes",
	Long: `Start a watchdog on every window whose title matches PATTERN and print
one JSON line per attribute change until interrupted. The command exits by
itself once every watched window is gone.`,
	Example: `  # Watch everything about the calculator
  winwatch watch Calculator

  # Only title and minimized changes, following title renames
  winwatch watch "report.txt - Editor" --attr title,minimized --try-to-find

  # Poll every second
  winwatch watch notepad -c contains -i --interval 1s`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var (
	watchQuery     queryFlags
	watchAttrs     []string
	watchTryToFind bool
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchQuery.register(watchCmd, "is")
	watchCmd.Flags().StringSliceVar(&watchAttrs, "attr", nil, "attributes to report (alive, active, visible, minimized, maximized, size, position, title, displays); default all")
	watchCmd.Flags().BoolVar(&watchTryToFind, "try-to-find", false, "follow title changes of title-identified windows")
}

// newRegistry builds the watch registry with the configured title recovery
func newRegistry(resolver *window.Resolver, cfg *config.Config) (*watchdog.Registry, error) {
	cond, err := match.ParseCondition(cfg.Watchdog.RecoveryCondition)
	if err != nil {
		return nil, err
	}
	recovery, err := watchdog.NewTitleRecovery(resolver, watchdog.WithSimilarity(cond, cfg.Watchdog.RecoveryThreshold))
	if err != nil {
		return nil, err
	}
	return watchdog.NewRegistry(resolver, recovery, cfg.Watchdog.Interval), nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("watch")

	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	q, err := watchQuery.query(args[0], cfg.Match.DefaultThreshold)
	if err != nil {
		return err
	}
	attrs, err := window.ParseAttributes(watchAttrs)
	if err != nil {
		return err
	}

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

	events := registry.Subscribe()
	ids, err := registry.WatchQuery(q, watchdog.WatchOptions{
		Attributes: attrs,
		Interval:   cfg.Watchdog.Interval,
		TryToFind:  watchTryToFind || cfg.Watchdog.TryToFind,
	}, window.InApps(watchQuery.apps...))
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("no window matches %s", q)
	}
	log.Info().Int("windows", len(ids)).Str("query", q.String()).Msg("Watching")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return printEvents(ctx, events, allDone(registry, ids))
}

// allDone returns a channel closed once every listed watchdog has stopped
func allDone(registry *watchdog.Registry, ids []string) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, id := range ids {
			if dog, ok := registry.Get(id); ok {
				<-dog.Done()
			}
		}
	}()
	return done
}

// printEvents writes events as JSON lines until ctx ends or finished closes
func printEvents(ctx context.Context, events <-chan watchdog.Event, finished <-chan struct{}) error {
	encoder := json.NewEncoder(os.Stdout)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-finished:
			// Drain what the last ticks published
			for {
				select {
				case ev, ok := <-events:
					if !ok {
						return nil
					}
					if err := encoder.Encode(ev); err != nil {
						return err
					}
				default:
					return nil
				}
			}
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := encoder.Encode(ev); err != nil {
				return err
			}
		}
	}
}
