package commands

import (
	"os"

	"github.com/bryanchriswhite/WinWatch/internal/window"
	"github.com/spf13/cobra"
)

var appsCmd = &cobra.Command{
	Use:   "apps [PATTERN]",
	Short: "List applications owning windows",
	Long: `List the applications that own at least one window. With PATTERN only
matching application names are shown.`,
	Example: `  # All application names
  winwatch apps

  # Applications containing "term", any case
  winwatch apps term -c contains -i

  # Every application with its window titles
  winwatch apps --titles`,
	Args: cobra.MaximumNArgs(1),
	RunE: runApps,
}

var (
	appsQuery  queryFlags
	appsFormat string
	appsTitles bool
)

func init() {
	rootCmd.AddCommand(appsCmd)

	appsQuery.register(appsCmd, "is")
	appsCmd.Flags().StringVarP(&appsFormat, "format", "f", "table", "output format (table or json)")
	appsCmd.Flags().BoolVar(&appsTitles, "titles", false, "show the window titles of each application")
}

func runApps(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	backend, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	resolver := window.NewResolver(backend)

	if appsTitles {
		titles, err := resolver.AppWindowTitles()
		if err != nil {
			return err
		}
		return writeAppTitles(os.Stdout, appsFormat, titles)
	}

	if len(args) == 0 {
		names, err := resolver.AllAppNames()
		if err != nil {
			return err
		}
		return writeNames(os.Stdout, appsFormat, names)
	}

	q, err := appsQuery.query(args[0], cfg.Match.DefaultThreshold)
	if err != nil {
		return err
	}
	names, err := resolver.FindApps(q)
	if err != nil {
		return err
	}
	return writeNames(os.Stdout, appsFormat, names)
}
