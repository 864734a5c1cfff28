package commands

import (
	"os"

	"github.com/bryanchriswhite/WinWatch/internal/window"
	"github.com/spf13/cobra"
)

var findCmd = &cobra.Command{
	Use:   "find PATTERN",
	Short: "Find windows by title",
	Long: `Find windows whose title (or application name with --by-app) matches
PATTERN under the selected condition. Results keep the backend's window
order.`,
	Example: `  # Exact title
  winwatch find "Calculator"

  # Case-insensitive substring
  winwatch find notepad -c contains -i

  # Regular expression
  winwatch find '^report.*\.txt' -c match

  # Fuzzy match, restricted to one application
  winwatch find "report.txt - Editor" -c diffratio -t 85 --app editor

  # Windows of applications whose name starts with "fire"
  winwatch find fire -c startswith --by-app`,
	Args: cobra.ExactArgs(1),
	RunE: runFind,
}

var (
	findQuery  queryFlags
	findFormat string
	findByApp  bool
)

func init() {
	rootCmd.AddCommand(findCmd)

	findQuery.register(findCmd, "is")
	findCmd.Flags().StringVarP(&findFormat, "format", "f", "table", "output format (table or json)")
	findCmd.Flags().BoolVar(&findByApp, "by-app", false, "match PATTERN against the application name")
}

func runFind(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	q, err := findQuery.query(args[0], cfg.Match.DefaultThreshold)
	if err != nil {
		return err
	}

	backend, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	opts := []window.FindOption{window.InApps(findQuery.apps...)}
	if findByApp {
		opts = append(opts, window.ByAppName())
	}

	handles, err := window.NewResolver(backend).FindWindows(q, opts...)
	if err != nil {
		return err
	}
	return writeWindows(os.Stdout, findFormat, handles)
}
