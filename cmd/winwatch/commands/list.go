package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/WinWatch/internal/window"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List windows",
	Long: `List every window reported by the window backend, in the backend's
stacking or creation order.`,
	Example: `  # List windows in table format (default)
  winwatch list

  # List windows in JSON format
  winwatch list --format json

  # Show only the active window
  winwatch list --active

  # List windows under a screen point
  winwatch list --at 100,200`,
	RunE: runList,
}

var (
	listFormat string
	listActive bool
	listAt     string
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "output format (table or json)")
	listCmd.Flags().BoolVarP(&listActive, "active", "a", false, "show only the active window")
	listCmd.Flags().StringVar(&listAt, "at", "", "show windows containing the point X,Y")
}

func runList(cmd *cobra.Command, args []string) error {
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

	switch {
	case listActive:
		h, err := resolver.ActiveWindow()
		if err != nil {
			return err
		}
		if h == nil {
			fmt.Println("No active window.")
			return nil
		}
		return writeWindows(os.Stdout, listFormat, []*window.Handle{h})
	case listAt != "":
		var x, y int
		if _, err := fmt.Sscanf(listAt, "%d,%d", &x, &y); err != nil {
			return fmt.Errorf("invalid point %q (use X,Y)", listAt)
		}
		handles, err := resolver.WindowsAt(x, y)
		if err != nil {
			return err
		}
		return writeWindows(os.Stdout, listFormat, handles)
	default:
		handles, err := resolver.AllWindows()
		if err != nil {
			return err
		}
		return writeWindows(os.Stdout, listFormat, handles)
	}
}
