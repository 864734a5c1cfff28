package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/bryanchriswhite/WinWatch/internal/window"
)

type windowRow struct {
	ID       window.WindowID `json:"id"`
	App      window.App      `json:"app"`
	Snapshot window.Snapshot `json:"snapshot"`
}

func rowsOf(handles []*window.Handle) []windowRow {
	rows := make([]windowRow, 0, len(handles))
	for _, h := range handles {
		rows = append(rows, windowRow{ID: h.Identity(), App: h.App(), Snapshot: h.Snapshot()})
	}
	return rows
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// stateFlags renders the boolean attributes as a compact column
func stateFlags(s window.Snapshot) string {
	var flags []string
	if s.IsActive {
		flags = append(flags, "active")
	}
	if s.IsMinimized {
		flags = append(flags, "min")
	}
	if s.IsMaximized {
		flags = append(flags, "max")
	}
	if !s.IsVisible {
		flags = append(flags, "hidden")
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}

func writeWindows(w io.Writer, format string, handles []*window.Handle) error {
	rows := rowsOf(handles)

	switch format {
	case "json":
		return writeJSON(w, rows)
	case "table":
		if len(rows) == 0 {
			fmt.Fprintln(w, "No windows found.")
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tAPP\tPID\tPOSITION\tSIZE\tSTATE\tDISPLAY\tTITLE")
		for _, r := range rows {
			s := r.Snapshot
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d,%d\t%dx%d\t%s\t%s\t%s\n",
				r.ID, r.App.Name, r.App.PID,
				s.Position.X, s.Position.Y, s.Size.Width, s.Size.Height,
				stateFlags(s), strings.Join(s.Displays, ","), s.Title)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(w, "\nTotal: %d windows\n", len(rows))
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", format)
	}
}

func writeNames(w io.Writer, format string, names []string) error {
	switch format {
	case "json":
		if names == nil {
			names = []string{}
		}
		return writeJSON(w, names)
	case "table":
		for _, n := range names {
			fmt.Fprintln(w, n)
		}
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", format)
	}
}

func writeAppTitles(w io.Writer, format string, titles map[string][]string) error {
	switch format {
	case "json":
		return writeJSON(w, titles)
	case "table":
		apps := make([]string, 0, len(titles))
		for app := range titles {
			apps = append(apps, app)
		}
		sort.Strings(apps)
		for _, app := range apps {
			fmt.Fprintln(w, app)
			for _, t := range titles[app] {
				fmt.Fprintf(w, "  %s\n", t)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", format)
	}
}
