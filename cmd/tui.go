package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Laisky/api-aggregator/cmd/tui"

	errors "github.com/Laisky/errors/v2"
	gutils "github.com/Laisky/go-utils/v6"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var statsCMD = &cobra.Command{
	Use:   "stats",
	Short: "Watch per-source latency statistics",
	Long: `Poll the /stats endpoint of a running api server and render the
per-source counters as a live table.

Example:
  go run main.go stats --addr http://localhost:8080 --interval 2s

Keyboard shortcuts:
  ↑/↓ or j/k  Scroll rows
  r           Refresh now
  q           Quit`,
	Args: gcmd.NoExtraArgs,
	Run: func(cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("addr")
		interval, _ := cmd.Flags().GetDuration("interval")
		if err := runStatsTUI(addr, interval); err != nil {
			fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	statsCMD.Flags().String("addr", "http://localhost:8080", "base url of the api server")
	statsCMD.Flags().Duration("interval", 2*time.Second, "poll interval")
	rootCMD.AddCommand(statsCMD)
}

// runStatsTUI starts the statistics dashboard and returns any start/run error.
func runStatsTUI(addr string, interval time.Duration) error {
	httpcli, err := gutils.NewHTTPClient(
		gutils.WithHTTPClientTimeout(interval + time.Second),
	)
	if err != nil {
		return errors.Wrap(err, "new http client")
	}

	model := tui.NewModel(addr, interval, tui.NewHTTPFetcher(httpcli, addr))
	p := tea.NewProgram(
		model,
		tea.WithAltScreen(), // Use alternate screen buffer
	)

	_, err = p.Run()
	return errors.WithStack(err)
}
