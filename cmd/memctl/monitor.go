package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fyrsmithlabs/memoryd/internal/monitor"
	"github.com/spf13/cobra"
)

var monitorInterval time.Duration

// monitorCmd runs the live metrics dashboard
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch a live metrics dashboard for a memoryd server",
	Long: `Watch a live metrics dashboard for a memoryd server.

The dashboard polls the server's /health and /metrics endpoints and renders
operation rates, latency, and runtime stats in the terminal. Press q to quit,
r to refresh immediately.

Examples:
  # Watch the local server
  memctl monitor

  # Poll a remote server every two seconds
  memctl monitor --server http://memoryd.internal:9091 --interval 2s`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 5*time.Second, "refresh interval")
}

// runMonitor handles the monitor command
func runMonitor(cmd *cobra.Command, args []string) error {
	model := monitor.NewModel(serverURL, monitorInterval)

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithContext(cmd.Context()),
	)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run dashboard: %w", err)
	}
	return nil
}
