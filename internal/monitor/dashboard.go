package monitor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
)

// Model represents the BubbleTea dashboard model
type Model struct {
	serverURL  string
	interval   time.Duration
	lastUpdate time.Time
	err        error
	quitting   bool

	// current is the latest scrape; rates are derived from the
	// previous one once havePrev is set.
	current  Snapshot
	rates    Rates
	havePrev bool

	// Historical data for sparklines (last N points)
	rateHistory    []float64
	latencyHistory []float64
	heapHistory    []float64

	// Peak rate for the load progress bar
	peakRate  float64
	heapMaxMB float64

	// Progress bars
	heapProgress progress.Model
	loadProgress progress.Model
}

// Lipgloss styles (k9s-inspired color scheme)
var (
	// Header style - bright cyan background, bold black text
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	// Section title style - bold bright cyan
	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	// Label style - dim cyan
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	// Value style - bright white
	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	// Dim style - for units and secondary info
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	// Status styles with unicode symbols
	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	// Container style - rounded border with dim gray
	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	// Footer style - bright keys on dim background
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	// Sparkline container
	sparklineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))
)

// NewModel creates a new dashboard model
func NewModel(serverURL string, interval time.Duration) Model {
	// Initialize progress bars with custom gradient
	heapProg := progress.New(
		progress.WithGradient("#00ff00", "#ffff00"),
		progress.WithWidth(40),
	)

	loadProg := progress.New(
		progress.WithGradient("#00ffff", "#ff00ff"),
		progress.WithWidth(40),
	)

	return Model{
		serverURL:      serverURL,
		interval:       interval,
		quitting:       false,
		heapProgress:   heapProg,
		loadProgress:   loadProg,
		rateHistory:    make([]float64, 0, historySize),
		latencyHistory: make([]float64, 0, historySize),
		heapHistory:    make([]float64, 0, historySize),
		peakRate:       1.0,   // Minimum peak to avoid division by zero
		heapMaxMB:      512.0, // Default heap ceiling in MB
	}
}

// getLatencyBadge returns a colored status badge based on latency
func getLatencyBadge(latencyMS float64) string {
	if latencyMS < 100 {
		return healthyStyle.Render("[✓]")
	} else if latencyMS < 500 {
		return warningStyle.Render("[⚠]")
	}
	return errorStyle.Render("[✗]")
}

// getStatusBadge returns the overall server status badge
func getStatusBadge(healthy bool, errorRatio float64) string {
	if !healthy {
		return errorStyle.Render("✗ DOWN")
	}
	if errorRatio < 0.01 {
		return healthyStyle.Render("✓ HEALTHY")
	} else if errorRatio < 0.10 {
		return warningStyle.Render("⚠ WARN")
	}
	return errorStyle.Render("✗ ERROR")
}

// appendToHistory appends a value to history, maintaining max size
func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

// createSparkline creates a sparkline chart from historical data
func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}

	return sparklineStyle.Render(spark.View())
}

// Message types
type tickMsg time.Time
type snapshotMsg Snapshot
type errMsg error

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(m.interval),
		fetchSnapshot(m.serverURL),
	)
}

// tick creates a tick command for auto-refresh
func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// fetchSnapshot scrapes the server's health and metrics endpoints
func fetchSnapshot(serverURL string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		snap, err := NewClient(serverURL).Fetch(ctx)
		if err != nil {
			return errMsg(err)
		}
		return snapshotMsg(snap)
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, fetchSnapshot(m.serverURL)
		}

	case tickMsg:
		// Auto-refresh triggered
		return m, tea.Batch(
			tick(m.interval),
			fetchSnapshot(m.serverURL),
		)

	case snapshotMsg:
		snap := Snapshot(msg)
		if m.havePrev {
			m.rates = snap.Since(m.current)
		}

		m.rateHistory = appendToHistory(m.rateHistory, m.rates.OpRate)
		m.latencyHistory = appendToHistory(m.latencyHistory, m.rates.AvgLatency*1000) // Convert to ms
		m.heapHistory = appendToHistory(m.heapHistory, snap.HeapBytes/(1024*1024))

		if m.rates.OpRate > m.peakRate {
			m.peakRate = m.rates.OpRate
		}

		m.current = snap
		m.havePrev = true
		m.lastUpdate = time.Now()
		m.err = nil
		return m, nil

	case errMsg:
		// Error occurred
		m.err = error(msg)
		return m, nil
	}

	return m, nil
}

// View renders the dashboard
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	// Display error state if error exists
	if m.err != nil {
		return m.renderError()
	}

	return m.renderDashboard()
}

// renderError renders the error view
func (m Model) renderError() string {
	header := headerStyle.Render("memoryd Monitor")

	var content string
	content += "\n"
	content += errorStyle.Render("⚠ Cannot reach memoryd") + "\n"
	content += "\n"
	content += dimStyle.Render("URL: ") + valueStyle.Render(m.serverURL) + "\n"
	content += dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n"
	content += "\n"
	content += dimStyle.Render("Please ensure:") + "\n"
	content += dimStyle.Render("  1. memoryd is running") + "\n"
	content += dimStyle.Render("  2. --server points at its HTTP address") + "\n"
	content += "\n"
	content += footerStyle.Render("[q] quit  [r] retry") + "\n"

	box := containerStyle.Render(header + "\n" + content)
	return box
}

// renderDashboard renders the main dashboard view with sparklines and progress bars
func (m Model) renderDashboard() string {
	var content string

	// Header with status badge
	lastUpdateStr := "Never"
	if !m.lastUpdate.IsZero() {
		lastUpdateStr = m.lastUpdate.Format("3:04:05 PM")
	}
	uptimeStr := FormatUptime(m.current.Uptime())
	latencyMS := m.rates.AvgLatency * 1000

	errorRatio := 0.0
	if total := m.current.TotalOps(); total > 0 {
		errorRatio = m.current.TotalErrors() / total
	}

	header := headerStyle.Render(" memoryd Monitor ")
	statusBadge := getStatusBadge(m.current.Healthy, errorRatio)
	headerLine := fmt.Sprintf("%s   %s   %s   %s",
		statusBadge,
		dimStyle.Render("Uptime:"),
		valueStyle.Render(uptimeStr),
		dimStyle.Render(lastUpdateStr))
	if m.current.Version != "" {
		headerLine += "   " + dimStyle.Render("v"+m.current.Version)
	}

	content += header + "\n"
	content += headerLine + "\n"

	// API operations section with sparklines and progress
	content += "\n" + sectionStyle.Render("┃ API Operations") + "\n"

	// Rate with sparkline
	rateSparkline := createSparkline(m.rateHistory)
	rateBadge := getLatencyBadge(latencyMS)
	content += labelStyle.Render("  Rate: ") +
		valueStyle.Render(FormatRate(m.rates.OpRate)) +
		" " + rateBadge +
		"   " + rateSparkline + "\n"

	// Latency with sparkline
	latencySparkline := createSparkline(m.latencyHistory)
	content += labelStyle.Render("  Latency (avg): ") +
		valueStyle.Render(FormatLatency(m.rates.AvgLatency)) +
		" " + rateBadge +
		"   " + latencySparkline + "\n"

	// Cumulative errors
	content += labelStyle.Render("  Errors: ") +
		valueStyle.Render(fmt.Sprintf("%.0f", m.current.TotalErrors())) +
		" " + dimStyle.Render(FormatPercentage(errorRatio)) + "\n"

	// Load progress against the peak observed rate
	ratePercent := 0.0
	if m.peakRate > 0 {
		ratePercent = m.rates.OpRate / m.peakRate
		if ratePercent > 1.0 {
			ratePercent = 1.0
		}
	}
	content += labelStyle.Render("  Load: ") +
		m.loadProgress.ViewAs(ratePercent) +
		" " + dimStyle.Render(fmt.Sprintf("%.0f%%", ratePercent*100)) + "\n"

	// Per-operation counters
	content += "\n" + sectionStyle.Render("┃ Operations") + "\n"
	if len(m.current.Ops) == 0 {
		content += dimStyle.Render("  no operations recorded yet") + "\n"
	}
	ops := make([]string, 0, len(m.current.Ops))
	for op := range m.current.Ops {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		st := m.current.Ops[op]
		line := labelStyle.Render(fmt.Sprintf("  %-18s", op)) +
			valueStyle.Render(fmt.Sprintf("%6.0f", st.Total()))
		if st.Errors > 0 {
			line += " " + errorStyle.Render(fmt.Sprintf("%.0f err", st.Errors))
		}
		if rate := m.rates.PerOp[op]; rate > 0 {
			line += "  " + dimStyle.Render(FormatRate(rate))
		}
		content += line + "\n"
	}

	// System section with heap progress
	content += "\n" + sectionStyle.Render("┃ System") + "\n"

	heapMB := m.current.HeapBytes / (1024 * 1024)
	heapPercent := heapMB / m.heapMaxMB
	if heapPercent > 1.0 {
		heapPercent = 1.0
	}
	heapSparkline := createSparkline(m.heapHistory)
	content += labelStyle.Render("  Heap: ") +
		valueStyle.Render(FormatMemory(m.current.HeapBytes)) +
		"   " + heapSparkline + "\n"
	content += labelStyle.Render("  Usage: ") +
		m.heapProgress.ViewAs(heapPercent) +
		" " + dimStyle.Render(fmt.Sprintf("%.1f%%", heapPercent*100)) + "\n"

	// Goroutines
	content += labelStyle.Render("  Goroutines: ") +
		valueStyle.Render(fmt.Sprintf("%.0f", m.current.Goroutines)) + "\n"

	// Footer with keyboard shortcuts
	footer := footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerStyle.Render(fmt.Sprintf("Auto: %v", m.interval))

	content += "\n" + footer

	// Wrap in container
	return containerStyle.Render(content)
}
