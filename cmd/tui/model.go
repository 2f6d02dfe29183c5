package tui

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Laisky/api-aggregator/library/metrics"
	"github.com/Laisky/api-aggregator/library/source"
)

const fetchTimeout = 5 * time.Second

// Fetcher loads the latest statistics snapshot.
type Fetcher func(ctx context.Context) ([]metrics.Stats, error)

// NewHTTPFetcher returns a Fetcher reading the /stats endpoint under baseURL.
func NewHTTPFetcher(client *http.Client, baseURL string) Fetcher {
	endpoint := strings.TrimRight(baseURL, "/") + "/stats"
	return func(ctx context.Context) ([]metrics.Stats, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, errors.Wrap(err, "new request")
		}

		var stats []metrics.Stats
		if err := source.GetJSON(client, nil, req, &stats); err != nil {
			return nil, errors.Wrap(err, "get stats")
		}
		return stats, nil
	}
}

// statsMsg carries a successful poll.
type statsMsg struct {
	stats []metrics.Stats
	at    time.Time
}

// errMsg carries a failed poll.
type errMsg struct {
	err error
	at  time.Time
}

// tickMsg schedules the next poll.
type tickMsg time.Time

type keyMap struct {
	Refresh key.Binding
	Quit    key.Binding
}

var keys = keyMap{
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// Model is the stats dashboard following the Bubble Tea architecture
type Model struct {
	target   string
	interval time.Duration
	fetch    Fetcher

	table   table.Model
	spinner spinner.Model

	loading     bool
	err         error
	lastUpdated time.Time
	quitting    bool
}

// NewModel creates a dashboard polling fetch every interval.
// target is only displayed.
func NewModel(target string, interval time.Duration, fetch Fetcher) Model {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	columns := []table.Column{
		{Title: "Source", Width: 12},
		{Title: "Requests", Width: 10},
		{Title: "Avg ms", Width: 10},
		{Title: "Fast", Width: 8},
		{Title: "Average", Width: 8},
		{Title: "Slow", Width: 8},
	}
	tbl := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(len(source.All())+3),
	)
	tbl.SetStyles(tableStyles())

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = progressStyle

	return Model{
		target:   target,
		interval: interval,
		fetch:    fetch,
		table:    tbl,
		spinner:  sp,
		loading:  true,
	}
}

// Init starts the spinner and the first poll.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.poll())
}

func (m Model) poll() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		stats, err := fetch(ctx)
		if err != nil {
			return errMsg{err: err, at: time.Now()}
		}
		return statsMsg{stats: stats, at: time.Now()}
	}
}

func (m Model) scheduleNext() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Refresh):
			if m.loading {
				return m, nil
			}
			m.loading = true
			return m, m.poll()
		}

		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case tickMsg:
		if m.loading {
			return m, nil
		}
		m.loading = true
		return m, m.poll()

	case statsMsg:
		m.loading = false
		m.err = nil
		m.lastUpdated = msg.at
		m.table.SetRows(statsRows(msg.stats))
		return m, m.scheduleNext()

	case errMsg:
		m.loading = false
		m.err = msg.err
		m.lastUpdated = msg.at
		return m, m.scheduleNext()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// statsRows formats a snapshot into table rows, one per source.
func statsRows(stats []metrics.Stats) []table.Row {
	rows := make([]table.Row, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, table.Row{
			s.Source.String(),
			strconv.FormatInt(s.TotalRequests, 10),
			strconv.FormatFloat(s.AvgMs, 'f', 1, 64),
			strconv.FormatInt(s.FastCount, 10),
			strconv.FormatInt(s.AverageCount, 10),
			strconv.FormatInt(s.SlowCount, 10),
		})
	}
	return rows
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return subtitleStyle.Render("Goodbye!\n")
	}

	status := "idle"
	if m.loading {
		status = m.spinner.View() + " polling"
	}
	if !m.lastUpdated.IsZero() {
		status += " • updated " + m.lastUpdated.Format(time.TimeOnly)
	}

	body := []string{
		headerStyle.Render("API Aggregator • Source Statistics"),
		subtitleStyle.Render(fmt.Sprintf("%s every %s", m.target, m.interval)),
		"",
	}
	if len(m.table.Rows()) == 0 {
		body = append(body, subtitleStyle.Render("no requests recorded yet"))
	} else {
		body = append(body, m.table.View())
	}
	if m.err != nil {
		body = append(body, "", errorStyle.Render("poll failed: "+m.err.Error()))
	}
	body = append(body,
		"",
		statusBarStyle.Render(status),
		helpStyle.Render("r refresh • ↑/↓ scroll • q quit"),
	)

	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, body...))
}
