// internal/tui/model.go
// Package tui renders a watched run, either as a full-screen Bubble Tea view
// or as plain line output.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mwiater/sweepwatch/internal/benchmark"
	"github.com/mwiater/sweepwatch/internal/clock"
	"github.com/mwiater/sweepwatch/internal/session"
	"github.com/mwiater/sweepwatch/internal/util"
)

// model is the full-screen watch view. All session state changes happen in
// its Update.
type model struct {
	session    *session.Session
	spinner    spinner.Model
	bar        progress.Model
	table      table.Model
	quitOnDone bool
	quitting   bool
	width      int
	height     int
}

var tableColumns = []table.Column{
	{Title: "Concurrency", Width: 11},
	{Title: "Throughput tok/s", Width: 16},
	{Title: "TTFT p50 ms", Width: 11},
	{Title: "TTFT p99 ms", Width: 11},
	{Title: "Errors %", Width: 8},
	{Title: "Goodput %", Width: 9},
	{Title: "", Width: 4},
}

// newModel creates the watch view for s.
func newModel(s *session.Session, quitOnDone bool) *model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	t := table.New(
		table.WithColumns(tableColumns),
		table.WithFocused(false),
		table.WithHeight(8),
	)

	return &model{
		session:    s,
		spinner:    sp,
		bar:        progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		table:      t,
		quitOnDone: quitOnDone,
	}
}

// Init starts the spinner and the session's first polls.
func (m *model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.session.Init())
}

// Update handles keys and window size, and forwards everything else to the
// session.
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			m.session.Close()
			return m, tea.Quit
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.bar.Width = clampWidth(msg.Width-20, 10, 80)
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	cmd := m.session.Update(msg)
	if m.quitOnDone && m.session.Done() {
		m.quitting = true
		m.session.Close()
		return m, tea.Batch(cmd, tea.Quit)
	}
	return m, cmd
}

func clampWidth(w, lo, hi int) int {
	if w < lo {
		return lo
	}
	if w > hi {
		return hi
	}
	return w
}

// View renders the header, progress, summary and per-level table.
func (m *model) View() string {
	v := m.session.View()
	var b strings.Builder

	b.WriteString(m.headerView(v))
	b.WriteString("\n\n")

	if v.Failed() {
		failStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
		b.WriteString(failStyle.Render("Run failed."))
		if v.LastError != nil {
			b.WriteString(" " + v.LastError.Error())
		}
		b.WriteString("\n\n")
	} else {
		b.WriteString(m.progressView(v))
		b.WriteString("\n\n")
	}

	if cards := summaryCards(v); cards != "" {
		b.WriteString(cards)
		b.WriteString("\n\n")
	}

	b.WriteString(m.levelsView(v))

	if v.LastError != nil && !v.Failed() {
		dim := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
		b.WriteString("\n" + dim.Render(util.TruncateToWidth("last error: "+v.LastError.Error(), m.width-4)))
	}

	help := lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Render("(q to quit)")
	b.WriteString("\n" + help + "\n")
	return lipgloss.NewStyle().Margin(1, 2).Render(b.String())
}

func (m *model) headerView(v session.View) string {
	headerStyle := lipgloss.NewStyle().Background(lipgloss.Color("62")).Foreground(lipgloss.Color("230")).Padding(0, 1)
	title := "run " + shortID(v.RunID)
	if v.Status.Model != "" {
		title = fmt.Sprintf("%s @ %s", v.Status.Model, v.Status.ServerURL)
	}
	if m.width > 0 {
		title = util.TruncateRunes(title, m.width-20)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		headerStyle.Render(title),
		renderStatusBadge(v.Status.Status),
	)
}

func (m *model) progressView(v session.View) string {
	if !v.HaveStatus {
		return m.spinner.View() + " Loading run status..."
	}
	p := v.Progress
	lines := []string{m.bar.ViewAs(p.OverallPercent / 100)}

	var parts []string
	if p.LevelTotal > 0 {
		parts = append(parts, fmt.Sprintf("Level %d/%d", p.LevelIndex+1, p.LevelTotal))
	}
	if done, total := requestCounts(v); total > 0 {
		parts = append(parts, fmt.Sprintf("Requests %d/%d", done, total))
	}
	parts = append(parts, "Elapsed "+clock.Format(v.ElapsedSeconds))
	lines = append(lines, strings.Join(parts, "  ")+"  "+renderConnectivityBadge(v.Connectivity))
	return strings.Join(lines, "\n")
}

// requestCounts is the live level's progress while one is executing, else
// the total across committed levels.
func requestCounts(v session.View) (int, int) {
	if live, ok := v.Series.Live(); ok {
		return live.Completed, live.Total
	}
	total := 0
	for _, rec := range v.Series.Final() {
		total += rec.TotalRequests
	}
	return total, total
}

func summaryCards(v session.View) string {
	summary, ok := v.Summary()
	if !ok || summary.TotalRequests == 0 {
		return ""
	}
	cardStyle := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1).MarginRight(1)
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	card := func(label, value string) string {
		return cardStyle.Render(labelStyle.Render(label) + "\n" + value)
	}
	cards := []string{
		card("Best throughput", fmt.Sprintf("%.1f tok/s @ %d", summary.BestThroughput, summary.BestConcurrency)),
		card("Best TTFT p50", fmt.Sprintf("%.1f ms", summary.BestTTFTP50)),
		card("Requests", fmt.Sprintf("%d", summary.TotalRequests)),
		card("Error rate", fmt.Sprintf("%.2f%%", summary.OverallErrorRate)),
	}
	if summary.AvgGoodputPercent != nil {
		cards = append(cards, card("Avg goodput", fmt.Sprintf("%.1f%%", *summary.AvgGoodputPercent)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func (m *model) levelsView(v session.View) string {
	if v.Series.Empty() {
		if v.Failed() {
			return "No level completed before the run failed."
		}
		if v.Status.Status.Terminal() {
			return "No levels were recorded."
		}
		return m.spinner.View() + " Waiting for the first level to complete..."
	}
	m.table.SetRows(tableRows(Rows(v.Series)))
	return m.table.View()
}

func tableRows(rows []Row) []table.Row {
	out := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		goodput := "-"
		if r.Goodput != nil {
			goodput = fmt.Sprintf("%.1f", *r.Goodput)
		}
		flag := ""
		if r.Live {
			flag = "live"
		}
		out = append(out, table.Row{
			fmt.Sprintf("%d", r.Concurrency),
			fmt.Sprintf("%.1f", r.Throughput),
			fmt.Sprintf("%.1f", r.TTFTP50),
			fmt.Sprintf("%.1f", r.TTFTP99),
			fmt.Sprintf("%.2f", r.ErrorRate),
			goodput,
			flag,
		})
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// statusOrUnknown keeps plain output readable before the first status.
func statusOrUnknown(v session.View) benchmark.Status {
	if !v.HaveStatus {
		return "loading"
	}
	return v.Status.Status
}
