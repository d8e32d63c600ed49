// internal/tui/plain.go
package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"

	"github.com/mwiater/sweepwatch/internal/benchmark"
	"github.com/mwiater/sweepwatch/internal/clock"
	"github.com/mwiater/sweepwatch/internal/session"
)

// plainModel drives the same session as the full-screen view but writes one
// line per visible change instead of redrawing.
type plainModel struct {
	session  *session.Session
	out      io.Writer
	jsonMode bool
	last     string
	finished bool
}

func newPlainModel(s *session.Session, out io.Writer, jsonMode bool) *plainModel {
	return &plainModel{session: s, out: out, jsonMode: jsonMode}
}

func (m *plainModel) Init() tea.Cmd {
	return m.session.Init()
}

func (m *plainModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "ctrl+c" {
		m.session.Close()
		return m, tea.Quit
	}

	if m.finished {
		return m, nil
	}
	cmd := m.session.Update(msg)
	v := m.session.View()
	m.emit(v)
	if v.Done {
		m.finished = true
		m.session.Close()
		if !m.jsonMode {
			fmt.Fprintln(m.out, FinalSummary(v))
		}
		return m, tea.Batch(cmd, tea.Quit)
	}
	return m, cmd
}

func (m *plainModel) View() string { return "" }

func (m *plainModel) emit(v session.View) {
	var line string
	if m.jsonMode {
		line = JSONLine(v)
	} else {
		line = PlainLine(v)
	}
	if line == m.last {
		return
	}
	m.last = line
	fmt.Fprintln(m.out, line)
}

var (
	runningColor = color.New(color.FgCyan).SprintFunc()
	successColor = color.New(color.FgGreen).SprintFunc()
	failColor    = color.New(color.FgRed, color.Bold).SprintFunc()
	warnColor    = color.New(color.FgYellow).SprintFunc()
	dimColor     = color.New(color.Faint).SprintFunc()
)

func colorStatus(status benchmark.Status) string {
	switch status {
	case benchmark.StatusRunning:
		return runningColor(string(status))
	case benchmark.StatusCompleted:
		return successColor(string(status))
	case benchmark.StatusFailed:
		return failColor(string(status))
	case benchmark.StatusStopped:
		return warnColor(string(status))
	default:
		return string(status)
	}
}

// PlainLine is the one-line rendering of a view used by plain mode.
func PlainLine(v session.View) string {
	parts := []string{
		"run=" + shortID(v.RunID),
		"status=" + colorStatus(statusOrUnknown(v)),
	}
	p := v.Progress
	parts = append(parts, fmt.Sprintf("overall=%.1f%%", p.OverallPercent))
	if p.LevelTotal > 0 {
		parts = append(parts, fmt.Sprintf("level=%d/%d", p.LevelIndex+1, p.LevelTotal))
	}
	if done, total := requestCounts(v); total > 0 {
		parts = append(parts, fmt.Sprintf("requests=%d/%d", done, total))
	}
	parts = append(parts, "elapsed="+clock.Format(v.ElapsedSeconds))
	parts = append(parts, "mode="+connectivityLabel(v.Connectivity))
	parts = append(parts, fmt.Sprintf("levels=%d", len(v.Series.Final())))
	if live, ok := v.Series.Live(); ok {
		parts = append(parts, fmt.Sprintf("live=c%d@%.1ftok/s", live.Concurrency, live.Throughput))
	}
	if v.LastError != nil {
		parts = append(parts, dimColor("error="+v.LastError.Error()))
	}
	return strings.Join(parts, " ")
}

// FinalSummary is printed once a plain watch ends.
func FinalSummary(v session.View) string {
	if v.Failed() {
		return failColor(fmt.Sprintf("run %s failed after %d level(s)", shortID(v.RunID), len(v.Series.Final())))
	}
	summary, ok := v.Summary()
	if !ok {
		return fmt.Sprintf("run %s %s with no results", shortID(v.RunID), statusOrUnknown(v))
	}
	line := fmt.Sprintf("run %s %s: best %.1f tok/s @ %d, best ttft p50 %.1f ms, %d requests, %.2f%% errors",
		shortID(v.RunID), colorStatus(v.Status.Status), summary.BestThroughput, summary.BestConcurrency,
		summary.BestTTFTP50, summary.TotalRequests, summary.OverallErrorRate)
	if summary.AvgGoodputPercent != nil {
		line += fmt.Sprintf(", goodput %.1f%%", *summary.AvgGoodputPercent)
	}
	return line
}

type jsonRow struct {
	Concurrency int      `json:"concurrency"`
	Throughput  float64  `json:"throughput"`
	TTFTP50     float64  `json:"ttft_p50"`
	TTFTP99     float64  `json:"ttft_p99"`
	ErrorRate   float64  `json:"error_rate"`
	Goodput     *float64 `json:"goodput,omitempty"`
	Live        bool     `json:"live"`
}

type jsonView struct {
	RunID          string             `json:"run_id"`
	Status         benchmark.Status   `json:"status"`
	OverallPercent float64            `json:"overall_percent"`
	LevelIndex     int                `json:"level_index"`
	LevelTotal     int                `json:"level_total"`
	Elapsed        string             `json:"elapsed"`
	Mode           string             `json:"mode"`
	Levels         []jsonRow          `json:"levels"`
	Summary        *benchmark.Summary `json:"summary,omitempty"`
	Error          string             `json:"error,omitempty"`
	Done           bool               `json:"done"`
}

// JSONLine is the machine-readable rendering of a view.
func JSONLine(v session.View) string {
	out := jsonView{
		RunID:          v.RunID,
		Status:         statusOrUnknown(v),
		OverallPercent: v.Progress.OverallPercent,
		LevelIndex:     v.Progress.LevelIndex,
		LevelTotal:     v.Progress.LevelTotal,
		Elapsed:        clock.Format(v.ElapsedSeconds),
		Mode:           connectivityLabel(v.Connectivity),
		Levels:         []jsonRow{},
		Done:           v.Done,
	}
	for _, r := range Rows(v.Series) {
		out.Levels = append(out.Levels, jsonRow(r))
	}
	if summary, ok := v.Summary(); ok {
		out.Summary = &summary
	}
	if v.LastError != nil {
		out.Error = v.LastError.Error()
	}
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Sprintf(`{"run_id":%q,"error":%q}`, v.RunID, err.Error())
	}
	return string(data)
}
