// internal/cli/render.go
package sweepwatch

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/k0kubun/pp"

	"github.com/mwiater/sweepwatch/internal/archive"
	"github.com/mwiater/sweepwatch/internal/benchmark"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	// Headers carry model names and run ids; keep their case.
	t.Style().Format.Header = text.FormatDefault
	return t
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// dump prints a raw API payload for --debug runs.
func dump(w io.Writer, v any) {
	if !DebugEnabled() {
		return
	}
	_, _ = pp.Fprintln(w, v)
}

func colorStatus(status benchmark.Status) string {
	label := string(status)
	switch status {
	case benchmark.StatusCompleted:
		return color.GreenString(label)
	case benchmark.StatusFailed:
		return color.RedString(label)
	case benchmark.StatusRunning:
		return color.CyanString(label)
	case benchmark.StatusStopped, benchmark.StatusPending:
		return color.YellowString(label)
	default:
		return color.New(color.Faint).Sprint(label)
	}
}

func formatTime(ts *benchmark.Timestamp) string {
	if ts == nil || ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

func renderStatus(w io.Writer, st benchmark.RunStatus) {
	fmt.Fprintf(w, "Run:       %s\n", st.RunID)
	fmt.Fprintf(w, "Status:    %s\n", colorStatus(st.Status))
	fmt.Fprintf(w, "Model:     %s\n", st.Model)
	fmt.Fprintf(w, "Server:    %s\n", st.ServerURL)
	fmt.Fprintf(w, "Adapter:   %s\n", st.Adapter)
	fmt.Fprintf(w, "Created:   %s\n", formatTime(st.CreatedAt))
	fmt.Fprintf(w, "Started:   %s\n", formatTime(st.StartedAt))
	fmt.Fprintf(w, "Completed: %s\n", formatTime(st.CompletedAt))
}

func renderResult(w io.Writer, res benchmark.Result) {
	fmt.Fprintf(w, "Run %s  %s on %s\n", res.RunID, res.Model, res.ServerURL)
	if len(res.Results) == 0 {
		fmt.Fprintln(w, "(no completed levels)")
		return
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"Concurrency", "Throughput tok/s", "TTFT p50 ms", "TTFT p99 ms", "E2E p50 ms", "Req/s", "Requests", "Errors %", "Goodput %"})
	for _, r := range res.Results {
		goodput := "-"
		if r.Goodput != nil {
			goodput = fmt.Sprintf("%.1f", r.Goodput.GoodputPercent)
		}
		t.AppendRow(table.Row{
			r.Concurrency,
			fmt.Sprintf("%.1f", r.ThroughputTokens),
			fmt.Sprintf("%.1f", r.TTFT.P50),
			fmt.Sprintf("%.1f", r.TTFT.P99),
			fmt.Sprintf("%.1f", r.E2ELatency.P50),
			fmt.Sprintf("%.2f", r.RequestRate),
			fmt.Sprintf("%d/%d", r.SuccessfulRequests, r.TotalRequests),
			fmt.Sprintf("%.1f", r.ErrorRatePercent),
			goodput,
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 1, Align: text.AlignRight}})
	t.Render()

	s := res.Summary
	fmt.Fprintf(w, "Best throughput %.1f tok/s at concurrency %d, best TTFT p50 %.1f ms\n",
		s.BestThroughput, s.BestConcurrency, s.BestTTFTP50)
	fmt.Fprintf(w, "Total requests %d, error rate %.1f%%", s.TotalRequests, s.OverallErrorRate)
	if s.AvgGoodputPercent != nil {
		fmt.Fprintf(w, ", avg goodput %.1f%%", *s.AvgGoodputPercent)
	}
	if res.DurationSeconds > 0 {
		fmt.Fprintf(w, ", duration %s", (time.Duration(res.DurationSeconds * float64(time.Second))).Round(time.Second))
	}
	fmt.Fprintln(w)
}

func renderHistory(w io.Writer, list benchmark.RunList) {
	if len(list.Runs) == 0 {
		fmt.Fprintln(w, "(0 runs)")
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Run", "Status", "Model", "Server", "Created"})
	for _, r := range list.Runs {
		t.AppendRow(table.Row{r.RunID, colorStatus(r.Status), r.Model, r.ServerURL, formatTime(r.CreatedAt)})
	}
	t.Render()
	fmt.Fprintf(w, "(%d of %d runs, offset %d)\n", len(list.Runs), list.Total, list.Offset)
}

func renderArchive(w io.Writer, rows []archive.Row) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "(0 archived runs)")
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Run", "Status", "Model", "Levels", "Best tok/s", "Archived"})
	for _, r := range rows {
		t.AppendRow(table.Row{
			r.RunID, colorStatus(r.Status), r.Model, r.Levels,
			fmt.Sprintf("%.1f", r.BestThroughput),
			r.ArchivedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}
	t.Render()
	fmt.Fprintf(w, "(%d archived runs)\n", len(rows))
}

// renderComparison prints the per-concurrency matrix of throughput values and
// the winners picked by the service.
func renderComparison(w io.Writer, cmp benchmark.ComparisonResult, runIDs []string, results map[string]benchmark.Result) {
	t := newTable(w)
	header := table.Row{"Concurrency"}
	for _, id := range runIDs {
		label := id
		if res, ok := results[id]; ok && res.Model != "" {
			label = res.Model + " (" + shortRun(id) + ")"
		}
		header = append(header, label)
	}
	t.AppendHeader(header)

	levels := make([]int, 0, len(cmp.ByConcurrency))
	for key := range cmp.ByConcurrency {
		if n, err := strconv.Atoi(key); err == nil {
			levels = append(levels, n)
		}
	}
	sort.Ints(levels)
	for _, level := range levels {
		row := table.Row{level}
		values := make(map[string]float64)
		for _, m := range cmp.ByConcurrency[strconv.Itoa(level)] {
			values[m.RunID] = m.Value
		}
		for _, id := range runIDs {
			if v, ok := values[id]; ok {
				row = append(row, fmt.Sprintf("%.1f", v))
			} else {
				row = append(row, "-")
			}
		}
		t.AppendRow(row)
	}
	t.Render()

	if b := cmp.BestThroughput; b != nil {
		fmt.Fprintf(w, "Best throughput: %s %.1f tok/s%s\n", shortRun(b.RunID), b.Value, atLevel(b.Concurrency))
	}
	if b := cmp.BestTTFT; b != nil {
		fmt.Fprintf(w, "Best TTFT p50:   %s %.1f ms%s\n", shortRun(b.RunID), b.Value, atLevel(b.Concurrency))
	}
}

func atLevel(c *int) string {
	if c == nil {
		return ""
	}
	return fmt.Sprintf(" at concurrency %d", *c)
}

func shortRun(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
