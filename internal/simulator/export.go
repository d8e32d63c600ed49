// internal/simulator/export.go
package simulator

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/mwiater/sweepwatch/internal/benchmark"
)

func f2(v float64) string { return fmt.Sprintf("%.2f", v) }

func tsOrNA(ts *benchmark.Timestamp) string {
	if ts == nil || ts.IsZero() {
		return "N/A"
	}
	return ts.Format("2006-01-02T15:04:05.000000")
}

// exportCSV renders a result in the service's CSV layout: metadata, summary
// and the per-level table, separated by blank rows.
func exportCSV(res benchmark.Result) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	s := res.Summary
	rows := [][]string{
		{"# Benchmark Result Export"},
		{"Run ID", res.RunID},
		{"Model", res.Model},
		{"Server URL", res.ServerURL},
		{"Adapter", res.Adapter},
		{"Started At", tsOrNA(res.StartedAt)},
		{"Completed At", tsOrNA(res.CompletedAt)},
		{"Duration (s)", fmt.Sprint(res.DurationSeconds)},
		{},
		{"# Summary"},
		{"Best Throughput (tok/s)", fmt.Sprint(s.BestThroughput)},
		{"Best TTFT p50 (ms)", fmt.Sprint(s.BestTTFTP50)},
		{"Best Concurrency", fmt.Sprint(s.BestConcurrency)},
		{"Total Requests", fmt.Sprint(s.TotalRequests)},
		{"Overall Error Rate (%)", fmt.Sprint(s.OverallErrorRate)},
	}
	if s.AvgGoodputPercent != nil {
		rows = append(rows, []string{"Avg Goodput (%)", fmt.Sprint(*s.AvgGoodputPercent)})
	}
	rows = append(rows,
		[]string{},
		[]string{"# Detailed Results by Concurrency"},
		[]string{
			"Concurrency", "Throughput (tok/s)", "Request Rate (req/s)",
			"TTFT p50 (ms)", "TTFT p95 (ms)", "TTFT p99 (ms)",
			"TPOT p50 (ms)", "TPOT p95 (ms)", "TPOT p99 (ms)",
			"E2E p50 (ms)", "E2E p95 (ms)", "E2E p99 (ms)",
			"Total Requests", "Successful", "Failed", "Error Rate (%)", "Goodput (%)",
		},
	)

	for _, r := range res.Results {
		tpot := []string{"N/A", "N/A", "N/A"}
		if r.TPOT != nil {
			tpot = []string{f2(r.TPOT.P50), f2(r.TPOT.P95), f2(r.TPOT.P99)}
		}
		goodput := "N/A"
		if r.Goodput != nil {
			goodput = f2(r.Goodput.GoodputPercent)
		}
		row := []string{
			fmt.Sprint(r.Concurrency), f2(r.ThroughputTokens), f2(r.RequestRate),
			f2(r.TTFT.P50), f2(r.TTFT.P95), f2(r.TTFT.P99),
		}
		row = append(row, tpot...)
		row = append(row,
			f2(r.E2ELatency.P50), f2(r.E2ELatency.P95), f2(r.E2ELatency.P99),
			fmt.Sprint(r.TotalRequests), fmt.Sprint(r.SuccessfulRequests), fmt.Sprint(r.FailedRequests),
			f2(r.ErrorRatePercent), goodput,
		)
		rows = append(rows, row)
	}

	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}
