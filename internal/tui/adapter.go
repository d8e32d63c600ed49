// internal/tui/adapter.go
package tui

import (
	"github.com/mwiater/sweepwatch/internal/reconcile"
)

// provisionalP99Factor estimates TTFT p99 from the live p50 until the level
// commits real percentiles.
const provisionalP99Factor = 1.5

// Row is one line of the per-level table.
type Row struct {
	Concurrency int
	Throughput  float64
	TTFTP50     float64
	TTFTP99     float64
	ErrorRate   float64
	Goodput     *float64
	Live        bool
}

// Point is one chart sample.
type Point struct {
	Concurrency int
	Throughput  float64
	TTFTP50     float64
	TTFTP99     float64
	Live        bool
}

// Rows maps every series entry to a table row, keeping series order.
func Rows(series reconcile.Series) []Row {
	entries := series.Entries()
	rows := make([]Row, 0, len(entries))
	for _, entry := range entries {
		switch e := entry.(type) {
		case reconcile.Final:
			row := Row{
				Concurrency: e.Record.Concurrency,
				Throughput:  e.Record.ThroughputTokens,
				TTFTP50:     e.Record.TTFT.P50,
				TTFTP99:     e.Record.TTFT.P99,
				ErrorRate:   e.Record.ErrorRatePercent,
			}
			if e.Record.Goodput != nil {
				g := e.Record.Goodput.GoodputPercent
				row.Goodput = &g
			}
			rows = append(rows, row)
		case reconcile.Provisional:
			errorRate := 0.0
			if e.Sample.Completed > 0 {
				errorRate = float64(e.Sample.Errors) / float64(e.Sample.Completed) * 100
			}
			rows = append(rows, Row{
				Concurrency: e.Sample.Concurrency,
				Throughput:  e.Sample.Throughput,
				TTFTP50:     e.Sample.TTFTP50,
				TTFTP99:     e.Sample.TTFTP50 * provisionalP99Factor,
				ErrorRate:   errorRate,
				Live:        true,
			})
		}
	}
	return rows
}

// Points maps the series to chart points.
func Points(series reconcile.Series) []Point {
	rows := Rows(series)
	points := make([]Point, 0, len(rows))
	for _, r := range rows {
		points = append(points, Point{
			Concurrency: r.Concurrency,
			Throughput:  r.Throughput,
			TTFTP50:     r.TTFTP50,
			TTFTP99:     r.TTFTP99,
			Live:        r.Live,
		})
	}
	return points
}
