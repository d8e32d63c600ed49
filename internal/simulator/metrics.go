// internal/simulator/metrics.go
package simulator

import (
	"math"

	"github.com/mwiater/sweepwatch/internal/benchmark"
)

// levelModel is the synthetic performance curve of a server: latency grows
// with concurrency and errors appear past 32 concurrent requests.
type levelModel struct {
	concurrency int
	outputLen   int
}

func (m levelModel) ttftP50() float64 { return 40 + 2.5*float64(m.concurrency) }

func (m levelModel) tpotP50() float64 { return 12 + 0.3*float64(m.concurrency) }

func (m levelModel) e2eP50() float64 {
	return m.ttftP50() + float64(max(m.outputLen, 1))*m.tpotP50()
}

func (m levelModel) requestRate() float64 {
	return float64(m.concurrency) * 1000 / m.e2eP50()
}

func (m levelModel) throughput() float64 {
	return m.requestRate() * float64(max(m.outputLen, 1))
}

func (m levelModel) errorRate() float64 {
	if m.concurrency <= 32 {
		return 0
	}
	return math.Min(float64(m.concurrency-32)/200, 0.2)
}

func (m levelModel) errors(completed int) int {
	return int(math.Floor(float64(completed) * m.errorRate()))
}

func spread(p50 float64) benchmark.LatencyStats {
	return benchmark.LatencyStats{
		Min:  round2(p50 * 0.6),
		Max:  round2(p50 * 2.2),
		Mean: round2(p50 * 1.05),
		P50:  round2(p50),
		P95:  round2(p50 * 1.4),
		P99:  round2(p50 * 1.8),
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// record builds the committed result of a finished level.
func (m levelModel) record(total int, th *benchmark.GoodputThresholds) benchmark.LevelRecord {
	failed := m.errors(total)
	tpot := spread(m.tpotP50())
	rec := benchmark.LevelRecord{
		Concurrency:        m.concurrency,
		TTFT:               spread(m.ttftP50()),
		TPOT:               &tpot,
		E2ELatency:         spread(m.e2eP50()),
		ThroughputTokens:   round2(m.throughput()),
		RequestRate:        round2(m.requestRate()),
		TotalRequests:      total,
		SuccessfulRequests: total - failed,
		FailedRequests:     failed,
	}
	if total > 0 {
		rec.ErrorRatePercent = round2(float64(failed) / float64(total) * 100)
	}
	if th != nil {
		rec.Goodput = m.goodput(rec, th)
	}
	return rec
}

// goodput counts the successful requests as satisfied when every configured
// threshold is above the level's p50, and half of them otherwise.
func (m levelModel) goodput(rec benchmark.LevelRecord, th *benchmark.GoodputThresholds) *benchmark.Goodput {
	ok := true
	if th.TTFTMillis != nil && rec.TTFT.P50 > *th.TTFTMillis {
		ok = false
	}
	if th.TPOTMillis != nil && rec.TPOT != nil && rec.TPOT.P50 > *th.TPOTMillis {
		ok = false
	}
	if th.E2EMillis != nil && rec.E2ELatency.P50 > *th.E2EMillis {
		ok = false
	}
	satisfied := rec.SuccessfulRequests
	if !ok {
		satisfied /= 2
	}
	g := &benchmark.Goodput{SatisfiedRequests: satisfied, TotalRequests: rec.TotalRequests}
	if rec.TotalRequests > 0 {
		g.GoodputPercent = round2(float64(satisfied) / float64(rec.TotalRequests) * 100)
	}
	return g
}

// summarize aggregates committed levels the way the service does.
func summarize(results []benchmark.LevelRecord) benchmark.Summary {
	var s benchmark.Summary
	if len(results) == 0 {
		return s
	}
	s.BestTTFTP50 = math.Inf(1)
	var (
		failed       int
		goodputSum   float64
		goodputCount int
	)
	for _, r := range results {
		if r.ThroughputTokens > s.BestThroughput {
			s.BestThroughput = r.ThroughputTokens
			s.BestConcurrency = r.Concurrency
		}
		s.BestTTFTP50 = math.Min(s.BestTTFTP50, r.TTFT.P50)
		s.TotalRequests += r.TotalRequests
		failed += r.FailedRequests
		if r.Goodput != nil {
			goodputSum += r.Goodput.GoodputPercent
			goodputCount++
		}
	}
	if s.TotalRequests > 0 {
		s.OverallErrorRate = round2(float64(failed) / float64(s.TotalRequests) * 100)
	}
	if goodputCount > 0 {
		avg := round2(goodputSum / float64(goodputCount))
		s.AvgGoodputPercent = &avg
	}
	return s
}
