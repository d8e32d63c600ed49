// Package reconcile merges committed level records with the live sample of
// the level in flight into one ordered, duplicate-free series.
package reconcile

import (
	"github.com/mwiater/sweepwatch/internal/benchmark"
)

// Entry is one point of a reconciled series: either a Final record or the
// trailing Provisional sample.
type Entry interface {
	Concurrency() int
	IsProvisional() bool
	isEntry()
}

// Final wraps a committed LevelRecord.
type Final struct {
	Record benchmark.LevelRecord
}

func (f Final) Concurrency() int    { return f.Record.Concurrency }
func (f Final) IsProvisional() bool { return false }
func (Final) isEntry()              {}

// Provisional wraps the live sample of a level with no committed record yet.
type Provisional struct {
	Sample benchmark.LiveLevelSample
}

func (p Provisional) Concurrency() int    { return p.Sample.Concurrency }
func (p Provisional) IsProvisional() bool { return true }
func (Provisional) isEntry()              {}

// Mode tells the renderer where live numbers come from.
type Mode int

const (
	// ModePolling means progress comes from polled snapshots only.
	ModePolling Mode = iota
	// ModePush means the push channel is connected.
	ModePush
)

func (m Mode) String() string {
	if m == ModePush {
		return "live"
	}
	return "polling"
}

// Series is the reconciled output. Final records keep backend arrival order
// and at most one provisional sample trails them.
type Series struct {
	final []benchmark.LevelRecord
	live  *benchmark.LiveLevelSample
}

// Entries returns a fresh slice of every entry in display order.
func (s Series) Entries() []Entry {
	out := make([]Entry, 0, s.Len())
	for _, rec := range s.final {
		out = append(out, Final{Record: rec})
	}
	if s.live != nil {
		out = append(out, Provisional{Sample: *s.live})
	}
	return out
}

// Final returns a copy of the committed records.
func (s Series) Final() []benchmark.LevelRecord {
	return append([]benchmark.LevelRecord(nil), s.final...)
}

// Live returns the provisional sample, if one survived reconciliation.
func (s Series) Live() (benchmark.LiveLevelSample, bool) {
	if s.live == nil {
		return benchmark.LiveLevelSample{}, false
	}
	return *s.live, true
}

func (s Series) Len() int {
	n := len(s.final)
	if s.live != nil {
		n++
	}
	return n
}

func (s Series) Empty() bool { return s.Len() == 0 }

// Input is everything the engine looks at.
type Input struct {
	Records   []benchmark.LevelRecord
	Sample    *benchmark.LiveLevelSample
	Status    benchmark.Status
	Connected bool
	// KnownLevelTotal is the level count remembered from an earlier sample,
	// zero when none was ever seen.
	KnownLevelTotal int
}

// Progress is the scalar descriptor rendered next to the series. LevelIndex
// is zero-based.
type Progress struct {
	OverallPercent float64
	LevelIndex     int
	LevelTotal     int
	Mode           Mode
}

// Reconcile builds the series and progress descriptor for in. It is a pure
// function: the same input always gives the same output.
func Reconcile(in Input) (Series, Progress) {
	seen := make(map[int]struct{}, len(in.Records))
	final := make([]benchmark.LevelRecord, 0, len(in.Records))
	for _, rec := range in.Records {
		if _, dup := seen[rec.Concurrency]; dup {
			continue
		}
		seen[rec.Concurrency] = struct{}{}
		final = append(final, rec)
	}

	series := Series{final: final}
	if in.Sample != nil {
		if _, committed := seen[in.Sample.Concurrency]; !committed {
			sample := *in.Sample
			series.live = &sample
		}
	}

	progress := Progress{Mode: ModePolling}
	if in.Connected {
		progress.Mode = ModePush
	}

	levelTotal := in.KnownLevelTotal
	if in.Sample != nil && in.Sample.LevelTotal > 0 {
		levelTotal = in.Sample.LevelTotal
	}
	progress.LevelTotal = levelTotal

	switch {
	case in.Sample != nil:
		progress.OverallPercent = clampPercent(in.Sample.OverallPercent)
		progress.LevelIndex = in.Sample.LevelIndex
	case in.Status.Terminal():
		progress.OverallPercent = 100
		progress.LevelIndex = lastIndex(len(final))
	case len(final) > 0 && levelTotal > 0:
		progress.OverallPercent = clampPercent(float64(len(final)) / float64(levelTotal) * 100)
		progress.LevelIndex = lastIndex(len(final))
	}
	if progress.LevelTotal > 0 && progress.LevelIndex >= progress.LevelTotal {
		progress.LevelIndex = progress.LevelTotal - 1
	}
	return series, progress
}

func lastIndex(n int) int {
	if n == 0 {
		return 0
	}
	return n - 1
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
