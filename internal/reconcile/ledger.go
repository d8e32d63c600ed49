package reconcile

import "github.com/mwiater/sweepwatch/internal/benchmark"

// Ledger accumulates committed records for a session. A concurrency value is
// recorded once and never replaced or removed.
type Ledger struct {
	order []benchmark.LevelRecord
	index map[int]struct{}
}

func NewLedger() *Ledger {
	return &Ledger{index: make(map[int]struct{})}
}

// Add appends the records whose concurrency has not been seen and returns how
// many were new.
func (l *Ledger) Add(records []benchmark.LevelRecord) int {
	if l.index == nil {
		l.index = make(map[int]struct{})
	}
	added := 0
	for _, rec := range records {
		if _, ok := l.index[rec.Concurrency]; ok {
			continue
		}
		l.index[rec.Concurrency] = struct{}{}
		l.order = append(l.order, rec)
		added++
	}
	return added
}

func (l *Ledger) Has(concurrency int) bool {
	_, ok := l.index[concurrency]
	return ok
}

// Records returns a copy in first-seen order.
func (l *Ledger) Records() []benchmark.LevelRecord {
	return append([]benchmark.LevelRecord(nil), l.order...)
}

func (l *Ledger) Len() int { return len(l.order) }
