package session

import (
	"github.com/mwiater/sweepwatch/internal/benchmark"
	"github.com/mwiater/sweepwatch/internal/progress"
	"github.com/mwiater/sweepwatch/internal/reconcile"
)

// View is an immutable snapshot of a session for renderers.
type View struct {
	SessionID      string
	RunID          string
	Status         benchmark.RunStatus
	HaveStatus     bool
	Series         reconcile.Series
	Progress       reconcile.Progress
	Result         *benchmark.Result
	Connectivity   progress.State
	ElapsedSeconds int
	LastError      error
	StatusPolls    int
	SnapshotPolls  int
	Done           bool

	// Loaded is set once any snapshot, including an empty one, succeeded.
	Loaded bool
}

// Summary returns the backend summary of the latest accepted snapshot.
func (v View) Summary() (benchmark.Summary, bool) {
	if v.Result == nil {
		return benchmark.Summary{}, false
	}
	return v.Result.Summary, true
}

// Failed reports whether the backend marked the run failed.
func (v View) Failed() bool {
	return v.HaveStatus && v.Status.Status == benchmark.StatusFailed
}

// View reconciles the current state. The returned value shares nothing with
// the session.
func (s *Session) View() View {
	var sample *benchmark.LiveLevelSample
	if s.sample != nil {
		copied := *s.sample
		sample = &copied
	}
	series, prog := reconcile.Reconcile(reconcile.Input{
		Records:         s.ledger.Records(),
		Sample:          sample,
		Status:          s.status.Status,
		Connected:       s.conn == progress.StateConnected,
		KnownLevelTotal: s.levelTotal,
	})

	var result *benchmark.Result
	if s.result != nil {
		copied := *s.result
		copied.Results = append([]benchmark.LevelRecord(nil), s.result.Results...)
		result = &copied
	}

	return View{
		SessionID:      s.id,
		RunID:          s.runID,
		Status:         s.status,
		HaveStatus:     s.haveStatus,
		Series:         series,
		Progress:       prog,
		Result:         result,
		Connectivity:   s.conn,
		ElapsedSeconds: s.clock.Seconds(),
		LastError:      s.lastErr,
		Loaded:         s.loaded,
		StatusPolls:    s.statusPolls,
		SnapshotPolls:  s.snapshotPolls,
		Done:           s.Done(),
	}
}
