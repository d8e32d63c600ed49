// Package cadence decides when the status and result endpoints are polled.
// Every decision is a pure function of the last observed status.
package cadence

import (
	"time"

	"github.com/mwiater/sweepwatch/internal/benchmark"
)

const (
	DefaultStatusInterval        = 2 * time.Second
	DefaultSnapshotInterval      = 3 * time.Second
	DefaultFinalSnapshotAttempts = 3
)

// Policy holds the polling intervals.
type Policy struct {
	StatusInterval        time.Duration
	SnapshotInterval      time.Duration
	FinalSnapshotAttempts int
}

func DefaultPolicy() Policy {
	return Policy{
		StatusInterval:        DefaultStatusInterval,
		SnapshotInterval:      DefaultSnapshotInterval,
		FinalSnapshotAttempts: DefaultFinalSnapshotAttempts,
	}
}

// Normalize replaces unset fields with defaults.
func (p Policy) Normalize() Policy {
	if p.StatusInterval <= 0 {
		p.StatusInterval = DefaultStatusInterval
	}
	if p.SnapshotInterval <= 0 {
		p.SnapshotInterval = DefaultSnapshotInterval
	}
	if p.FinalSnapshotAttempts <= 0 {
		p.FinalSnapshotAttempts = DefaultFinalSnapshotAttempts
	}
	return p
}

// NextStatusPoll returns the delay before the next status poll, or false
// when status polling is over for good.
func (p Policy) NextStatusPoll(status benchmark.Status) (time.Duration, bool) {
	if status.Terminal() {
		return 0, false
	}
	return p.Normalize().StatusInterval, true
}

// SnapshotState tracks the final snapshot taken after a terminal status.
type SnapshotState struct {
	// TerminalSeen is set the first time a terminal status is applied.
	TerminalSeen bool
	// FinalCaptured is set once a snapshot issued after TerminalSeen succeeded.
	FinalCaptured bool
	// FinalAttempts counts snapshots issued after TerminalSeen. Once it
	// reaches the policy budget without a capture, polling gives up; this
	// covers runs whose results never appear, such as a stopped run that
	// answers 404 or a failed one that answers 500. A 202 is a failed
	// attempt, never a capture.
	FinalAttempts int
}

// Done reports whether snapshot polling has stopped permanently under p.
func (s SnapshotState) Done(p Policy) bool {
	if !s.TerminalSeen {
		return false
	}
	return s.FinalCaptured || s.FinalAttempts >= p.Normalize().FinalSnapshotAttempts
}

// NextSnapshotPoll returns the delay before the next snapshot poll, or false
// when none should be scheduled. Pending and unknown runs are not polled
// periodically; the status poll drives them into running first.
func (p Policy) NextSnapshotPoll(status benchmark.Status, state SnapshotState) (time.Duration, bool) {
	p = p.Normalize()
	if status.Terminal() || state.TerminalSeen {
		if state.Done(p) {
			return 0, false
		}
		if state.FinalAttempts == 0 {
			return 0, true
		}
		return p.SnapshotInterval, true
	}
	if status.Running() {
		return p.SnapshotInterval, true
	}
	return 0, false
}
