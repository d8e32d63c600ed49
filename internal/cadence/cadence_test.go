package cadence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mwiater/sweepwatch/internal/benchmark"
)

func TestNextStatusPoll(t *testing.T) {
	p := DefaultPolicy()
	for _, s := range []benchmark.Status{benchmark.StatusRunning, benchmark.StatusPending, benchmark.StatusUnknown} {
		d, ok := p.NextStatusPoll(s)
		assert.True(t, ok, s)
		assert.Equal(t, 2*time.Second, d, s)
	}
	for _, s := range []benchmark.Status{benchmark.StatusCompleted, benchmark.StatusFailed, benchmark.StatusStopped} {
		_, ok := p.NextStatusPoll(s)
		assert.False(t, ok, s)
	}
}

func TestNextSnapshotPollWhileActive(t *testing.T) {
	p := DefaultPolicy()
	d, ok := p.NextSnapshotPoll(benchmark.StatusRunning, SnapshotState{})
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, d)

	_, ok = p.NextSnapshotPoll(benchmark.StatusPending, SnapshotState{})
	assert.False(t, ok)
	_, ok = p.NextSnapshotPoll(benchmark.StatusUnknown, SnapshotState{})
	assert.False(t, ok)
}

func TestFinalSnapshotSchedule(t *testing.T) {
	p := Policy{SnapshotInterval: time.Second, FinalSnapshotAttempts: 2}
	state := SnapshotState{TerminalSeen: true}

	d, ok := p.NextSnapshotPoll(benchmark.StatusCompleted, state)
	assert.True(t, ok)
	assert.Equal(t, time.Duration(0), d, "first final fetch is immediate")

	state.FinalAttempts = 1
	d, ok = p.NextSnapshotPoll(benchmark.StatusCompleted, state)
	assert.True(t, ok)
	assert.Equal(t, time.Second, d)

	state.FinalAttempts = 2
	_, ok = p.NextSnapshotPoll(benchmark.StatusCompleted, state)
	assert.False(t, ok, "gives up after the configured attempts")
	assert.True(t, state.Done(p))

	captured := SnapshotState{TerminalSeen: true, FinalAttempts: 1, FinalCaptured: true}
	_, ok = p.NextSnapshotPoll(benchmark.StatusCompleted, captured)
	assert.False(t, ok)
}

func TestNormalizeFillsDefaults(t *testing.T) {
	assert.Equal(t, DefaultPolicy(), Policy{}.Normalize())
	assert.False(t, SnapshotState{}.Done(Policy{}))
}
