package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwiater/sweepwatch/internal/benchmark"
	"github.com/mwiater/sweepwatch/internal/cadence"
	"github.com/mwiater/sweepwatch/internal/progress"
)

var fastPolicy = cadence.Policy{
	StatusInterval:        5 * time.Millisecond,
	SnapshotInterval:      7 * time.Millisecond,
	FinalSnapshotAttempts: 3,
}

func levels(cs ...int) []benchmark.LevelRecord {
	out := make([]benchmark.LevelRecord, 0, len(cs))
	for _, c := range cs {
		out = append(out, benchmark.LevelRecord{Concurrency: c, ThroughputTokens: float64(c) * 10})
	}
	return out
}

func statusOf(st benchmark.Status) benchmark.RunStatus {
	rs := benchmark.RunStatus{Status: st}
	rs.RunID = "run-1"
	if st != benchmark.StatusPending {
		rs.StartedAt = &benchmark.Timestamp{Time: time.Now().Add(-125 * time.Second)}
	}
	return rs
}

// scriptedBackend walks through phases, one per status call. The result
// endpoint answers for whatever phase the last status call reached.
type scriptedBackend struct {
	mu          sync.Mutex
	phases      []phase
	current     int
	statusCalls int
	resultCalls int
}

type phase struct {
	status    benchmark.Status
	records   []benchmark.LevelRecord
	resultErr error
}

func (b *scriptedBackend) Status(ctx context.Context, runID string) (benchmark.RunStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.statusCalls > 0 && b.current < len(b.phases)-1 {
		b.current++
	}
	b.statusCalls++
	return statusOf(b.phases[b.current].status), nil
}

func (b *scriptedBackend) Result(ctx context.Context, runID string) (benchmark.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resultCalls++
	p := b.phases[b.current]
	if p.resultErr != nil {
		return benchmark.Result{}, p.resultErr
	}
	if p.status == benchmark.StatusPending || len(p.records) == 0 {
		return benchmark.Result{}, &benchmark.APIError{Status: http.StatusAccepted, Detail: "Benchmark still running"}
	}
	return benchmark.Result{Results: append([]benchmark.LevelRecord(nil), p.records...)}, nil
}

func (b *scriptedBackend) calls() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statusCalls, b.resultCalls
}

// drive runs the session the way the Bubble Tea runtime would: every Cmd in
// its own goroutine, every result fed back through Update. It returns once
// nothing is outstanding or stop reports true.
func drive(t *testing.T, s *Session, stop func(View) bool) View {
	t.Helper()
	msgs := make(chan tea.Msg, 256)
	pending := 0
	exec := func(cmd tea.Cmd) {
		if cmd == nil {
			return
		}
		pending++
		go func() { msgs <- cmd() }()
	}
	exec(s.Init())

	deadline := time.After(10 * time.Second)
	for pending > 0 {
		select {
		case msg := <-msgs:
			pending--
			switch msg := msg.(type) {
			case nil:
			case tea.BatchMsg:
				for _, cmd := range msg {
					exec(cmd)
				}
			default:
				exec(s.Update(msg))
			}
			if stop != nil && stop(s.View()) {
				return s.View()
			}
		case <-deadline:
			t.Fatalf("session did not settle; view=%+v", s.View())
		}
	}
	return s.View()
}

func TestSessionLifecycleStopsPollingAfterFinalSnapshot(t *testing.T) {
	backend := &scriptedBackend{phases: []phase{
		{status: benchmark.StatusPending},
		{status: benchmark.StatusRunning},
		{status: benchmark.StatusRunning, records: levels(1)},
		{status: benchmark.StatusRunning, records: levels(1, 4)},
		{status: benchmark.StatusCompleted, records: levels(1, 4, 8)},
	}}
	var finished []View
	s := New(context.Background(), "run-1", backend,
		WithPolicy(fastPolicy),
		WithClock(nil, time.Millisecond),
		WithOnFinished(func(v View) { finished = append(finished, v) }),
	)
	defer s.Close()

	view := drive(t, s, nil)

	require.True(t, view.Done)
	assert.Equal(t, benchmark.StatusCompleted, view.Status.Status)
	final := view.Series.Final()
	require.Len(t, final, 3)
	assert.Equal(t, []int{1, 4, 8}, []int{final[0].Concurrency, final[1].Concurrency, final[2].Concurrency})
	_, live := view.Series.Live()
	assert.False(t, live)
	assert.InDelta(t, 100, view.Progress.OverallPercent, 0.001)
	assert.Equal(t, 0, view.ElapsedSeconds, "clock resets once the run leaves running")
	require.Len(t, finished, 1)
	assert.Equal(t, 3, finished[0].Series.Len())

	statusCalls, resultCalls := backend.calls()
	assert.Equal(t, view.StatusPolls, statusCalls)
	assert.Equal(t, view.SnapshotPolls, resultCalls)
	assert.Equal(t, len(backend.phases), statusCalls, "no status poll after the terminal status")

	time.Sleep(30 * time.Millisecond)
	s2, r2 := backend.calls()
	assert.Equal(t, statusCalls, s2)
	assert.Equal(t, resultCalls, r2)
}

func TestSessionFinalSnapshotGivesUp(t *testing.T) {
	backend := &scriptedBackend{phases: []phase{
		{status: benchmark.StatusRunning, records: levels(1)},
		{status: benchmark.StatusFailed, resultErr: &benchmark.APIError{Status: http.StatusInternalServerError, Detail: "Benchmark failed"}},
	}}
	s := New(context.Background(), "run-1", backend, WithPolicy(fastPolicy))
	defer s.Close()

	view := drive(t, s, nil)
	require.True(t, view.Done)
	assert.True(t, view.Failed())
	require.Error(t, view.LastError)
	assert.Equal(t, "Benchmark failed", view.LastError.Error())

	_, resultCalls := backend.calls()
	// The initial fetch, any running polls, then exactly three final attempts.
	assert.GreaterOrEqual(t, resultCalls, 4)
	assert.Equal(t, 3, s.snapshots.FinalAttempts)
	assert.False(t, s.snapshots.FinalCaptured)
	assert.Equal(t, 1, view.Series.Len(), "records committed before the failure are kept")
}

// lateResultBackend reports a finished run whose results endpoint still
// answers 202 for the first few calls.
type lateResultBackend struct {
	mu          sync.Mutex
	lateCalls   int
	resultCalls int
}

func (b *lateResultBackend) Status(ctx context.Context, runID string) (benchmark.RunStatus, error) {
	return statusOf(benchmark.StatusCompleted), nil
}

func (b *lateResultBackend) Result(ctx context.Context, runID string) (benchmark.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resultCalls++
	if b.resultCalls <= b.lateCalls {
		return benchmark.Result{}, &benchmark.APIError{Status: http.StatusAccepted, Detail: "Benchmark still running"}
	}
	return benchmark.Result{Results: levels(1, 2)}, nil
}

func TestSessionStillRunningAfterTerminalIsNotFinal(t *testing.T) {
	// The initial fetch plus two final attempts answer 202; the third final
	// attempt carries the committed levels.
	backend := &lateResultBackend{lateCalls: 3}
	s := New(context.Background(), "run-1", backend, WithPolicy(fastPolicy))
	defer s.Close()

	view := drive(t, s, nil)
	require.True(t, view.Done)
	assert.True(t, s.snapshots.FinalCaptured)
	assert.Equal(t, 3, s.snapshots.FinalAttempts)
	assert.Equal(t, 2, view.Series.Len())
	assert.NoError(t, view.LastError)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, 4, backend.resultCalls)
}

func TestSessionStillRunningAfterTerminalGivesUp(t *testing.T) {
	backend := &lateResultBackend{lateCalls: 100}
	s := New(context.Background(), "run-1", backend, WithPolicy(fastPolicy))
	defer s.Close()

	view := drive(t, s, nil)
	require.True(t, view.Done)
	assert.False(t, s.snapshots.FinalCaptured)
	assert.Equal(t, 3, s.snapshots.FinalAttempts)
	assert.True(t, view.Series.Empty())
}

// silentSubscriber never connects: it reports a failed dial and waits.
type silentSubscriber struct{}

func (silentSubscriber) Run(ctx context.Context, runID string, events chan<- progress.Event) error {
	defer close(events)
	for {
		select {
		case events <- progress.Event{State: progress.StateConnecting}:
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case events <- progress.Event{State: progress.StateDisconnected, Err: errors.New("dial refused")}:
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case <-time.After(3 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func TestSessionWithoutPushStillAccumulates(t *testing.T) {
	backend := &scriptedBackend{phases: []phase{
		{status: benchmark.StatusRunning},
		{status: benchmark.StatusRunning, records: levels(2)},
		{status: benchmark.StatusRunning, records: levels(2, 4)},
		{status: benchmark.StatusCompleted, records: levels(2, 4)},
	}}
	s := New(context.Background(), "run-1", backend, WithPolicy(fastPolicy), WithSubscriber(silentSubscriber{}))
	defer s.Close()

	maxSeen := 0
	view := drive(t, s, func(v View) bool {
		for _, e := range v.Series.Entries() {
			assert.False(t, e.IsProvisional())
		}
		assert.GreaterOrEqual(t, v.Series.Len(), maxSeen, "series never shrinks")
		if v.Series.Len() > maxSeen {
			maxSeen = v.Series.Len()
		}
		if !v.Done {
			assert.Equal(t, "polling", v.Progress.Mode.String())
		}
		return false
	})
	require.True(t, view.Done)
	assert.Equal(t, 2, view.Series.Len())
	assert.Equal(t, progress.StateInactive, view.Connectivity)
}

func TestSessionDropsStaleStatus(t *testing.T) {
	s := New(context.Background(), "run-1", &scriptedBackend{}, WithPolicy(fastPolicy))
	defer s.Close()

	s.issuedSeq = 2
	s.Update(statusMsg{session: s.id, seq: 2, status: statusOf(benchmark.StatusCompleted)})
	cmd := s.Update(statusMsg{session: s.id, seq: 1, status: statusOf(benchmark.StatusRunning)})
	assert.Nil(t, cmd)
	assert.Equal(t, benchmark.StatusCompleted, s.View().Status.Status)
}

func TestSessionIgnoresForeignMessages(t *testing.T) {
	s := New(context.Background(), "run-1", &scriptedBackend{}, WithPolicy(fastPolicy))
	defer s.Close()

	assert.Nil(t, s.Update(statusMsg{session: "other", seq: 1, status: statusOf(benchmark.StatusRunning)}))
	assert.Nil(t, s.Update(snapshotMsg{session: "other", result: benchmark.Result{Results: levels(1)}}))
	assert.Nil(t, s.Update(statusTickMsg{session: s.id, gen: s.statusGen + 5}))
	assert.False(t, s.View().HaveStatus)
	assert.True(t, s.View().Series.Empty())
}

func TestSessionSnapshotSemantics(t *testing.T) {
	s := New(context.Background(), "run-1", &scriptedBackend{}, WithPolicy(fastPolicy))
	defer s.Close()

	s.Update(snapshotMsg{session: s.id, err: &benchmark.APIError{Status: http.StatusAccepted}})
	v := s.View()
	assert.True(t, v.Loaded, "202 is an empty snapshot")
	assert.NoError(t, v.LastError)
	assert.True(t, v.Series.Empty())

	s.Update(snapshotMsg{session: s.id, result: benchmark.Result{Results: levels(1, 2), Summary: benchmark.Summary{BestConcurrency: 2}}})
	s.Update(snapshotMsg{session: s.id, err: errors.New("connection reset")})
	v = s.View()
	assert.EqualError(t, v.LastError, "connection reset")
	assert.Equal(t, 2, v.Series.Len())

	// A stale snapshot neither regresses the series nor the summary.
	s.Update(snapshotMsg{session: s.id, result: benchmark.Result{Results: levels(1), Summary: benchmark.Summary{BestConcurrency: 1}}})
	v = s.View()
	assert.NoError(t, v.LastError, "next successful poll clears the error")
	assert.Equal(t, 2, v.Series.Len())
	summary, ok := v.Summary()
	require.True(t, ok)
	assert.Equal(t, 2, summary.BestConcurrency)
}

func TestSessionLiveSampleLifecycle(t *testing.T) {
	s := New(context.Background(), "run-1", &scriptedBackend{}, WithPolicy(fastPolicy))
	defer s.Close()

	s.issuedSeq = 1
	s.Update(statusMsg{session: s.id, seq: 1, status: statusOf(benchmark.StatusRunning)})
	s.Update(snapshotMsg{session: s.id, result: benchmark.Result{Results: levels(1)}})

	live := &benchmark.LiveLevelSample{Concurrency: 4, OverallPercent: 60, LevelIndex: 1, LevelTotal: 3}
	s.Update(progressMsg{session: s.id, gen: s.subGen, ok: true, events: []progress.Event{
		{State: progress.StateConnected},
		{State: progress.StateConnected, Sample: live},
	}})
	v := s.View()
	require.Equal(t, 2, v.Series.Len())
	assert.True(t, v.Series.Entries()[1].IsProvisional())
	assert.Equal(t, "live", v.Progress.Mode.String())
	assert.InDelta(t, 60, v.Progress.OverallPercent, 0.001)

	// The record for level 4 supersedes the sample.
	s.Update(snapshotMsg{session: s.id, result: benchmark.Result{Results: levels(1, 4)}})
	v = s.View()
	assert.Equal(t, 2, v.Series.Len())
	_, hasLive := v.Series.Live()
	assert.False(t, hasLive)

	// Leaving running drops the sample and the subscription.
	s.issuedSeq = 2
	s.Update(statusMsg{session: s.id, seq: 2, status: statusOf(benchmark.StatusStopped)})
	v = s.View()
	assert.Equal(t, progress.StateInactive, v.Connectivity)
	assert.Nil(t, s.sample)
	assert.Equal(t, 3, v.Progress.LevelTotal, "level total is remembered")
}

func TestSessionReleasedProgressGeneration(t *testing.T) {
	s := New(context.Background(), "run-1", &scriptedBackend{}, WithPolicy(fastPolicy))
	defer s.Close()
	s.issuedSeq = 1
	s.Update(statusMsg{session: s.id, seq: 1, status: statusOf(benchmark.StatusRunning)})

	old := s.subGen - 1
	cmd := s.Update(progressMsg{session: s.id, gen: old, ok: true, events: []progress.Event{
		{State: progress.StateConnected, Sample: &benchmark.LiveLevelSample{Concurrency: 9}},
	}})
	assert.Nil(t, cmd)
	_, hasLive := s.View().Series.Live()
	assert.False(t, hasLive)
}

func TestSessionClockRunsWhileRunning(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s := New(context.Background(), "run-1", &scriptedBackend{},
		WithPolicy(fastPolicy), WithClock(func() time.Time { return now }, time.Millisecond))
	defer s.Close()

	st := statusOf(benchmark.StatusRunning)
	st.StartedAt = &benchmark.Timestamp{Time: now.Add(-125 * time.Second)}
	s.issuedSeq = 1
	s.Update(statusMsg{session: s.id, seq: 1, status: st})
	assert.Equal(t, 125, s.View().ElapsedSeconds)

	now = now.Add(2 * time.Second)
	require.NotNil(t, s.Update(clockTickMsg{session: s.id, gen: s.clock.Gen()}))
	assert.Equal(t, 127, s.View().ElapsedSeconds)

	gen := s.clock.Gen()
	s.issuedSeq = 2
	s.Update(statusMsg{session: s.id, seq: 2, status: statusOf(benchmark.StatusCompleted)})
	assert.Equal(t, 0, s.View().ElapsedSeconds)
	assert.Nil(t, s.Update(clockTickMsg{session: s.id, gen: gen}), "tick after completion is released")
}

func TestSessionCloseDropsEverything(t *testing.T) {
	backend := &scriptedBackend{phases: []phase{{status: benchmark.StatusRunning}}}
	s := New(context.Background(), "run-1", backend, WithPolicy(fastPolicy), WithSubscriber(silentSubscriber{}))
	init := s.Init()
	require.NotNil(t, init)
	s.Close()
	s.Close()

	assert.True(t, s.Closed())
	assert.Nil(t, s.Init())
	assert.Nil(t, s.Update(statusMsg{session: s.id, seq: 10, status: statusOf(benchmark.StatusRunning)}))
	assert.Nil(t, s.Update(snapshotTickMsg{session: s.id, gen: s.snapshotGen}))
	assert.Error(t, s.ctx.Err())
}
