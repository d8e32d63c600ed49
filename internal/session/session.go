// Package session owns the polling, push subscription and clock of one run
// and folds their results into a reconciled view. All state changes happen in
// Update, which is driven by the Bubble Tea event loop.
package session

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/mwiater/sweepwatch/internal/benchmark"
	"github.com/mwiater/sweepwatch/internal/cadence"
	"github.com/mwiater/sweepwatch/internal/clock"
	"github.com/mwiater/sweepwatch/internal/logging"
	"github.com/mwiater/sweepwatch/internal/progress"
	"github.com/mwiater/sweepwatch/internal/reconcile"
)

// Backend is the subset of the API client a session polls.
type Backend interface {
	Status(ctx context.Context, runID string) (benchmark.RunStatus, error)
	Result(ctx context.Context, runID string) (benchmark.Result, error)
}

// Option configures a Session.
type Option func(*Session)

// WithSubscriber enables the push channel. Without one the session relies on
// polling alone.
func WithSubscriber(sub progress.Subscriber) Option {
	return func(s *Session) { s.subscriber = sub }
}

func WithPolicy(p cadence.Policy) Option {
	return func(s *Session) { s.policy = p.Normalize() }
}

// WithClock overrides the time source and the elapsed-clock tick interval.
func WithClock(now func() time.Time, tick time.Duration) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
		if tick > 0 {
			s.clockInterval = tick
		}
	}
}

// WithOnFinished registers a hook that runs once, off the event loop, after
// the run is terminal and polling has stopped.
func WithOnFinished(fn func(View)) Option {
	return func(s *Session) { s.onFinished = fn }
}

// Session tracks one run. It is never pointed at another run; watching a
// different run means closing this one and creating a new Session.
type Session struct {
	id            string
	runID         string
	backend       Backend
	subscriber    progress.Subscriber
	policy        cadence.Policy
	now           func() time.Time
	clockInterval time.Duration
	onFinished    func(View)

	ctx    context.Context
	cancel context.CancelFunc
	closed bool

	status     benchmark.RunStatus
	haveStatus bool
	issuedSeq  int64
	appliedSeq int64
	statusGen  int

	snapshotGen      int
	snapshotPending  bool
	snapshotInFlight bool
	snapshots        cadence.SnapshotState
	ledger           *reconcile.Ledger
	result           *benchmark.Result
	loaded           bool

	subGen     int
	subCancel  context.CancelFunc
	conn       progress.State
	sample     *benchmark.LiveLevelSample
	levelTotal int

	clock clock.Clock

	lastErr       error
	statusPolls   int
	snapshotPolls int
	finished      bool
}

// New creates a session for runID. The session does nothing until the Cmd
// returned by Init is run.
func New(parent context.Context, runID string, backend Backend, opts ...Option) *Session {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		id:            uuid.NewString(),
		runID:         runID,
		backend:       backend,
		policy:        cadence.DefaultPolicy(),
		now:           time.Now,
		clockInterval: time.Second,
		ctx:           ctx,
		cancel:        cancel,
		ledger:        reconcile.NewLedger(),
		conn:          progress.StateInactive,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) ID() string    { return s.id }
func (s *Session) RunID() string { return s.runID }

// Init issues the first status poll and the first snapshot fetch.
func (s *Session) Init() tea.Cmd {
	if s.closed {
		return nil
	}
	return tea.Batch(s.fetchStatus(), s.fetchSnapshot())
}

// Close cancels every request, timer and subscription of the session. It is
// safe to call more than once.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
	s.subCancel = nil
	s.statusGen++
	s.snapshotGen++
	s.subGen++
	s.conn = progress.StateInactive
	s.clock.Update(false, time.Time{}, false, s.now())
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool { return s.closed }

// Update applies one message. Messages that belong to another session, an
// older generation or a closed session are dropped and schedule nothing.
func (s *Session) Update(msg tea.Msg) tea.Cmd {
	if s.closed {
		return nil
	}
	switch msg := msg.(type) {
	case statusTickMsg:
		if msg.session != s.id || msg.gen != s.statusGen {
			return nil
		}
		return s.fetchStatus()
	case statusMsg:
		if msg.session != s.id {
			return nil
		}
		return s.applyStatus(msg)
	case snapshotTickMsg:
		if msg.session != s.id || msg.gen != s.snapshotGen {
			return nil
		}
		s.snapshotPending = false
		return s.fetchSnapshot()
	case snapshotMsg:
		if msg.session != s.id {
			return nil
		}
		return s.applySnapshot(msg)
	case progressMsg:
		if msg.session != s.id || msg.gen != s.subGen {
			return nil
		}
		return s.applyProgress(msg)
	case clockTickMsg:
		if msg.session != s.id {
			return nil
		}
		if s.clock.Tick(msg.gen, s.now()) {
			return s.clockTick()
		}
		return nil
	}
	return nil
}

func (s *Session) applyStatus(msg statusMsg) tea.Cmd {
	if msg.seq <= s.appliedSeq {
		logging.Debugf("session %s: dropping stale status seq=%d applied=%d", s.runID, msg.seq, s.appliedSeq)
		return nil
	}
	s.appliedSeq = msg.seq

	if msg.err != nil {
		s.lastErr = msg.err
		logging.LogEvent("session %s: status poll failed: %v", s.runID, msg.err)
		return s.scheduleStatus()
	}

	prev := s.status.Status
	s.status = msg.status
	s.haveStatus = true
	s.lastErr = nil
	current := s.status.Status
	if prev != current {
		logging.LogEvent("session %s: status %s -> %s", s.runID, prev, current)
	}

	var cmds []tea.Cmd
	start, hasStart := s.status.StartTime()
	if s.clock.Update(current.Running(), start, hasStart, s.now()) {
		cmds = append(cmds, s.clockTick())
	}

	if current.Running() {
		if s.subscriber != nil && s.subCancel == nil {
			cmds = append(cmds, s.startSubscriber())
		}
	} else {
		s.stopSubscriber()
	}

	if current.Terminal() && !s.snapshots.TerminalSeen {
		s.snapshots.TerminalSeen = true
		// Release a periodic timer armed before the terminal status.
		s.snapshotGen++
		s.snapshotPending = false
	}
	if !s.snapshotInFlight && !s.snapshotPending {
		cmds = append(cmds, s.scheduleSnapshot())
	}

	cmds = append(cmds, s.scheduleStatus())
	cmds = append(cmds, s.maybeFinish())
	return tea.Batch(cmds...)
}

func (s *Session) applySnapshot(msg snapshotMsg) tea.Cmd {
	s.snapshotInFlight = false

	ok := true
	switch {
	case msg.err == nil:
		s.ledger.Add(msg.result.Results)
		if len(msg.result.Results) >= s.ledger.Len() {
			res := msg.result
			s.result = &res
		}
	case benchmark.IsStillRunning(msg.err):
		// No committed level yet: an empty snapshot. After a terminal status
		// it means the backend has not caught up, so the final snapshot is
		// still owed and this counts as a failed attempt.
		if msg.afterTerminal {
			ok = false
			s.loaded = true
			logging.LogEvent("session %s: final snapshot still running, attempt %d", s.runID, s.snapshots.FinalAttempts)
		}
	default:
		ok = false
		s.lastErr = msg.err
		logging.LogEvent("session %s: snapshot poll failed: %v", s.runID, msg.err)
	}
	if ok {
		s.loaded = true
		s.lastErr = nil
		if msg.afterTerminal {
			s.snapshots.FinalCaptured = true
		}
	}

	return tea.Batch(s.scheduleSnapshot(), s.maybeFinish())
}

func (s *Session) applyProgress(msg progressMsg) tea.Cmd {
	if !msg.ok {
		s.conn = progress.StateInactive
		return nil
	}
	for _, ev := range msg.events {
		s.conn = ev.State
		if ev.Sample != nil && s.status.Status.Running() {
			sample := *ev.Sample
			s.sample = &sample
			if sample.LevelTotal > 0 {
				s.levelTotal = sample.LevelTotal
			}
		}
	}
	return waitForProgress(s.id, msg.gen, msg.ch)
}

func (s *Session) fetchStatus() tea.Cmd {
	s.issuedSeq++
	s.statusPolls++
	seq := s.issuedSeq
	ctx, backend, runID, id := s.ctx, s.backend, s.runID, s.id
	return func() tea.Msg {
		status, err := backend.Status(ctx, runID)
		return statusMsg{session: id, seq: seq, status: status, err: err}
	}
}

func (s *Session) scheduleStatus() tea.Cmd {
	status := benchmark.StatusUnknown
	if s.haveStatus {
		status = s.status.Status
	}
	d, ok := s.policy.NextStatusPoll(status)
	if !ok {
		return nil
	}
	s.statusGen++
	gen, id := s.statusGen, s.id
	return tea.Tick(d, func(time.Time) tea.Msg {
		return statusTickMsg{session: id, gen: gen}
	})
}

func (s *Session) fetchSnapshot() tea.Cmd {
	afterTerminal := s.snapshots.TerminalSeen
	if afterTerminal {
		s.snapshots.FinalAttempts++
	}
	s.snapshotInFlight = true
	s.snapshotPolls++
	ctx, backend, runID, id := s.ctx, s.backend, s.runID, s.id
	return func() tea.Msg {
		result, err := backend.Result(ctx, runID)
		return snapshotMsg{session: id, afterTerminal: afterTerminal, result: result, err: err}
	}
}

func (s *Session) scheduleSnapshot() tea.Cmd {
	if !s.haveStatus {
		return nil
	}
	d, ok := s.policy.NextSnapshotPoll(s.status.Status, s.snapshots)
	if !ok {
		return nil
	}
	if d <= 0 {
		return s.fetchSnapshot()
	}
	s.snapshotGen++
	s.snapshotPending = true
	gen, id := s.snapshotGen, s.id
	return tea.Tick(d, func(time.Time) tea.Msg {
		return snapshotTickMsg{session: id, gen: gen}
	})
}

func (s *Session) startSubscriber() tea.Cmd {
	s.subGen++
	ctx, cancel := context.WithCancel(s.ctx)
	s.subCancel = cancel
	s.conn = progress.StateConnecting
	events := make(chan progress.Event, 64)
	sub, runID := s.subscriber, s.runID
	go func() {
		if err := sub.Run(ctx, runID, events); err != nil && !errors.Is(err, context.Canceled) {
			logging.LogEvent("session %s: progress subscriber stopped: %v", runID, err)
		}
	}()
	return waitForProgress(s.id, s.subGen, events)
}

func (s *Session) stopSubscriber() {
	if s.subCancel != nil {
		s.subCancel()
		s.subCancel = nil
		s.subGen++
	}
	s.conn = progress.StateInactive
	s.sample = nil
}

func (s *Session) clockTick() tea.Cmd {
	gen, id := s.clock.Gen(), s.id
	return tea.Tick(s.clockInterval, func(t time.Time) tea.Msg {
		return clockTickMsg{session: id, gen: gen}
	})
}

// Done reports whether the run is terminal and no further poll will be made.
func (s *Session) Done() bool {
	return s.haveStatus && s.status.Status.Terminal() &&
		s.snapshots.Done(s.policy) && !s.snapshotInFlight && !s.snapshotPending
}

func (s *Session) maybeFinish() tea.Cmd {
	if s.finished || !s.Done() {
		return nil
	}
	s.finished = true
	logging.LogEvent("session %s: finished status=%s levels=%d final_snapshot=%v",
		s.runID, s.status.Status, s.ledger.Len(), s.snapshots.FinalCaptured)
	if s.onFinished == nil {
		return nil
	}
	view, hook := s.View(), s.onFinished
	return func() tea.Msg {
		hook(view)
		return nil
	}
}
