// internal/simulator/simulator.go
// Package simulator is an in-memory stand-in for the load-test service. It
// walks every started run through its concurrency levels on a timer, pushes
// progress frames to WebSocket subscribers and serves the same HTTP API as
// the real service.
package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mwiater/sweepwatch/internal/benchmark"
	"github.com/mwiater/sweepwatch/internal/logging"
)

var (
	ErrNotFound     = errors.New("run not found")
	ErrNoResult     = errors.New("result not found")
	ErrStillRunning = errors.New("benchmark still running")
	ErrFailed       = errors.New("benchmark failed")
	ErrNotRunning   = errors.New("run is not running")
)

const subscriberBuffer = 16

type run struct {
	status  benchmark.RunStatus
	req     benchmark.StartRequest
	results []benchmark.LevelRecord
	level   int
	elapsed time.Duration
	cancel  context.CancelFunc
	last    []byte
	subs    map[chan []byte]struct{}
}

// Simulator holds every run in memory.
type Simulator struct {
	cfg   Config
	now   func() time.Time
	newID func() string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	runs map[string]*run
}

// New returns a simulator. Close stops every run it started.
func New(cfg Config) *Simulator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Simulator{
		cfg:    cfg.withDefaults(),
		now:    time.Now,
		newID:  uuid.NewString,
		ctx:    ctx,
		cancel: cancel,
		runs:   make(map[string]*run),
	}
}

// Config returns the effective configuration.
func (s *Simulator) Config() Config { return s.cfg }

// Close stops all runs, ends every progress stream and waits for the run
// drivers to exit.
func (s *Simulator) Close() {
	s.cancel()
	s.mu.Lock()
	for _, r := range s.runs {
		for ch := range r.subs {
			close(ch)
			delete(r.subs, ch)
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Simulator) stamp() *benchmark.Timestamp {
	return &benchmark.Timestamp{Time: s.now().UTC()}
}

// Start registers a run and begins sweeping it in the background.
func (s *Simulator) Start(req benchmark.StartRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	id := s.newID()
	ctx, cancel := context.WithCancel(s.ctx)

	s.mu.Lock()
	s.runs[id] = &run{
		status: benchmark.RunStatus{
			RunIdentity: benchmark.RunIdentity{
				RunID:     id,
				ServerURL: req.ServerURL,
				Model:     req.Model,
				Adapter:   req.Adapter,
			},
			Status:    benchmark.StatusPending,
			CreatedAt: s.stamp(),
		},
		req:    req,
		cancel: cancel,
		subs:   make(map[chan []byte]struct{}),
	}
	s.mu.Unlock()

	logging.LogEvent("simulator: run %s started model=%s levels=%v", id, req.Model, req.Concurrency)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.drive(ctx, id)
	}()
	return id, nil
}

func (s *Simulator) drive(ctx context.Context, id string) {
	if d := s.cfg.startDelay(); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
	if !s.markRunning(id) {
		return
	}

	ticker := time.NewTicker(s.cfg.tick())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.Advance(id, s.cfg.tick()) {
				return
			}
		}
	}
}

func (s *Simulator) markRunning(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok || r.status.Status != benchmark.StatusPending {
		return false
	}
	r.status.Status = benchmark.StatusRunning
	r.status.StartedAt = s.stamp()
	return true
}

// Advance moves a running run forward by dt and reports whether it reached a
// terminal state. The background driver calls it on every tick.
func (s *Simulator) Advance(id string, dt time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[id]
	if !ok {
		return true
	}
	if r.status.Status != benchmark.StatusRunning {
		return r.status.Status.Terminal()
	}

	r.elapsed += dt
	fraction := math.Min(float64(r.elapsed)/float64(s.cfg.levelDuration()), 1)
	model := levelModel{concurrency: r.req.Concurrency[r.level], outputLen: r.req.OutputLen}

	if s.cfg.FailAtLevel > 0 && model.concurrency == s.cfg.FailAtLevel && fraction >= 0.5 {
		s.finishLocked(r, benchmark.StatusFailed)
		return true
	}

	s.publishLocked(r, model, fraction)

	if fraction < 1 {
		return false
	}
	r.results = append(r.results, model.record(r.req.NumPrompts, r.req.GoodputThresholds))
	r.level++
	r.elapsed = 0
	if r.level >= len(r.req.Concurrency) {
		s.finishLocked(r, benchmark.StatusCompleted)
		return true
	}
	return false
}

func (s *Simulator) publishLocked(r *run, model levelModel, fraction float64) {
	total := r.req.NumPrompts
	completed := int(math.Floor(fraction * float64(total)))
	levels := len(r.req.Concurrency)

	var msg benchmark.ProgressMessage
	msg.RunID = r.status.RunID
	msg.OverallPercent = round2(math.Min((float64(r.level)+fraction)/float64(levels)*100, 100))
	msg.Concurrency.Level = model.concurrency
	msg.Concurrency.Index = r.level
	msg.Concurrency.Total = levels
	msg.Progress.Current = completed
	msg.Progress.Total = total
	msg.Progress.Percent = round2(fraction * 100)
	msg.Metrics.Concurrency = model.concurrency
	msg.Metrics.ThroughputCurrent = round2(model.throughput() * (0.85 + 0.15*fraction))
	msg.Metrics.TTFTP50 = round2(model.ttftP50())
	msg.Metrics.Completed = completed
	msg.Metrics.ErrorCount = model.errors(completed)
	msg.Metrics.Total = total

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	r.last = data
	for ch := range r.subs {
		select {
		case ch <- data:
		default:
		}
	}
}

func (s *Simulator) finishLocked(r *run, status benchmark.Status) {
	r.status.Status = status
	r.status.CompletedAt = s.stamp()
	r.cancel()
	for ch := range r.subs {
		close(ch)
		delete(r.subs, ch)
	}
	logging.LogEvent("simulator: run %s %s after %d levels", r.status.RunID, status, len(r.results))
}

// Stop ends a pending or running run.
func (s *Simulator) Stop(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return ErrNotFound
	}
	if r.status.Status.Terminal() {
		return ErrNotRunning
	}
	s.finishLocked(r, benchmark.StatusStopped)
	return nil
}

// Delete forgets a run, stopping it first when needed.
func (s *Simulator) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return ErrNotFound
	}
	if !r.status.Status.Terminal() {
		s.finishLocked(r, benchmark.StatusStopped)
	}
	delete(s.runs, id)
	return nil
}

// Status returns the lifecycle state of a run.
func (s *Simulator) Status(id string) (benchmark.RunStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return benchmark.RunStatus{}, ErrNotFound
	}
	return r.status, nil
}

// Result returns the committed levels of a run. A running run without any
// committed level yields ErrStillRunning.
func (s *Simulator) Result(id string) (benchmark.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return benchmark.Result{}, ErrNotFound
	}
	if len(r.results) == 0 {
		switch r.status.Status {
		case benchmark.StatusRunning:
			return benchmark.Result{}, ErrStillRunning
		case benchmark.StatusFailed:
			return benchmark.Result{}, ErrFailed
		default:
			return benchmark.Result{}, ErrNoResult
		}
	}
	return s.resultLocked(r), nil
}

func (s *Simulator) resultLocked(r *run) benchmark.Result {
	res := benchmark.Result{
		RunIdentity: r.status.RunIdentity,
		Results:     append([]benchmark.LevelRecord(nil), r.results...),
		Summary:     summarize(r.results),
		StartedAt:   r.status.StartedAt,
		CompletedAt: r.status.CompletedAt,
	}
	if r.status.StartedAt != nil {
		end := s.now()
		if r.status.CompletedAt != nil {
			end = r.status.CompletedAt.Time
		}
		res.DurationSeconds = round2(end.Sub(r.status.StartedAt.Time).Seconds())
	}
	return res
}

// History lists runs newest first.
func (s *Simulator) History(limit, offset int, status benchmark.Status) benchmark.RunList {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	s.mu.Lock()
	all := make([]benchmark.RunStatus, 0, len(s.runs))
	for _, r := range s.runs {
		if status != "" && r.status.Status != status {
			continue
		}
		all = append(all, r.status)
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt.Time) {
			return all[i].CreatedAt.After(all[j].CreatedAt.Time)
		}
		return all[i].RunID < all[j].RunID
	})
	list := benchmark.RunList{Runs: []benchmark.RunStatus{}, Total: len(all), Limit: limit, Offset: offset}
	if offset < len(all) {
		end := min(offset+limit, len(all))
		list.Runs = append(list.Runs, all[offset:end]...)
	}
	return list
}

// Compare ranks the given runs. Unknown runs and runs without results are
// left out.
func (s *Simulator) Compare(ids []string) benchmark.ComparisonResult {
	out := benchmark.ComparisonResult{ByConcurrency: map[string][]benchmark.ComparisonMetric{}}
	for _, id := range ids {
		res, err := s.Result(id)
		if err != nil {
			continue
		}
		out.RunCount++
		sum := res.Summary
		if out.BestThroughput == nil || sum.BestThroughput > out.BestThroughput.Value {
			c := sum.BestConcurrency
			out.BestThroughput = &benchmark.ComparisonMetric{RunID: id, Value: sum.BestThroughput, Concurrency: &c}
		}
		for _, rec := range res.Results {
			c := rec.Concurrency
			if out.BestTTFT == nil || rec.TTFT.P50 < out.BestTTFT.Value {
				out.BestTTFT = &benchmark.ComparisonMetric{RunID: id, Value: rec.TTFT.P50, Concurrency: &c}
			}
			key := strconv.Itoa(c)
			out.ByConcurrency[key] = append(out.ByConcurrency[key], benchmark.ComparisonMetric{
				RunID: id, Value: rec.ThroughputTokens, Concurrency: &c,
			})
		}
	}
	return out
}

// subscribe registers a progress listener. The channel is closed when the run
// ends; the returned func unregisters it early.
func (s *Simulator) subscribe(id string) (<-chan []byte, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, nil, ErrNotFound
	}
	ch := make(chan []byte, subscriberBuffer)
	if r.status.Status.Terminal() || s.ctx.Err() != nil {
		close(ch)
		return ch, func() {}, nil
	}
	if r.last != nil {
		ch <- r.last
	}
	r.subs[ch] = struct{}{}
	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := r.subs[ch]; ok {
			delete(r.subs, ch)
			close(ch)
		}
	}
	return ch, unsubscribe, nil
}

func (s *Simulator) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("simulator(%d runs, level=%s tick=%s)", len(s.runs), s.cfg.levelDuration(), s.cfg.tick())
}
