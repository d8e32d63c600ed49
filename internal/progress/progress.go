// Package progress maintains the WebSocket subscription that carries live
// samples of the level currently executing.
package progress

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/mwiater/sweepwatch/internal/benchmark"
	"github.com/mwiater/sweepwatch/internal/logging"
)

// State is the connectivity of the push channel.
type State int

const (
	StateInactive State = iota
	StateConnecting
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "inactive"
	}
}

// Event is either a connectivity change or a decoded sample. Sample is only
// set on events emitted while connected.
type Event struct {
	State  State
	Sample *benchmark.LiveLevelSample
	Err    error
}

// Subscriber streams events for one run until ctx is cancelled. Run closes
// events before it returns.
type Subscriber interface {
	Run(ctx context.Context, runID string, events chan<- Event) error
}

const (
	DefaultReconnectInitial = 500 * time.Millisecond
	DefaultReconnectMax     = 15 * time.Second
)

// Backoff returns the reconnect schedule: exponential from initial, doubling,
// capped at ceiling, with no attempt limit.
func Backoff(initial, ceiling time.Duration) *backoff.ExponentialBackOff {
	if initial <= 0 {
		initial = DefaultReconnectInitial
	}
	if ceiling <= 0 {
		ceiling = DefaultReconnectMax
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.Multiplier = 2
	b.MaxInterval = ceiling
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// URLFunc resolves the WebSocket endpoint of a run.
type URLFunc func(runID string) (string, error)

// WebSocket is the gorilla/websocket implementation of Subscriber.
type WebSocket struct {
	URLFor     URLFunc
	Dialer     *websocket.Dialer
	Header     http.Header
	NewBackOff func() backoff.BackOff
	Now        func() time.Time
}

// NewWebSocket returns a subscriber with the default reconnect schedule.
func NewWebSocket(urlFor URLFunc) *WebSocket {
	return &WebSocket{
		URLFor: urlFor,
		Dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		NewBackOff: func() backoff.BackOff {
			return Backoff(DefaultReconnectInitial, DefaultReconnectMax)
		},
		Now: time.Now,
	}
}

// Run dials, reads and reconnects until ctx ends. It returns ctx.Err() on
// cancellation, or an error when the endpoint cannot be resolved at all.
func (w *WebSocket) Run(ctx context.Context, runID string, events chan<- Event) error {
	defer close(events)

	endpoint, err := w.URLFor(runID)
	if err != nil {
		return fmt.Errorf("resolve progress endpoint: %w", err)
	}
	dialer := w.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	newBackOff := w.NewBackOff
	if newBackOff == nil {
		newBackOff = func() backoff.BackOff { return Backoff(0, 0) }
	}
	now := w.Now
	if now == nil {
		now = time.Now
	}

	bo := newBackOff()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !emit(ctx, events, Event{State: StateConnecting}) {
			return ctx.Err()
		}

		conn, _, dialErr := dialer.DialContext(ctx, endpoint, w.Header)
		if dialErr == nil {
			bo.Reset()
			logging.LogEvent("progress: connected run=%s", runID)
			if !emit(ctx, events, Event{State: StateConnected}) {
				_ = conn.Close()
				return ctx.Err()
			}
			dialErr = readLoop(ctx, conn, runID, events, now)
			_ = conn.Close()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.LogEvent("progress: disconnected run=%s err=%v", runID, dialErr)
		if !emit(ctx, events, Event{State: StateDisconnected, Err: dialErr}) {
			return ctx.Err()
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("progress reconnect gave up: %w", dialErr)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

var errClosedByServer = errors.New("progress channel closed by server")

func readLoop(ctx context.Context, conn *websocket.Conn, runID string, events chan<- Event, now func() time.Time) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errClosedByServer
			}
			return err
		}
		msg, err := benchmark.DecodeProgress(data)
		if err != nil {
			logging.LogEvent("progress: skipping invalid message run=%s: %v", runID, err)
			continue
		}
		if msg.RunID != "" && msg.RunID != runID {
			logging.LogEvent("progress: skipping message for run=%s on run=%s", msg.RunID, runID)
			continue
		}
		sample, ok := msg.ToSample(now())
		if !ok {
			continue
		}
		if !emit(ctx, events, Event{State: StateConnected, Sample: &sample}) {
			return ctx.Err()
		}
	}
}

func emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
