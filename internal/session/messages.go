package session

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mwiater/sweepwatch/internal/benchmark"
	"github.com/mwiater/sweepwatch/internal/progress"
)

// Every message carries the id of the session that produced it, and timers
// carry the generation they were armed for.

type statusTickMsg struct {
	session string
	gen     int
}

type statusMsg struct {
	session string
	seq     int64
	status  benchmark.RunStatus
	err     error
}

type snapshotTickMsg struct {
	session string
	gen     int
}

type snapshotMsg struct {
	session       string
	afterTerminal bool
	result        benchmark.Result
	err           error
}

type progressMsg struct {
	session string
	gen     int
	ch      <-chan progress.Event
	events  []progress.Event
	ok      bool
}

type clockTickMsg struct {
	session string
	gen     int
}

// waitForProgress reads the next event plus whatever else is already
// buffered, so a burst of samples costs one Update.
func waitForProgress(session string, gen int, ch <-chan progress.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return progressMsg{session: session, gen: gen, ch: ch, ok: false}
		}

		events := make([]progress.Event, 0, 16)
		events = append(events, event)
		for len(events) < 64 {
			select {
			case next, ok := <-ch:
				if !ok {
					return progressMsg{session: session, gen: gen, ch: ch, events: events, ok: true}
				}
				events = append(events, next)
			default:
				return progressMsg{session: session, gen: gen, ch: ch, events: events, ok: true}
			}
		}
		return progressMsg{session: session, gen: gen, ch: ch, events: events, ok: true}
	}
}
