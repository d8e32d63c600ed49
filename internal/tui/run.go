// internal/tui/run.go
package tui

import (
	"context"
	"errors"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mwiater/sweepwatch/internal/session"
)

// Options selects how a watch is rendered.
type Options struct {
	// Plain writes one line per change to Out instead of using the alt screen.
	Plain bool
	// JSON implies Plain and emits one JSON object per change.
	JSON bool
	// QuitOnDone ends the full-screen view once the run is finished.
	QuitOnDone bool
	Out        io.Writer
}

// Watch runs the Bubble Tea program for s until the user quits, ctx ends, or
// (in plain mode) the run finishes. The session is always closed on return.
func Watch(ctx context.Context, s *session.Session, opts Options) error {
	defer s.Close()

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	var (
		m       tea.Model
		progOps = []tea.ProgramOption{tea.WithContext(ctx), tea.WithOutput(out)}
	)
	if opts.Plain || opts.JSON {
		m = newPlainModel(s, out, opts.JSON)
		progOps = append(progOps, tea.WithoutRenderer(), tea.WithInput(nil))
	} else {
		m = newModel(s, opts.QuitOnDone)
		progOps = append(progOps, tea.WithAltScreen())
	}

	_, err := tea.NewProgram(m, progOps...).Run()
	if err != nil && (errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, context.Canceled)) {
		return nil
	}
	return err
}
