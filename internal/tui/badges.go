// internal/tui/badges.go
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/mwiater/sweepwatch/internal/benchmark"
	"github.com/mwiater/sweepwatch/internal/progress"
)

// statusColor picks the badge background for a run status.
func statusColor(status benchmark.Status) lipgloss.Color {
	switch status {
	case benchmark.StatusRunning:
		return lipgloss.Color("33")
	case benchmark.StatusCompleted:
		return lipgloss.Color("40")
	case benchmark.StatusFailed:
		return lipgloss.Color("160")
	case benchmark.StatusStopped:
		return lipgloss.Color("214")
	default:
		return lipgloss.Color("244")
	}
}

// statusLabel is "running" while executing and "finished" for every terminal
// status except failure, which gets its own label.
func statusLabel(status benchmark.Status) string {
	switch {
	case status == benchmark.StatusFailed:
		return "failed"
	case status.Terminal():
		return "finished (" + string(status) + ")"
	case status == "":
		return "loading"
	default:
		return string(status)
	}
}

// renderStatusBadge returns a Lipgloss-styled badge string for the run status.
func renderStatusBadge(status benchmark.Status) string {
	badgeStyle := lipgloss.NewStyle().Background(statusColor(status)).Foreground(lipgloss.Color("0")).Padding(0, 1).MarginLeft(1)
	return badgeStyle.Render(statusLabel(status))
}

// connectivityLabel is "live" only while the push channel is connected.
func connectivityLabel(state progress.State) string {
	if state == progress.StateConnected {
		return "live"
	}
	return "polling"
}

// renderConnectivityBadge returns a Lipgloss-styled badge string for the push channel.
func renderConnectivityBadge(state progress.State) string {
	bg := lipgloss.Color("255")
	if state == progress.StateConnected {
		bg = lipgloss.Color("229")
	}
	badgeStyle := lipgloss.NewStyle().Background(bg).Foreground(lipgloss.Color("0")).Padding(0, 1)
	return badgeStyle.Render(connectivityLabel(state))
}
