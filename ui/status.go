package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"

	"github.com/lectorapp/lector/playback"
)

var (
	statusBarBg     = lipgloss.AdaptiveColor{Light: "#E6E6E6", Dark: "#242424"}
	statusBarNoteFg = lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}

	titleBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#89F0CB"}).
			Background(statusBarBg).
			Bold(true).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(statusBarNoteFg).
			Background(statusBarBg).
			Padding(0, 1)

	statusBarFlashStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#89F0CB", Dark: "#89F0CB"}).
				Background(lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#1C8760"}).
				Padding(0, 1)
)

func titleBar(title string, width int) string {
	return titleBarStyle.Width(width).Render(truncate.StringWithTail(title, uint(max(width-2, 0)), "…"))
}

func (m *model) statusBar() string {
	if m.flash != "" {
		return statusBarFlashStyle.Width(m.width).Render(
			truncate.StringWithTail(m.flash, uint(max(m.width-2, 0)), "…"))
	}

	parts := []string{transportStatus(m.state, m.capturing), m.pager.status()}
	if m.state.Status != playback.StatusIdle && m.state.Mode == playback.ModeRecorded {
		parts = append(parts, formatClock(m.state.Position))
	}
	line := strings.Join(parts, "  ·  ")
	return statusBarStyle.Width(m.width).Render(
		truncate.StringWithTail(line, uint(max(m.width-2, 0)), "…"))
}

func transportStatus(st playback.State, capturing bool) string {
	if capturing {
		return "● capturing"
	}
	switch st.Status {
	case playback.StatusPlaying:
		return "▶ " + st.Mode.String()
	case playback.StatusPaused:
		return "‖ paused"
	default:
		return "■ stopped"
	}
}

func formatClock(d time.Duration) string {
	d = d.Round(time.Second)
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", m, s)
}

func captureSummary(msg capturedMsg) string {
	return fmt.Sprintf("exported note %d (%s audio)",
		msg.noteID, humanize.Bytes(uint64(msg.bytes)))
}
