// ABOUTME: Implements a single-line status bar for the bottom of the watch display.
// ABOUTME: Displays run state, elapsed time, workspace, and the currently active stage.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/spyglass-sh/spyglass/pipeline"
)

// StatusBarModel displays run status in a single line.
type StatusBarModel struct {
	workspace   string
	startTime   time.Time
	state       string
	activeStage pipeline.Stage
	width       int
}

// NewStatusBarModel creates a new StatusBarModel for the given workspace.
func NewStatusBarModel(workspace string) StatusBarModel {
	return StatusBarModel{workspace: workspace, state: "idle"}
}

// Start records the run start time.
func (m *StatusBarModel) Start() {
	m.startTime = time.Now()
}

// SetState updates the displayed run state.
func (m *StatusBarModel) SetState(state string) {
	m.state = state
}

// SetActiveStage sets the currently active stage.
func (m *StatusBarModel) SetActiveStage(stage pipeline.Stage) {
	m.activeStage = stage
}

// SetWidth sets the bar width for rendering.
func (m *StatusBarModel) SetWidth(w int) {
	m.width = w
}

// Elapsed returns the time since Start() was called, or zero if not started.
func (m StatusBarModel) Elapsed() time.Duration {
	if m.startTime.IsZero() {
		return 0
	}
	return time.Since(m.startTime)
}

// formatElapsed formats a duration as a human-readable string.
// Durations under a minute show as seconds (e.g. "12s").
// Durations of a minute or more show as minutes and seconds (e.g. "2m30s").
func formatElapsed(d time.Duration) string {
	d = d.Truncate(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) - minutes*60
	return fmt.Sprintf("%dm%ds", minutes, seconds)
}

// View renders the status bar as a single styled line.
func (m StatusBarModel) View() string {
	active := string(m.activeStage)
	if active == "" {
		active = "none"
	}

	workspace := m.workspace
	if workspace == "" {
		workspace = "default"
	}

	content := fmt.Sprintf("Workspace: %s | State: %s | Elapsed: %s | Active: %s",
		workspace, m.state, formatElapsed(m.Elapsed()), active)

	style := StatusBarStyle.Width(m.width)

	return lipgloss.PlaceHorizontal(m.width, lipgloss.Left, style.Render(content))
}
