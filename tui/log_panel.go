// ABOUTME: Implements a scrollable run log panel using the bubbles viewport component.
// ABOUTME: Displays snapshot log entries with color-coded formatting based on severity.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"

	"github.com/spyglass-sh/spyglass/pipeline"
)

// LogPanelModel is a scrollable log that displays run log entries.
type LogPanelModel struct {
	entries  []pipeline.LogEntry
	max      int
	viewport viewport.Model
	width    int
	height   int
}

// NewLogPanelModel creates a new log panel with a maximum number of entries.
// If maxEntries is <= 0, it defaults to 200.
func NewLogPanelModel(maxEntries int) LogPanelModel {
	if maxEntries <= 0 {
		maxEntries = 200
	}
	vp := viewport.New(80, 10)
	return LogPanelModel{
		entries:  make([]pipeline.LogEntry, 0, maxEntries),
		max:      maxEntries,
		viewport: vp,
	}
}

// SetEntries replaces the panel content with the tail of the given log,
// keeping at most the panel's capacity.
func (m *LogPanelModel) SetEntries(entries []pipeline.LogEntry) {
	if len(entries) > m.max {
		entries = entries[len(entries)-m.max:]
	}
	m.entries = append(m.entries[:0], entries...)
	m.syncViewport()
}

// Len returns the number of entries in the log.
func (m LogPanelModel) Len() int {
	return len(m.entries)
}

// SetSize sets the available dimensions and updates the viewport.
func (m *LogPanelModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	// Reserve space for the border (2 lines top/bottom) and title (1 line)
	vpWidth := w - 2
	vpHeight := h - 3
	if vpWidth < 1 {
		vpWidth = 1
	}
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.viewport.Width = vpWidth
	m.viewport.Height = vpHeight
	m.syncViewport()
}

// View renders the log panel.
func (m LogPanelModel) View() string {
	var content string
	if len(m.entries) == 0 {
		content = "No log entries yet"
	} else {
		content = m.viewport.View()
	}

	rendered := TitleStyle.Render("RUN LOG") + "\n" + content

	return BorderStyle.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(rendered)
}

// syncViewport rebuilds the viewport content from entries and scrolls to the bottom.
func (m *LogPanelModel) syncViewport() {
	if len(m.entries) == 0 {
		m.viewport.SetContent("")
		return
	}
	var lines []string
	for _, entry := range m.entries {
		lines = append(lines, formatEntry(entry))
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.viewport.GotoBottom()
}

// formatEntry formats a single log entry as a display line.
func formatEntry(entry pipeline.LogEntry) string {
	ts := LogTimestampStyle.Render(entry.Timestamp.Format("15:04:05"))
	msg := StyleForSeverity(entry.Severity).Render(entry.Message)

	parts := []string{ts}
	if entry.Stage != "" {
		parts = append(parts, fmt.Sprintf("[%s]", entry.Stage))
	}
	parts = append(parts, msg)
	if entry.Hint != "" {
		parts = append(parts, LogHintStyle.Render("hint: "+entry.Hint))
	}

	return strings.Join(parts, " ")
}
