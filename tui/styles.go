// ABOUTME: Defines lipgloss style constants for the watch display, stage colors, and log formatting.
// ABOUTME: Provides StyleForStatus to map pipeline stage statuses to their corresponding display styles.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/spyglass-sh/spyglass/pipeline"
)

var (
	// Panel borders
	BorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62"))

	// Title styling
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	// Stage status colors
	IdleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	ActiveStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	CompletedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	ErrorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	// Log entry colors
	LogTimestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	LogInfoStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	LogWarnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	LogErrorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	LogHintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)

	// Status bar
	StatusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	// Prompt input dialog
	PromptInputStyle = lipgloss.NewStyle().
				Border(lipgloss.DoubleBorder()).
				BorderForeground(lipgloss.Color("214")).
				Padding(1, 2)
)

// StyleForStatus returns the appropriate lipgloss style for a stage status.
func StyleForStatus(status pipeline.StageStatus) lipgloss.Style {
	switch status {
	case pipeline.StatusIdle:
		return IdleStyle
	case pipeline.StatusActive:
		return ActiveStyle
	case pipeline.StatusCompleted:
		return CompletedStyle
	case pipeline.StatusError:
		return ErrorStyle
	default:
		return IdleStyle
	}
}

// StyleForSeverity returns the log-line style for an entry severity.
func StyleForSeverity(sev pipeline.Severity) lipgloss.Style {
	switch sev {
	case pipeline.SeverityWarn:
		return LogWarnStyle
	case pipeline.SeverityError:
		return LogErrorStyle
	default:
		return LogInfoStyle
	}
}
