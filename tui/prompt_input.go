// ABOUTME: PromptInputModel renders a styled text input dialog for entering the job prompt.
// ABOUTME: Used when spyglass starts without a prompt flag; Enter submits, the watch view takes over.
package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// PromptInputModel collects the job prompt interactively before a run starts.
type PromptInputModel struct {
	textInput textinput.Model
	active    bool
}

// NewPromptInputModel creates a PromptInputModel with an initialized text input.
func NewPromptInputModel() PromptInputModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Describe the job to run..."
	return PromptInputModel{textInput: ti}
}

// SetActive focuses the dialog so keystrokes flow into the text input.
func (m *PromptInputModel) SetActive() {
	m.active = true
	m.textInput.Focus()
}

// IsActive returns true while the dialog is collecting input.
func (m PromptInputModel) IsActive() bool {
	return m.active
}

// Submit deactivates the dialog and returns the trimmed prompt text.
// An empty submission keeps the dialog active.
func (m *PromptInputModel) Submit() (string, bool) {
	prompt := strings.TrimSpace(m.textInput.Value())
	if prompt == "" {
		return "", false
	}
	m.active = false
	m.textInput.Blur()
	m.textInput.SetValue("")
	return prompt, true
}

// Update routes key messages to the underlying text input.
func (m PromptInputModel) Update(msg tea.Msg) PromptInputModel {
	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	_ = cmd // textinput blink commands are not needed in the inline view
	return m
}

// View renders the dialog.
func (m PromptInputModel) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("What should the pipeline build?"))
	b.WriteString("\n\n")
	b.WriteString(m.textInput.View())
	b.WriteString("\n\n")
	b.WriteString(IdleStyle.Render("Enter to start, ctrl+c to quit"))
	return PromptInputStyle.Render(b.String())
}
