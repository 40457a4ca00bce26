// ABOUTME: WatchModel is an inline Bubble Tea model for streaming pipeline run progress to the terminal.
// ABOUTME: Displays stage status, activity bars, elapsed times, spinners, and a log tail without alt-screen.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/spyglass-sh/spyglass/pipeline"
	"github.com/spyglass-sh/spyglass/watch"
)

// logTailLines limits the number of log lines shown under the stage list.
const logTailLines = 8

// activityBarCells is the width of the per-stage activity bar.
const activityBarCells = 10

// SpinnerFrames contains the Braille-dot animation frames for indicating
// active stages.
var SpinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// WatchModel is an inline (non-alt-screen) Bubble Tea model that displays a
// pipeline run as a streaming list of stages with status indicators, activity
// bars, elapsed times, and a log tail.
type WatchModel struct {
	client *watch.Client
	sub    <-chan pipeline.Snapshot
	ctx    context.Context
	req    watch.RunRequest

	snap pipeline.Snapshot

	promptInput PromptInputModel
	statusBar   StatusBarModel
	logPanel    LogPanelModel

	// Per-stage timing derived from observed status transitions.
	startedAt map[pipeline.Stage]time.Time
	durations map[pipeline.Stage]time.Duration

	spinnerIdx int
	runStart   time.Time
	started    bool
	done       bool
	startErr   error

	width int
}

// NewWatchModel creates a WatchModel for the given controller and request.
// An empty request prompt activates the interactive prompt dialog first.
func NewWatchModel(ctx context.Context, client *watch.Client, req watch.RunRequest) WatchModel {
	if ctx == nil {
		ctx = context.Background()
	}

	m := WatchModel{
		client:      client,
		sub:         client.Subscribe(),
		ctx:         ctx,
		req:         req,
		snap:        pipeline.NewSnapshot(),
		promptInput: NewPromptInputModel(),
		statusBar:   NewStatusBarModel(req.WorkspaceID),
		logPanel:    NewLogPanelModel(200),
		startedAt:   make(map[pipeline.Stage]time.Time),
		durations:   make(map[pipeline.Stage]time.Duration),
	}
	if strings.TrimSpace(req.Prompt) == "" {
		m.promptInput.SetActive()
	}
	return m
}

// Err returns the terminal error, if any, for the caller to report after
// tea.Program.Run() completes.
func (m WatchModel) Err() error {
	if m.startErr != nil {
		return m.startErr
	}
	if m.snap.LastErrorMessage != "" {
		return fmt.Errorf("%s", m.snap.LastErrorMessage)
	}
	return nil
}

// Init implements tea.Model. Starts the run immediately when a prompt was
// supplied; otherwise the prompt dialog takes the first keystrokes.
func (m WatchModel) Init() tea.Cmd {
	cmds := []tea.Cmd{
		WaitForSnapshotCmd(m.sub),
		TickCmd(100 * time.Millisecond),
	}
	if !m.promptInput.IsActive() {
		cmds = append(cmds, StartRunCmd(m.ctx, m.client, m.req))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model. Routes incoming messages to appropriate handlers.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.statusBar.SetWidth(msg.Width)
		m.logPanel.SetSize(msg.Width, logTailLines+3)
		return m, nil

	case SnapshotMsg:
		return m.handleSnapshot(msg.Snapshot)

	case StreamClosedMsg:
		m.done = true
		return m, tea.Quit

	case StartFailedMsg:
		m.startErr = msg.Err
		m.done = true
		return m, tea.Quit

	case PromptSubmittedMsg:
		m.req.Prompt = msg.Prompt
		return m, StartRunCmd(m.ctx, m.client, m.req)

	case TickMsg:
		return m.handleTick()

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	return m, nil
}

// View implements tea.Model. Renders the inline streaming progress display.
func (m WatchModel) View() string {
	if m.promptInput.IsActive() {
		return m.promptInput.View() + "\n"
	}

	var b strings.Builder

	b.WriteString(TitleStyle.Render("spyglass"))
	if m.snap.RunID != "" {
		b.WriteString(IdleStyle.Render(fmt.Sprintf("  run %s", m.snap.RunID)))
	}
	b.WriteString("\n\n")

	for _, stage := range pipeline.Stages {
		b.WriteString(m.renderStageLine(stage))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.logPanel.Len() > 0 {
		b.WriteString(m.logPanel.View())
		b.WriteString("\n")
	}
	b.WriteString(m.renderProgressLine())
	b.WriteString("\n")
	b.WriteString(m.statusBar.View())
	b.WriteString("\n")

	return b.String()
}

// handleSnapshot folds a controller snapshot into display state.
func (m WatchModel) handleSnapshot(snap pipeline.Snapshot) (tea.Model, tea.Cmd) {
	if !m.started && snap.IsRunning {
		m.started = true
		m.runStart = time.Now()
		m.statusBar.Start()
	}

	// Track per-stage elapsed time from observed transitions.
	for _, stage := range pipeline.Stages {
		prev := m.snap.StageStatus[stage]
		next := snap.StageStatus[stage]
		if prev == next {
			continue
		}
		switch next {
		case pipeline.StatusActive:
			m.startedAt[stage] = time.Now()
		case pipeline.StatusCompleted, pipeline.StatusError:
			if start, ok := m.startedAt[stage]; ok {
				m.durations[stage] = time.Since(start)
			}
		}
	}

	m.snap = snap
	m.statusBar.SetState(m.client.State().String())
	m.statusBar.SetActiveStage(snap.ActiveStage)
	m.logPanel.SetEntries(snap.Logs)

	if m.started && !snap.IsRunning {
		m.done = true
		return m, tea.Quit
	}
	return m, WaitForSnapshotCmd(m.sub)
}

// handleTick advances the spinner and returns a new tick if still running.
func (m WatchModel) handleTick() (tea.Model, tea.Cmd) {
	m.spinnerIdx++
	if m.done {
		return m, nil
	}
	return m, TickCmd(100 * time.Millisecond)
}

// handleKeyMsg processes keyboard input.
func (m WatchModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.promptInput.IsActive() {
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "enter":
			prompt, ok := m.promptInput.Submit()
			if !ok {
				return m, nil
			}
			return m, func() tea.Msg { return PromptSubmittedMsg{Prompt: prompt} }
		}
		m.promptInput = m.promptInput.Update(msg)
		return m, nil
	}

	switch msg.String() {
	case "ctrl+c":
		if m.started && !m.done {
			// The controller emits the terminal cancelled snapshot, which
			// quits the loop through handleSnapshot.
			m.client.Cancel("keyboard interrupt")
			return m, nil
		}
		return m, tea.Quit
	case "q":
		if m.done {
			return m, tea.Quit
		}
	}

	return m, nil
}

// renderStageLine renders a single stage's status line.
func (m WatchModel) renderStageLine(stage pipeline.Stage) string {
	status := m.snap.StageStatus[stage]
	style := StyleForStatus(status)

	marker := status.Icon()
	if status == pipeline.StatusActive {
		marker = SpinnerFrames[m.spinnerIdx%len(SpinnerFrames)]
	}

	line := fmt.Sprintf("  %s %-10s %s", marker, stage, activityBar(m.snap.StageActivity[stage]))

	switch status {
	case pipeline.StatusActive:
		line += "  running..."
	case pipeline.StatusCompleted:
		if dur, ok := m.durations[stage]; ok {
			line += fmt.Sprintf("  %s", formatDuration(dur))
		} else {
			line += "  done"
		}
	case pipeline.StatusError:
		line += "  failed"
	}

	return style.Render(line)
}

// renderProgressLine renders the bottom progress/completion line.
func (m WatchModel) renderProgressLine() string {
	if !m.started {
		return IdleStyle.Render("  waiting for run to start...")
	}

	completed := 0
	for _, stage := range pipeline.Stages {
		if m.snap.StageStatus[stage] == pipeline.StatusCompleted {
			completed++
		}
	}
	elapsedStr := formatDuration(time.Since(m.runStart))

	if m.done {
		if m.snap.LastErrorMessage != "" {
			return ErrorStyle.Render(
				fmt.Sprintf("  ✗ %d/%d stages · %s · FAILED: %s",
					completed, len(pipeline.Stages), elapsedStr, m.snap.LastErrorMessage))
		}
		return CompletedStyle.Render(
			fmt.Sprintf("  ✓ %d/%d stages · %s", completed, len(pipeline.Stages), elapsedStr))
	}

	return IdleStyle.Render(
		fmt.Sprintf("  %d/%d stages · %s elapsed", completed, len(pipeline.Stages), elapsedStr))
}

// activityBar renders a fixed-width bar for an activity score in [0, 1].
func activityBar(score float64) string {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	filled := int(score*float64(activityBarCells) + 0.5)
	return strings.Repeat("▰", filled) + strings.Repeat("▱", activityBarCells-filled)
}

// formatDuration formats a duration as a human-readable string like "0.1s" or "2.3s".
func formatDuration(d time.Duration) string {
	secs := d.Seconds()
	if secs < 10 {
		return fmt.Sprintf("%.1fs", secs)
	}
	if secs < 60 {
		return fmt.Sprintf("%.0fs", secs)
	}
	mins := int(secs) / 60
	remainSecs := int(secs) % 60
	return fmt.Sprintf("%dm%02ds", mins, remainSecs)
}
