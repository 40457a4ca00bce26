// ABOUTME: Tests for the WatchModel inline run display.
// ABOUTME: Validates snapshot handling, rendering, key handling, and helper formatting.
package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/spyglass-sh/spyglass/pipeline"
	"github.com/spyglass-sh/spyglass/watch"
)

func testModel(t *testing.T, prompt string) WatchModel {
	t.Helper()
	client := watch.NewClient(watch.Config{APIKey: "test-key"})
	return NewWatchModel(context.Background(), client, watch.RunRequest{Prompt: prompt})
}

func runningSnapshot() pipeline.Snapshot {
	snap := pipeline.NewSnapshot()
	snap.IsRunning = true
	snap.RunID = "run-1"
	snap.StageStatus[pipeline.StagePlanner] = pipeline.StatusActive
	snap.StageActivity[pipeline.StagePlanner] = 1.0
	snap.Logs = []pipeline.LogEntry{{
		Timestamp: time.Now(),
		Severity:  pipeline.SeverityInfo,
		Message:   "Run started.",
	}}
	return snap
}

func applyMsg(t *testing.T, m WatchModel, msg tea.Msg) (WatchModel, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	wm, ok := updated.(WatchModel)
	if !ok {
		t.Fatalf("Update returned %T, want WatchModel", updated)
	}
	return wm, cmd
}

func TestWatchModel_PromptDialogActiveWithoutPrompt(t *testing.T) {
	m := testModel(t, "")
	if !m.promptInput.IsActive() {
		t.Error("expected prompt dialog to be active with an empty prompt")
	}
	if !strings.Contains(m.View(), "What should the pipeline build?") {
		t.Error("expected prompt dialog in view")
	}
}

func TestWatchModel_PromptDialogInactiveWithPrompt(t *testing.T) {
	m := testModel(t, "build a todo app")
	if m.promptInput.IsActive() {
		t.Error("expected prompt dialog to be inactive when a prompt is supplied")
	}
}

func TestWatchModel_SnapshotUpdatesView(t *testing.T) {
	m := testModel(t, "build it")

	m, cmd := applyMsg(t, m, SnapshotMsg{Snapshot: runningSnapshot()})
	if cmd == nil {
		t.Fatal("expected a follow-up wait command while still running")
	}

	view := m.View()
	if !strings.Contains(view, "run-1") {
		t.Errorf("expected run id in view: %s", view)
	}
	if !strings.Contains(view, "planner") {
		t.Errorf("expected planner stage line: %s", view)
	}
	if !strings.Contains(view, "running...") {
		t.Errorf("expected running marker for active stage: %s", view)
	}
	if !strings.Contains(view, "Run started.") {
		t.Errorf("expected log entry in view: %s", view)
	}
}

func TestWatchModel_TerminalSnapshotQuits(t *testing.T) {
	m := testModel(t, "build it")
	m, _ = applyMsg(t, m, SnapshotMsg{Snapshot: runningSnapshot()})

	done := runningSnapshot()
	done.IsRunning = false
	done.StageStatus[pipeline.StagePlanner] = pipeline.StatusCompleted

	m, cmd := applyMsg(t, m, SnapshotMsg{Snapshot: done})
	if !m.done {
		t.Error("expected model to be done after a terminal snapshot")
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.Quit after a terminal snapshot")
	}
}

func TestWatchModel_ErrReportsFailure(t *testing.T) {
	m := testModel(t, "build it")
	m, _ = applyMsg(t, m, SnapshotMsg{Snapshot: runningSnapshot()})

	failed := runningSnapshot()
	failed.IsRunning = false
	failed.StageStatus[pipeline.StagePlanner] = pipeline.StatusError
	failed.LastErrorMessage = "Provider connection failed."

	m, _ = applyMsg(t, m, SnapshotMsg{Snapshot: failed})
	if err := m.Err(); err == nil || !strings.Contains(err.Error(), "Provider connection failed.") {
		t.Errorf("Err() = %v, want the failure message", err)
	}
	if !strings.Contains(m.View(), "FAILED") {
		t.Error("expected FAILED marker in terminal view")
	}
}

func TestWatchModel_StartFailedQuits(t *testing.T) {
	m := testModel(t, "build it")
	m, cmd := applyMsg(t, m, StartFailedMsg{Err: watch.ErrEmptyPrompt})
	if m.Err() == nil {
		t.Error("expected Err() to surface the start failure")
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.Quit after a start failure")
	}
}

func TestWatchModel_TickAdvancesSpinner(t *testing.T) {
	m := testModel(t, "build it")
	before := m.spinnerIdx
	m, cmd := applyMsg(t, m, TickMsg{Time: time.Now()})
	if m.spinnerIdx != before+1 {
		t.Errorf("spinner index = %d, want %d", m.spinnerIdx, before+1)
	}
	if cmd == nil {
		t.Error("expected another tick while not done")
	}
}

func TestWatchModel_TickStopsWhenDone(t *testing.T) {
	m := testModel(t, "build it")
	m.done = true
	if _, cmd := applyMsg(t, m, TickMsg{Time: time.Now()}); cmd != nil {
		t.Error("expected no further ticks once done")
	}
}

func TestWatchModel_CtrlCBeforeStartQuits(t *testing.T) {
	m := testModel(t, "build it")
	_, cmd := applyMsg(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.Quit when nothing is running")
	}
}

func TestWatchModel_CtrlCDuringRunCancelsWithoutQuitting(t *testing.T) {
	m := testModel(t, "build it")
	m, _ = applyMsg(t, m, SnapshotMsg{Snapshot: runningSnapshot()})

	m, cmd := applyMsg(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd != nil {
		t.Error("cancel should wait for the terminal snapshot instead of quitting")
	}
	if m.done {
		t.Error("model must stay live until the cancelled snapshot arrives")
	}
}

func TestWatchModel_EnterSubmitsPrompt(t *testing.T) {
	m := testModel(t, "")
	m.promptInput.textInput.SetValue("ship the feature")

	m, cmd := applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.promptInput.IsActive() {
		t.Error("expected prompt dialog to close after submit")
	}
	if cmd == nil {
		t.Fatal("expected a command after submit")
	}
	submitted, ok := cmd().(PromptSubmittedMsg)
	if !ok {
		t.Fatalf("expected PromptSubmittedMsg, got %T", cmd())
	}
	if submitted.Prompt != "ship the feature" {
		t.Errorf("submitted prompt = %q", submitted.Prompt)
	}

	m, cmd = applyMsg(t, m, submitted)
	if m.req.Prompt != "ship the feature" {
		t.Errorf("request prompt = %q", m.req.Prompt)
	}
	if cmd == nil {
		t.Error("expected a start command after the submitted prompt")
	}
}

func TestWatchModel_EnterWithEmptyInputKeepsDialog(t *testing.T) {
	m := testModel(t, "")
	m, cmd := applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if !m.promptInput.IsActive() {
		t.Error("expected dialog to stay active on empty submit")
	}
	if cmd != nil {
		t.Error("expected no command on empty submit")
	}
}

func TestActivityBar(t *testing.T) {
	tests := []struct {
		score  float64
		filled int
	}{
		{0, 0},
		{0.5, 5},
		{1.0, 10},
		{-1, 0},
		{2.5, 10},
	}
	for _, tt := range tests {
		bar := activityBar(tt.score)
		if got := strings.Count(bar, "▰"); got != tt.filled {
			t.Errorf("activityBar(%v) filled = %d, want %d", tt.score, got, tt.filled)
		}
		if total := strings.Count(bar, "▰") + strings.Count(bar, "▱"); total != activityBarCells {
			t.Errorf("activityBar(%v) width = %d, want %d", tt.score, total, activityBarCells)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{100 * time.Millisecond, "0.1s"},
		{2300 * time.Millisecond, "2.3s"},
		{15 * time.Second, "15s"},
		{90 * time.Second, "1m30s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
