// ABOUTME: Bridge connecting the watch controller to the Bubble Tea message loop.
// ABOUTME: Provides tea.Cmd factories for starting runs, awaiting snapshots, and ticks.
package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/spyglass-sh/spyglass/pipeline"
	"github.com/spyglass-sh/spyglass/watch"
)

// StartRunCmd returns a tea.Cmd that submits the run request. The controller
// streams snapshots on its own; a rejected request surfaces as StartFailedMsg.
func StartRunCmd(ctx context.Context, client *watch.Client, req watch.RunRequest) tea.Cmd {
	return func() tea.Msg {
		if _, err := client.Start(ctx, req); err != nil {
			return StartFailedMsg{Err: err}
		}
		return nil
	}
}

// WaitForSnapshotCmd returns a tea.Cmd that blocks on the subscription channel
// and sends a SnapshotMsg when the next snapshot arrives. The model re-issues
// the command after each message to keep the loop alive.
func WaitForSnapshotCmd(ch <-chan pipeline.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return StreamClosedMsg{}
		}
		return SnapshotMsg{Snapshot: snap}
	}
}

// TickCmd returns a tea.Cmd that sends a TickMsg after the given interval.
// Used for spinner animation and elapsed-time refreshes.
func TickCmd(interval time.Duration) tea.Cmd {
	return func() tea.Msg {
		time.Sleep(interval)
		return TickMsg{Time: time.Now()}
	}
}
