// ABOUTME: Bubble Tea message types used in the watch display message loop.
// ABOUTME: Each type wraps domain events for the tea.Msg interface (which is interface{}).
package tui

import (
	"time"

	"github.com/spyglass-sh/spyglass/pipeline"
)

// SnapshotMsg carries a fresh run snapshot from the controller's
// subscription channel into the Bubble Tea message loop.
type SnapshotMsg struct {
	Snapshot pipeline.Snapshot
}

// StreamClosedMsg signals that the snapshot subscription channel was closed
// and no further updates will arrive.
type StreamClosedMsg struct{}

// StartFailedMsg reports a run that was rejected before any network activity.
type StartFailedMsg struct {
	Err error
}

// TickMsg is sent periodically to update timers and spinners.
type TickMsg struct {
	Time time.Time
}

// PromptSubmittedMsg carries the prompt text entered interactively.
type PromptSubmittedMsg struct {
	Prompt string
}
