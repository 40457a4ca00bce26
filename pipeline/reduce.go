// ABOUTME: Pure reducer folding decoded frames into the run snapshot, with the log inclusion policy.
// ABOUTME: Bulk maps apply before single-stage overlays; the active stage is always derived, never stored.

package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// tokenLogInterval controls how often token-stream frames are admitted to
// the log. Frames whose token text ends a sentence or line are admitted
// regardless, so the tail of a burst is never lost.
const tokenLogInterval = 25

// Apply folds one frame into the snapshot and returns the successor
// snapshot. It performs no I/O and keeps no state outside its arguments, so
// the same snapshot and frame always produce the same stage view.
func Apply(snap Snapshot, frame Frame) Snapshot {
	next := snap.Clone()
	p := frame.Payload

	if p.RunID != "" {
		next.RunID = p.RunID
	}
	if p.WorkspaceID != "" {
		next.WorkspaceID = p.WorkspaceID
	}

	// Bulk maps carry the server's authoritative full picture; apply them
	// before any single-stage overlay. Unknown stage ids are ignored.
	for id, state := range p.NodeStates {
		stage, known := ParseStage(id)
		if !known {
			continue
		}
		if status, ok := ParseStageStatus(state); ok {
			setStatus(next.StageStatus, stage, status)
		}
	}
	for id, score := range p.ActivityByNode {
		if stage, known := ParseStage(id); known {
			next.StageActivity[stage] = clamp01(score)
		}
	}

	// Single-stage overlay from the frame's own node/state fields.
	if stage, known := ParseStage(p.Node); known {
		if status, ok := ParseStageStatus(p.State); ok {
			setStatus(next.StageStatus, stage, status)
			if status == StatusActive {
				completeEarlierStages(next.StageStatus, stage)
			}
		}
		if p.ActivityScore != nil {
			next.StageActivity[stage] = clamp01(*p.ActivityScore)
		}
	}

	switch frame.Type {
	case FrameRunStarted:
		next.IsRunning = true

	case FrameRunComplete:
		for _, stage := range Stages {
			if next.StageStatus[stage] == StatusActive {
				next.StageStatus[stage] = StatusCompleted
			}
		}
		next.IsRunning = false

	case FrameError:
		if active := firstActiveStage(next.StageStatus); active != "" {
			next.StageStatus[active] = StatusError
			next.StageActivity[active] = 0
		}
		next.IsRunning = false
		next.LastErrorMessage = failureMessage(p)

	case FrameRunCancelled:
		next.IsRunning = false
	}

	next.ActiveStage = firstActiveStage(next.StageStatus)

	if entry, ok := logEntryFor(frame); ok {
		next.Logs = append(next.Logs, entry)
	}

	return next
}

// setStatus applies a status transition. Error is sticky: nothing short of a
// full run reset moves a stage out of it, and no transition returns a stage
// to idle once the run has touched it.
func setStatus(statuses map[Stage]StageStatus, stage Stage, status StageStatus) {
	current := statuses[stage]
	if current == StatusError {
		return
	}
	if status == StatusIdle && current != StatusIdle {
		return
	}
	statuses[stage] = status
}

// completeEarlierStages forces every stage that causally precedes the newly
// active one to completed. The producer does not always emit an explicit end
// event for a finished stage before starting the next; this compensates.
// Stages already in error keep it.
func completeEarlierStages(statuses map[Stage]StageStatus, active Stage) {
	limit := stageIndex(active)
	for i := 0; i < limit; i++ {
		if statuses[Stages[i]] != StatusError {
			statuses[Stages[i]] = StatusCompleted
		}
	}
}

// firstActiveStage derives the active-stage pointer: the first stage, in
// pipeline order, whose status is active.
func firstActiveStage(statuses map[Stage]StageStatus) Stage {
	for _, stage := range Stages {
		if statuses[stage] == StatusActive {
			return stage
		}
	}
	return ""
}

// failureMessage builds LastErrorMessage from a terminal failure frame,
// appending the hint when it adds information.
func failureMessage(p EventPayload) string {
	msg := strings.TrimSpace(p.Message)
	if msg == "" {
		msg = "Run failed."
	}
	if p.Hint != "" && !strings.Contains(msg, p.Hint) {
		msg = msg + " " + p.Hint
	}
	return msg
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// logEntryFor decides whether a frame becomes a visible log line and, if so,
// synthesizes its entry. Admission policy: warn/error severity always;
// run-boundary frames always; start/end frames for known stages; token
// frames only at the throttle interval or on sentence/line ends. Everything
// else (debug chatter, telemetry) stays out of the log.
func logEntryFor(frame Frame) (LogEntry, bool) {
	p := frame.Payload

	severity := normalizeSeverity(p.Severity)
	admit := severity == SeverityWarn || severity == SeverityError

	switch frame.Type {
	case FrameRunStarted, FrameRunComplete, FrameError, FrameRunCancelled:
		admit = true
	case FrameNodeStart, FrameNodeEnd:
		if _, known := ParseStage(p.Node); known {
			admit = true
		}
	case FrameTokenStream:
		admit = admit || admitToken(p)
	}

	if !admit {
		return LogEntry{}, false
	}

	entry := LogEntry{
		ID:        newLogID(),
		Type:      frame.Type,
		Timestamp: frameTime(p),
		Severity:  severity,
		Message:   synthesizeMessage(frame),
		Details:   p.Details,
		Hint:      p.Hint,
	}
	if stage, known := ParseStage(p.Node); known {
		entry.Stage = stage
		entry.Status = p.State
	}
	if p.ActivityScore != nil {
		score := clamp01(*p.ActivityScore)
		entry.Activity = &score
	}
	if kind, ok := KnownKind(p.ErrorType); ok {
		entry.ErrorKind = kind
	}
	if frame.Type == FrameError && severity != SeverityError {
		entry.Severity = SeverityError
	}
	return entry, true
}

// admitToken throttles high-frequency token frames: one per interval, plus
// any token that closes a sentence or line.
func admitToken(p EventPayload) bool {
	if idx, ok := detailInt(p.Details, "token_index"); ok && idx%tokenLogInterval == 0 {
		return true
	}
	trimmed := strings.TrimRight(p.Token, " ")
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?', '\n':
		return true
	}
	return false
}

// synthesizeMessage builds the log line text per frame type rather than
// passing upstream wording through, so the log stays readable even when the
// server changes its phrasing.
func synthesizeMessage(frame Frame) string {
	p := frame.Payload

	switch frame.Type {
	case FrameRunStarted:
		if p.WorkspaceID != "" {
			return fmt.Sprintf("Run started (workspace %s).", p.WorkspaceID)
		}
		return "Run started."

	case FrameNodeStart:
		msg := fmt.Sprintf("Stage %q started", p.Node)
		if p.Iteration != nil {
			msg += fmt.Sprintf(" (iteration %d)", *p.Iteration)
		}
		return msg + "."

	case FrameNodeEnd:
		msg := fmt.Sprintf("Stage %q completed", p.Node)
		if done, total, ok := fileProgress(p.Details); ok {
			msg += fmt.Sprintf(", file %d/%d", done, total)
		}
		if p.Iteration != nil {
			msg += fmt.Sprintf(" (iteration %d)", *p.Iteration)
		}
		if p.DurationMS != nil {
			msg += fmt.Sprintf(" in %dms", *p.DurationMS)
		}
		return msg + "."

	case FrameTokenStream:
		if idx, ok := detailInt(p.Details, "token_index"); ok {
			if p.Node != "" {
				return fmt.Sprintf("Stage %q streaming model output (%d tokens).", p.Node, idx)
			}
			return fmt.Sprintf("Streaming model output (%d tokens).", idx)
		}
		if p.Node != "" {
			return fmt.Sprintf("Stage %q streaming model output.", p.Node)
		}
		return "Streaming model output."

	case FrameRunComplete:
		if ms, ok := detailInt(p.Details, "run_duration_ms"); ok {
			return fmt.Sprintf("Run completed successfully in %dms.", ms)
		}
		return "Run completed successfully."

	case FrameError:
		return failureMessage(p)

	case FrameRunCancelled:
		return "Run stopped by operator."
	}

	if p.Message != "" {
		return p.Message
	}
	return fmt.Sprintf("Event %q observed.", frame.Type)
}

// fileProgress extracts the coder's per-file progress counters when present.
func fileProgress(details map[string]any) (done, total int, ok bool) {
	done, doneOK := detailInt(details, "active_step")
	total, totalOK := detailInt(details, "total_steps")
	return done, total, doneOK && totalOK
}

// detailInt reads an integer field from the untyped details map. JSON
// numbers arrive as float64.
func detailInt(details map[string]any, key string) (int, bool) {
	switch v := details[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

// normalizeSeverity maps wire severities to log severities. Debug and
// unrecognized values render as info.
func normalizeSeverity(s string) Severity {
	switch s {
	case "warn", "warning":
		return SeverityWarn
	case "error":
		return SeverityError
	default:
		return SeverityInfo
	}
}

// frameTime parses the wire timestamp, falling back to the local clock when
// missing or malformed.
func frameTime(p EventPayload) time.Time {
	if p.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, p.Timestamp); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}
