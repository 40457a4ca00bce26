// ABOUTME: Per-run SSE emitter maintaining the bulk node state and activity maps.
// ABOUTME: Stamps every event with event_id, timestamp, run_id, and the current maps.

package mockpipe

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// stageIDs is the fixed pipeline topology the mock replays.
var stageIDs = []string{"planner", "architect", "coder"}

// emitter writes SSE events for one run, carrying the server-side view of
// node states and activity scores along on every event.
type emitter struct {
	w       io.Writer
	flusher http.Flusher

	runID       string
	workspaceID string

	eventID    int
	nodeStates map[string]string
	activity   map[string]float64
	activeNode string
}

func newEmitter(w io.Writer, runID, workspaceID string) *emitter {
	states := make(map[string]string, len(stageIDs))
	activity := make(map[string]float64, len(stageIDs))
	for _, id := range stageIDs {
		states[id] = "idle"
		activity[id] = 0
	}
	e := &emitter{
		w:           w,
		runID:       runID,
		workspaceID: workspaceID,
		nodeStates:  states,
		activity:    activity,
	}
	if f, ok := w.(http.Flusher); ok {
		e.flusher = f
	}
	return e
}

// emit folds the event into the bulk maps, stamps it, and writes one SSE block.
func (e *emitter) emit(event string, fields map[string]any) error {
	e.eventID++

	node, _ := fields["node"].(string)
	if state, ok := fields["state"].(string); ok && state != "" {
		if _, known := e.nodeStates[node]; known {
			e.nodeStates[node] = state
		}
	}
	if score, ok := fields["activity_score"].(float64); ok {
		if _, known := e.activity[node]; known {
			e.activity[node] = score
		}
	}

	switch event {
	case "on_node_start":
		if node != "" {
			e.activeNode = node
		}
	case "on_node_end":
		if node != "" && e.activeNode == node {
			e.activeNode = ""
		}
	}

	payload := map[string]any{
		"run_id":              e.runID,
		"workspace_id":        e.workspaceID,
		"event_id":            e.eventID,
		"timestamp":           time.Now().UTC().Format(time.RFC3339Nano),
		"active_node_id":      e.activeNode,
		"node_states":         copyStates(e.nodeStates),
		"activity_by_node_id": copyActivity(e.activity),
	}
	for k, v := range fields {
		if v != nil {
			payload[k] = v
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mockpipe: marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// stepFields converts a scripted step into emit fields, dropping zero values
// so the JSON stays close to what the real service sends.
func stepFields(step Step) map[string]any {
	fields := map[string]any{}
	if step.Node != "" {
		fields["node"] = step.Node
	}
	if step.State != "" {
		fields["state"] = step.State
	}
	if step.ActivityScore != nil {
		fields["activity_score"] = *step.ActivityScore
	}
	if step.Phase != "" {
		fields["phase"] = step.Phase
	}
	if step.Severity != "" {
		fields["severity"] = step.Severity
	}
	if step.Message != "" {
		fields["message"] = step.Message
	}
	if step.Token != "" {
		fields["token"] = step.Token
	}
	if step.Iteration != nil {
		fields["iteration"] = *step.Iteration
	}
	if step.DurationMS != nil {
		fields["duration_ms"] = *step.DurationMS
	}
	if len(step.Details) > 0 {
		fields["details"] = step.Details
	}
	return fields
}

func copyStates(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyActivity(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
