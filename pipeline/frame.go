// ABOUTME: Frame and EventPayload types plus DecodeFrame, which turns a raw SSE block into a Frame.
// ABOUTME: JSON decode failures never drop data; they yield a synthetic error frame carrying the raw text.

package pipeline

import (
	"encoding/json"

	"github.com/spyglass-sh/spyglass/sse"
)

// Frame type names emitted by the pipeline server, plus the synthetic
// client-side cancellation frame.
const (
	FrameRunStarted  = "run_started"
	FrameNodeStart   = "on_node_start"
	FrameNodeEnd     = "on_node_end"
	FrameTokenStream = "on_chat_model_stream"
	FrameDebug       = "on_debug_event"
	FrameRunComplete = "run_complete"
	FrameError       = "error"

	// FrameRunCancelled is synthesized by the run controller; the server
	// never sends it.
	FrameRunCancelled = "run_cancelled"
)

// malformedFrameMessage is the fixed diagnostic attached to frames whose
// data payload failed to decode as JSON.
const malformedFrameMessage = "Received an event frame with an undecodable payload."

// EventPayload holds the wire fields the client consumes. Fields the client
// does not model are preserved untouched in Details and Raw.
type EventPayload struct {
	EventID        int                `json:"event_id"`
	Timestamp      string             `json:"timestamp"`
	RunID          string             `json:"run_id"`
	WorkspaceID    string             `json:"workspace_id"`
	Node           string             `json:"node"`
	State          string             `json:"state"`
	ActivityScore  *float64           `json:"activity_score"`
	Phase          string             `json:"phase"`
	Severity       string             `json:"severity"`
	Message        string             `json:"message"`
	Hint           string             `json:"hint"`
	ErrorType      string             `json:"error_type"`
	Iteration      *int               `json:"iteration"`
	DurationMS     *int64             `json:"duration_ms"`
	Token          string             `json:"token"`
	ActiveNodeID   string             `json:"active_node_id"`
	NodeStates     map[string]string  `json:"node_states"`
	ActivityByNode map[string]float64 `json:"activity_by_node_id"`
	Details        map[string]any     `json:"details"`

	// Raw is the undecoded payload text, kept for diagnostics.
	Raw string `json:"-"`
}

// Frame is one decoded unit of the event stream.
type Frame struct {
	Type    string
	Payload EventPayload
}

// DecodeFrame converts a reassembled SSE block into a Frame. It never fails:
// a payload that does not parse as JSON produces exactly one synthetic error
// frame carrying the raw text, so consumers always observe a deterministic
// number of frames with no silent loss.
func DecodeFrame(blk sse.Block) Frame {
	var payload EventPayload
	if err := json.Unmarshal([]byte(blk.Data), &payload); err != nil {
		return Frame{
			Type: FrameError,
			Payload: EventPayload{
				Severity: "error",
				Message:  malformedFrameMessage,
				Details:  map[string]any{"raw": blk.Data},
				Raw:      blk.Data,
			},
		}
	}
	payload.Raw = blk.Data
	return Frame{Type: blk.Event, Payload: payload}
}
