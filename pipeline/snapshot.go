// ABOUTME: Snapshot and LogEntry types: the externally observable state of one pipeline run.
// ABOUTME: Snapshots have value semantics; Clone produces a deep copy safe to hand to consumers.

package pipeline

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Severity classifies log entries for display and filtering.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// LogEntry is one filtered, human-readable line derived from a frame.
// Entries are append-only within a run.
type LogEntry struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Stage     Stage          `json:"stage,omitempty"`
	Status    string         `json:"status,omitempty"`
	Activity  *float64       `json:"activity,omitempty"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Hint      string         `json:"hint,omitempty"`
	ErrorKind Kind           `json:"error_kind,omitempty"`
}

// Snapshot is the complete externally observable state of a run. Only the
// run controller produces new snapshots, always through Apply.
type Snapshot struct {
	RunID            string
	WorkspaceID      string
	ActiveStage      Stage // "" when no stage is active; always derived
	StageStatus      map[Stage]StageStatus
	StageActivity    map[Stage]float64
	Logs             []LogEntry
	IsRunning        bool
	LastErrorMessage string
}

// NewSnapshot returns an idle snapshot with every stage at zero.
func NewSnapshot() Snapshot {
	statuses := make(map[Stage]StageStatus, len(Stages))
	activity := make(map[Stage]float64, len(Stages))
	for _, stage := range Stages {
		statuses[stage] = StatusIdle
		activity[stage] = 0
	}
	return Snapshot{
		StageStatus:   statuses,
		StageActivity: activity,
	}
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.StageStatus = make(map[Stage]StageStatus, len(s.StageStatus))
	for k, v := range s.StageStatus {
		out.StageStatus[k] = v
	}
	out.StageActivity = make(map[Stage]float64, len(s.StageActivity))
	for k, v := range s.StageActivity {
		out.StageActivity[k] = v
	}
	out.Logs = append([]LogEntry(nil), s.Logs...)
	return out
}

// newLogID generates a ULID using crypto/rand entropy so log entries sort by
// creation time.
func newLogID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
