// ABOUTME: Defines the fixed three-stage pipeline order and the StageStatus enum.
// ABOUTME: Stage identifiers form a closed set; unknown ids from the wire are never tracked.

package pipeline

// Stage identifies one step of the fixed-order pipeline.
type Stage string

const (
	StagePlanner   Stage = "planner"
	StageArchitect Stage = "architect"
	StageCoder     Stage = "coder"
)

// Stages lists the pipeline stages in causal order. All ordering decisions
// (forward completion, active-stage derivation) follow this slice.
var Stages = []Stage{StagePlanner, StageArchitect, StageCoder}

// ParseStage maps a wire identifier to a known Stage. Identifiers outside
// the fixed set (internal or speculative pipeline nodes) report ok=false and
// are ignored by the reducer.
func ParseStage(id string) (Stage, bool) {
	switch Stage(id) {
	case StagePlanner, StageArchitect, StageCoder:
		return Stage(id), true
	default:
		return "", false
	}
}

// stageIndex returns the causal position of a stage in pipeline order.
func stageIndex(s Stage) int {
	for i, stage := range Stages {
		if stage == s {
			return i
		}
	}
	return -1
}

// StageStatus represents the lifecycle state of a single pipeline stage.
type StageStatus int

const (
	StatusIdle      StageStatus = iota // stage has not started
	StatusActive                       // stage is currently executing
	StatusCompleted                    // stage finished successfully
	StatusError                        // stage finished with an error; sticky
)

// ParseStageStatus maps a wire state string to a StageStatus.
func ParseStageStatus(state string) (StageStatus, bool) {
	switch state {
	case "idle":
		return StatusIdle, true
	case "active":
		return StatusActive, true
	case "completed":
		return StatusCompleted, true
	case "error":
		return StatusError, true
	default:
		return StatusIdle, false
	}
}

// String returns the lowercase wire name of the status.
func (s StageStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusActive:
		return "active"
	case StatusCompleted:
		return "completed"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Icon returns a bracket-style status marker for terminal display.
func (s StageStatus) Icon() string {
	switch s {
	case StatusIdle:
		return "[ ]"
	case StatusActive:
		return "[~]"
	case StatusCompleted:
		return "[*]"
	case StatusError:
		return "[!]"
	default:
		return "[?]"
	}
}
