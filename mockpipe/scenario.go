// ABOUTME: YAML scenario types and loader for the mock pipeline server.
// ABOUTME: A scenario scripts the SSE steps a run replays, plus optional fault injection.

package mockpipe

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Fault types a scenario can inject.
const (
	FaultHTTPError  = "http_error"  // reply with a JSON error envelope instead of streaming
	FaultDisconnect = "disconnect"  // close the stream after a step with no terminal event
	FaultErrorEvent = "error_event" // emit a terminal error event instead of run_complete
)

// Step is one scripted SSE event between run_started and the terminal event.
// The server fills in run_id, event_id, timestamp, and the bulk state maps.
type Step struct {
	Event         string         `yaml:"event"`
	Node          string         `yaml:"node,omitempty"`
	State         string         `yaml:"state,omitempty"`
	ActivityScore *float64       `yaml:"activity_score,omitempty"`
	Phase         string         `yaml:"phase,omitempty"`
	Severity      string         `yaml:"severity,omitempty"`
	Message       string         `yaml:"message,omitempty"`
	Token         string         `yaml:"token,omitempty"`
	Iteration     *int           `yaml:"iteration,omitempty"`
	DurationMS    *int64         `yaml:"duration_ms,omitempty"`
	Details       map[string]any `yaml:"details,omitempty"`
	DelayMS       int            `yaml:"delay_ms,omitempty"`
}

// Fault describes an injected failure. AfterStep counts scripted steps
// emitted before the fault triggers; zero means before any step.
type Fault struct {
	Type      string `yaml:"type"`
	AfterStep int    `yaml:"after_step,omitempty"`
	Status    int    `yaml:"status,omitempty"`
	Code      string `yaml:"code,omitempty"`
	Message   string `yaml:"message,omitempty"`
	ErrorType string `yaml:"error_type,omitempty"`
	Hint      string `yaml:"hint,omitempty"`
}

// Scenario scripts one run replay.
type Scenario struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
	Fault *Fault `yaml:"fault,omitempty"`
}

// Validate checks the scenario for mistakes that would otherwise surface as
// confusing stream behavior at replay time.
func (s Scenario) Validate() error {
	for i, step := range s.Steps {
		if step.Event == "" {
			return fmt.Errorf("mockpipe: step %d has no event name", i)
		}
	}
	if s.Fault != nil {
		switch s.Fault.Type {
		case FaultHTTPError, FaultDisconnect, FaultErrorEvent:
		default:
			return fmt.Errorf("mockpipe: unknown fault type %q", s.Fault.Type)
		}
		if s.Fault.AfterStep < 0 || s.Fault.AfterStep > len(s.Steps) {
			return fmt.Errorf("mockpipe: fault after_step %d out of range", s.Fault.AfterStep)
		}
	}
	return nil
}

// LoadScenario reads and validates a YAML scenario file.
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("mockpipe: read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return Scenario{}, fmt.Errorf("mockpipe: parse scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return Scenario{}, err
	}
	return sc, nil
}

// DefaultScenario is a fast happy-path replay covering all three stages.
func DefaultScenario() Scenario {
	score := func(v float64) *float64 { return &v }
	dur := func(v int64) *int64 { return &v }

	return Scenario{
		Name: "happy-path",
		Steps: []Step{
			{Event: "on_node_start", Node: "planner", State: "active", ActivityScore: score(1.0), Severity: "info"},
			{Event: "on_chat_model_stream", Node: "planner", Token: "Plan ready.", Severity: "info",
				Details: map[string]any{"token_index": 1}},
			{Event: "on_node_end", Node: "planner", State: "completed", ActivityScore: score(0.2),
				Severity: "info", DurationMS: dur(120)},
			{Event: "on_node_start", Node: "architect", State: "active", ActivityScore: score(1.0), Severity: "info"},
			{Event: "on_node_end", Node: "architect", State: "completed", ActivityScore: score(0.2),
				Severity: "info", DurationMS: dur(90)},
			{Event: "on_node_start", Node: "coder", State: "active", ActivityScore: score(1.0), Severity: "info"},
			{Event: "on_node_end", Node: "coder", State: "completed", ActivityScore: score(0.0),
				Severity: "info", DurationMS: dur(300),
				Details: map[string]any{"active_step": 2, "total_steps": 2}},
		},
	}
}
