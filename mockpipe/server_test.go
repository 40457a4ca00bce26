// ABOUTME: Tests for the mock pipeline server: auth, validation, replay, and fault injection.
// ABOUTME: Streams are parsed back with the sse package to verify event shape and ordering.

package mockpipe

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/spyglass-sh/spyglass/sse"
)

type decodedEvent struct {
	name    string
	payload map[string]any
}

func streamScenario(t *testing.T, sc Scenario, body string, headers map[string]string) (int, []decodedEvent, string) {
	t.Helper()
	srv := httptest.NewServer(NewServer(sc, zerolog.Nop()))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/workflows/stream", strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", "test-key")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, nil, string(raw)
	}

	var events []decodedEvent
	reader := sse.NewReader(resp.Body)
	for {
		blk, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(blk.Data), &payload); err != nil {
			t.Fatalf("event %q carries invalid JSON: %v", blk.Event, err)
		}
		events = append(events, decodedEvent{name: blk.Event, payload: payload})
	}
	return resp.StatusCode, events, ""
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(NewServer(DefaultScenario(), zerolog.Nop()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode health body: %v", err)
	}
	if body["scenario"] != "happy-path" {
		t.Errorf("scenario = %v, want happy-path", body["scenario"])
	}
}

func TestStreamRequiresAPIKey(t *testing.T) {
	srv := httptest.NewServer(NewServer(DefaultScenario(), zerolog.Nop()))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/workflows/stream", "application/json",
		strings.NewReader(`{"user_prompt":"build it"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), `"auth_error"`) {
		t.Errorf("expected auth_error envelope, got %s", raw)
	}
}

func TestStreamValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty prompt", `{"user_prompt":"  "}`, "user_prompt must not be empty."},
		{"unknown override", `{"user_prompt":"x","prompt_overrides":{"reviewer":"y"}}`, "unknown stage"},
		{"recursion limit", `{"user_prompt":"x","recursion_limit":9999}`, "recursion_limit"},
		{"bad json", `{not json`, "not valid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _, body := streamScenario(t, DefaultScenario(), tt.body, nil)
			if status != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422", status)
			}
			if !strings.Contains(body, tt.want) {
				t.Errorf("body missing %q: %s", tt.want, body)
			}
		})
	}
}

func TestHappyPathReplay(t *testing.T) {
	status, events, _ := streamScenario(t, DefaultScenario(), `{"user_prompt":"build it"}`, nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if len(events) == 0 {
		t.Fatal("no events received")
	}

	if events[0].name != "run_started" {
		t.Errorf("first event = %q, want run_started", events[0].name)
	}
	if events[len(events)-1].name != "run_complete" {
		t.Errorf("last event = %q, want run_complete", events[len(events)-1].name)
	}

	// event_id increments from 1 across the whole stream.
	for i, evt := range events {
		got, ok := evt.payload["event_id"].(float64)
		if !ok || int(got) != i+1 {
			t.Errorf("event %d has event_id %v, want %d", i, evt.payload["event_id"], i+1)
		}
		if evt.payload["run_id"] == "" {
			t.Errorf("event %d missing run_id", i)
		}
	}

	// The terminal event's bulk map shows all stages completed.
	final := events[len(events)-1].payload
	states, ok := final["node_states"].(map[string]any)
	if !ok {
		t.Fatal("run_complete missing node_states")
	}
	for _, stage := range stageIDs {
		if states[stage] != "completed" {
			t.Errorf("node_states[%s] = %v, want completed", stage, states[stage])
		}
	}
}

func TestWorkspaceIDEcho(t *testing.T) {
	_, events, _ := streamScenario(t, DefaultScenario(), `{"user_prompt":"build it"}`,
		map[string]string{"X-Workspace-ID": "ws-affinity"})
	if len(events) == 0 {
		t.Fatal("no events received")
	}
	if events[0].payload["workspace_id"] != "ws-affinity" {
		t.Errorf("workspace_id = %v, want ws-affinity", events[0].payload["workspace_id"])
	}
}

func TestHTTPErrorFault(t *testing.T) {
	sc := DefaultScenario()
	sc.Fault = &Fault{
		Type:      FaultHTTPError,
		Status:    http.StatusTooManyRequests,
		Code:      "rate_limit",
		Message:   "Provider rate limit exceeded.",
		ErrorType: "rate_limit",
		Hint:      "Retry with backoff.",
	}
	status, _, body := streamScenario(t, sc, `{"user_prompt":"build it"}`, nil)
	if status != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", status)
	}
	for _, want := range []string{`"rate_limit"`, "Provider rate limit exceeded.", "Retry with backoff."} {
		if !strings.Contains(body, want) {
			t.Errorf("envelope missing %q: %s", want, body)
		}
	}
}

func TestErrorEventFault(t *testing.T) {
	sc := DefaultScenario()
	sc.Fault = &Fault{
		Type:      FaultErrorEvent,
		AfterStep: 3,
		Message:   "Context window exhausted.",
		ErrorType: "context_limit",
	}
	status, events, _ := streamScenario(t, sc, `{"user_prompt":"build it"}`, nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}

	last := events[len(events)-1]
	if last.name != "error" {
		t.Fatalf("last event = %q, want error", last.name)
	}
	if last.payload["error_type"] != "context_limit" {
		t.Errorf("error_type = %v, want context_limit", last.payload["error_type"])
	}
	// run_started + 3 steps + error
	if len(events) != 5 {
		t.Errorf("expected 5 events before the injected error, got %d", len(events))
	}
}

func TestDisconnectFault(t *testing.T) {
	sc := DefaultScenario()
	sc.Fault = &Fault{Type: FaultDisconnect, AfterStep: 2}
	status, events, _ := streamScenario(t, sc, `{"user_prompt":"build it"}`, nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	// run_started + 2 steps, then the stream drops without a terminal event.
	if len(events) != 3 {
		t.Fatalf("expected 3 events before disconnect, got %d", len(events))
	}
	if last := events[len(events)-1].name; last == "run_complete" || last == "error" {
		t.Errorf("disconnect fault must not emit a terminal event, got %q", last)
	}
}

func TestScenarioValidate(t *testing.T) {
	if err := (Scenario{Steps: []Step{{}}}).Validate(); err == nil {
		t.Error("expected error for a step with no event name")
	}
	if err := (Scenario{Fault: &Fault{Type: "explode"}}).Validate(); err == nil {
		t.Error("expected error for an unknown fault type")
	}
	if err := (Scenario{Fault: &Fault{Type: FaultDisconnect, AfterStep: 5}}).Validate(); err == nil {
		t.Error("expected error for an out-of-range after_step")
	}
	if err := DefaultScenario().Validate(); err != nil {
		t.Errorf("default scenario must validate: %v", err)
	}
}

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	content := `
name: quick-fail
steps:
  - event: on_node_start
    node: planner
    state: active
    activity_score: 1.0
fault:
  type: error_event
  after_step: 1
  message: "Planner crashed."
  error_type: unknown_error
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}

	sc, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("LoadScenario failed: %v", err)
	}
	if sc.Name != "quick-fail" {
		t.Errorf("name = %q, want quick-fail", sc.Name)
	}
	if len(sc.Steps) != 1 || sc.Steps[0].Node != "planner" {
		t.Errorf("unexpected steps: %+v", sc.Steps)
	}
	if sc.Fault == nil || sc.Fault.Type != FaultErrorEvent {
		t.Errorf("unexpected fault: %+v", sc.Fault)
	}

	if _, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing scenario file")
	}
}
