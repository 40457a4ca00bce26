// ABOUTME: HTTP server struct with chi router replaying scripted scenarios as SSE streams.
// ABOUTME: Mirrors the real service surface: auth header, request validation, error envelopes, fault injection.

package mockpipe

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// maxPromptChars caps the mutable prompt and each per-stage override.
const maxPromptChars = 4000

// maxRecursionLimit bounds the accepted recursion_limit value.
const maxRecursionLimit = 1000

// streamRequest is the accepted request body, matching the real service.
type streamRequest struct {
	UserPrompt      string            `json:"user_prompt"`
	Model           string            `json:"model"`
	MutablePrompt   string            `json:"mutable_prompt"`
	PromptOverrides map[string]string `json:"prompt_overrides"`
	WorkspaceID     string            `json:"workspace_id"`
	RecursionLimit  int               `json:"recursion_limit"`
}

// Server replays one scenario per stream request.
type Server struct {
	scenario Scenario
	log      zerolog.Logger
	router   chi.Router
}

// NewServer creates a Server with all routes configured.
func NewServer(scenario Scenario, log zerolog.Logger) *Server {
	s := &Server{
		scenario: scenario,
		log:      log,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Post("/v1/workflows/stream", s.handleStream)

	s.router = r
	return s
}

// ServeHTTP implements the http.Handler interface, delegating to the chi router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger logs one line per request with method, path, and duration.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"scenario": s.scenario.Name,
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(r.Header.Get("X-API-KEY")) == "" {
		s.writeErrorEnvelope(w, http.StatusUnauthorized, "auth_error",
			"Workspace API authentication required. Provide a non-empty X-API-KEY header.",
			"auth_error", "Authentication failed. Check your X-API-KEY value.")
		return
	}

	var req streamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorEnvelope(w, http.StatusUnprocessableEntity, "invalid_request",
			"Request body is not valid JSON.", "invalid_request", "")
		return
	}
	if msg := validateStreamRequest(req); msg != "" {
		s.writeErrorEnvelope(w, http.StatusUnprocessableEntity, "invalid_request",
			msg, "invalid_request", "")
		return
	}

	if f := s.scenario.Fault; f != nil && f.Type == FaultHTTPError {
		status := f.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		s.writeErrorEnvelope(w, status, f.Code, f.Message, f.ErrorType, f.Hint)
		return
	}

	workspaceID := r.Header.Get("X-Workspace-ID")
	if workspaceID == "" {
		workspaceID = req.WorkspaceID
	}
	if workspaceID == "" {
		workspaceID = uuid.NewString()
	}
	runID := uuid.NewString()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	s.log.Info().
		Str("run_id", runID).
		Str("workspace_id", workspaceID).
		Str("scenario", s.scenario.Name).
		Msg("replaying scenario")

	s.replay(w, r, runID, workspaceID)
}

// replay streams the scenario: run_started, scripted steps, terminal event.
func (s *Server) replay(w http.ResponseWriter, r *http.Request, runID, workspaceID string) {
	em := newEmitter(w, runID, workspaceID)
	started := time.Now()

	if err := em.emit("run_started", map[string]any{"severity": "info"}); err != nil {
		return
	}

	fault := s.scenario.Fault
	for i, step := range s.scenario.Steps {
		if fault != nil && fault.AfterStep == i {
			if s.injectMidStream(em, fault) {
				return
			}
		}
		if step.DelayMS > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(time.Duration(step.DelayMS) * time.Millisecond):
			}
		}
		if err := em.emit(step.Event, stepFields(step)); err != nil {
			return
		}
	}
	if fault != nil && fault.AfterStep == len(s.scenario.Steps) {
		if s.injectMidStream(em, fault) {
			return
		}
	}

	_ = em.emit("run_complete", map[string]any{
		"severity": "info",
		"details":  map[string]any{"run_duration_ms": time.Since(started).Milliseconds()},
	})
}

// injectMidStream applies a disconnect or error_event fault. Returns true
// when the stream must stop.
func (s *Server) injectMidStream(em *emitter, fault *Fault) bool {
	switch fault.Type {
	case FaultDisconnect:
		s.log.Info().Str("fault", fault.Type).Msg("dropping stream")
		return true
	case FaultErrorEvent:
		msg := fault.Message
		if msg == "" {
			msg = "Pipeline run failed."
		}
		_ = em.emit("error", map[string]any{
			"severity":   "error",
			"message":    msg,
			"error_type": fault.ErrorType,
			"hint":       fault.Hint,
		})
		return true
	default:
		return false
	}
}

// validateStreamRequest mirrors the real service's prompt payload checks.
// Returns an empty string when the request is acceptable.
func validateStreamRequest(req streamRequest) string {
	if strings.TrimSpace(req.UserPrompt) == "" {
		return "user_prompt must not be empty."
	}
	if len(req.MutablePrompt) > maxPromptChars {
		return fmt.Sprintf("mutable_prompt exceeds %d characters.", maxPromptChars)
	}
	for stage, layer := range req.PromptOverrides {
		if !knownStage(stage) {
			return fmt.Sprintf("prompt_overrides contains unknown stage %q.", stage)
		}
		if len(layer) > maxPromptChars {
			return fmt.Sprintf("prompt override for %q exceeds %d characters.", stage, maxPromptChars)
		}
	}
	if req.RecursionLimit < 0 || req.RecursionLimit > maxRecursionLimit {
		return fmt.Sprintf("recursion_limit must be between 1 and %d.", maxRecursionLimit)
	}
	return ""
}

func knownStage(id string) bool {
	for _, stage := range stageIDs {
		if stage == id {
			return true
		}
	}
	return false
}

// writeErrorEnvelope replies with the service's JSON error envelope shape.
func (s *Server) writeErrorEnvelope(w http.ResponseWriter, status int, code, message, errorType, hint string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	details := map[string]any{}
	if errorType != "" {
		details["error_type"] = errorType
	}
	if hint != "" {
		details["hint"] = hint
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
