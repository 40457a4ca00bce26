// ABOUTME: Error classifier mapping arbitrary failures to a closed taxonomy with stable messages and hints.
// ABOUTME: Structured server tags win over substring heuristics; the table handles novel wording without code changes.

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind is one entry of the closed failure taxonomy.
type Kind string

const (
	KindConnectionError Kind = "connection_error"
	KindRateLimit       Kind = "rate_limit"
	KindAuthError       Kind = "auth_error"
	KindContextLimit    Kind = "context_limit"
	KindInvalidRequest  Kind = "invalid_request"
	KindUnknownError    Kind = "unknown_error"

	// KindCancelled is a control outcome, not an error: it never sets
	// LastErrorMessage and never produces an error-severity log entry.
	KindCancelled Kind = "cancelled"
)

// KnownKind reports whether s names a taxonomy entry the server may tag
// failures with.
func KnownKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindConnectionError, KindRateLimit, KindAuthError,
		KindContextLimit, KindInvalidRequest, KindUnknownError, KindCancelled:
		return Kind(s), true
	default:
		return "", false
	}
}

// Classification is the derived, operator-facing view of a failure. It is
// computed on demand and never stored.
type Classification struct {
	Kind        Kind
	UserMessage string
	Hint        string
	RawMessage  string
}

// kindDefaults carries the fixed user message and remediation hint per kind.
var kindDefaults = map[Kind]Classification{
	KindConnectionError: {
		Kind:        KindConnectionError,
		UserMessage: "Provider connection failed.",
		Hint:        "Verify network/provider access and retry.",
	},
	KindRateLimit: {
		Kind:        KindRateLimit,
		UserMessage: "Provider rate limit hit.",
		Hint:        "Retry later or reduce prompt/output size.",
	},
	KindAuthError: {
		Kind:        KindAuthError,
		UserMessage: "Authentication failed.",
		Hint:        "Check the API key supplied to the run.",
	},
	KindContextLimit: {
		Kind:        KindContextLimit,
		UserMessage: "Prompt or context is too large.",
		Hint:        "Reduce prompt size or stage overrides.",
	},
	KindInvalidRequest: {
		Kind:        KindInvalidRequest,
		UserMessage: "Request validation failed.",
		Hint:        "Check prompt constraints and retry.",
	},
	KindUnknownError: {
		Kind:        KindUnknownError,
		UserMessage: "Unexpected workflow error.",
		Hint:        "Inspect the raw error details for diagnosis.",
	},
	KindCancelled: {
		Kind:        KindCancelled,
		UserMessage: "Run stopped by operator.",
	},
}

// matchTable maps message phrases to kinds, checked in order. Substring
// tests are case-insensitive; first match wins.
var matchTable = []struct {
	kind    Kind
	phrases []string
}{
	{KindConnectionError, []string{
		"econnrefused", "connection refused", "connection error", "connection reset",
		"timeout", "timed out", "unreachable", "no such host", "broken pipe",
		"unexpected eof",
	}},
	{KindRateLimit, []string{"rate limit", "too many requests", "429"}},
	{KindAuthError, []string{
		"unauthorized", "forbidden", "authentication", "api key", "401", "403",
	}},
	{KindContextLimit, []string{
		"context length", "context window", "max tokens", "too many tokens",
	}},
	{KindInvalidRequest, []string{"validation", "invalid", "schema", "422"}},
}

// EnvelopeError is a structured failure decoded from the server's JSON error
// envelope. Its ErrorType, when recognized, is trusted verbatim by Classify.
type EnvelopeError struct {
	StatusCode int
	Code       string
	Message    string
	ErrorType  string
	Hint       string
	Details    map[string]any
}

func (e *EnvelopeError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// envelope mirrors the wire shape {error:{code,message,details}}.
type envelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

// ParseErrorEnvelope decodes a non-success response body into an
// EnvelopeError. Bodies that are not the expected envelope shape still
// produce a usable error carrying the raw text and status code.
func ParseErrorEnvelope(statusCode int, body []byte) *EnvelopeError {
	out := &EnvelopeError{StatusCode: statusCode}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error.Message == "" && env.Error.Code == "" {
		out.Message = strings.TrimSpace(string(body))
		return out
	}

	out.Code = env.Error.Code
	out.Message = env.Error.Message
	out.Details = env.Error.Details
	if v, ok := env.Error.Details["error_type"].(string); ok {
		out.ErrorType = v
	}
	if v, ok := env.Error.Details["hint"].(string); ok {
		out.Hint = v
	}
	return out
}

// Classify maps an arbitrary failure to its taxonomy entry. It never panics
// and accepts nil. Precedence: explicit server tag, then phrase matching on
// the failure text, then unknown_error with the original text preserved.
func Classify(err error) Classification {
	if err == nil {
		return kindDefaults[KindUnknownError]
	}

	if errors.Is(err, context.Canceled) {
		c := kindDefaults[KindCancelled]
		c.RawMessage = err.Error()
		return c
	}

	var env *EnvelopeError
	if errors.As(err, &env) {
		if kind, ok := KnownKind(env.ErrorType); ok {
			c := kindDefaults[kind]
			c.RawMessage = env.Message
			if env.Hint != "" {
				c.Hint = env.Hint
			}
			return c
		}
	}

	msg := err.Error()
	c := kindDefaults[classifyMessage(msg)]
	c.RawMessage = msg
	if env != nil && env.Hint != "" {
		c.Hint = env.Hint
	}
	return c
}

// classifyMessage runs the ordered phrase table over a failure message.
func classifyMessage(msg string) Kind {
	lower := strings.ToLower(msg)
	for _, row := range matchTable {
		for _, phrase := range row.phrases {
			if strings.Contains(lower, phrase) {
				return row.kind
			}
		}
	}
	return KindUnknownError
}

// FailureFrame builds the single synthetic terminal frame for a classified
// failure. Transport and server failures both funnel through this so the
// reducer sees exactly one failure path.
func FailureFrame(c Classification) Frame {
	return Frame{
		Type: FrameError,
		Payload: EventPayload{
			Severity:  string(SeverityError),
			Message:   c.UserMessage,
			Hint:      c.Hint,
			ErrorType: string(c.Kind),
			Details:   map[string]any{"raw_message": c.RawMessage},
		},
	}
}
