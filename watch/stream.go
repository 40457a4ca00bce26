// ABOUTME: Request building and the per-run stream loop feeding decoded frames into the controller.
// ABOUTME: Every failure path funnels through one classified synthetic frame; cancellation stays silent.

package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/spyglass-sh/spyglass/pipeline"
	"github.com/spyglass-sh/spyglass/sse"
)

const streamPath = "/v1/workflows/stream"

// maxErrorBodyBytes bounds how much of a failed response is read for
// classification.
const maxErrorBodyBytes = 1 << 20

// streamBody is the JSON request body for a streaming run.
type streamBody struct {
	UserPrompt      string            `json:"user_prompt"`
	Model           string            `json:"model,omitempty"`
	MutablePrompt   string            `json:"mutable_prompt,omitempty"`
	PromptOverrides map[string]string `json:"prompt_overrides,omitempty"`
	WorkspaceID     string            `json:"workspace_id,omitempty"`
	RecursionLimit  int               `json:"recursion_limit"`
}

// run executes one run's frame loop. It never returns an error: every
// outcome is expressed as frames applied under the run's token, and stale
// outcomes are dropped by the token gate.
func (c *Client) run(ctx context.Context, token uint64, req RunRequest) {
	resp, err := c.doRequest(ctx, req)
	if err != nil {
		c.finish(token, err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		if readErr != nil {
			c.finish(token, fmt.Errorf("reading error response: %w", readErr))
			return
		}
		c.finish(token, pipeline.ParseErrorEnvelope(resp.StatusCode, body))
		return
	}

	reader := sse.NewReader(resp.Body)
	for {
		blk, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			c.finish(token, fmt.Errorf("reading event stream: %w", err))
			return
		}
		c.applyFrame(token, pipeline.DecodeFrame(blk))
	}

	// The stream closed without a terminal frame having retired the run:
	// the peer hung up mid-run.
	c.mu.Lock()
	hungUp := c.current == token && c.snap.IsRunning
	c.mu.Unlock()
	if hungUp {
		c.finish(token, errors.New("event stream closed before a terminal event: unexpected EOF"))
	}
}

// finish converts a run failure into its single synthetic terminal frame.
// Cancellation classifies as a control outcome and lands as a clean
// cancellation frame instead of an error; the controller's own cancel has
// already retired the token by then, so the duplicate is dropped.
func (c *Client) finish(token uint64, err error) {
	cls := pipeline.Classify(err)
	if cls.Kind == pipeline.KindCancelled {
		c.applyFrame(token, pipeline.Frame{
			Type:    pipeline.FrameRunCancelled,
			Payload: pipeline.EventPayload{Severity: string(pipeline.SeverityInfo)},
		})
		return
	}
	c.applyFrame(token, pipeline.FailureFrame(cls))
}

// doRequest issues the streaming POST with credential and workspace headers.
func (c *Client) doRequest(ctx context.Context, req RunRequest) (*http.Response, error) {
	workspace := req.WorkspaceID
	if workspace == "" {
		workspace = c.cfg.WorkspaceID
	}

	body := streamBody{
		UserPrompt:      req.Prompt,
		Model:           req.Model,
		MutablePrompt:   req.MutablePrompt,
		PromptOverrides: req.PromptOverrides,
		WorkspaceID:     workspace,
		RecursionLimit:  req.RecursionLimit,
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+streamPath, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("X-API-KEY", c.cfg.APIKey)
	if workspace != "" {
		httpReq.Header.Set("X-Workspace-ID", workspace)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	return resp, nil
}
