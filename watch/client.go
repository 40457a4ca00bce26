// ABOUTME: Run controller: owns run tokens, the snapshot, cancellation, and subscriber notification.
// ABOUTME: All snapshot mutation funnels through applyFrame, gated per-frame on run token equality.

package watch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/spyglass-sh/spyglass/pipeline"
)

const (
	// maxOverrideChars mirrors the server's cap on mutable prompt layers.
	maxOverrideChars = 4000

	defaultRecursionLimit = 100
	maxRecursionLimit     = 1000
)

// Validation failures reported before any network activity.
var (
	ErrMissingAPIKey   = errors.New("watch: API key is required to start a run")
	ErrEmptyPrompt     = errors.New("watch: user prompt must not be empty")
	ErrUnknownOverride = errors.New("watch: prompt override names an unknown stage")
	ErrOverrideTooLong = errors.New("watch: prompt override exceeds the character cap")
	ErrRecursionLimit  = errors.New("watch: recursion limit out of range")
)

// RunState labels the controller's lifecycle position.
type RunState int

const (
	StateIdle RunState = iota
	StateRunning
	StateCompleted
	StateFailed
	StateCancelled
)

// String returns the lowercase name of the run state.
func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// RunRequest describes one job submission.
type RunRequest struct {
	Prompt          string
	Model           string
	MutablePrompt   string
	PromptOverrides map[string]string // stage id -> prompt layer
	WorkspaceID     string            // overrides Config.WorkspaceID when set
	RecursionLimit  int               // 0 means the server default (100)

	// KeepLogs preserves the previous run's log entries so an operator can
	// inspect history across a restarted run. Default is a fresh log.
	KeepLogs bool
}

// RunHandle identifies one run. Tokens are strictly increasing across runs;
// a handle whose token no longer matches the current run is stale and its
// Cancel is a no-op.
type RunHandle struct {
	Token  uint64
	client *Client
}

// Cancel stops the handle's run if it is still current.
func (h *RunHandle) Cancel(reason string) {
	h.client.cancelToken(h.Token, reason)
}

// Client watches pipeline runs. It is the single writer of the snapshot;
// consumers read copies via Snapshot or a Subscribe channel.
type Client struct {
	cfg  Config
	http *http.Client

	mu        sync.Mutex
	snap      pipeline.Snapshot
	state     RunState
	nextToken uint64
	current   uint64 // token of the current run; 0 when no run is current
	cancelFn  context.CancelFunc

	// subMu guards the subscriber list separately from mu so notify can
	// hold it across sends without blocking snapshot reads.
	subMu sync.RWMutex
	subs  []chan pipeline.Snapshot
}

// NewClient creates a Client for the given configuration.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		cfg:  cfg,
		http: httpClient,
		snap: pipeline.NewSnapshot(),
	}
}

// Snapshot returns a copy of the externally observable run state.
func (c *Client) Snapshot() pipeline.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.Clone()
}

// State returns the controller's lifecycle position.
func (c *Client) State() RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers a snapshot listener. The channel has a small buffer;
// a slow listener misses intermediate snapshots rather than blocking the
// frame loop, but the terminal snapshot of a run is always delivered.
func (c *Client) Subscribe() <-chan pipeline.Snapshot {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	ch := make(chan pipeline.Snapshot, 16)
	c.subs = append(c.subs, ch)
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (c *Client) Unsubscribe(ch <-chan pipeline.Snapshot) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for i, sub := range c.subs {
		if (<-chan pipeline.Snapshot)(sub) == ch {
			close(sub)
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			return
		}
	}
}

// Start validates the request, supersedes any run in flight, and launches
// the stream loop. Validation failures are returned synchronously and never
// reach the reducer.
func (c *Client) Start(ctx context.Context, req RunRequest) (*RunHandle, error) {
	if err := c.validate(req); err != nil {
		return nil, err
	}
	if req.RecursionLimit == 0 {
		req.RecursionLimit = defaultRecursionLimit
	}

	c.mu.Lock()
	// Supersede the prior run before its terminal event can land: advance
	// the token first so in-flight frames are already stale, then release
	// its transport.
	if c.cancelFn != nil {
		c.cancelFn()
		c.cancelFn = nil
	}
	c.nextToken++
	token := c.nextToken
	c.current = token

	runCtx, cancel := context.WithCancel(ctx)
	c.cancelFn = cancel

	fresh := pipeline.NewSnapshot()
	if req.KeepLogs {
		fresh.Logs = append([]pipeline.LogEntry(nil), c.snap.Logs...)
	}
	fresh.IsRunning = true
	c.snap = fresh
	c.state = StateRunning
	snapCopy := c.snap.Clone()
	c.mu.Unlock()

	c.notify(snapCopy)

	go c.run(runCtx, token, req)

	return &RunHandle{Token: token, client: c}, nil
}

// Cancel stops the current run, if any. It appends one informational log
// entry and never surfaces an error: cancellation is a control outcome.
func (c *Client) Cancel(reason string) {
	c.mu.Lock()
	token := c.current
	c.mu.Unlock()
	if token == 0 {
		return
	}
	c.cancelToken(token, reason)
}

func (c *Client) cancelToken(token uint64, reason string) {
	frame := pipeline.Frame{
		Type:    pipeline.FrameRunCancelled,
		Payload: pipeline.EventPayload{Severity: string(pipeline.SeverityInfo)},
	}
	if reason != "" {
		frame.Payload.Details = map[string]any{"reason": reason}
	}
	// applyFrame drops the frame if the token is already stale, so a cancel
	// racing a natural terminal frame cannot produce two terminal states.
	c.applyFrame(token, frame)
}

// validate checks run input before any network activity.
func (c *Client) validate(req RunRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return ErrEmptyPrompt
	}
	if c.cfg.APIKey == "" {
		return ErrMissingAPIKey
	}
	if len(req.MutablePrompt) > maxOverrideChars {
		return fmt.Errorf("%w: mutable prompt is %d characters (max %d)",
			ErrOverrideTooLong, len(req.MutablePrompt), maxOverrideChars)
	}
	for stage, layer := range req.PromptOverrides {
		if _, known := pipeline.ParseStage(stage); !known {
			return fmt.Errorf("%w: %q", ErrUnknownOverride, stage)
		}
		if len(layer) > maxOverrideChars {
			return fmt.Errorf("%w: override for %q is %d characters (max %d)",
				ErrOverrideTooLong, stage, len(layer), maxOverrideChars)
		}
	}
	if req.RecursionLimit < 0 || req.RecursionLimit > maxRecursionLimit {
		return fmt.Errorf("%w: %d (allowed 1..%d)", ErrRecursionLimit, req.RecursionLimit, maxRecursionLimit)
	}
	return nil
}

// applyFrame is the single entry point for snapshot mutation. Frames whose
// token no longer matches the current run are dropped unconditionally; the
// check runs per frame because frames can still be in flight when a new run
// begins.
func (c *Client) applyFrame(token uint64, frame pipeline.Frame) {
	c.mu.Lock()
	if token != c.current {
		c.mu.Unlock()
		return
	}

	c.snap = pipeline.Apply(c.snap, frame)

	switch frame.Type {
	case pipeline.FrameRunComplete:
		c.state = StateCompleted
		c.closeRunLocked()
	case pipeline.FrameError:
		c.state = StateFailed
		c.closeRunLocked()
	case pipeline.FrameRunCancelled:
		c.state = StateCancelled
		c.closeRunLocked()
	}

	snapCopy := c.snap.Clone()
	c.mu.Unlock()

	c.notify(snapCopy)
}

// closeRunLocked retires the current run: later frames are stale and the
// transport context is released. Caller holds c.mu.
func (c *Client) closeRunLocked() {
	c.current = 0
	if c.cancelFn != nil {
		c.cancelFn()
		c.cancelFn = nil
	}
}

// notify delivers a snapshot copy to each subscriber. The read lock is held
// across the sends so Unsubscribe cannot close a channel mid-delivery. Sends
// never block: intermediate snapshots are dropped for slow subscribers, and a
// terminal snapshot evicts the oldest queued one, so run termination is
// always observable on the channel.
func (c *Client) notify(snap pipeline.Snapshot) {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, ch := range c.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		if snap.IsRunning {
			// Intermediate snapshot, slow subscriber: drop it.
			continue
		}
		// Snapshots are cumulative, so the terminal one subsumes whatever
		// is evicted to make room for it.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
