// ABOUTME: Client configuration loaded from SPYGLASS_* environment variables with sensible defaults.
// ABOUTME: Credentials are validated at Start, not load time, so read-only tooling can run keyless.

package watch

import (
	"net/http"
	"os"
)

const (
	defaultBaseURL = "http://127.0.0.1:8000"
)

// Config holds connection settings for the pipeline server.
type Config struct {
	BaseURL     string // server base URL (SPYGLASS_BASE_URL)
	APIKey      string // credential sent as X-API-KEY (SPYGLASS_API_KEY)
	WorkspaceID string // default workspace affinity (SPYGLASS_WORKSPACE_ID)

	// HTTPClient overrides the default transport. The default has no
	// overall timeout: streams live as long as the run, and cancellation
	// flows through the request context.
	HTTPClient *http.Client
}

// ConfigFromEnv loads configuration from SPYGLASS_* environment variables.
func ConfigFromEnv() Config {
	return Config{
		BaseURL:     envOrDefault("SPYGLASS_BASE_URL", defaultBaseURL),
		APIKey:      os.Getenv("SPYGLASS_API_KEY"),
		WorkspaceID: os.Getenv("SPYGLASS_WORKSPACE_ID"),
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
