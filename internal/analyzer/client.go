// Package analyzer implements the scoring/estimation oracle on top of an
// LLM provider. The rest of the system treats it as an opaque function
// with best-effort latency and occasional failure.
package analyzer

import (
	"context"
	"time"
)

// Client defines the raw completion interface for LLM providers.
type Client interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Config holds configuration for constructing an analyzer.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	CacheTTL    time.Duration
}
