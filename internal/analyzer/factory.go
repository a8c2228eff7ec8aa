package analyzer

import (
	"fmt"
	"log/slog"

	"github.com/yeonjae-dev/bizradar/internal/common"
)

// newClient creates a raw completion client based on the configured provider.
func newClient(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "", "anthropic":
		slog.Debug("Creating Anthropic analyzer client", "model", cfg.Model)
		return newAnthropicClient(cfg)
	case "mock":
		slog.Debug("Creating mock analyzer client")
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("%w: unknown analyzer provider: %s", common.ErrInvalidConfig, cfg.Provider)
	}
}
