package categorizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/ledger-import/internal/config"
)

// NewProvider builds the provider selected in cfg.
func NewProvider(ctx context.Context, cfg config.AIConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "anthropic", "":
		return NewAnthropic(cfg.AnthropicAPIKey, cfg.Model)
	case "gemini":
		return NewGemini(ctx, cfg.GeminiAPIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("NewProvider: unknown ai provider %q", cfg.Provider)
	}
}
