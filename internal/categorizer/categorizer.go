// Package categorizer asks an LLM for the payee behind a raw statement row.
package categorizer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/dvloznov/ledger-import/internal/aicache"
	"github.com/dvloznov/ledger-import/internal/logger"
)

// Suggestion is the model's best guess for a row.
type Suggestion struct {
	EntityName  string    `json:"entityName"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	CachedAt    time.Time `json:"cachedAt"`
}

// Usage is the token accounting of one live API call.
type Usage struct {
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	CostUSD      float64 `json:"costUsd"`
}

// Outcome is returned by Categorize. Result is nil when the model could not
// name an entity. Usage is nil on a cache hit.
type Outcome struct {
	Result *Suggestion
	Usage  *Usage
}

// Completion is a raw model reply.
type Completion struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Provider sends a single prompt to an LLM. Implementations return *Error for
// failures they can classify.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (*Completion, error)
}

// Categorizer wraps a Provider with a response cache.
type Categorizer struct {
	provider Provider
	cache    aicache.Cache
	now      func() time.Time
}

// New creates a Categorizer. A nil cache gets a fresh in-memory one.
func New(provider Provider, cache aicache.Cache) *Categorizer {
	if cache == nil {
		cache = aicache.NewMemory()
	}
	return &Categorizer{
		provider: provider,
		cache:    cache,
		now:      time.Now,
	}
}

// Cache exposes the response cache so callers can clear it.
func (c *Categorizer) Cache() aicache.Cache {
	return c.cache
}

// ClearCache drops every cached suggestion.
func (c *Categorizer) ClearCache(ctx context.Context) error {
	return c.cache.Clear(ctx)
}

type modelReply struct {
	EntityName  *string `json:"entityName"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
}

// Categorize returns the suggested entity for rawRow. batchID is used for log
// correlation only.
func (c *Categorizer) Categorize(ctx context.Context, rawRow, batchID string) (*Outcome, error) {
	log := logger.FromContext(ctx).With().
		Str("component", "categorizer").
		Str("batch_id", batchID).
		Str("provider", c.provider.Name()).
		Logger()

	key := aicache.Key(rawRow)
	entry, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Msg("AI cache read failed, calling provider")
	} else if ok {
		log.Debug().Str("entity", entry.EntityName).Msg("AI cache hit")
		return &Outcome{Result: &Suggestion{
			EntityName:  entry.EntityName,
			Category:    entry.Category,
			Description: entry.Description,
			CachedAt:    entry.CachedAt,
		}}, nil
	}

	completion, err := c.provider.Complete(ctx, buildPrompt(rawRow))
	if err != nil {
		var catErr *Error
		if errors.As(err, &catErr) {
			return nil, catErr
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &Error{Code: CodeAPIError, Provider: c.provider.Name(), Message: "request failed", Err: err}
	}

	usage := &Usage{
		InputTokens:  completion.InputTokens,
		OutputTokens: completion.OutputTokens,
		CostUSD:      Cost(completion.Model, completion.InputTokens, completion.OutputTokens),
	}

	var reply modelReply
	if err := json.Unmarshal([]byte(cleanModelJSON(completion.Text)), &reply); err != nil {
		return nil, &Error{Code: CodeInvalidResponse, Provider: c.provider.Name(), Message: "unmarshal model JSON", Err: err, Usage: usage}
	}

	log.Debug().
		Int("input_tokens", usage.InputTokens).
		Int("output_tokens", usage.OutputTokens).
		Float64("cost_usd", usage.CostUSD).
		Msg("AI categorization call completed")

	if reply.EntityName == nil || strings.TrimSpace(*reply.EntityName) == "" {
		return &Outcome{Usage: usage}, nil
	}

	suggestion := &Suggestion{
		EntityName:  strings.TrimSpace(*reply.EntityName),
		Category:    reply.Category,
		Description: reply.Description,
		CachedAt:    c.now().UTC(),
	}
	err = c.cache.Set(ctx, key, aicache.Entry{
		EntityName:  suggestion.EntityName,
		Category:    suggestion.Category,
		Description: suggestion.Description,
		CachedAt:    suggestion.CachedAt,
	})
	if err != nil {
		log.Warn().Err(err).Msg("AI cache write failed")
	}

	return &Outcome{Result: suggestion, Usage: usage}, nil
}
