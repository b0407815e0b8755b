package categorizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dvloznov/ledger-import/internal/config"
)

const DefaultAnthropicModel = "claude-haiku-4-5"

// Anthropic is a Provider backed by the Claude Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic creates the provider. An empty apiKey fails with
// config.ErrMissingCredential.
func NewAnthropic(apiKey, model string, opts ...option.RequestOption) (*Anthropic, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("NewAnthropic: %w: ANTHROPIC_API_KEY is not set", config.ErrMissingCredential)
	}
	if model == "" {
		model = DefaultAnthropicModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Anthropic{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: 512,
	}, nil
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) Complete(ctx context.Context, prompt string) (*Completion, error) {
	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, a.classify(err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, &Error{Code: CodeInvalidResponse, Provider: a.Name(), Message: "empty response from Claude API"}
	}

	return &Completion{
		Text:         text.String(),
		Model:        a.model,
		InputTokens:  int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
	}, nil
}

func (a *Anthropic) classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusPaymentRequired ||
			strings.Contains(strings.ToLower(apiErr.Error()), "credit balance") {
			return &Error{Code: CodeInsufficientCredits, Provider: a.Name(), Message: "credit balance exhausted", Err: err}
		}
		return &Error{Code: CodeAPIError, Provider: a.Name(), Message: fmt.Sprintf("status %d", apiErr.StatusCode), Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &Error{Code: CodeAPIError, Provider: a.Name(), Message: "request failed", Err: err}
}
