package categorizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/dvloznov/ledger-import/internal/config"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini is a Provider backed by the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates the provider. An empty apiKey fails with
// config.ErrMissingCredential.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("NewGemini: %w: GEMINI_API_KEY is not set", config.ErrMissingCredential)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGemini: create genai client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Complete(ctx context.Context, prompt string) (*Completion, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, g.classify(err)
	}

	text := resp.Text()
	if text == "" {
		return nil, &Error{Code: CodeInvalidResponse, Provider: g.Name(), Message: "empty response from model"}
	}

	c := &Completion{Text: text, Model: g.model}
	if resp.UsageMetadata != nil {
		c.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		c.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return c, nil
}

func (g *Gemini) classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		msg := strings.ToLower(apiErr.Message)
		if apiErr.Code == http.StatusPaymentRequired ||
			(apiErr.Status == "RESOURCE_EXHAUSTED" && (strings.Contains(msg, "quota") || strings.Contains(msg, "billing"))) {
			return &Error{Code: CodeInsufficientCredits, Provider: g.Name(), Message: "quota exhausted", Err: err}
		}
		return &Error{Code: CodeAPIError, Provider: g.Name(), Message: fmt.Sprintf("status %d %s", apiErr.Code, apiErr.Status), Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &Error{Code: CodeAPIError, Provider: g.Name(), Message: "request failed", Err: err}
}
