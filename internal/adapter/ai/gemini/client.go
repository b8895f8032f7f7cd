// Package gemini implements domain.AIClient on the Google Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"google.golang.org/genai"

	"github.com/fairyhunter13/ai-interviewer/internal/domain"
)

var _ domain.AIClient = (*Client)(nil)

// generateFunc produces model text for a prompt.
type generateFunc func(ctx context.Context, model, prompt string) (string, error)

// Client calls models.generateContent.
type Client struct {
	model            string
	rateLimitBackoff time.Duration
	generate         generateFunc
}

// New creates a Gemini API client for model.
func New(ctx context.Context, apiKey, model string, rateLimitBackoff time.Duration) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini api key missing", domain.ErrInvalidArgument)
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("op=gemini.New: %w", err)
	}
	gen := func(ctx context.Context, model, prompt string) (string, error) {
		result, err := gc.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
		if err != nil {
			return "", err
		}
		if result == nil {
			return "", errors.New("no response generated")
		}
		return result.Text()
	}
	return &Client{model: model, rateLimitBackoff: rateLimitBackoff, generate: gen}, nil
}

// Provider returns "gemini".
func (c *Client) Provider() string { return "gemini" }

// ChatJSON sends the system prompt followed by the user prompt as a single
// text part. A quota error is retried once after the configured backoff.
func (c *Client) ChatJSON(ctx domain.Context, systemPrompt, userPrompt string, _ int) (string, error) {
	prompt := userPrompt
	if systemPrompt != "" {
		prompt = systemPrompt + "\n\n" + userPrompt
	}
	var out string
	op := func() error {
		text, err := c.generate(ctx, c.model, prompt)
		if err != nil {
			if isQuotaError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		out = text
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.rateLimitBackoff), 1), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		if isQuotaError(err) {
			return "", fmt.Errorf("op=gemini.chat: %w: %v", domain.ErrUpstreamRateLimit, err)
		}
		return "", fmt.Errorf("op=gemini.chat: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return "", errors.New("op=gemini.chat: empty response generated")
	}
	return out, nil
}

// isQuotaError matches the HTTP 429 / RESOURCE_EXHAUSTED errors the SDK
// surfaces as plain error text.
func isQuotaError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED")
}
