// Package openaicompat implements domain.AIClient for providers that speak
// the OpenAI chat completions protocol: OpenRouter, Groq and OpenAI itself.
package openaicompat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-interviewer/internal/domain"
)

var _ domain.AIClient = (*Client)(nil)

// Options configures one provider endpoint.
type Options struct {
	Name    string
	BaseURL string
	APIKey  string
	Model   string
	// Headers are added to every request, e.g. OpenRouter attribution.
	Headers map[string]string
	Timeout time.Duration
	// RateLimitBackoff is the wait before the single retry after a 429.
	RateLimitBackoff time.Duration
	HTTPClient       *http.Client
}

// Client calls POST {BaseURL}/chat/completions.
type Client struct {
	opts Options
	hc   *http.Client
}

// New constructs a client. A missing HTTPClient gets an otelhttp transport.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Client{opts: opts, hc: hc}
}

// Provider returns the configured provider name.
func (c *Client) Provider() string { return c.opts.Name }

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Messages    []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// errRateLimited marks a 429 so the retry policy can tell it apart.
var errRateLimited = errors.New("rate limited: 429")

// ChatJSON sends the prompt pair and returns the first choice's content.
// A 429 is retried once after RateLimitBackoff; other 4xx are permanent.
func (c *Client) ChatJSON(ctx domain.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	if c.opts.APIKey == "" {
		return "", fmt.Errorf("%w: %s api key missing", domain.ErrInvalidArgument, c.opts.Name)
	}
	msgs := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: systemPrompt})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: userPrompt})
	b, err := json.Marshal(chatRequest{Model: c.opts.Model, Temperature: 0.2, MaxTokens: maxTokens, Messages: msgs})
	if err != nil {
		return "", fmt.Errorf("op=%s.chat: %w", c.opts.Name, err)
	}
	endpoint := c.opts.BaseURL + "/chat/completions"

	var out chatResponse
	op := func() error {
		// recreate the request each attempt, the body is consumed
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
		if err != nil {
			return backoff.Permanent(err)
		}
		r.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
		r.Header.Set("Content-Type", "application/json")
		for k, v := range c.opts.Headers {
			if v != "" {
				r.Header.Set(k, v)
			}
		}
		resp, err := c.hc.Do(r)
		if err != nil {
			var ne net.Error
			if ctx.Err() != nil || (errors.As(err, &ne) && ne.Timeout()) {
				return backoff.Permanent(fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err))
			}
			return backoff.Permanent(fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err))
		}
		defer func() { _ = resp.Body.Close() }()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return backoff.Permanent(err)
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			slog.Warn("ai provider rate limited", slog.String("provider", c.opts.Name), slog.String("x_request_id", resp.Header.Get("X-Request-Id")))
			return errRateLimited
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			slog.Warn("ai provider 4xx", slog.String("provider", c.opts.Name), slog.Int("status", resp.StatusCode), slog.String("body", snippet(body)))
			return backoff.Permanent(fmt.Errorf("chat status %d", resp.StatusCode))
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			slog.Error("ai provider non-2xx", slog.String("provider", c.opts.Name), slog.Int("status", resp.StatusCode), slog.String("body", snippet(body)))
			return backoff.Permanent(fmt.Errorf("%w: chat status %d", domain.ErrUpstreamUnavailable, resp.StatusCode))
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode: %w", err))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.opts.RateLimitBackoff), 1), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		if errors.Is(err, errRateLimited) {
			return "", fmt.Errorf("op=%s.chat: %w", c.opts.Name, domain.ErrUpstreamRateLimit)
		}
		return "", fmt.Errorf("op=%s.chat: %w", c.opts.Name, err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("op=%s.chat: empty choices", c.opts.Name)
	}
	if out.Model != "" && out.Model != c.opts.Model {
		slog.Debug("model substitution detected", slog.String("provider", c.opts.Name), slog.String("requested_model", c.opts.Model), slog.String("actual_model", out.Model))
	}
	return out.Choices[0].Message.Content, nil
}

func snippet(b []byte) string {
	if len(b) > 512 {
		b = b[:512]
	}
	return string(b)
}
