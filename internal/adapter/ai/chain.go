package ai

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-interviewer/internal/service/ratelimiter"
)

// LimiterKey is the shared token bucket every LLM call draws from.
const LimiterKey = "llm:evaluate"

var _ domain.AIClient = (*Chain)(nil)

// Chain tries each provider in order and returns the first non-empty reply.
type Chain struct {
	providers []domain.AIClient
	breakers  map[string]*CircuitBreaker
	limiter   ratelimiter.Limiter
}

// ChainOption customises a Chain.
type ChainOption func(*Chain)

// WithLimiter gates every call on the shared token bucket.
func WithLimiter(l ratelimiter.Limiter) ChainOption {
	return func(c *Chain) { c.limiter = l }
}

// WithBreaker overrides the breaker settings used for every provider.
func WithBreaker(threshold int, recovery time.Duration) ChainOption {
	return func(c *Chain) {
		for name := range c.breakers {
			c.breakers[name] = NewCircuitBreaker(name, threshold, recovery)
		}
	}
}

// NewChain builds a chain over providers in the given order.
func NewChain(providers []domain.AIClient, opts ...ChainOption) *Chain {
	c := &Chain{providers: providers, breakers: make(map[string]*CircuitBreaker, len(providers))}
	for _, p := range providers {
		c.breakers[p.Provider()] = NewCircuitBreaker(p.Provider(), 3, 30*time.Second)
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Provider names the chain for logs.
func (c *Chain) Provider() string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Provider())
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// Empty reports whether no provider is configured.
func (c *Chain) Empty() bool { return c == nil || len(c.providers) == 0 }

// ChatJSON implements domain.AIClient.
func (c *Chain) ChatJSON(ctx domain.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	if c.Empty() {
		return "", fmt.Errorf("%w: no llm provider configured", domain.ErrUpstreamUnavailable)
	}
	if c.limiter != nil {
		allowed, retryAfter, err := c.limiter.Allow(ctx, LimiterKey, 1)
		if err != nil {
			slog.Warn("llm limiter unavailable, continuing", slog.Any("error", err))
		}
		if !allowed {
			return "", fmt.Errorf("%w: local budget exhausted, retry after %s", domain.ErrUpstreamRateLimit, retryAfter)
		}
	}

	var errs []error
	for _, p := range c.providers {
		name := p.Provider()
		br := c.breakers[name]
		if !br.Allow() {
			errs = append(errs, fmt.Errorf("%s: circuit open", name))
			continue
		}
		start := time.Now()
		out, err := p.ChatJSON(ctx, systemPrompt, userPrompt, maxTokens)
		if err == nil && strings.TrimSpace(out) == "" {
			err = errors.New("empty reply")
		}
		observability.ObserveAIRequest(name, "chat", start, err)
		if err != nil {
			br.RecordFailure()
			slog.Warn("llm provider failed", slog.String("provider", name), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		br.RecordSuccess()
		return out, nil
	}
	return "", fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, errors.Join(errs...))
}
