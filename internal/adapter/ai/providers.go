package ai

import (
	"context"
	"log/slog"
	"strings"

	"github.com/fairyhunter13/ai-interviewer/internal/adapter/ai/gemini"
	"github.com/fairyhunter13/ai-interviewer/internal/adapter/ai/openaicompat"
	"github.com/fairyhunter13/ai-interviewer/internal/config"
	"github.com/fairyhunter13/ai-interviewer/internal/domain"
)

// ProvidersFromConfig builds the providers named in cfg.AIProviders, in
// order. Providers without an API key are skipped.
func ProvidersFromConfig(ctx context.Context, cfg config.Config) []domain.AIClient {
	backoff := cfg.RateLimitBackoff()
	compat := func(name, baseURL, key, model string, headers map[string]string) domain.AIClient {
		return openaicompat.New(openaicompat.Options{
			Name: name, BaseURL: baseURL, APIKey: key, Model: model, Headers: headers,
			Timeout: cfg.AIRequestTimeout, RateLimitBackoff: backoff,
		})
	}

	var out []domain.AIClient
	for _, name := range cfg.AIProviders {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "gemini":
			if cfg.GeminiAPIKey == "" {
				continue
			}
			c, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, backoff)
			if err != nil {
				slog.Error("gemini client init failed", slog.Any("error", err))
				continue
			}
			out = append(out, c)
		case "openrouter":
			if cfg.OpenRouterAPIKey == "" {
				continue
			}
			out = append(out, compat("openrouter", cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, cfg.OpenRouterModel, map[string]string{
				"HTTP-Referer": cfg.OpenRouterReferer,
				"X-Title":      cfg.OpenRouterTitle,
			}))
		case "groq":
			if cfg.GroqAPIKey == "" {
				continue
			}
			out = append(out, compat("groq", cfg.GroqBaseURL, cfg.GroqAPIKey, cfg.GroqModel, nil))
		case "openai":
			if cfg.OpenAIAPIKey == "" {
				continue
			}
			out = append(out, compat("openai", cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, nil))
		default:
			slog.Warn("unknown llm provider ignored", slog.String("provider", name))
		}
	}
	return out
}
