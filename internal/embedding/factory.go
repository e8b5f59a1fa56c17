package embedding

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/tfatykhov/decisionintel/internal/config"
)

// New selects a Provider according to cfg.EmbeddingProvider:
//
//   - "openai": always OpenAI, falling back to Noop if OPENAI_API_KEY is unset
//     or construction fails.
//   - "ollama": always Ollama, regardless of reachability (recorder retries
//     per-call; a transient Ollama outage shouldn't change the provider
//     selection for the process lifetime).
//   - "noop": always Noop, useful for tests and keyword-only deployments.
//   - "auto" (default): probe Ollama first since it is free and local; fall
//     back to OpenAI if an API key is configured; fall back to Noop otherwise.
func New(cfg config.Config, logger *slog.Logger) Provider {
	dims := cfg.EmbeddingDimensions

	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Error("OPENAI_API_KEY required when DECISIONINTEL_EMBEDDING_PROVIDER=openai")
			return NewNoopProvider(dims)
		}
		logger.Info("embedding provider: openai", "model", cfg.EmbeddingModel, "dimensions", dims)
		p, err := NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, dims)
		if err != nil {
			logger.Error("openai provider init failed", "error", err)
			return NewNoopProvider(dims)
		}
		return p
	case "ollama":
		logger.Info("embedding provider: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
		return NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims)
	case "noop":
		logger.Info("embedding provider: noop (semantic retrieval disabled)")
		return NewNoopProvider(dims)
	case "auto":
		fallthrough
	default:
		if ollamaReachable(cfg.OllamaURL) {
			logger.Info("embedding provider: ollama (auto-detected)", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
			return NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims)
		}
		if cfg.OpenAIAPIKey != "" {
			logger.Info("embedding provider: openai (auto-detected)", "model", cfg.EmbeddingModel, "dimensions", dims)
			p, err := NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, dims)
			if err != nil {
				logger.Error("openai provider init failed", "error", err)
				return NewNoopProvider(dims)
			}
			return p
		}
		logger.Warn("no embedding provider available, using noop (semantic retrieval disabled)")
		return NewNoopProvider(dims)
	}
}

// ollamaReachable does a quick liveness probe against Ollama's tag-listing
// endpoint so "auto" mode doesn't pay the cost of a failed embed call per
// decision when Ollama simply isn't running.
func ollamaReachable(baseURL string) bool {
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(c, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
