package llm

import (
	"fmt"

	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"phishbox/internal/config"
)

// Resolve picks the backend once for the life of the process: the hosted
// provider when an API key is configured and it initialises, otherwise the
// local Ollama server.
func Resolve(cfg config.LLMConfig, logger *zap.Logger) (Generator, error) {
	if cfg.Hosted.APIKey != "" {
		g, err := newHosted(cfg.Hosted)
		if err == nil {
			logger.Info("Using hosted LLM backend",
				zap.String("backend", g.Name()),
				zap.String("model", cfg.Hosted.Model),
			)
			return g, nil
		}
		logger.Error("Hosted LLM backend unavailable, falling back to local",
			zap.String("provider", cfg.Hosted.Provider),
			zap.Error(err),
		)
	}

	g, err := newLocal(cfg.Local)
	if err != nil {
		return nil, err
	}
	logger.Info("Using local LLM backend",
		zap.String("url", cfg.Local.URL),
		zap.String("model", cfg.Local.Model),
	)
	return g, nil
}

func newHosted(cfg config.HostedLLMConfig) (Generator, error) {
	switch cfg.Provider {
	case "", "openai":
		opts := []openai.Option{openai.WithToken(cfg.APIKey)}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		client, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("init openai backend: %w", err)
		}
		return NewBackend("openai", client), nil

	case "anthropic":
		opts := []anthropic.Option{anthropic.WithToken(cfg.APIKey)}
		if cfg.Model != "" {
			opts = append(opts, anthropic.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		client, err := anthropic.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("init anthropic backend: %w", err)
		}
		return NewBackend("anthropic", client), nil

	default:
		return nil, fmt.Errorf("unknown hosted llm provider %q", cfg.Provider)
	}
}

func newLocal(cfg config.LocalLLMConfig) (Generator, error) {
	url := cfg.URL
	if url == "" {
		url = "http://localhost:11434"
	}
	opts := []ollama.Option{ollama.WithServerURL(url)}
	if cfg.Model != "" {
		opts = append(opts, ollama.WithModel(cfg.Model))
	}
	client, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init ollama backend: %w", err)
	}
	return NewBackend("ollama", client), nil
}
