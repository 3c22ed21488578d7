// Package llm wraps the text-generation backends used for team suggestion
// and persona discussions.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

var ErrEmptyResponse = errors.New("llm returned an empty response")

// Generator produces one completion for a system framing and a user prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Backend adapts a langchaingo model to Generator.
type Backend struct {
	name        string
	model       llms.Model
	maxTokens   int
	temperature float64
}

func NewBackend(name string, model llms.Model) *Backend {
	return &Backend{
		name:        name,
		model:       model,
		maxTokens:   600,
		temperature: 0.4,
	}
}

func (b *Backend) Name() string {
	return b.name
}

func (b *Backend) Generate(ctx context.Context, system, prompt string) (string, error) {
	messages := make([]llms.MessageContent, 0, 2)
	if system != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	resp, err := b.model.GenerateContent(ctx, messages,
		llms.WithMaxTokens(b.maxTokens),
		llms.WithTemperature(b.temperature),
	)
	if err != nil {
		return "", fmt.Errorf("%s: %w", b.name, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: %w", b.name, ErrEmptyResponse)
	}

	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return "", fmt.Errorf("%s: %w", b.name, ErrEmptyResponse)
	}
	return text, nil
}

// Func is a Generator backed by a function, for wiring fakes.
type Func struct {
	BackendName string
	Fn          func(ctx context.Context, system, prompt string) (string, error)
}

func (f Func) Name() string {
	return f.BackendName
}

func (f Func) Generate(ctx context.Context, system, prompt string) (string, error) {
	return f.Fn(ctx, system, prompt)
}
