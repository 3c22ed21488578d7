package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"phishbox/internal/config"
)

type stubModel struct {
	messages []llms.MessageContent
	reply    string
	err      error
}

func (m *stubModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestBackendGenerate(t *testing.T) {
	model := &stubModel{reply: "  fraud \n"}
	b := NewBackend("stub", model)

	out, err := b.Generate(context.Background(), "you are a router", "pick a team")
	require.NoError(t, err)
	assert.Equal(t, "fraud", out)
	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
}

func TestBackendEmptyReply(t *testing.T) {
	b := NewBackend("stub", &stubModel{reply: "   "})
	_, err := b.Generate(context.Background(), "", "hello")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestBackendPropagatesError(t *testing.T) {
	boom := errors.New("rate limited")
	b := NewBackend("stub", &stubModel{err: boom})
	_, err := b.Generate(context.Background(), "", "hello")
	assert.ErrorIs(t, err, boom)
}

func TestResolvePrefersHostedWhenKeyPresent(t *testing.T) {
	g, err := Resolve(config.LLMConfig{
		Hosted: config.HostedLLMConfig{Provider: "openai", APIKey: "sk-test", Model: "gpt-4o-mini"},
	}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "openai", g.Name())

	g, err = Resolve(config.LLMConfig{Local: config.LocalLLMConfig{Model: "llama3.1"}}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "ollama", g.Name())
}

func TestResolveFallsBackToLocalOnBadProvider(t *testing.T) {
	g, err := Resolve(config.LLMConfig{
		Hosted: config.HostedLLMConfig{Provider: "parrot", APIKey: "k"},
		Local:  config.LocalLLMConfig{Model: "llama3.1"},
	}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "ollama", g.Name())
}
