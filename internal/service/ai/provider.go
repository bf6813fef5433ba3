// Package ai adapts hosted chat-completion services to a single Provider
// interface used by the chat client.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zhouzirui/interview-orchestrator/internal/config"
	"github.com/zhouzirui/interview-orchestrator/internal/model/chat"
)

// ErrEmptyCompletion is returned when a provider answers without any choice.
var ErrEmptyCompletion = errors.New("provider returned no completion choices")

// CompletionRequest carries the full transcript and sampling parameters of
// one completion call.
type CompletionRequest struct {
	Model       string
	Messages    []chat.Turn
	MaxTokens   int
	Temperature float64
}

// Provider generates one assistant reply from an ordered transcript.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// NewProvider builds the backend selected by cfg.Provider.
func NewProvider(ctx context.Context, cfg config.AIConfig) (Provider, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("credentials missing for provider %q", cfg.Provider)
	}

	switch strings.ToLower(cfg.Provider) {
	case config.ProviderOpenAI:
		return NewOpenAIProvider(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL), nil
	case config.ProviderArk:
		chatModel, err := cfg.Ark.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create ark chat model: %w", err)
		}
		return NewArkProvider(chatModel), nil
	case config.ProviderLangChain:
		provider, err := NewLangChainProvider(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.DefaultModel())
		if err != nil {
			return nil, err
		}
		return provider, nil
	case config.ProviderMock:
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}
