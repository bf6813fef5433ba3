package ai

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/zhouzirui/interview-orchestrator/internal/model/chat"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// LangChainProvider sends turns through langchaingo's OpenAI-compatible
// client.
type LangChainProvider struct {
	llm contentGenerator
}

// NewLangChainProvider builds the langchaingo client. defaultModel is used by
// langchaingo when a request carries no model.
func NewLangChainProvider(apiKey, baseURL, defaultModel string) (*LangChainProvider, error) {
	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(defaultModel),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create langchain client: %w", err)
	}
	return &LangChainProvider{llm: llm}, nil
}

// Complete implements Provider.
func (p *LangChainProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	content := make([]llms.MessageContent, 0, len(req.Messages))
	for _, turn := range req.Messages {
		content = append(content, llms.TextParts(langChainRole(turn.Role), turn.Content))
	}

	output, err := p.llm.GenerateContent(ctx, content,
		llms.WithModel(req.Model),
		llms.WithMaxTokens(req.MaxTokens),
		llms.WithTemperature(req.Temperature),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if output == nil || len(output.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return output.Choices[0].Content, nil
}

func langChainRole(role chat.Role) llms.ChatMessageType {
	switch role {
	case chat.RoleSystem:
		return llms.ChatMessageTypeSystem
	case chat.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
