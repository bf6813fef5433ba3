package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/interview-orchestrator/internal/model/chat"
)

// ArkProvider runs turns through an Eino chat model, normally the Volcengine
// Ark model built from configuration.
type ArkProvider struct {
	chatModel model.BaseChatModel
}

// NewArkProvider wraps an Eino chat model.
func NewArkProvider(chatModel model.BaseChatModel) *ArkProvider {
	return &ArkProvider{chatModel: chatModel}
}

// Complete implements Provider.
func (p *ArkProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	messages := make([]*schema.Message, 0, len(req.Messages))
	for _, turn := range req.Messages {
		messages = append(messages, &schema.Message{
			Role:    arkRole(turn.Role),
			Content: turn.Content,
		})
	}

	resp, err := p.chatModel.Generate(ctx, messages,
		model.WithModel(req.Model),
		model.WithMaxTokens(req.MaxTokens),
		model.WithTemperature(float32(req.Temperature)),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate ark response: %w", err)
	}
	if resp == nil {
		return "", ErrEmptyCompletion
	}
	return resp.Content, nil
}

func arkRole(role chat.Role) schema.RoleType {
	switch role {
	case chat.RoleSystem:
		return schema.System
	case chat.RoleAssistant:
		return schema.Assistant
	default:
		return schema.User
	}
}
