package ai

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/zhouzirui/interview-orchestrator/internal/model/chat"
)

// MockProvider answers without any network call. It echoes the latest user
// message and is meant for local development.
type MockProvider struct{}

// NewMockProvider creates a mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// Complete implements Provider.
func (m *MockProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == chat.RoleUser {
			last = req.Messages[i].Content
			break
		}
	}
	if last == "" {
		return "[MOCK] This is a mock response.", nil
	}
	return fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", truncate(last, 100)), nil
}

func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}
