package chat

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/interview-orchestrator/internal/model/chat"
	"github.com/zhouzirui/interview-orchestrator/internal/service/ai"
)

const (
	MinMaxTokens       = 1
	MaxMaxTokens       = 4000
	DefaultMaxTokens   = 150
	MinTemperature     = 0.0
	MaxTemperature     = 2.0
	DefaultTemperature = 0.7
)

// TurnRequest describes one chat turn. An empty SessionID asks for a new
// session.
type TurnRequest struct {
	SessionID    string
	Message      string
	SystemPrompt string
	Model        string
	MaxTokens    int
	Temperature  float64
}

// Validate checks the request bounds.
func (r TurnRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return &ValidationError{Field: "message", Reason: "must not be empty"}
	}
	if strings.TrimSpace(r.Model) == "" {
		return &ValidationError{Field: "model", Reason: "must not be empty"}
	}
	if r.MaxTokens < MinMaxTokens || r.MaxTokens > MaxMaxTokens {
		return &ValidationError{
			Field:  "max_tokens",
			Reason: fmt.Sprintf("must be between %d and %d, got %d", MinMaxTokens, MaxMaxTokens, r.MaxTokens),
		}
	}
	if math.IsNaN(r.Temperature) || r.Temperature < MinTemperature || r.Temperature > MaxTemperature {
		return &ValidationError{
			Field:  "temperature",
			Reason: fmt.Sprintf("must be between %.1f and %.1f, got %v", MinTemperature, MaxTemperature, r.Temperature),
		}
	}
	return nil
}

// TurnResult is the outcome of a successful turn.
type TurnResult struct {
	Response     string
	SessionID    string
	MessageCount int
}

// Client mediates chat turns between the session store and a completion
// provider. Turns on the same session run one at a time.
type Client struct {
	store    *Store
	provider ai.Provider
	timeout  time.Duration
	locks    *sessionLocker
	logger   *slog.Logger
}

// NewClient wires a client around store. A nil provider yields a client that
// serves reads and deletes but rejects turns with ErrClientNotReady. A
// non-positive timeout leaves provider calls bounded only by the caller's
// context.
func NewClient(store *Store, provider ai.Provider, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		store:    store,
		provider: provider,
		timeout:  timeout,
		locks:    newSessionLocker(),
		logger:   logger.With("component", "chat"),
	}
}

// Ready reports whether a provider is configured.
func (c *Client) Ready() bool {
	return c != nil && c.provider != nil
}

// SessionCount returns the number of live sessions.
func (c *Client) SessionCount() int {
	return c.store.Len()
}

// CompleteTurn appends the user message, sends the whole transcript to the
// provider and records the reply. When the provider fails the user message
// is kept and a *ProviderError is returned.
func (c *Client) CompleteTurn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	if err := req.Validate(); err != nil {
		return TurnResult{}, err
	}
	if !c.Ready() {
		return TurnResult{}, ErrClientNotReady
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	unlock := c.locks.lock(sessionID)
	defer unlock()

	if !c.store.Exists(sessionID) {
		c.store.Create(sessionID, req.SystemPrompt)
		c.logger.Info("session created", "session_id", sessionID, "implicit", req.SessionID == "")
	}

	if !c.store.Append(sessionID, chat.RoleUser, req.Message) {
		return TurnResult{}, ErrSessionNotFound
	}

	transcript, ok := c.store.Transcript(sessionID)
	if !ok {
		return TurnResult{}, ErrSessionNotFound
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := c.provider.Complete(callCtx, ai.CompletionRequest{
		Model:       req.Model,
		Messages:    transcript,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		c.logger.Error("provider call failed",
			"session_id", sessionID,
			"model", req.Model,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return TurnResult{}, &ProviderError{SessionID: sessionID, Err: err}
	}

	reply = strings.TrimSpace(reply)
	if !c.store.Append(sessionID, chat.RoleAssistant, reply) {
		return TurnResult{}, ErrSessionNotFound
	}
	c.store.SetMetadata(sessionID, "model", req.Model)

	count, _ := c.store.Count(sessionID)
	c.logger.Debug("turn completed",
		"session_id", sessionID,
		"model", req.Model,
		"messages", count,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return TurnResult{Response: reply, SessionID: sessionID, MessageCount: count}, nil
}

// Context returns the ordered transcript of a session.
func (c *Client) Context(sessionID string) (chat.Context, error) {
	session, ok := c.store.Get(sessionID)
	if !ok {
		return chat.Context{}, ErrSessionNotFound
	}
	return chat.NewContext(session), nil
}

// DeleteSession removes a session once no turn is running on it.
func (c *Client) DeleteSession(sessionID string) error {
	unlock := c.locks.lock(sessionID)
	defer unlock()

	if !c.store.Delete(sessionID) {
		return ErrSessionNotFound
	}
	c.logger.Info("session deleted", "session_id", sessionID)
	return nil
}

// ClearSession empties a session's transcript, optionally keeping its
// system messages, and returns the resulting context.
func (c *Client) ClearSession(sessionID string, keepSystem bool) (chat.Context, error) {
	unlock := c.locks.lock(sessionID)
	defer unlock()

	if !c.store.Clear(sessionID, keepSystem) {
		return chat.Context{}, ErrSessionNotFound
	}
	c.logger.Info("session cleared", "session_id", sessionID, "keep_system", keepSystem)
	return c.Context(sessionID)
}

// ListSessions summarises every live session.
func (c *Client) ListSessions() []chat.Summary {
	return c.store.List()
}
