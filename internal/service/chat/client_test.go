package chat_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/interview-orchestrator/internal/model/chat"
	"github.com/zhouzirui/interview-orchestrator/internal/service/ai"
	chatservice "github.com/zhouzirui/interview-orchestrator/internal/service/chat"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls []ai.CompletionRequest
	reply func(ctx context.Context, req ai.CompletionRequest) (string, error)
}

func (f *fakeProvider) Complete(ctx context.Context, req ai.CompletionRequest) (string, error) {
	f.mu.Lock()
	copied := req
	copied.Messages = append([]chat.Turn(nil), req.Messages...)
	f.calls = append(f.calls, copied)
	f.mu.Unlock()

	if f.reply == nil {
		return "ok", nil
	}
	return f.reply(ctx, req)
}

func (f *fakeProvider) recorded() []ai.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ai.CompletionRequest(nil), f.calls...)
}

func replyWith(text string) func(context.Context, ai.CompletionRequest) (string, error) {
	return func(context.Context, ai.CompletionRequest) (string, error) { return text, nil }
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(provider ai.Provider, timeout time.Duration) (*chatservice.Client, *chatservice.Store) {
	store := chatservice.NewStore()
	return chatservice.NewClient(store, provider, timeout, discardLogger()), store
}

func turn(sessionID, message string) chatservice.TurnRequest {
	return chatservice.TurnRequest{
		SessionID:   sessionID,
		Message:     message,
		Model:       "gpt-3.5-turbo",
		MaxTokens:   chatservice.DefaultMaxTokens,
		Temperature: chatservice.DefaultTemperature,
	}
}

func TestCompleteTurnImplicitSession(t *testing.T) {
	provider := &fakeProvider{reply: replyWith("Hi there!")}
	client, store := newTestClient(provider, time.Second)

	result, err := client.CompleteTurn(context.Background(), turn("", "Hello"))
	require.NoError(t, err)

	assert.Equal(t, "Hi there!", result.Response)
	assert.NotEmpty(t, result.SessionID)
	assert.Equal(t, 2, result.MessageCount)
	assert.True(t, store.Exists(result.SessionID))

	calls := provider.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, []chat.Turn{{Role: chat.RoleUser, Content: "Hello"}}, calls[0].Messages)
	assert.Equal(t, "gpt-3.5-turbo", calls[0].Model)
	assert.Equal(t, 150, calls[0].MaxTokens)
	assert.InDelta(t, 0.7, calls[0].Temperature, 1e-9)
}

func TestCompleteTurnExplicitSessionWithSystemPrompt(t *testing.T) {
	var n int32
	provider := &fakeProvider{reply: func(context.Context, ai.CompletionRequest) (string, error) {
		return fmt.Sprintf("reply %d", atomic.AddInt32(&n, 1)), nil
	}}
	client, _ := newTestClient(provider, time.Second)

	first := turn("s1", "Question one")
	first.SystemPrompt = "Be terse."
	_, err := client.CompleteTurn(context.Background(), first)
	require.NoError(t, err)

	second := turn("s1", "Question two")
	second.SystemPrompt = "ignored for existing sessions"
	result, err := client.CompleteTurn(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, "s1", result.SessionID)
	assert.Equal(t, 5, result.MessageCount)

	ctx, err := client.Context("s1")
	require.NoError(t, err)
	require.Len(t, ctx.Messages, 5)

	roles := make([]chat.Role, 0, len(ctx.Messages))
	for _, msg := range ctx.Messages {
		roles = append(roles, msg.Role)
	}
	assert.Equal(t, []chat.Role{
		chat.RoleSystem, chat.RoleUser, chat.RoleAssistant, chat.RoleUser, chat.RoleAssistant,
	}, roles)
	assert.Equal(t, "Be terse.", ctx.Messages[0].Content)
	assert.Equal(t, "reply 2", ctx.Messages[4].Content)
	assert.Equal(t, "gpt-3.5-turbo", ctx.Metadata["model"])
}

func TestCompleteTurnRejectsOutOfBoundsBeforeMutation(t *testing.T) {
	cases := map[string]func(*chatservice.TurnRequest){
		"max tokens too high":  func(r *chatservice.TurnRequest) { r.MaxTokens = 5000 },
		"max tokens too low":   func(r *chatservice.TurnRequest) { r.MaxTokens = 0 },
		"temperature too high": func(r *chatservice.TurnRequest) { r.Temperature = 2.5 },
		"temperature negative": func(r *chatservice.TurnRequest) { r.Temperature = -0.1 },
		"blank message":        func(r *chatservice.TurnRequest) { r.Message = "   " },
		"missing model":        func(r *chatservice.TurnRequest) { r.Model = "" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			provider := &fakeProvider{}
			client, store := newTestClient(provider, time.Second)

			req := turn("s1", "Hello")
			mutate(&req)

			_, err := client.CompleteTurn(context.Background(), req)

			var validationErr *chatservice.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, 0, store.Len())
			assert.Empty(t, provider.recorded())
		})
	}
}

func TestCompleteTurnValidationLeavesExistingSessionUntouched(t *testing.T) {
	client, store := newTestClient(&fakeProvider{}, time.Second)
	store.Create("s1", "sys")

	req := turn("s1", "Hello")
	req.MaxTokens = 5000
	_, err := client.CompleteTurn(context.Background(), req)
	require.Error(t, err)

	count, _ := store.Count("s1")
	assert.Equal(t, 1, count)
}

func TestCompleteTurnBoundaryValuesAccepted(t *testing.T) {
	client, _ := newTestClient(&fakeProvider{}, time.Second)

	for _, req := range []chatservice.TurnRequest{
		{Message: "a", Model: "m", MaxTokens: 1, Temperature: 0},
		{Message: "a", Model: "m", MaxTokens: 4000, Temperature: 2},
	} {
		_, err := client.CompleteTurn(context.Background(), req)
		require.NoError(t, err)
	}
}

func TestCompleteTurnProviderFailureKeepsUserMessage(t *testing.T) {
	providerErr := errors.New("rate limited")
	provider := &fakeProvider{reply: func(context.Context, ai.CompletionRequest) (string, error) {
		return "", providerErr
	}}
	client, store := newTestClient(provider, time.Second)
	store.Create("s1", "")
	store.Append("s1", chat.RoleUser, "earlier")
	store.Append("s1", chat.RoleAssistant, "answer")

	_, err := client.CompleteTurn(context.Background(), turn("s1", "again"))

	var perr *chatservice.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "s1", perr.SessionID)
	assert.ErrorIs(t, err, providerErr)
	assert.False(t, perr.Timeout())

	ctx, err := client.Context("s1")
	require.NoError(t, err)
	require.Equal(t, 3, ctx.MessageCount)
	last := ctx.Messages[2]
	assert.Equal(t, chat.RoleUser, last.Role)
	assert.Equal(t, "again", last.Content)
}

func TestCompleteTurnTimeoutIsProviderError(t *testing.T) {
	provider := &fakeProvider{reply: func(ctx context.Context, _ ai.CompletionRequest) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	client, _ := newTestClient(provider, 20*time.Millisecond)

	_, err := client.CompleteTurn(context.Background(), turn("s1", "slow"))

	var perr *chatservice.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Timeout())
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ctx, err := client.Context("s1")
	require.NoError(t, err)
	assert.Equal(t, 1, ctx.MessageCount)
}

func TestCompleteTurnNotReady(t *testing.T) {
	client, store := newTestClient(nil, time.Second)

	assert.False(t, client.Ready())
	_, err := client.CompleteTurn(context.Background(), turn("", "Hello"))
	require.ErrorIs(t, err, chatservice.ErrClientNotReady)
	assert.Equal(t, 0, store.Len())
}

func TestCompleteTurnTrimsReply(t *testing.T) {
	client, _ := newTestClient(&fakeProvider{reply: replyWith("  padded \n")}, time.Second)

	result, err := client.CompleteTurn(context.Background(), turn("s1", "Hello"))
	require.NoError(t, err)
	assert.Equal(t, "padded", result.Response)
}

func TestCompleteTurnTranscriptOrdering(t *testing.T) {
	var n int32
	provider := &fakeProvider{reply: func(context.Context, ai.CompletionRequest) (string, error) {
		return fmt.Sprintf("a%d", atomic.AddInt32(&n, 1)), nil
	}}
	client, _ := newTestClient(provider, time.Second)

	const turns = 4
	for k := 1; k <= turns; k++ {
		req := turn("s1", fmt.Sprintf("u%d", k))
		req.SystemPrompt = "sys"
		_, err := client.CompleteTurn(context.Background(), req)
		require.NoError(t, err)
	}

	ctx, err := client.Context("s1")
	require.NoError(t, err)

	calls := provider.recorded()
	require.Len(t, calls, turns)
	for k, call := range calls {
		want := 1 + 2*k + 1
		require.Len(t, call.Messages, want)
		for i, sent := range call.Messages {
			assert.Equal(t, ctx.Messages[i].Role, sent.Role)
			assert.Equal(t, ctx.Messages[i].Content, sent.Content)
		}
	}
}

func TestCompleteTurnSerialisesSameSession(t *testing.T) {
	var inFlight, maxInFlight int32
	provider := &fakeProvider{reply: func(context.Context, ai.CompletionRequest) (string, error) {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			prev := atomic.LoadInt32(&maxInFlight)
			if cur <= prev || atomic.CompareAndSwapInt32(&maxInFlight, prev, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return "reply", nil
	}}
	client, _ := newTestClient(provider, time.Second)

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := client.CompleteTurn(context.Background(), turn("shared", fmt.Sprintf("u%d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))

	ctx, err := client.Context("shared")
	require.NoError(t, err)
	require.Equal(t, 2*workers, ctx.MessageCount)
	for i := 0; i < len(ctx.Messages); i += 2 {
		assert.Equal(t, chat.RoleUser, ctx.Messages[i].Role)
		assert.Equal(t, chat.RoleAssistant, ctx.Messages[i+1].Role)
	}

	calls := provider.recorded()
	for k, call := range calls {
		assert.Len(t, call.Messages, 2*k+1)
	}
}

func TestCompleteTurnDifferentSessionsRunConcurrently(t *testing.T) {
	var entered sync.WaitGroup
	entered.Add(2)
	release := make(chan struct{})

	provider := &fakeProvider{reply: func(ctx context.Context, _ ai.CompletionRequest) (string, error) {
		entered.Done()
		select {
		case <-release:
			return "done", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}}
	client, _ := newTestClient(provider, 2*time.Second)

	errs := make(chan error, 2)
	for _, id := range []string{"a", "b"} {
		go func(id string) {
			_, err := client.CompleteTurn(context.Background(), turn(id, "hi"))
			errs <- err
		}(id)
	}

	bothEntered := make(chan struct{})
	go func() {
		entered.Wait()
		close(bothEntered)
	}()

	select {
	case <-bothEntered:
	case <-time.After(time.Second):
		t.Fatal("turns on different sessions did not overlap")
	}
	close(release)

	for i := 0; i < 2; i++ {
		require.NoError(t, <-errs)
	}
}

func TestContextIdempotent(t *testing.T) {
	client, _ := newTestClient(&fakeProvider{reply: replyWith("r")}, time.Second)
	_, err := client.CompleteTurn(context.Background(), turn("s1", "Hello"))
	require.NoError(t, err)

	first, err := client.Context("s1")
	require.NoError(t, err)
	second, err := client.Context("s1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestDeleteSessionFinality(t *testing.T) {
	client, _ := newTestClient(&fakeProvider{}, time.Second)
	_, err := client.CompleteTurn(context.Background(), turn("s1", "Hello"))
	require.NoError(t, err)

	require.NoError(t, client.DeleteSession("s1"))

	_, err = client.Context("s1")
	assert.ErrorIs(t, err, chatservice.ErrSessionNotFound)
	assert.ErrorIs(t, client.DeleteSession("s1"), chatservice.ErrSessionNotFound)
}

func TestDeleteWaitsForInFlightTurn(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	provider := &fakeProvider{reply: func(context.Context, ai.CompletionRequest) (string, error) {
		close(started)
		<-release
		return "late reply", nil
	}}
	client, _ := newTestClient(provider, 2*time.Second)

	turnErr := make(chan error, 1)
	go func() {
		_, err := client.CompleteTurn(context.Background(), turn("s1", "Hello"))
		turnErr <- err
	}()
	<-started

	deleted := make(chan error, 1)
	go func() { deleted <- client.DeleteSession("s1") }()

	select {
	case <-deleted:
		t.Fatal("delete finished while the turn was still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-turnErr)
	require.NoError(t, <-deleted)

	_, err := client.Context("s1")
	assert.ErrorIs(t, err, chatservice.ErrSessionNotFound)
}

func TestClearSession(t *testing.T) {
	client, store := newTestClient(&fakeProvider{}, time.Second)
	store.Create("s1", "Be terse.")
	for _, content := range []string{"u1", "a1", "u2", "a2"} {
		role := chat.RoleUser
		if content[0] == 'a' {
			role = chat.RoleAssistant
		}
		store.Append("s1", role, content)
	}

	ctx, err := client.ClearSession("s1", true)
	require.NoError(t, err)
	require.Equal(t, 1, ctx.MessageCount)
	assert.Equal(t, chat.RoleSystem, ctx.Messages[0].Role)

	_, err = client.ClearSession("missing", true)
	assert.ErrorIs(t, err, chatservice.ErrSessionNotFound)
}

func TestListSessions(t *testing.T) {
	client, _ := newTestClient(&fakeProvider{}, time.Second)
	_, err := client.CompleteTurn(context.Background(), turn("s1", "Hello"))
	require.NoError(t, err)
	_, err = client.CompleteTurn(context.Background(), turn("s2", "Hello"))
	require.NoError(t, err)

	summaries := client.ListSessions()
	require.Len(t, summaries, 2)
	assert.Equal(t, 2, client.SessionCount())
	for _, summary := range summaries {
		assert.Equal(t, 2, summary.MessageCount)
		assert.Equal(t, 1, summary.UserMessageCount)
	}
}
