package chat

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrClientNotReady  = errors.New("chat client not initialized")
)

// ValidationError reports a turn request field outside its accepted range.
// It is returned before any session is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProviderError wraps a failed completion call. The user message of the
// failed turn stays in the session.
type ProviderError struct {
	SessionID string
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider request failed for session %s: %v", e.SessionID, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the provider call ran past its deadline.
func (e *ProviderError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}
