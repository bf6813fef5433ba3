package chat

import "time"

// Session is an in-memory conversation addressed by ID.
type Session struct {
	ID        string         `json:"session_id"`
	Messages  []Message      `json:"messages"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// CountRole returns how many messages in the session carry role.
func (s Session) CountRole(role Role) int {
	n := 0
	for _, msg := range s.Messages {
		if msg.Role == role {
			n++
		}
	}
	return n
}

// Summary is the list view of a session.
type Summary struct {
	SessionID          string    `json:"session_id"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	MessageCount       int       `json:"message_count"`
	UserMessageCount   int       `json:"user_message_count"`
	LastMessagePreview *string   `json:"last_message_preview"`
}

// Context is the full transcript view of a session.
type Context struct {
	SessionID    string         `json:"session_id"`
	MessageCount int            `json:"message_count"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Messages     []Message      `json:"messages"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// NewContext builds the transcript view from a session snapshot.
func NewContext(s Session) Context {
	messages := s.Messages
	if messages == nil {
		messages = []Message{}
	}
	return Context{
		SessionID:    s.ID,
		MessageCount: len(s.Messages),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		Messages:     messages,
		Metadata:     s.Metadata,
	}
}
