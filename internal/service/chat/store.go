package chat

import (
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/zhouzirui/interview-orchestrator/internal/model/chat"
)

// previewLimit caps the last-message preview returned by List.
const previewLimit = 50

type sessionRecord struct {
	id        string
	messages  []chat.Message
	createdAt time.Time
	updatedAt time.Time
	metadata  map[string]any
}

func (r *sessionRecord) snapshot() chat.Session {
	messages := make([]chat.Message, len(r.messages))
	copy(messages, r.messages)

	var metadata map[string]any
	if len(r.metadata) > 0 {
		metadata = make(map[string]any, len(r.metadata))
		for k, v := range r.metadata {
			metadata[k] = v
		}
	}

	return chat.Session{
		ID:        r.id,
		Messages:  messages,
		CreatedAt: r.createdAt,
		UpdatedAt: r.updatedAt,
		Metadata:  metadata,
	}
}

// Store keeps chat sessions in process memory. All session mutation goes
// through it and it is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*sessionRecord
}

// NewStore returns an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*sessionRecord)}
}

// Create provisions a session and returns its ID. A fresh UUID is generated
// when id is empty. A non-empty systemPrompt seeds one system message.
// Creating over an existing ID reinitialises that session.
func (s *Store) Create(id, systemPrompt string) string {
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now().UTC()
	record := &sessionRecord{
		id:        id,
		messages:  make([]chat.Message, 0, 16),
		createdAt: now,
		updatedAt: now,
		metadata:  make(map[string]any),
	}
	if systemPrompt != "" {
		record.messages = append(record.messages, chat.Message{
			Role:      chat.RoleSystem,
			Content:   systemPrompt,
			Timestamp: now,
		})
	}

	s.mu.Lock()
	s.sessions[id] = record
	s.mu.Unlock()

	return id
}

// Get returns a copy of the session.
func (s *Store) Get(id string) (chat.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.sessions[id]
	if !ok {
		return chat.Session{}, false
	}
	return record.snapshot(), true
}

// Exists reports whether a session is stored under id.
func (s *Store) Exists(id string) bool {
	s.mu.RLock()
	_, ok := s.sessions[id]
	s.mu.RUnlock()
	return ok
}

// Delete removes the session and reports whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// Append adds a message to the end of the session and refreshes its
// update time. It returns false when the session does not exist.
func (s *Store) Append(id string, role chat.Role, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.sessions[id]
	if !ok {
		return false
	}

	now := time.Now().UTC()
	record.messages = append(record.messages, chat.Message{
		Role:      role,
		Content:   content,
		Timestamp: now,
	})
	record.updatedAt = now
	return true
}

// Count returns the number of messages in the session.
func (s *Store) Count(id string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.sessions[id]
	if !ok {
		return 0, false
	}
	return len(record.messages), true
}

// Transcript returns the session's messages as ordered role/content pairs.
func (s *Store) Transcript(id string) ([]chat.Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.sessions[id]
	if !ok {
		return nil, false
	}

	turns := make([]chat.Turn, 0, len(record.messages))
	for _, msg := range record.messages {
		turns = append(turns, chat.Turn{Role: msg.Role, Content: msg.Content})
	}
	return turns, true
}

// Clear drops the session's messages. With keepSystem the system messages
// survive in their original order.
func (s *Store) Clear(id string, keepSystem bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.sessions[id]
	if !ok {
		return false
	}

	kept := make([]chat.Message, 0, len(record.messages))
	if keepSystem {
		for _, msg := range record.messages {
			if msg.Role == chat.RoleSystem {
				kept = append(kept, msg)
			}
		}
	}
	record.messages = kept
	record.updatedAt = time.Now().UTC()
	return true
}

// SetMetadata stores value under key in the session's metadata bag.
func (s *Store) SetMetadata(id, key string, value any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.sessions[id]
	if !ok {
		return false
	}
	record.metadata[key] = value
	return true
}

// List summarises every session, oldest first.
func (s *Store) List() []chat.Summary {
	s.mu.RLock()
	summaries := make([]chat.Summary, 0, len(s.sessions))
	for _, record := range s.sessions {
		summaries = append(summaries, summarize(record))
	}
	s.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].SessionID < summaries[j].SessionID
		}
		return summaries[i].CreatedAt.Before(summaries[j].CreatedAt)
	})
	return summaries
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func summarize(record *sessionRecord) chat.Summary {
	summary := chat.Summary{
		SessionID:    record.id,
		CreatedAt:    record.createdAt,
		UpdatedAt:    record.updatedAt,
		MessageCount: len(record.messages),
	}
	for _, msg := range record.messages {
		if msg.Role == chat.RoleUser {
			summary.UserMessageCount++
		}
	}
	if n := len(record.messages); n > 0 {
		preview := truncatePreview(record.messages[n-1].Content)
		summary.LastMessagePreview = &preview
	}
	return summary
}

// truncatePreview keeps at most previewLimit runes and always marks the cut.
func truncatePreview(content string) string {
	if utf8.RuneCountInString(content) > previewLimit {
		runes := []rune(content)
		content = string(runes[:previewLimit])
	}
	return content + "..."
}
