package assistant

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/vera/client/internal/model/chat"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionStore keeps per-session history for the development assistant.
type SessionStore struct {
	mu       sync.RWMutex
	limit    int
	created  map[string]time.Time
	messages map[string][]chat.Message
}

// NewSessionStore bootstraps the in-memory store. limit caps the retained
// history per session (oldest dropped first).
func NewSessionStore(limit int) *SessionStore {
	if limit < 2 {
		limit = 2
	}
	return &SessionStore{
		limit:    limit,
		created:  make(map[string]time.Time),
		messages: make(map[string][]chat.Message),
	}
}

// Create provisions a new session and returns its token.
func (s *SessionStore) Create() string {
	token := uuid.NewString()

	s.mu.Lock()
	s.created[token] = time.Now().UTC()
	s.messages[token] = make([]chat.Message, 0, 16)
	s.mu.Unlock()

	return token
}

// Exists reports whether token names a live session.
func (s *SessionStore) Exists(token string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.created[token]
	return ok
}

// Append adds a message to the session history.
func (s *SessionStore) Append(token string, message chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.messages[token]
	if !ok {
		return ErrSessionNotFound
	}

	message.ID = uuid.NewString()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	history = append(history, message)
	if len(history) > s.limit {
		history = append([]chat.Message(nil), history[len(history)-s.limit:]...)
	}
	s.messages[token] = history
	return nil
}

// Transcript returns a copy of the stored history.
func (s *SessionStore) Transcript(token string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[token]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}
