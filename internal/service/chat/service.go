package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/speakeasy/internal/model/chat"
)

var (
	ErrGreetingRequired = errors.New("greeting is required")
	ErrSessionNotFound  = errors.New("session not found")
)

// Service keeps the dev backend's sessions in memory.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
}

// NewService bootstraps the in-memory session service.
func NewService() *Service {
	return &Service{
		sessions: make(map[string]chat.Session),
	}
}

// CreateSession records a new session and assigns it an id.
func (s *Service) CreateSession(_ context.Context, session chat.Session) (chat.Session, error) {
	if session.Greeting == "" {
		return chat.Session{}, ErrGreetingRequired
	}

	session.ID = uuid.NewString()
	session.CreatedAt = time.Now().UTC()

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// Count reports how many sessions were started.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
