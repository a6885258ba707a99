package verification

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu     sync.Mutex
	tokens map[string]*Token
	now    func() time.Time
}

// NewMemoryStore constructs an in-memory token store for tests.
func NewMemoryStore() Store {
	return &memoryStore{tokens: make(map[string]*Token), now: time.Now}
}

func (s *memoryStore) Put(_ context.Context, token Token, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := token
	s.tokens[tokenKey(token.SubjectID, token.ID)] = &copied
	return nil
}

func (s *memoryStore) Get(_ context.Context, subjectID, tokenID string) (Token, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[tokenKey(subjectID, tokenID)]
	if !ok || s.now().After(token.ExpiresAt) {
		return Token{}, false, nil
	}
	return *token, true, nil
}

func (s *memoryStore) ConsumeIfValid(_ context.Context, subjectID, tokenID string, expected Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[tokenKey(subjectID, tokenID)]
	if !ok || token.Consumed || s.now().After(token.ExpiresAt) {
		return false, nil
	}
	if token.Context != expected {
		return false, nil
	}
	token.Consumed = true
	return true, nil
}

func (s *memoryStore) Consume(_ context.Context, subjectID, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token, ok := s.tokens[tokenKey(subjectID, tokenID)]; ok {
		token.Consumed = true
	}
	return nil
}
