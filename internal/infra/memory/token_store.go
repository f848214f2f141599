package memory

import (
	"context"
	"sync"

	"gig-geni-service/internal/domain"
)

// TokenStore keeps token pairs by credential key in process memory.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string]domain.TokenPair
}

func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[string]domain.TokenPair)}
}

func (s *TokenStore) Get(_ context.Context, key string) (domain.TokenPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pair, ok := s.tokens[key]
	if !ok {
		return domain.TokenPair{}, domain.ErrUnauthenticated
	}
	return pair, nil
}

func (s *TokenStore) Put(_ context.Context, key string, pair domain.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[key] = pair
	return nil
}

func (s *TokenStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, key)
	return nil
}
