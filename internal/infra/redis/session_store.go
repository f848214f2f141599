package redis

import (
	"context"
	"sync"
	"time"

	"gig-geni-service/internal/app"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Sessions stay in a local map so the in-process timer and broadcast keep
// working; Redis holds a liveness key per attempt that other instances and
// operators can see.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*app.QuizSession
}

func NewSessionStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		logger:   logger,
		sessions: make(map[string]*app.QuizSession),
	}
}

func (s *SessionStore) Add(key string, session *app.QuizSession) (*app.QuizSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[key]; ok {
		return existing, false
	}
	s.sessions[key] = session
	// best-effort liveness marker
	if err := s.client.Set(context.Background(), s.key(key), session.ID(), s.ttl).Err(); err != nil {
		s.logger.Warn("session liveness write failed", zap.String("session", key), zap.Error(err))
	}
	return session, true
}

func (s *SessionStore) Get(key string) (*app.QuizSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[key]
	return session, ok
}

func (s *SessionStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[key]; !ok {
		return
	}
	delete(s.sessions, key)
	_ = s.client.Del(context.Background(), s.key(key)).Err()
}

// LiveAttempt returns the attempt ID marked live for key on any instance.
func (s *SessionStore) LiveAttempt(ctx context.Context, key string) (string, bool, error) {
	id, err := s.client.Get(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (s *SessionStore) key(key string) string {
	return "quiz:session:" + key
}
