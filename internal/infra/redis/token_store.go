package redis

import (
	"context"
	"fmt"
	"time"

	"gig-geni-service/internal/auth"
	"gig-geni-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// TokenStore keeps token pairs by credential key in a hash:
// HSET auth:tokens:{key} access <token> refresh <token>
// The key expires with the refresh token, or after fallbackTTL when its
// expiry cannot be read.
type TokenStore struct {
	client      *redis.Client
	fallbackTTL time.Duration
	now         func() time.Time
}

func NewTokenStore(client *redis.Client, fallbackTTL time.Duration) *TokenStore {
	return &TokenStore{client: client, fallbackTTL: fallbackTTL, now: time.Now}
}

func (s *TokenStore) Get(ctx context.Context, name string) (domain.TokenPair, error) {
	fields, err := s.client.HGetAll(ctx, s.key(name)).Result()
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("read tokens: %w", err)
	}
	if fields["access"] == "" {
		return domain.TokenPair{}, domain.ErrUnauthenticated
	}
	return domain.TokenPair{AccessToken: fields["access"], RefreshToken: fields["refresh"]}, nil
}

func (s *TokenStore) Put(ctx context.Context, name string, pair domain.TokenPair) error {
	key := s.key(name)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, "access", pair.AccessToken, "refresh", pair.RefreshToken)
	if ttl := s.ttlFor(pair); ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store tokens: %w", err)
	}
	return nil
}

func (s *TokenStore) Delete(ctx context.Context, name string) error {
	return s.client.Del(ctx, s.key(name)).Err()
}

func (s *TokenStore) ttlFor(pair domain.TokenPair) time.Duration {
	for _, token := range []string{pair.RefreshToken, pair.AccessToken} {
		if token == "" {
			continue
		}
		exp, err := auth.ExpiresAt(token)
		if err != nil || exp.IsZero() {
			continue
		}
		if ttl := exp.Sub(s.now()); ttl > 0 {
			return ttl
		}
	}
	return s.fallbackTTL
}

func (s *TokenStore) key(name string) string {
	return "auth:tokens:" + name
}
