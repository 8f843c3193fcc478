package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/siwegate/core"
)

// RedisStore is a Redis implementation of the RevocationStore and NonceLedger interfaces
type RedisStore struct {
	client      redis.Cmdable
	prefix      string
	noncePrefix string
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{
		client:      client,
		prefix:      "siwegate:invalidated:",
		noncePrefix: "siwegate:nonce:",
	}
}

// InvalidateToken marks a token as invalidated in Redis
func (s *RedisStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	key := s.prefix + tokenID

	// Set key with expiration
	if err := s.client.Set(ctx, key, "1", expiry).Err(); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}

	return nil
}

// IsTokenInvalidated checks if a token is invalidated in Redis
func (s *RedisStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	key := s.prefix + tokenID

	// Check if key exists
	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token invalidation: %w", err)
	}

	return val > 0, nil
}

// RevokeOnce sets the revocation key with SET NX, so only the first caller wins
func (s *RedisStore) RevokeOnce(ctx context.Context, tokenID string, expiry time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+tokenID, "1", expiry).Result()
	if err != nil {
		return false, fmt.Errorf("failed to revoke token: %w", err)
	}
	return ok, nil
}

// Remember stores an issued nonce with the cookie's lifetime
func (s *RedisStore) Remember(ctx context.Context, purpose core.NoncePurpose, nonce string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.noncePrefix+nonceKey(purpose, nonce), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to remember nonce: %w", err)
	}
	return nil
}

// Consume atomically deletes a nonce; only the first caller sees true
func (s *RedisStore) Consume(ctx context.Context, purpose core.NoncePurpose, nonce string) (bool, error) {
	_, err := s.client.GetDel(ctx, s.noncePrefix+nonceKey(purpose, nonce)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to consume nonce: %w", err)
	}
	return true, nil
}
