package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/siwegate/core"
)

// MemoryStore is an in-memory implementation of the RevocationStore and NonceLedger
// interfaces. Entries expire lazily on access.
type MemoryStore struct {
	invalidatedTokens map[string]time.Time
	nonces            map[string]time.Time
	now               func() time.Time
	mu                sync.Mutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		invalidatedTokens: make(map[string]time.Time),
		nonces:            make(map[string]time.Time),
		now:               time.Now,
	}
}

// InvalidateToken marks a token as invalidated
func (s *MemoryStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invalidatedTokens[tokenID] = s.now().Add(expiry)
	return nil
}

// IsTokenInvalidated checks if a token is invalidated
func (s *MemoryStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiryTime, exists := s.invalidatedTokens[tokenID]
	if !exists {
		return false, nil
	}

	// Check if the token invalidation has expired
	if s.now().After(expiryTime) {
		delete(s.invalidatedTokens, tokenID)
		return false, nil
	}

	return true, nil
}

// RevokeOnce invalidates a token if it is not already invalidated
func (s *MemoryStore) RevokeOnce(ctx context.Context, tokenID string, expiry time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.invalidatedTokens[tokenID]; ok && !now.After(exp) {
		return false, nil
	}
	s.invalidatedTokens[tokenID] = now.Add(expiry)
	return true, nil
}

// Remember records an issued nonce until ttl elapses
func (s *MemoryStore) Remember(ctx context.Context, purpose core.NoncePurpose, nonce string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nonces[nonceKey(purpose, nonce)] = s.now().Add(ttl)
	return nil
}

// Consume removes a nonce and reports whether it was still live
func (s *MemoryStore) Consume(ctx context.Context, purpose core.NoncePurpose, nonce string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := nonceKey(purpose, nonce)
	expiresAt, ok := s.nonces[key]
	if !ok {
		return false, nil
	}
	delete(s.nonces, key)

	return s.now().Before(expiresAt), nil
}

// Sweep drops every expired entry
func (s *MemoryStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, exp := range s.invalidatedTokens {
		if now.After(exp) {
			delete(s.invalidatedTokens, k)
		}
	}
	for k, exp := range s.nonces {
		if !now.Before(exp) {
			delete(s.nonces, k)
		}
	}
}

func nonceKey(purpose core.NoncePurpose, nonce string) string {
	return string(purpose) + ":" + nonce
}
