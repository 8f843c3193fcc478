package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/layer-3/siwegate/core"
	"github.com/layer-3/siwegate/internal/metrics"
	"github.com/layer-3/siwegate/ports"
)

// nonceBytes gives 128 bits of entropy, hex encoded to 32 characters
const nonceBytes = 16

// NonceIssuer hands out one-time challenge nonces
type NonceIssuer struct {
	ledger  ports.NonceLedger
	ttl     time.Duration
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewNonceIssuer creates an issuer. A nil ledger leaves the cookie as the
// only record of an issued nonce.
func NewNonceIssuer(ledger ports.NonceLedger, ttl time.Duration, m *metrics.Metrics) *NonceIssuer {
	return &NonceIssuer{
		ledger:  ledger,
		ttl:     ttl,
		metrics: m,
		now:     time.Now,
	}
}

// TTL is the lifetime of an issued nonce
func (n *NonceIssuer) TTL() time.Duration {
	return n.ttl
}

// Issue generates a new nonce for purpose
func (n *NonceIssuer) Issue(ctx context.Context, purpose core.NoncePurpose) (*core.Challenge, error) {
	buf := make([]byte, nonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	now := n.now()
	challenge := &core.Challenge{
		Purpose:   purpose,
		Nonce:     hex.EncodeToString(buf),
		IssuedAt:  now,
		ExpiresAt: now.Add(n.ttl),
	}

	if n.ledger != nil {
		if err := n.ledger.Remember(ctx, purpose, challenge.Nonce, n.ttl); err != nil {
			return nil, fmt.Errorf("failed to record nonce: %w", err)
		}
	}

	n.metrics.NonceIssued(string(purpose))
	return challenge, nil
}

// Redeem burns the cookie nonce. A nonce the ledger no longer knows is
// treated like a missing cookie.
func (n *NonceIssuer) Redeem(ctx context.Context, purpose core.NoncePurpose, nonce string) error {
	if nonce == "" {
		return core.ErrMissingNonceCookie
	}
	if n.ledger == nil {
		return nil
	}

	ok, err := n.ledger.Consume(ctx, purpose, nonce)
	if err != nil {
		return fmt.Errorf("failed to consume nonce: %w", err)
	}
	if !ok {
		return core.ErrMissingNonceCookie
	}
	return nil
}
