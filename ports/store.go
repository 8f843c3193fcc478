package ports

import (
	"context"
	"time"

	"github.com/layer-3/siwegate/core"
)

// RevocationStore records revoked refresh token ids until they expire
type RevocationStore interface {
	InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error
	IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error)
	// RevokeOnce invalidates tokenID unless it already is, and reports
	// whether this call did it. Only one of concurrent callers sees true.
	RevokeOnce(ctx context.Context, tokenID string, expiry time.Duration) (bool, error)
}

// NonceLedger keeps a server-side record of issued nonces so that a nonce
// can be consumed at most once regardless of what the client does with
// its cookie.
type NonceLedger interface {
	Remember(ctx context.Context, purpose core.NoncePurpose, nonce string, ttl time.Duration) error
	// Consume deletes the nonce and reports whether it was present.
	Consume(ctx context.Context, purpose core.NoncePurpose, nonce string) (bool, error)
}
