// Package siwegate is the Go client for a siwegate server: Sign-In with
// Ethereum, session refresh and signed payment authorizations.
package siwegate

import (
	"context"
	"crypto/ecdsa"

	"github.com/layer-3/siwegate/core"
)

// Client represents the public interface for interacting with the session service
type Client interface {
	// Nonce requests a login nonce; the server also sets it as a cookie
	Nonce(ctx context.Context) (string, error)

	// Verify submits a signed EIP-4361 message and starts a session
	Verify(ctx context.Context, message, signature string) (*Login, error)

	// SignIn fetches a nonce, signs a login message with key and verifies it
	SignIn(ctx context.Context, key *ecdsa.PrivateKey, opts SignInOptions) (*Login, error)

	// Refresh rotates the refresh token
	Refresh(ctx context.Context) (*Login, error)

	// Logout revokes the current refresh token
	Logout(ctx context.Context) error

	// Session reads the current session
	Session(ctx context.Context) (*core.SessionView, error)

	// AuthorizePayment signs and submits a payment authorization with key
	AuthorizePayment(ctx context.Context, key *ecdsa.PrivateKey, p Payment) (*core.PaymentAuthorization, error)

	// Payments lists the payment authorizations of the signed-in user
	Payments(ctx context.Context) ([]core.PaymentAuthorization, error)
}
