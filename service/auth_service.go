package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/layer-3/siwegate/core"
	"github.com/layer-3/siwegate/internal/logging"
	"github.com/layer-3/siwegate/internal/metrics"
	"github.com/layer-3/siwegate/ports"
	"github.com/layer-3/siwegate/siwe"
)

// AuthOptions are the deployment-specific settings of AuthService
type AuthOptions struct {
	AcceptedChainID uint64
	// Domain is compared against the message domain when set
	Domain string

	DemoUsername     string
	DemoPasswordHash string
}

// LoginResult is the outcome of a successful sign-in
type LoginResult struct {
	Principal *core.Principal
	Session   *core.Session
	Tokens    core.TokenPair
}

// VerifyRequest carries a signed message, its signature and the nonce the
// client presented in its cookie
type VerifyRequest struct {
	Message     string
	Signature   string
	CookieNonce string
}

// AuthService handles authentication business logic
type AuthService struct {
	nonces   *NonceIssuer
	resolver *IdentityResolver
	binder   *SessionBinder
	store    ports.RevocationStore
	eventPub ports.EventPublisher
	metrics  *metrics.Metrics
	opts     AuthOptions
	now      func() time.Time
}

// NewAuthService creates a new authentication service
func NewAuthService(
	nonces *NonceIssuer,
	resolver *IdentityResolver,
	binder *SessionBinder,
	store ports.RevocationStore,
	eventPub ports.EventPublisher,
	m *metrics.Metrics,
	opts AuthOptions,
) *AuthService {
	return &AuthService{
		nonces:   nonces,
		resolver: resolver,
		binder:   binder,
		store:    store,
		eventPub: eventPub,
		metrics:  m,
		opts:     opts,
		now:      time.Now,
	}
}

// AcceptedChainID is the only chain sign-in messages may name
func (s *AuthService) AcceptedChainID() uint64 {
	return s.opts.AcceptedChainID
}

// CreateChallenge issues a login nonce
func (s *AuthService) CreateChallenge(ctx context.Context) (*core.Challenge, error) {
	return s.nonces.Issue(ctx, core.NoncePurposeLogin)
}

// NonceTTL is the lifetime of challenges handed out by CreateChallenge
func (s *AuthService) NonceTTL() time.Duration {
	return s.nonces.TTL()
}

// VerifySIWE signs a user in with an EIP-4361 message. The nonce is burnt
// before the message is examined, so each nonce backs one attempt.
func (s *AuthService) VerifySIWE(ctx context.Context, req VerifyRequest) (res *LoginResult, err error) {
	defer func() { s.metrics.Verified(string(core.NoncePurposeLogin), err) }()

	identity, _, err := verifySigned(ctx, s.nonces, core.NoncePurposeLogin, req, siwe.Params{
		ChainID: s.opts.AcceptedChainID,
		Domain:  s.opts.Domain,
		Now:     s.now(),
	})
	if err != nil {
		return nil, err
	}

	principal, err := s.resolver.Resolve(ctx, identity)
	if err != nil {
		return nil, err
	}

	return s.login(ctx, principal)
}

// DemoLogin signs in with the configured demo credential
func (s *AuthService) DemoLogin(ctx context.Context, username, password string) (*LoginResult, error) {
	if s.opts.DemoUsername == "" || s.opts.DemoPasswordHash == "" {
		return nil, core.ErrProviderDisabled
	}
	if username == "" || password == "" {
		return nil, core.ErrMissingCredentials
	}

	hashErr := bcrypt.CompareHashAndPassword([]byte(s.opts.DemoPasswordHash), []byte(password))
	if username != s.opts.DemoUsername || hashErr != nil {
		return nil, core.ErrInvalidCredentials
	}

	principal, err := s.resolver.ResolveDemo(ctx, username)
	if err != nil {
		return nil, err
	}

	return s.login(ctx, principal)
}

func (s *AuthService) login(ctx context.Context, principal *core.Principal) (*LoginResult, error) {
	session, tokens, err := s.binder.Mint(principal)
	if err != nil {
		return nil, err
	}

	if err := s.eventPub.PublishLogin(ctx, principal, session.ID); err != nil {
		logging.Logger.WithError(err).Warn("failed to publish login event")
	}

	return &LoginResult{Principal: principal, Session: session, Tokens: tokens}, nil
}

// Refresh rotates the refresh token and issues new access and refresh tokens
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*core.Session, core.TokenPair, error) {
	session, err := s.tokenSession(refreshToken)
	if err != nil {
		return nil, core.TokenPair{}, err
	}

	if s.now().After(session.RefreshExpiry) {
		return nil, core.TokenPair{}, core.ErrTokenExpired
	}

	// Revoke the old refresh id for the rest of its lifetime. A refresh id
	// rotates once: a concurrent or replayed refresh loses here.
	remaining := session.RefreshExpiry.Sub(s.now())
	revoked, err := s.store.RevokeOnce(ctx, session.RefreshID, remaining)
	if err != nil {
		return nil, core.TokenPair{}, fmt.Errorf("failed to invalidate old token: %w", err)
	}
	if !revoked {
		return nil, core.TokenPair{}, core.ErrTokenInvalidated
	}

	return s.binder.Rotate(session)
}

// Logout invalidates a refresh token
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	session, err := s.tokenSession(refreshToken)
	if err != nil && !errors.Is(err, core.ErrTokenExpired) {
		return err
	}
	if session == nil {
		// expired tokens cannot be refreshed anyway
		return nil
	}

	remaining := session.RefreshExpiry.Sub(s.now())
	if remaining <= 0 {
		remaining = time.Hour
	}
	if err := s.store.InvalidateToken(ctx, session.RefreshID, remaining); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}

	if err := s.eventPub.PublishLogout(ctx, session.UserID, session.RefreshID); err != nil {
		logging.Logger.WithError(err).Warn("failed to publish logout event")
	}

	return nil
}

// ValidateAccessToken returns the session behind a live access token
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*core.Session, error) {
	session, err := s.binder.tokenizer.AccessTokenToSession(accessToken)
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}

	if s.now().After(session.AccessExpiry) {
		return nil, core.ErrTokenExpired
	}

	// Logging out revokes the refresh id, which also ends its access tokens
	if session.RefreshID != "" {
		invalidated, err := s.store.IsTokenInvalidated(ctx, session.RefreshID)
		if err != nil {
			return nil, fmt.Errorf("failed to check token invalidation: %w", err)
		}
		if invalidated {
			return nil, core.ErrTokenInvalidated
		}
	}

	return session, nil
}

// View returns the outward-facing session read
func (s *AuthService) View(session *core.Session) core.SessionView {
	return s.binder.View(session)
}

func (s *AuthService) tokenSession(refreshToken string) (*core.Session, error) {
	if refreshToken == "" {
		return nil, core.ErrMissingCredentials
	}
	session, err := s.binder.tokenizer.RefreshTokenToSession(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", err)
	}
	return session, nil
}

// verifySigned runs the shared verification path of the login and payment
// flows: presence, nonce redemption, then the message checks.
func verifySigned(ctx context.Context, nonces *NonceIssuer, purpose core.NoncePurpose, req VerifyRequest, p siwe.Params) (core.VerifiedIdentity, *siwe.Message, error) {
	if req.Message == "" || req.Signature == "" {
		return core.VerifiedIdentity{}, nil, core.ErrMissingCredentials
	}
	if err := nonces.Redeem(ctx, purpose, req.CookieNonce); err != nil {
		return core.VerifiedIdentity{}, nil, err
	}

	p.Signature = req.Signature
	p.ExpectedNonce = req.CookieNonce
	msg, identity, err := siwe.Verify(req.Message, p)
	if err != nil {
		return core.VerifiedIdentity{}, nil, err
	}
	return identity, msg, nil
}
