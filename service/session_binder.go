package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/layer-3/siwegate/core"
	"github.com/layer-3/siwegate/ports"
)

// SessionBinder turns principals into sessions and sessions into views.
// The wallet address is fixed at mint time and copied, never re-derived.
type SessionBinder struct {
	tokenizer  ports.Tokenizer
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewSessionBinder(tokenizer ports.Tokenizer, accessTTL, refreshTTL time.Duration) *SessionBinder {
	return &SessionBinder{
		tokenizer:  tokenizer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Mint creates a session for p. Only the SIWE provider contributes an
// address; every other provider yields a session without one.
func (b *SessionBinder) Mint(p *core.Principal) (*core.Session, core.TokenPair, error) {
	var address *string
	if p.Provider == core.ProviderSIWE && p.Address != nil {
		address = copyAddress(p.Address)
	}

	now := b.now()
	session := &core.Session{
		ID:            uuid.NewString(),
		UserID:        p.UserID,
		Address:       address,
		Role:          p.Role,
		Provider:      p.Provider,
		Email:         p.Email,
		Name:          p.Name,
		Image:         p.Image,
		IssuedAt:      now,
		RefreshExpiry: now.Add(b.refreshTTL),
		AccessExpiry:  now.Add(b.accessTTL),
		RefreshID:     uuid.NewString(),
	}

	pair, err := b.tokens(session)
	if err != nil {
		return nil, core.TokenPair{}, err
	}
	return session, pair, nil
}

// Rotate issues a fresh token pair for the same session. Identity fields,
// address included, are carried over unchanged.
func (b *SessionBinder) Rotate(prev *core.Session) (*core.Session, core.TokenPair, error) {
	now := b.now()
	next := *prev
	next.Address = copyAddress(prev.Address)
	next.RefreshID = uuid.NewString()
	next.AccessExpiry = now.Add(b.accessTTL)
	next.RefreshExpiry = now.Add(b.refreshTTL)

	pair, err := b.tokens(&next)
	if err != nil {
		return nil, core.TokenPair{}, err
	}
	return &next, pair, nil
}

// View is the outward-facing session read
func (b *SessionBinder) View(s *core.Session) core.SessionView {
	return core.SessionView{
		User: core.SessionUser{
			ID:    s.UserID,
			Role:  s.Role,
			Email: s.Email,
			Name:  s.Name,
			Image: s.Image,
		},
		Address:  copyAddress(s.Address),
		Provider: s.Provider,
		Expires:  s.RefreshExpiry,
	}
}

func (b *SessionBinder) tokens(session *core.Session) (core.TokenPair, error) {
	accessToken, err := b.tokenizer.SessionToAccessToken(session)
	if err != nil {
		return core.TokenPair{}, fmt.Errorf("failed to create access token: %w", err)
	}

	refreshToken, err := b.tokenizer.SessionToRefreshToken(session)
	if err != nil {
		return core.TokenPair{}, fmt.Errorf("failed to create refresh token: %w", err)
	}

	return core.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    b.accessTTL,
	}, nil
}

func copyAddress(a *string) *string {
	if a == nil {
		return nil
	}
	v := *a
	return &v
}
