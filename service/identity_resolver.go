package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/layer-3/siwegate/core"
	"github.com/layer-3/siwegate/internal/eth"
	"github.com/layer-3/siwegate/internal/logging"
	"github.com/layer-3/siwegate/internal/metrics"
	"github.com/layer-3/siwegate/ports"
)

const (
	walletEmailDomain = "ethereum.local"
	demoEmailDomain   = "demo.local"

	// a lost insert race is followed by one re-read
	maxResolveAttempts = 2
)

// IdentityResolver maps verified credentials to application users
type IdentityResolver struct {
	repo     ports.IdentityRepository
	eventPub ports.EventPublisher
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewIdentityResolver(repo ports.IdentityRepository, eventPub ports.EventPublisher, m *metrics.Metrics) *IdentityResolver {
	return &IdentityResolver{
		repo:     repo,
		eventPub: eventPub,
		metrics:  m,
		now:      time.Now,
	}
}

// Resolve returns the user bound to the verified address, creating the user
// and binding on first sign-in. Concurrent calls for the same new address
// yield one user: the (address, chain) constraint rejects the loser, which
// then reads the winner's binding.
func (r *IdentityResolver) Resolve(ctx context.Context, id core.VerifiedIdentity) (*core.Principal, error) {
	var lastErr error
	for attempt := 0; attempt < maxResolveAttempts; attempt++ {
		p, err := r.resolveWallet(ctx, id)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, core.ErrConflict) {
			return nil, fmt.Errorf("%w: %w", core.ErrIdentityResolutionFailed, err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: binding missing after conflict: %w", core.ErrIdentityResolutionFailed, lastErr)
}

func (r *IdentityResolver) resolveWallet(ctx context.Context, id core.VerifiedIdentity) (*core.Principal, error) {
	wallet, err := r.repo.GetWallet(ctx, id.Address, id.ChainID)
	switch {
	case err == nil:
		user, err := r.repo.GetUser(ctx, wallet.UserID)
		if err != nil {
			return nil, fmt.Errorf("loading bound user: %w", err)
		}
		return walletPrincipal(user, id, false), nil
	case !errors.Is(err, core.ErrNotFound):
		return nil, fmt.Errorf("loading wallet binding: %w", err)
	}

	now := r.now().UTC()

	// The address may already own a user through another chain
	user, err := r.repo.GetUserByEmail(ctx, walletEmail(id.Address))
	switch {
	case err == nil:
		n, err := r.repo.CountWallets(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("counting wallets: %w", err)
		}
		wallet := newWallet(user.ID, id, n == 0, now)
		if err := r.repo.CreateWallet(ctx, wallet); err != nil {
			return nil, err
		}
		return walletPrincipal(user, id, false), nil
	case !errors.Is(err, core.ErrNotFound):
		return nil, fmt.Errorf("loading user by email: %w", err)
	}

	user = &core.User{
		ID:        uuid.NewString(),
		Email:     walletEmail(id.Address),
		Name:      eth.ShortAddress(id.Address),
		Role:      core.RoleStudent,
		CreatedAt: now,
	}
	wallet = newWallet(user.ID, id, true, now)
	if err := r.repo.CreateUserWithWallet(ctx, user, wallet); err != nil {
		return nil, err
	}

	r.metrics.IdentityCreated()
	logging.Logger.WithField("user_id", user.ID).Infof("created user for %s", user.Name)
	if err := r.eventPub.PublishUserCreated(ctx, user, wallet); err != nil {
		logging.Logger.WithError(err).Warn("failed to publish user created event")
	}

	return walletPrincipal(user, id, true), nil
}

// ResolveDemo returns the user for a demo username, creating it when absent
func (r *IdentityResolver) ResolveDemo(ctx context.Context, username string) (*core.Principal, error) {
	email := username + "@" + demoEmailDomain

	for attempt := 0; attempt < maxResolveAttempts; attempt++ {
		user, err := r.repo.GetUserByEmail(ctx, email)
		if err == nil {
			return demoPrincipal(user, false), nil
		}
		if !errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", core.ErrIdentityResolutionFailed, err)
		}

		user = &core.User{
			ID:        uuid.NewString(),
			Email:     email,
			Name:      username,
			Role:      core.RoleStudent,
			CreatedAt: r.now().UTC(),
		}
		err = r.repo.CreateUser(ctx, user)
		if err == nil {
			r.metrics.IdentityCreated()
			return demoPrincipal(user, true), nil
		}
		if !errors.Is(err, core.ErrConflict) {
			return nil, fmt.Errorf("%w: %w", core.ErrIdentityResolutionFailed, err)
		}
	}
	return nil, fmt.Errorf("%w: demo user missing after conflict", core.ErrIdentityResolutionFailed)
}

func walletEmail(address string) string {
	return address + "@" + walletEmailDomain
}

func newWallet(userID string, id core.VerifiedIdentity, primary bool, now time.Time) *core.WalletAddress {
	return &core.WalletAddress{
		ID:        uuid.NewString(),
		UserID:    userID,
		Address:   id.Address,
		ChainID:   id.ChainID,
		IsPrimary: primary,
		CreatedAt: now,
	}
}

func walletPrincipal(user *core.User, id core.VerifiedIdentity, isNew bool) *core.Principal {
	address := id.Address
	return &core.Principal{
		UserID:   user.ID,
		Email:    user.Email,
		Name:     user.Name,
		Image:    user.Image,
		Role:     user.Role,
		Provider: core.ProviderSIWE,
		Address:  &address,
		ChainID:  id.ChainID,
		IsNew:    isNew,
	}
}

func demoPrincipal(user *core.User, isNew bool) *core.Principal {
	return &core.Principal{
		UserID:   user.ID,
		Email:    user.Email,
		Name:     user.Name,
		Image:    user.Image,
		Role:     user.Role,
		Provider: core.ProviderDemo,
		IsNew:    isNew,
	}
}
