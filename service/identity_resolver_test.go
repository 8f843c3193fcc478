package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/siwegate/adapters/identity"
	"github.com/layer-3/siwegate/core"
)

const resolverAddr = "0xabcdef0123456789abcdef0123456789abcdef01"

func TestResolveCreatesUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.resolver.Resolve(ctx, core.VerifiedIdentity{Address: resolverAddr, ChainID: testChainID})
	require.NoError(t, err)

	assert.True(t, p.IsNew)
	assert.Equal(t, core.ProviderSIWE, p.Provider)
	assert.Equal(t, resolverAddr+"@ethereum.local", p.Email)
	assert.Equal(t, "0xabcd…ef01", p.Name)
	assert.Equal(t, core.RoleStudent, p.Role)
	require.NotNil(t, p.Address)
	assert.Equal(t, resolverAddr, *p.Address)

	w, err := f.repo.GetWallet(ctx, resolverAddr, testChainID)
	require.NoError(t, err)
	assert.True(t, w.IsPrimary)
	assert.Equal(t, p.UserID, w.UserID)

	again, err := f.resolver.Resolve(ctx, core.VerifiedIdentity{Address: resolverAddr, ChainID: testChainID})
	require.NoError(t, err)
	assert.False(t, again.IsNew)
	assert.Equal(t, p.UserID, again.UserID)

	assert.Len(t, f.events.created, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.IdentitiesCreated))
}

func TestResolveSecondChainJoinsUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.resolver.Resolve(ctx, core.VerifiedIdentity{Address: resolverAddr, ChainID: testChainID})
	require.NoError(t, err)
	second, err := f.resolver.Resolve(ctx, core.VerifiedIdentity{Address: resolverAddr, ChainID: 1})
	require.NoError(t, err)

	assert.Equal(t, first.UserID, second.UserID)
	assert.False(t, second.IsNew)

	w, err := f.repo.GetWallet(ctx, resolverAddr, 1)
	require.NoError(t, err)
	assert.False(t, w.IsPrimary)
}

func TestResolveConcurrentIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := core.VerifiedIdentity{Address: resolverAddr, ChainID: testChainID}

	const workers = 16
	var wg sync.WaitGroup
	ids := make([]string, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := f.resolver.Resolve(ctx, id)
			errs[i] = err
			if err == nil {
				ids[i] = p.UserID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	n, err := f.repo.CountWallets(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, f.events.created, 1)
}

// racingRepository reports "not found" for the first wallet lookup and then
// loses the insert, as if another request created the binding in between.
type racingRepository struct {
	*identity.MemoryRepository
	once sync.Once
}

func (r *racingRepository) GetWallet(ctx context.Context, address string, chainID uint64) (*core.WalletAddress, error) {
	hidden := false
	r.once.Do(func() { hidden = true })
	if hidden {
		return nil, core.ErrNotFound
	}
	return r.MemoryRepository.GetWallet(ctx, address, chainID)
}

func TestResolveLostRaceReadsWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := core.VerifiedIdentity{Address: resolverAddr, ChainID: testChainID}

	winner, err := f.resolver.Resolve(ctx, id)
	require.NoError(t, err)

	// hide the email too so the loser takes the create path
	repo := &racingRepository{MemoryRepository: f.repo}
	loser := NewIdentityResolver(&emailHidingRepository{racingRepository: repo}, f.events, nil)

	p, err := loser.Resolve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, winner.UserID, p.UserID)
	assert.False(t, p.IsNew)
}

type emailHidingRepository struct {
	*racingRepository
	calls int
}

func (r *emailHidingRepository) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	r.calls++
	if r.calls == 1 {
		return nil, core.ErrNotFound
	}
	return r.racingRepository.GetUserByEmail(ctx, email)
}

type failingRepository struct {
	*identity.MemoryRepository
}

func (failingRepository) GetWallet(context.Context, string, uint64) (*core.WalletAddress, error) {
	return nil, errors.New("connection refused")
}

func TestResolvePersistenceFailure(t *testing.T) {
	r := NewIdentityResolver(failingRepository{identity.NewMemoryRepository()}, &recordingPublisher{}, nil)
	_, err := r.Resolve(context.Background(), core.VerifiedIdentity{Address: resolverAddr, ChainID: testChainID})
	assert.ErrorIs(t, err, core.ErrIdentityResolutionFailed)
}

func TestResolveDemo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.resolver.ResolveDemo(ctx, "demo")
	require.NoError(t, err)
	assert.True(t, p.IsNew)
	assert.Nil(t, p.Address)
	assert.Equal(t, core.ProviderDemo, p.Provider)
	assert.Equal(t, "demo@demo.local", p.Email)

	again, err := f.resolver.ResolveDemo(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, p.UserID, again.UserID)
}
