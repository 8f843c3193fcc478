package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/layer-3/siwegate/adapters/identity"
	"github.com/layer-3/siwegate/adapters/store"
	"github.com/layer-3/siwegate/adapters/tokenizer"
	"github.com/layer-3/siwegate/core"
	"github.com/layer-3/siwegate/internal/eth"
	"github.com/layer-3/siwegate/internal/metrics"
	"github.com/layer-3/siwegate/siwe"
)

const (
	testChainID  = 80002
	testDomain   = "academy.example"
	demoUser     = "demo"
	demoPassword = "correct horse"
)

type recordingPublisher struct {
	mu       sync.Mutex
	logins   []*core.Principal
	logouts  []string
	created  []*core.User
	payments []*core.PaymentAuthorization
}

func (p *recordingPublisher) PublishLogin(_ context.Context, principal *core.Principal, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logins = append(p.logins, principal)
	return nil
}

func (p *recordingPublisher) PublishLogout(_ context.Context, userID string, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logouts = append(p.logouts, userID)
	return nil
}

func (p *recordingPublisher) PublishUserCreated(_ context.Context, user *core.User, _ *core.WalletAddress) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, user)
	return nil
}

func (p *recordingPublisher) PublishPaymentAuthorized(_ context.Context, auth *core.PaymentAuthorization) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payments = append(p.payments, auth)
	return nil
}

type fixture struct {
	store    *store.MemoryStore
	repo     *identity.MemoryRepository
	events   *recordingPublisher
	metrics  *metrics.Metrics
	nonces   *NonceIssuer
	resolver *IdentityResolver
	binder   *SessionBinder
	auth     *AuthService
	payments *PaymentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte(demoPassword), bcrypt.MinCost)
	require.NoError(t, err)

	f := &fixture{
		store:   store.NewMemoryStore(),
		repo:    identity.NewMemoryRepository(),
		events:  &recordingPublisher{},
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	f.nonces = NewNonceIssuer(f.store, 5*time.Minute, f.metrics)
	f.resolver = NewIdentityResolver(f.repo, f.events, f.metrics)
	f.binder = NewSessionBinder(tokenizer.NewJWTTokenizer(signKey), 15*time.Minute, 120*time.Hour)
	f.auth = NewAuthService(f.nonces, f.resolver, f.binder, f.store, f.events, f.metrics, AuthOptions{
		AcceptedChainID:  testChainID,
		Domain:           testDomain,
		DemoUsername:     demoUser,
		DemoPasswordHash: string(hash),
	})
	f.payments = NewPaymentService(f.nonces, f.repo, f.events, f.metrics, testChainID, testDomain)
	return f
}

func signLogin(t *testing.T, key *ecdsa.PrivateKey, nonce string, chainID uint64) (string, string) {
	t.Helper()
	msg := &siwe.Message{
		Domain:    testDomain,
		Address:   crypto.PubkeyToAddress(key.PublicKey).Hex(),
		Statement: "Sign in to Academy.",
		URI:       "https://" + testDomain,
		ChainID:   chainID,
		Nonce:     nonce,
		IssuedAt:  time.Now().UTC(),
	}
	raw := msg.String()
	sig, err := eth.SignPersonal([]byte(raw), key)
	require.NoError(t, err)
	return raw, sig
}

func walletLogin(t *testing.T, f *fixture, key *ecdsa.PrivateKey) *LoginResult {
	t.Helper()
	ctx := context.Background()
	ch, err := f.auth.CreateChallenge(ctx)
	require.NoError(t, err)
	raw, sig := signLogin(t, key, ch.Nonce, testChainID)
	res, err := f.auth.VerifySIWE(ctx, VerifyRequest{Message: raw, Signature: sig, CookieNonce: ch.Nonce})
	require.NoError(t, err)
	return res
}
