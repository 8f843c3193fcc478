package siwegate

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/siwegate/adapters/identity"
	"github.com/layer-3/siwegate/adapters/store"
	"github.com/layer-3/siwegate/adapters/tokenizer"
	"github.com/layer-3/siwegate/core"
	"github.com/layer-3/siwegate/service"
	transport "github.com/layer-3/siwegate/transport/http"
)

const testChain = 80002

type nopPublisher struct{}

func (nopPublisher) PublishLogin(context.Context, *core.Principal, string) error { return nil }
func (nopPublisher) PublishLogout(context.Context, string, string) error         { return nil }
func (nopPublisher) PublishUserCreated(context.Context, *core.User, *core.WalletAddress) error {
	return nil
}
func (nopPublisher) PublishPaymentAuthorized(context.Context, *core.PaymentAuthorization) error {
	return nil
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	st := store.NewMemoryStore()
	repo := identity.NewMemoryRepository()
	tok := tokenizer.NewJWTTokenizer(signKey)
	pub := nopPublisher{}

	nonces := service.NewNonceIssuer(st, 5*time.Minute, nil)
	binder := service.NewSessionBinder(tok, 15*time.Minute, 120*time.Hour)
	auth := service.NewAuthService(nonces, service.NewIdentityResolver(repo, pub, nil), binder, st, pub, nil, service.AuthOptions{
		AcceptedChainID: testChain,
	})
	payments := service.NewPaymentService(nonces, repo, pub, nil, testChain, "")

	server := httptest.NewServer(transport.SetupRouter(transport.RouterConfig{
		AuthService:    auth,
		PaymentService: payments,
		Tokenizer:      tok,
		AccessTTL:      15 * time.Minute,
	}))
	t.Cleanup(server.Close)
	return server
}

func newClient(t *testing.T) (*HTTPClient, *ecdsa.PrivateKey) {
	t.Helper()
	client, err := NewHTTPClient(newServer(t).URL)
	require.NoError(t, err)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return client, key
}

func TestClient_SignInSessionRefreshLogout(t *testing.T) {
	ctx := context.Background()
	client, key := newClient(t)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	login, err := client.SignIn(ctx, key, SignInOptions{ChainID: testChain, Expiry: time.Minute})
	require.NoError(t, err)
	assert.True(t, login.IsNewUser)
	assert.NotEmpty(t, login.AccessToken)
	require.NotNil(t, login.Address)
	assert.Equal(t, strings.ToLower(addr.Hex()), *login.Address)

	view, err := client.Session(ctx)
	require.NoError(t, err)
	assert.Equal(t, login.User.ID, view.User.ID)
	assert.Equal(t, core.ProviderSIWE, view.Provider)

	refreshed, err := client.Refresh(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	require.NotNil(t, refreshed.Address)
	assert.Equal(t, *login.Address, *refreshed.Address)

	require.NoError(t, client.Logout(ctx))
	_, err = client.Refresh(ctx)
	assert.ErrorIs(t, err, ErrNotSignedIn)

	again, err := client.SignIn(ctx, key, SignInOptions{ChainID: testChain})
	require.NoError(t, err)
	assert.False(t, again.IsNewUser)
	assert.Equal(t, login.User.ID, again.User.ID)
}

func TestClient_WrongNetwork(t *testing.T) {
	client, key := newClient(t)

	_, err := client.SignIn(context.Background(), key, SignInOptions{ChainID: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrWrongNetwork)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Wrong network: expected chain 80002", apiErr.Message)
}

func TestClient_VerifyWithoutNonce(t *testing.T) {
	client, _ := newClient(t)

	_, err := client.Verify(context.Background(), "not a message", "0x00")
	assert.ErrorIs(t, err, core.ErrMissingNonceCookie)

	_, err = client.Session(context.Background())
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestClient_AuthorizePayment(t *testing.T) {
	ctx := context.Background()
	client, key := newClient(t)

	_, err := client.SignIn(ctx, key, SignInOptions{ChainID: testChain})
	require.NoError(t, err)

	auth, err := client.AuthorizePayment(ctx, key, Payment{CourseID: "go-101", Amount: "12.50", Currency: "usdc"})
	require.NoError(t, err)
	assert.Equal(t, "go-101", auth.CourseID)
	assert.Equal(t, "USDC", auth.Currency)
	assert.Equal(t, "12.5", auth.Amount.String())
	assert.Equal(t, uint64(testChain), auth.ChainID)

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, err = client.AuthorizePayment(ctx, other, Payment{CourseID: "go-101", Amount: "1", Currency: "USDC"})
	assert.ErrorIs(t, err, core.ErrSignatureInvalid)

	list, err := client.Payments(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, auth.ID, list[0].ID)
}
