package siwegate

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/layer-3/siwegate/core"
	"github.com/layer-3/siwegate/internal/eth"
	"github.com/layer-3/siwegate/siwe"
)

const defaultTimeout = 15 * time.Second

// Login is a successful sign-in or refresh
type Login struct {
	core.SessionView
	IsNewUser    bool   `json:"isNewUser"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// SignInOptions shape the login message. Domain and URI default to the
// server's host and URL.
type SignInOptions struct {
	ChainID   uint64
	Domain    string
	URI       string
	Statement string
	// Expiry sets an expiration time relative to now when non-zero
	Expiry time.Duration
}

// Payment describes a course payment to authorize
type Payment struct {
	CourseID string
	Amount   string
	Currency string
}

// HTTPClient implements Client over HTTP. It keeps the nonce and session
// cookies in its own jar and holds the current refresh token.
type HTTPClient struct {
	base *url.URL
	http *http.Client

	mu      sync.Mutex
	refresh string
	access  string
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the server at baseURL
func NewHTTPClient(baseURL string) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &HTTPClient{
		base: base,
		http: &http.Client{Jar: jar, Timeout: defaultTimeout},
	}, nil
}

func (c *HTTPClient) Nonce(ctx context.Context) (string, error) {
	var out struct {
		Nonce string `json:"nonce"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/siwe/nonce", nil, &out); err != nil {
		return "", err
	}
	return out.Nonce, nil
}

func (c *HTTPClient) Verify(ctx context.Context, message, signature string) (*Login, error) {
	login := &Login{}
	body := map[string]string{"message": message, "signature": signature}
	if err := c.do(ctx, http.MethodPost, "/api/auth/siwe/verify", body, login); err != nil {
		return nil, err
	}
	c.keep(login)
	return login, nil
}

func (c *HTTPClient) SignIn(ctx context.Context, key *ecdsa.PrivateKey, opts SignInOptions) (*Login, error) {
	nonce, err := c.Nonce(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Second)
	msg := &siwe.Message{
		Domain:    opts.Domain,
		Address:   crypto.PubkeyToAddress(key.PublicKey).Hex(),
		Statement: opts.Statement,
		URI:       opts.URI,
		Version:   siwe.Version,
		ChainID:   opts.ChainID,
		Nonce:     nonce,
		IssuedAt:  now,
	}
	if msg.Domain == "" {
		msg.Domain = c.base.Host
	}
	if msg.URI == "" {
		msg.URI = c.base.String()
	}
	if opts.Expiry > 0 {
		exp := now.Add(opts.Expiry)
		msg.ExpirationTime = &exp
	}

	raw := msg.String()
	sig, err := eth.SignPersonal([]byte(raw), key)
	if err != nil {
		return nil, fmt.Errorf("signing login message: %w", err)
	}
	return c.Verify(ctx, raw, sig)
}

func (c *HTTPClient) Refresh(ctx context.Context) (*Login, error) {
	refresh, _ := c.tokens()
	if refresh == "" {
		return nil, ErrNotSignedIn
	}

	login := &Login{}
	if err := c.do(ctx, http.MethodPost, "/api/auth/refresh", map[string]string{"refresh_token": refresh}, login); err != nil {
		return nil, err
	}
	c.keep(login)
	return login, nil
}

func (c *HTTPClient) Logout(ctx context.Context) error {
	refresh, _ := c.tokens()
	if refresh == "" {
		return ErrNotSignedIn
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/logout", map[string]string{"refresh_token": refresh}, nil); err != nil {
		return err
	}
	c.keep(&Login{})
	return nil
}

func (c *HTTPClient) Session(ctx context.Context) (*core.SessionView, error) {
	view := &core.SessionView{}
	if err := c.do(ctx, http.MethodGet, "/api/auth/session", nil, view); err != nil {
		return nil, err
	}
	return view, nil
}

func (c *HTTPClient) AuthorizePayment(ctx context.Context, key *ecdsa.PrivateKey, p Payment) (*core.PaymentAuthorization, error) {
	q := url.Values{}
	q.Set("courseId", p.CourseID)
	q.Set("amount", p.Amount)
	q.Set("currency", p.Currency)

	var challenge struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/payments/siwe/nonce?"+q.Encode(), nil, &challenge); err != nil {
		return nil, err
	}

	sig, err := eth.SignPersonal([]byte(challenge.Message), key)
	if err != nil {
		return nil, fmt.Errorf("signing payment message: %w", err)
	}

	var out struct {
		Authorization core.PaymentAuthorization `json:"authorization"`
	}
	body := map[string]string{
		"message":   challenge.Message,
		"signature": sig,
		"courseId":  p.CourseID,
		"amount":    p.Amount,
		"currency":  p.Currency,
	}
	if err := c.do(ctx, http.MethodPost, "/api/payments/siwe/verify", body, &out); err != nil {
		return nil, err
	}
	return &out.Authorization, nil
}

func (c *HTTPClient) Payments(ctx context.Context) ([]core.PaymentAuthorization, error) {
	var out struct {
		Authorizations []core.PaymentAuthorization `json:"authorizations"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/payments", nil, &out); err != nil {
		return nil, err
	}
	return out.Authorizations, nil
}

func (c *HTTPClient) keep(l *Login) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresh = l.RefreshToken
	c.access = l.AccessToken
}

func (c *HTTPClient) tokens() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refresh, c.access
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if _, access := c.tokens(); access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
