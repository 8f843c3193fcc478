package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/layer-3/siwegate/core"
	"github.com/layer-3/siwegate/internal/logging"
	"github.com/layer-3/siwegate/internal/metrics"
	"github.com/layer-3/siwegate/ports"
	"github.com/layer-3/siwegate/siwe"
)

// PaymentTerms is what a payment message authorizes
type PaymentTerms struct {
	CourseID string
	Amount   decimal.Decimal
	Currency string
}

// ParsePaymentTerms validates raw request values
func ParsePaymentTerms(courseID, amount, currency string) (PaymentTerms, error) {
	courseID = strings.TrimSpace(courseID)
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if courseID == "" || currency == "" {
		return PaymentTerms{}, fmt.Errorf("%w: course and currency are required", core.ErrInvalidPaymentTerms)
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return PaymentTerms{}, fmt.Errorf("%w: amount %q", core.ErrInvalidPaymentTerms, amount)
	}
	if !d.IsPositive() {
		return PaymentTerms{}, fmt.Errorf("%w: amount must be positive", core.ErrInvalidPaymentTerms)
	}

	return PaymentTerms{CourseID: courseID, Amount: d, Currency: currency}, nil
}

// Statement is the human-readable line the wallet signs
func (t PaymentTerms) Statement() string {
	return fmt.Sprintf("Authorize payment of %s %s for course %s", t.Amount.String(), t.Currency, t.CourseID)
}

// PaymentChallenge is a payment nonce plus the message to sign
type PaymentChallenge struct {
	Challenge *core.Challenge
	Message   string
}

// PaymentService authorizes course payments with a signed message from the
// session's own wallet
type PaymentService struct {
	nonces   *NonceIssuer
	repo     ports.PaymentRepository
	eventPub ports.EventPublisher
	metrics  *metrics.Metrics
	chainID  uint64
	domain   string
	now      func() time.Time
}

func NewPaymentService(
	nonces *NonceIssuer,
	repo ports.PaymentRepository,
	eventPub ports.EventPublisher,
	m *metrics.Metrics,
	chainID uint64,
	domain string,
) *PaymentService {
	return &PaymentService{
		nonces:   nonces,
		repo:     repo,
		eventPub: eventPub,
		metrics:  m,
		chainID:  chainID,
		domain:   domain,
		now:      time.Now,
	}
}

// NonceTTL is the lifetime of payment nonces
func (s *PaymentService) NonceTTL() time.Duration {
	return s.nonces.TTL()
}

// Challenge issues a payment nonce and builds the message for the session's
// wallet. host and uri describe the requesting origin and are used when no
// domain is configured.
func (s *PaymentService) Challenge(ctx context.Context, session *core.Session, terms PaymentTerms, host, uri string) (*PaymentChallenge, error) {
	if session.Address == nil {
		return nil, core.ErrWalletRequired
	}

	challenge, err := s.nonces.Issue(ctx, core.NoncePurposePayment)
	if err != nil {
		return nil, err
	}

	domain := s.domain
	if domain == "" {
		domain = host
	}
	expires := challenge.ExpiresAt.UTC()
	msg := &siwe.Message{
		Domain:         domain,
		Address:        common.HexToAddress(*session.Address).Hex(),
		Statement:      terms.Statement(),
		URI:            uri,
		Version:        siwe.Version,
		ChainID:        s.chainID,
		Nonce:          challenge.Nonce,
		IssuedAt:       challenge.IssuedAt.UTC().Truncate(time.Second),
		ExpirationTime: &expires,
	}

	return &PaymentChallenge{Challenge: challenge, Message: msg.String()}, nil
}

// Authorize verifies a signed payment message and records the authorization
func (s *PaymentService) Authorize(ctx context.Context, session *core.Session, terms PaymentTerms, req VerifyRequest) (auth *core.PaymentAuthorization, err error) {
	defer func() { s.metrics.Verified(string(core.NoncePurposePayment), err) }()

	identity, msg, err := verifySigned(ctx, s.nonces, core.NoncePurposePayment, req, siwe.Params{
		ChainID: s.chainID,
		Domain:  s.domain,
		Now:     s.now(),
	})
	if err != nil {
		return nil, err
	}

	if session.Address == nil {
		return nil, core.ErrWalletRequired
	}
	if identity.Address != *session.Address {
		return nil, core.ErrSignerMismatch
	}
	if msg.Statement != terms.Statement() {
		return nil, core.ErrPaymentMismatch
	}

	auth = &core.PaymentAuthorization{
		ID:        uuid.NewString(),
		UserID:    session.UserID,
		Address:   identity.Address,
		CourseID:  terms.CourseID,
		Amount:    terms.Amount,
		Currency:  terms.Currency,
		ChainID:   identity.ChainID,
		Nonce:     identity.Nonce,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreatePayment(ctx, auth); err != nil {
		if errors.Is(err, core.ErrConflict) {
			// a nonce can back one authorization only
			return nil, core.ErrMissingNonceCookie
		}
		return nil, fmt.Errorf("failed to store payment authorization: %w", err)
	}

	if err := s.eventPub.PublishPaymentAuthorized(ctx, auth); err != nil {
		logging.Logger.WithError(err).Warn("failed to publish payment authorized event")
	}

	return auth, nil
}

// List returns the payment authorizations of a user
func (s *PaymentService) List(ctx context.Context, userID string) ([]core.PaymentAuthorization, error) {
	return s.repo.ListPayments(ctx, userID)
}
