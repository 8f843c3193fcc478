package siwe

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/layer-3/siwegate/core"
	"github.com/layer-3/siwegate/internal/eth"
)

// Params are the expectations a message is verified against
type Params struct {
	Signature     string
	ExpectedNonce string
	ChainID       uint64
	// Domain is only compared when set
	Domain string
	Now    time.Time
}

// Verify checks raw against p. Checks run cheapest first and stop at the
// first failure: presence, parse, nonce, chain, domain, validity window,
// signature. The returned error wraps one of the core sentinel errors.
func Verify(raw string, p Params) (*Message, core.VerifiedIdentity, error) {
	if raw == "" || p.Signature == "" {
		return nil, core.VerifiedIdentity{}, core.ErrMissingCredentials
	}
	if p.ExpectedNonce == "" {
		return nil, core.VerifiedIdentity{}, core.ErrMissingNonceCookie
	}

	msg, err := Parse(raw)
	if err != nil {
		return nil, core.VerifiedIdentity{}, err
	}

	// Exact comparison, no normalisation
	if msg.Nonce != p.ExpectedNonce {
		return nil, core.VerifiedIdentity{}, core.ErrNonceMismatch
	}

	if msg.ChainID != p.ChainID {
		return nil, core.VerifiedIdentity{}, fmt.Errorf("%w: expected chain %d, got %d", core.ErrWrongNetwork, p.ChainID, msg.ChainID)
	}

	if p.Domain != "" && msg.Domain != p.Domain {
		return nil, core.VerifiedIdentity{}, fmt.Errorf("%w: %q", core.ErrDomainMismatch, msg.Domain)
	}

	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}
	if msg.ExpirationTime != nil && !now.Before(*msg.ExpirationTime) {
		return nil, core.VerifiedIdentity{}, core.ErrMessageExpired
	}
	if msg.NotBefore != nil && now.Before(*msg.NotBefore) {
		return nil, core.VerifiedIdentity{}, core.ErrMessageExpired
	}

	ok, err := eth.VerifyPersonalSign([]byte(raw), p.Signature, common.HexToAddress(msg.Address))
	if err != nil || !ok {
		return nil, core.VerifiedIdentity{}, errors.Join(core.ErrSignatureInvalid, err)
	}

	address, err := eth.NormalizeAddress(msg.Address)
	if err != nil {
		return nil, core.VerifiedIdentity{}, fmt.Errorf("%w: %v", core.ErrMalformedMessage, err)
	}

	return msg, core.VerifiedIdentity{
		Address: address,
		ChainID: msg.ChainID,
		Nonce:   msg.Nonce,
	}, nil
}
