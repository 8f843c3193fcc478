package core

import "errors"

var (
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenInvalidated = errors.New("token has been invalidated")
	ErrInvalidToken     = errors.New("invalid token")

	ErrMissingCredentials = errors.New("missing credentials")
	ErrMissingNonceCookie = errors.New("missing nonce cookie")
	ErrMalformedMessage   = errors.New("malformed message")
	ErrNonceMismatch      = errors.New("nonce mismatch")
	ErrWrongNetwork       = errors.New("wrong network")
	ErrDomainMismatch     = errors.New("domain mismatch")
	ErrMessageExpired     = errors.New("message expired")
	ErrSignatureInvalid   = errors.New("signature invalid")

	ErrIdentityResolutionFailed = errors.New("identity resolution failed")
	ErrNotFound                 = errors.New("not found")
	ErrConflict                 = errors.New("unique constraint violated")

	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrProviderDisabled    = errors.New("provider disabled")
	ErrWalletRequired      = errors.New("session has no wallet address")
	ErrSignerMismatch      = errors.New("signer does not match session address")
	ErrPaymentMismatch     = errors.New("payment details do not match signed message")
	ErrInvalidPaymentTerms = errors.New("invalid payment terms")
)
