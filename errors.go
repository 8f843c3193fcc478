package siwegate

import (
	"errors"
	"fmt"

	"github.com/layer-3/siwegate/core"
)

// ErrNotSignedIn is returned by calls that need a session when there is none
var ErrNotSignedIn = errors.New("not signed in")

// APIError is a failed response from the server
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("siwegate: %d %s: %s", e.Status, e.Code, e.Message)
}

var codeErrors = map[string]error{
	"missing_credentials":   core.ErrMissingCredentials,
	"missing_nonce_cookie":  core.ErrMissingNonceCookie,
	"malformed_message":     core.ErrMalformedMessage,
	"nonce_mismatch":        core.ErrNonceMismatch,
	"wrong_network":         core.ErrWrongNetwork,
	"domain_mismatch":       core.ErrDomainMismatch,
	"message_expired":       core.ErrMessageExpired,
	"signature_invalid":     core.ErrSignatureInvalid,
	"invalid_credentials":   core.ErrInvalidCredentials,
	"provider_disabled":     core.ErrProviderDisabled,
	"token_expired":         core.ErrTokenExpired,
	"token_invalidated":     core.ErrTokenInvalidated,
	"unauthorized":          core.ErrInvalidToken,
	"wallet_required":       core.ErrWalletRequired,
	"signer_mismatch":       core.ErrSignerMismatch,
	"payment_mismatch":      core.ErrPaymentMismatch,
	"invalid_payment_terms": core.ErrInvalidPaymentTerms,
}

// Is lets callers match server failures against the core errors,
// e.g. errors.Is(err, core.ErrWrongNetwork)
func (e *APIError) Is(target error) bool {
	sentinel, ok := codeErrors[e.Code]
	return ok && sentinel == target
}
