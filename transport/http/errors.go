package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/layer-3/siwegate/core"
	"github.com/layer-3/siwegate/internal/logging"
)

const (
	ErrCodeInvalidPayload      = "invalid_payload"
	ErrCodeMissingCredentials  = "missing_credentials"
	ErrCodeMissingNonceCookie  = "missing_nonce_cookie"
	ErrCodeMalformedMessage    = "malformed_message"
	ErrCodeNonceMismatch       = "nonce_mismatch"
	ErrCodeWrongNetwork        = "wrong_network"
	ErrCodeDomainMismatch      = "domain_mismatch"
	ErrCodeMessageExpired      = "message_expired"
	ErrCodeSignatureInvalid    = "signature_invalid"
	ErrCodeInvalidCredentials  = "invalid_credentials"
	ErrCodeProviderDisabled    = "provider_disabled"
	ErrCodeUnauthorized        = "unauthorized"
	ErrCodeTokenExpired        = "token_expired"
	ErrCodeTokenInvalidated    = "token_invalidated"
	ErrCodeWalletRequired      = "wallet_required"
	ErrCodeSignerMismatch      = "signer_mismatch"
	ErrCodePaymentMismatch     = "payment_mismatch"
	ErrCodeInvalidPaymentTerms = "invalid_payment_terms"
	ErrCodeRateLimitExceeded   = "rate_limit_exceeded"
	ErrCodeInternal            = "internal_server_error"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// Resolution failures come first: they may wrap a repository sentinel too.
var errorMappings = []errorMapping{
	{core.ErrIdentityResolutionFailed, http.StatusInternalServerError, ErrCodeInternal, "Internal server error"},
	{core.ErrMissingCredentials, http.StatusBadRequest, ErrCodeMissingCredentials, "Missing message or signature"},
	{core.ErrMissingNonceCookie, http.StatusBadRequest, ErrCodeMissingNonceCookie, "Missing SIWE nonce cookie"},
	{core.ErrMalformedMessage, http.StatusBadRequest, ErrCodeMalformedMessage, "Malformed SIWE message"},
	{core.ErrNonceMismatch, http.StatusBadRequest, ErrCodeNonceMismatch, "Invalid nonce"},
	{core.ErrDomainMismatch, http.StatusBadRequest, ErrCodeDomainMismatch, "Invalid domain"},
	{core.ErrMessageExpired, http.StatusBadRequest, ErrCodeMessageExpired, "Message expired"},
	{core.ErrSignatureInvalid, http.StatusBadRequest, ErrCodeSignatureInvalid, "Verification failed"},
	{core.ErrInvalidCredentials, http.StatusUnauthorized, ErrCodeInvalidCredentials, "Invalid credentials"},
	{core.ErrProviderDisabled, http.StatusNotFound, ErrCodeProviderDisabled, "Sign-in method not available"},
	{core.ErrTokenExpired, http.StatusUnauthorized, ErrCodeTokenExpired, "Token expired"},
	{core.ErrTokenInvalidated, http.StatusUnauthorized, ErrCodeTokenInvalidated, "Token has been invalidated"},
	{core.ErrInvalidToken, http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid token"},
	{core.ErrWalletRequired, http.StatusUnauthorized, ErrCodeWalletRequired, "Sign in with a wallet first"},
	{core.ErrSignerMismatch, http.StatusForbidden, ErrCodeSignerMismatch, "Signer does not match the session wallet"},
	{core.ErrPaymentMismatch, http.StatusBadRequest, ErrCodePaymentMismatch, "Payment details do not match the signed message"},
	{core.ErrInvalidPaymentTerms, http.StatusBadRequest, ErrCodeInvalidPaymentTerms, "Invalid payment details"},
}

// respondError writes the public form of err. Details stay in the log.
func respondError(c *gin.Context, err error, acceptedChainID uint64) {
	if errors.Is(err, core.ErrWrongNetwork) {
		respondErrorWithCode(c, http.StatusBadRequest, ErrCodeWrongNetwork,
			fmt.Sprintf("Wrong network: expected chain %d", acceptedChainID), err)
		return
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			respondErrorWithCode(c, m.status, m.code, m.message, err)
			return
		}
	}
	respondErrorWithCode(c, http.StatusInternalServerError, ErrCodeInternal, "Internal server error", err)
}

func respondErrorWithCode(c *gin.Context, status int, code, publicMessage string, devErr error) {
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Message: publicMessage})

	entry := logging.Logger.WithFields(logrus.Fields{
		"status":     status,
		"code":       code,
		"request_id": c.GetString(requestIDKey),
	})
	if devErr != nil {
		entry = entry.WithError(devErr)
	}
	if status >= http.StatusInternalServerError {
		entry.Error(publicMessage)
	} else {
		entry.Info(publicMessage)
	}
}
