package tokenizer

import "github.com/golang-jwt/jwt/v5"

// PrincipalClaims are carried unchanged from mint through every refresh
type PrincipalClaims struct {
	SessionID string  `json:"sid"`
	Address   *string `json:"address,omitempty"`
	Role      string  `json:"role"`
	Provider  string  `json:"provider"`
	Email     string  `json:"email,omitempty"`
	Name      string  `json:"name,omitempty"`
	Image     string  `json:"image,omitempty"`
}

// AccessClaims combines standard claims with access-specific ones
type AccessClaims struct {
	jwt.RegisteredClaims
	PrincipalClaims
	RefreshID string `json:"rid"` // ID of the refresh token
}

// RefreshClaims combines standard claims with the principal so a refresh
// can re-mint without a new signature
type RefreshClaims struct {
	jwt.RegisteredClaims
	PrincipalClaims
}
