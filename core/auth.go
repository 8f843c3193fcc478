package core

import "time"

// NoncePurpose scopes a nonce to one flow so concurrent flows don't collide
type NoncePurpose string

const (
	NoncePurposeLogin   NoncePurpose = "login"
	NoncePurposePayment NoncePurpose = "payment"
)

// Challenge represents an issued one-time nonce
type Challenge struct {
	Purpose   NoncePurpose // Flow the nonce belongs to
	Nonce     string       // Random value embedded in the signed message
	IssuedAt  time.Time    // When the nonce was issued
	ExpiresAt time.Time    // When the nonce cookie expires
}

// VerifiedIdentity is the outcome of a successful signed-message verification
type VerifiedIdentity struct {
	Address string // Lower-cased hex address of the signer
	ChainID uint64 // Chain the message was signed for
	Nonce   string // Nonce consumed by the verification
}

// Provider identifies the credential path a principal signed in with
type Provider string

const (
	ProviderDemo  Provider = "demo"
	ProviderSIWE  Provider = "siwe"
	ProviderOAuth Provider = "oauth"
)

// Valid reports whether p is a known provider
func (p Provider) Valid() bool {
	switch p {
	case ProviderDemo, ProviderSIWE, ProviderOAuth:
		return true
	}
	return false
}

// Principal is the common shape every credential provider produces.
// Address is only set for the SIWE provider.
type Principal struct {
	UserID   string
	Email    string
	Name     string
	Image    string
	Role     Role
	Provider Provider
	Address  *string
	ChainID  uint64
	IsNew    bool
}

// Session represents an authenticated user session
type Session struct {
	ID            string    // Unique session identifier
	UserID        string    // Application user id
	Address       *string   // Wallet address, nil for non-wallet sign-in
	Role          Role      // Privilege level at mint time
	Provider      Provider  // Credential path used at mint time
	Email         string    // Contact handle
	Name          string    // Display name
	Image         string    // Avatar URL
	IssuedAt      time.Time // When the session was created
	RefreshExpiry time.Time // When the refresh capability expires
	AccessExpiry  time.Time // When the access capability expires
	RefreshID     string    // Unique identifier for the refresh token
}

// SessionUser is the user part of the outward-facing session view
type SessionUser struct {
	ID    string `json:"id"`
	Role  Role   `json:"role"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`
}

// SessionView is what downstream handlers read from a session
type SessionView struct {
	User     SessionUser `json:"user"`
	Address  *string     `json:"address,omitempty"`
	Provider Provider    `json:"provider"`
	Expires  time.Time   `json:"expires"`
}

// TokenPair carries the signed tokens of a session
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}
