package tokenizer

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rakutentech/jwk-go/jwk"

	"github.com/layer-3/siwegate/core"
	"github.com/layer-3/siwegate/ports"
)

const (
	Issuer          = "siwegate"
	AudienceAccess  = "session:access"
	AudienceRefresh = "session:refresh"
)

// JWTTokenizer implements the Tokenizer interface using ES256 JWTs
type JWTTokenizer struct {
	signKey *ecdsa.PrivateKey
	keyID   string
}

var _ ports.Tokenizer = (*JWTTokenizer)(nil)

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(signKey *ecdsa.PrivateKey) *JWTTokenizer {
	sum := sha256.Sum256(append(signKey.PublicKey.X.Bytes(), signKey.PublicKey.Y.Bytes()...))
	return &JWTTokenizer{
		signKey: signKey,
		keyID:   base64.RawURLEncoding.EncodeToString(sum[:12]),
	}
}

// KeyID returns the kid placed in token headers and the JWKS
func (j *JWTTokenizer) KeyID() string {
	return j.keyID
}

func principalClaims(session *core.Session) PrincipalClaims {
	return PrincipalClaims{
		SessionID: session.ID,
		Address:   session.Address,
		Role:      string(session.Role),
		Provider:  string(session.Provider),
		Email:     session.Email,
		Name:      session.Name,
		Image:     session.Image,
	}
}

func (j *JWTTokenizer) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = j.keyID

	signedToken, err := token.SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signedToken, nil
}

func (j *JWTTokenizer) parse(tokenStr string, claims jwt.Claims, audience string) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &j.signKey.PublicKey, nil
	}, jwt.WithAudience(audience), jwt.WithIssuer(Issuer), jwt.WithExpirationRequired())

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return core.ErrTokenExpired
		}
		return fmt.Errorf("%w: %v", core.ErrInvalidToken, err)
	}

	// Validate token
	if !token.Valid {
		return core.ErrInvalidToken
	}
	return nil
}

// SessionToAccessToken converts a Session to an access JWT token
func (j *JWTTokenizer) SessionToAccessToken(session *core.Session) (string, error) {
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   session.UserID,
			ID:        session.ID,
			ExpiresAt: jwt.NewNumericDate(session.AccessExpiry),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceAccess},
		},
		PrincipalClaims: principalClaims(session),
		RefreshID:       session.RefreshID,
	}

	return j.sign(claims)
}

// SessionToRefreshToken converts a Session to a refresh JWT token
func (j *JWTTokenizer) SessionToRefreshToken(session *core.Session) (string, error) {
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   session.UserID,
			ID:        session.RefreshID, // Use RefreshID as the JWT ID for the refresh token
			ExpiresAt: jwt.NewNumericDate(session.RefreshExpiry),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceRefresh},
		},
		PrincipalClaims: principalClaims(session),
	}

	return j.sign(claims)
}

// AccessTokenToSession parses an access token and returns the associated session
func (j *JWTTokenizer) AccessTokenToSession(tokenStr string) (*core.Session, error) {
	claims := &AccessClaims{}
	if err := j.parse(tokenStr, claims, AudienceAccess); err != nil {
		return nil, err
	}

	session := sessionFromClaims(claims.RegisteredClaims, claims.PrincipalClaims)
	session.AccessExpiry = claims.ExpiresAt.Time
	session.RefreshID = claims.RefreshID
	return session, nil
}

// RefreshTokenToSession parses a refresh token and returns the associated session.
// AccessExpiry is left zero; it is not used when processing refresh tokens.
func (j *JWTTokenizer) RefreshTokenToSession(tokenStr string) (*core.Session, error) {
	claims := &RefreshClaims{}
	if err := j.parse(tokenStr, claims, AudienceRefresh); err != nil {
		return nil, err
	}

	session := sessionFromClaims(claims.RegisteredClaims, claims.PrincipalClaims)
	session.RefreshExpiry = claims.ExpiresAt.Time
	session.RefreshID = claims.ID // The JWT ID is the refresh token ID
	return session, nil
}

func sessionFromClaims(reg jwt.RegisteredClaims, p PrincipalClaims) *core.Session {
	session := &core.Session{
		ID:       p.SessionID,
		UserID:   reg.Subject,
		Address:  p.Address,
		Role:     core.Role(p.Role),
		Provider: core.Provider(p.Provider),
		Email:    p.Email,
		Name:     p.Name,
		Image:    p.Image,
	}
	if reg.IssuedAt != nil {
		session.IssuedAt = reg.IssuedAt.Time
	}
	return session
}

type keySet struct {
	Keys []*jwk.JWK `json:"keys"`
}

// JWKS returns the JSON Web Key Set holding the verification key
func (j *JWTTokenizer) JWKS() ([]byte, error) {
	ks := jwk.NewSpec(&j.signKey.PublicKey)
	rawJWK, err := ks.ToJWK()
	if err != nil {
		return nil, fmt.Errorf("creating JWK: %w", err)
	}

	rawJWK.Use = "sig"
	rawJWK.Alg = "ES256"
	rawJWK.Kid = j.keyID

	data, err := json.Marshal(keySet{Keys: []*jwk.JWK{rawJWK}})
	if err != nil {
		return nil, fmt.Errorf("marshalling JWKS: %w", err)
	}
	return data, nil
}
