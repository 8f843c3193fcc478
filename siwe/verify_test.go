package siwe

import (
	"crypto/ecdsa"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/siwegate/core"
	"github.com/layer-3/siwegate/internal/eth"
)

const acceptedChain = 80002

func signedMessage(t *testing.T, key *ecdsa.PrivateKey, nonce string, chainID uint64) (string, string) {
	t.Helper()
	msg := &Message{
		Domain:    "academy.example",
		Address:   crypto.PubkeyToAddress(key.PublicKey).Hex(),
		Statement: "Sign in to Academy.",
		URI:       "https://academy.example",
		ChainID:   chainID,
		Nonce:     nonce,
		IssuedAt:  time.Now().UTC(),
	}
	raw := msg.String()
	sig, err := eth.SignPersonal([]byte(raw), key)
	require.NoError(t, err)
	return raw, sig
}

func TestVerify(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	nonce := "a1b2c3d4e5f60718"
	raw, sig := signedMessage(t, key, nonce, acceptedChain)

	_, id, err := Verify(raw, Params{Signature: sig, ExpectedNonce: nonce, ChainID: acceptedChain, Domain: "academy.example"})
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex()), id.Address)
	assert.Equal(t, uint64(acceptedChain), id.ChainID)
	assert.Equal(t, nonce, id.Nonce)
}

func TestVerifyFailures(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)

	nonce := "a1b2c3d4e5f60718"
	raw, sig := signedMessage(t, key, nonce, acceptedChain)
	mainnetRaw, mainnetSig := signedMessage(t, key, nonce, 1)
	_, otherSig := signedMessage(t, other, nonce, acceptedChain)

	past := time.Now().Add(-time.Minute)
	expired := &Message{
		Domain:         "academy.example",
		Address:        crypto.PubkeyToAddress(key.PublicKey).Hex(),
		URI:            "https://academy.example",
		ChainID:        acceptedChain,
		Nonce:          nonce,
		IssuedAt:       past.Add(-time.Minute),
		ExpirationTime: &past,
	}
	expiredSig, err := eth.SignPersonal([]byte(expired.String()), key)
	require.NoError(t, err)

	tests := []struct {
		name   string
		raw    string
		params Params
		want   error
	}{
		{"missing message", "", Params{Signature: sig, ExpectedNonce: nonce, ChainID: acceptedChain}, core.ErrMissingCredentials},
		{"missing signature", raw, Params{ExpectedNonce: nonce, ChainID: acceptedChain}, core.ErrMissingCredentials},
		{"missing nonce cookie", raw, Params{Signature: sig, ChainID: acceptedChain}, core.ErrMissingNonceCookie},
		{"malformed", "garbage", Params{Signature: sig, ExpectedNonce: nonce, ChainID: acceptedChain}, core.ErrMalformedMessage},
		{"nonce mismatch with valid signature", raw, Params{Signature: sig, ExpectedNonce: "a1b2c3d4e5f60719", ChainID: acceptedChain}, core.ErrNonceMismatch},
		{"nonce case differs", raw, Params{Signature: sig, ExpectedNonce: strings.ToUpper(nonce), ChainID: acceptedChain}, core.ErrNonceMismatch},
		{"nonce mismatch with bad signature", raw, Params{Signature: otherSig, ExpectedNonce: "zzzzzzzzzzzzzzzz", ChainID: acceptedChain}, core.ErrNonceMismatch},
		{"mainnet message", mainnetRaw, Params{Signature: mainnetSig, ExpectedNonce: nonce, ChainID: acceptedChain}, core.ErrWrongNetwork},
		{"wrong domain", raw, Params{Signature: sig, ExpectedNonce: nonce, ChainID: acceptedChain, Domain: "evil.example"}, core.ErrDomainMismatch},
		{"expired", expired.String(), Params{Signature: expiredSig, ExpectedNonce: nonce, ChainID: acceptedChain}, core.ErrMessageExpired},
		{"signed by someone else", raw, Params{Signature: otherSig, ExpectedNonce: nonce, ChainID: acceptedChain}, core.ErrSignatureInvalid},
		{"signature not hex", raw, Params{Signature: "0xnothex", ExpectedNonce: nonce, ChainID: acceptedChain}, core.ErrSignatureInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Verify(tt.raw, tt.params)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestVerifyChecksumAddressNormalized(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	nonce := "noncenonce1"
	raw, sig := signedMessage(t, key, nonce, acceptedChain)

	msg, id, err := Verify(raw, Params{Signature: sig, ExpectedNonce: nonce, ChainID: acceptedChain})
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), msg.Address)
	assert.Equal(t, strings.ToLower(msg.Address), id.Address)
}
