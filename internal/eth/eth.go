// Package eth holds the small set of Ethereum primitives the gate needs:
// address normalisation and EIP-191 personal-sign recovery.
package eth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const signatureLength = 65

var (
	ErrInvalidAddress   = errors.New("invalid ethereum address")
	ErrInvalidSignature = errors.New("invalid signature")
)

// NormalizeAddress validates a hex address in any letter case and returns
// its lower-cased form.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !strings.HasPrefix(addr, "0x") || !common.IsHexAddress(addr) {
		return "", ErrInvalidAddress
	}
	return strings.ToLower(addr), nil
}

// ShortAddress renders an address as its first 6 and last 4 characters
// joined with an ellipsis, e.g. 0x1234…abcd.
func ShortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

// RecoverPersonalSign returns the address whose key produced sig over msg
// using the EIP-191 "\x19Ethereum Signed Message:\n" prefix.
func RecoverPersonalSign(msg []byte, sig []byte) (common.Address, error) {
	if len(sig) != signatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes: %w", signatureLength, ErrInvalidSignature)
	}
	normalized := make([]byte, signatureLength)
	copy(normalized, sig)
	// Wallets emit v as 27/28, go-ethereum expects 0/1
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	if normalized[64] > 1 {
		return common.Address{}, fmt.Errorf("invalid recovery id %d: %w", sig[64], ErrInvalidSignature)
	}

	pub, err := crypto.SigToPub(accounts.TextHash(msg), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", ErrInvalidSignature)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyPersonalSign reports whether the hex signature over msg was made by
// expected.
func VerifyPersonalSign(msg []byte, signatureHex string, expected common.Address) (bool, error) {
	sig, err := hexutil.Decode(strings.TrimSpace(signatureHex))
	if err != nil {
		return false, fmt.Errorf("decode signature: %w", ErrInvalidSignature)
	}
	recovered, err := RecoverPersonalSign(msg, sig)
	if err != nil {
		return false, err
	}
	return recovered == expected, nil
}

// SignPersonal signs msg the way a browser wallet's personal_sign does and
// returns the 0x-prefixed signature with v in {27, 28}.
func SignPersonal(msg []byte, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg), key)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

// ChainIDHex formats a chain id as an EIP-695 hex quantity.
func ChainIDHex(chainID uint64) string {
	return hexutil.EncodeUint64(chainID)
}

// ParseChainIDHex parses a hex quantity such as "0x13882".
func ParseChainIDHex(s string) (uint64, error) {
	id, err := hexutil.DecodeUint64(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse chain id %q: %w", s, err)
	}
	return id, nil
}
