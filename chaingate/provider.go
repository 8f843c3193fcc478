package chaingate

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
)

// EIP-1193 provider error codes
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupported       = 4200
	CodeDisconnected      = 4900
	CodeChainDisconnected = 4901
	CodeUnrecognizedChain = 4902
	CodeRequestPending    = -32002
)

// Wallet RPC methods used by the gate
const (
	MethodChainID     = "eth_chainId"
	MethodAccounts    = "eth_accounts"
	MethodSwitchChain = "wallet_switchEthereumChain"
	MethodAddChain    = "wallet_addEthereumChain"
)

// Provider is a connected wallet. Its Request signature matches
// rpc.Client.CallContext so a JSON-RPC client can serve directly.
type Provider interface {
	Request(ctx context.Context, result any, method string, params ...any) error
	// Events delivers wallet-originated changes; nil when the wallet has none
	Events() <-chan Event
}

// EventKind names a wallet-originated event
type EventKind string

const (
	ChainChanged    EventKind = "chainChanged"
	AccountsChanged EventKind = "accountsChanged"
)

// Event is a wallet notification. ChainID is set for ChainChanged,
// Accounts for AccountsChanged.
type Event struct {
	Kind     EventKind
	ChainID  uint64
	Accounts []string
}

// Notifier shows transient, non-blocking messages to the user
type Notifier interface {
	Success(msg string)
	Warning(msg string)
	Error(msg string)
}

// ProviderError is an EIP-1193 error returned by a wallet
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("wallet error %d: %s", e.Code, e.Message)
}

// ErrorCode implements rpc.Error
func (e *ProviderError) ErrorCode() int {
	return e.Code
}

// errorCode extracts the provider code from err, 0 when there is none
func errorCode(err error) int {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode()
	}
	return 0
}

// unrecoverable errors end a switching episode with a single notification
func unrecoverable(err error) bool {
	switch errorCode(err) {
	case CodeUserRejected, CodeUnauthorized, CodeUnsupported:
		return true
	}
	return false
}
