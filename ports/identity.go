package ports

import (
	"context"

	"github.com/layer-3/siwegate/core"
)

// IdentityRepository persists users and their wallet bindings.
// Implementations return core.ErrNotFound for missing rows and
// core.ErrConflict when a uniqueness constraint rejects a write.
type IdentityRepository interface {
	GetWallet(ctx context.Context, address string, chainID uint64) (*core.WalletAddress, error)
	GetUser(ctx context.Context, id string) (*core.User, error)
	GetUserByEmail(ctx context.Context, email string) (*core.User, error)
	CountWallets(ctx context.Context, userID string) (int, error)
	// CreateUserWithWallet inserts both rows atomically.
	CreateUserWithWallet(ctx context.Context, user *core.User, wallet *core.WalletAddress) error
	CreateUser(ctx context.Context, user *core.User) error
	CreateWallet(ctx context.Context, wallet *core.WalletAddress) error
}

// PaymentRepository persists signed payment authorizations
type PaymentRepository interface {
	CreatePayment(ctx context.Context, auth *core.PaymentAuthorization) error
	ListPayments(ctx context.Context, userID string) ([]core.PaymentAuthorization, error)
}
