package identity

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/layer-3/siwegate/core"
	"github.com/layer-3/siwegate/ports"
)

// MemoryRepository keeps identities in process memory.
// Uniqueness rules match the SQL schema.
type MemoryRepository struct {
	mu       sync.Mutex
	users    map[string]core.User
	emails   map[string]string // email -> user id
	wallets  map[string]core.WalletAddress
	payments map[string]core.PaymentAuthorization // nonce -> payment
}

var (
	_ ports.IdentityRepository = (*MemoryRepository)(nil)
	_ ports.PaymentRepository  = (*MemoryRepository)(nil)
)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:    make(map[string]core.User),
		emails:   make(map[string]string),
		wallets:  make(map[string]core.WalletAddress),
		payments: make(map[string]core.PaymentAuthorization),
	}
}

func walletKey(address string, chainID uint64) string {
	return address + "@" + strconv.FormatUint(chainID, 10)
}

func (r *MemoryRepository) GetWallet(_ context.Context, address string, chainID uint64) (*core.WalletAddress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.wallets[walletKey(address, chainID)]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &w, nil
}

func (r *MemoryRepository) GetUser(_ context.Context, id string) (*core.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &u, nil
}

func (r *MemoryRepository) GetUserByEmail(_ context.Context, email string) (*core.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.emails[email]
	if !ok {
		return nil, core.ErrNotFound
	}
	u := r.users[id]
	return &u, nil
}

func (r *MemoryRepository) CountWallets(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, w := range r.wallets {
		if w.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) CreateUserWithWallet(_ context.Context, user *core.User, wallet *core.WalletAddress) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkUser(user); err != nil {
		return err
	}
	if err := r.checkWallet(wallet); err != nil {
		return err
	}
	r.putUser(user)
	r.wallets[walletKey(wallet.Address, wallet.ChainID)] = *wallet
	return nil
}

func (r *MemoryRepository) CreateUser(_ context.Context, user *core.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkUser(user); err != nil {
		return err
	}
	r.putUser(user)
	return nil
}

func (r *MemoryRepository) CreateWallet(_ context.Context, wallet *core.WalletAddress) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkWallet(wallet); err != nil {
		return err
	}
	if _, ok := r.users[wallet.UserID]; !ok {
		return core.ErrNotFound
	}
	r.wallets[walletKey(wallet.Address, wallet.ChainID)] = *wallet
	return nil
}

func (r *MemoryRepository) CreatePayment(_ context.Context, auth *core.PaymentAuthorization) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.payments[auth.Nonce]; ok {
		return core.ErrConflict
	}
	r.payments[auth.Nonce] = *auth
	return nil
}

func (r *MemoryRepository) ListPayments(_ context.Context, userID string) ([]core.PaymentAuthorization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []core.PaymentAuthorization
	for _, p := range r.payments {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) checkUser(user *core.User) error {
	if _, ok := r.users[user.ID]; ok {
		return core.ErrConflict
	}
	if _, ok := r.emails[user.Email]; ok {
		return core.ErrConflict
	}
	return nil
}

func (r *MemoryRepository) checkWallet(wallet *core.WalletAddress) error {
	if _, ok := r.wallets[walletKey(wallet.Address, wallet.ChainID)]; ok {
		return core.ErrConflict
	}
	return nil
}

func (r *MemoryRepository) putUser(user *core.User) {
	r.users[user.ID] = *user
	r.emails[user.Email] = user.ID
}
