package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/layer-3/siwegate/core"
	"github.com/layer-3/siwegate/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	image TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS wallet_addresses (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id),
	address TEXT NOT NULL,
	chain_id BIGINT NOT NULL,
	is_primary BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP NOT NULL,
	UNIQUE (address, chain_id)
);
CREATE TABLE IF NOT EXISTS payment_authorizations (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id),
	address TEXT NOT NULL,
	course_id TEXT NOT NULL,
	amount TEXT NOT NULL,
	currency TEXT NOT NULL,
	chain_id BIGINT NOT NULL,
	nonce TEXT NOT NULL UNIQUE,
	created_at TIMESTAMP NOT NULL
)`

// SQLRepository stores identities through sqlx; it runs on sqlite3 and postgres
type SQLRepository struct {
	db *sqlx.DB
}

var (
	_ ports.IdentityRepository = (*SQLRepository)(nil)
	_ ports.PaymentRepository  = (*SQLRepository)(nil)
)

// Open connects to the database named by driver and dsn and ensures the schema
func Open(ctx context.Context, driver, dsn string) (*SQLRepository, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if driver == "sqlite3" {
		// sqlite serialises writers; one connection avoids SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}

	repo := NewSQLRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// NewSQLRepository wraps an existing connection
func NewSQLRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

// EnsureSchema creates the tables when missing
func (r *SQLRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure identity schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func (r *SQLRepository) GetWallet(ctx context.Context, address string, chainID uint64) (*core.WalletAddress, error) {
	w := &core.WalletAddress{}
	q := r.db.Rebind(`SELECT id, user_id, address, chain_id, is_primary, created_at FROM wallet_addresses WHERE address = ? AND chain_id = ?`)
	if err := r.db.GetContext(ctx, w, q, address, chainID); err != nil {
		return nil, translate("fetching wallet", err)
	}
	return w, nil
}

func (r *SQLRepository) GetUser(ctx context.Context, id string) (*core.User, error) {
	u := &core.User{}
	q := r.db.Rebind(`SELECT id, email, name, image, role, created_at FROM users WHERE id = ?`)
	if err := r.db.GetContext(ctx, u, q, id); err != nil {
		return nil, translate("fetching user", err)
	}
	return u, nil
}

func (r *SQLRepository) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	u := &core.User{}
	q := r.db.Rebind(`SELECT id, email, name, image, role, created_at FROM users WHERE email = ?`)
	if err := r.db.GetContext(ctx, u, q, email); err != nil {
		return nil, translate("fetching user by email", err)
	}
	return u, nil
}

func (r *SQLRepository) CountWallets(ctx context.Context, userID string) (int, error) {
	var n int
	q := r.db.Rebind(`SELECT COUNT(*) FROM wallet_addresses WHERE user_id = ?`)
	if err := r.db.GetContext(ctx, &n, q, userID); err != nil {
		return 0, translate("counting wallets", err)
	}
	return n, nil
}

const (
	insertUser = `INSERT INTO users (id, email, name, image, role, created_at)
		VALUES (:id, :email, :name, :image, :role, :created_at)`
	insertWallet = `INSERT INTO wallet_addresses (id, user_id, address, chain_id, is_primary, created_at)
		VALUES (:id, :user_id, :address, :chain_id, :is_primary, :created_at)`
	insertPayment = `INSERT INTO payment_authorizations (id, user_id, address, course_id, amount, currency, chain_id, nonce, created_at)
		VALUES (:id, :user_id, :address, :course_id, :amount, :currency, :chain_id, :nonce, :created_at)`
)

func (r *SQLRepository) CreateUserWithWallet(ctx context.Context, user *core.User, wallet *core.WalletAddress) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, insertUser, user); err != nil {
		return translate("inserting user", err)
	}
	if _, err := tx.NamedExecContext(ctx, insertWallet, wallet); err != nil {
		return translate("inserting wallet", err)
	}

	if err := tx.Commit(); err != nil {
		return translate("commit identity tx", err)
	}
	return nil
}

func (r *SQLRepository) CreateUser(ctx context.Context, user *core.User) error {
	if _, err := r.db.NamedExecContext(ctx, insertUser, user); err != nil {
		return translate("inserting user", err)
	}
	return nil
}

func (r *SQLRepository) CreateWallet(ctx context.Context, wallet *core.WalletAddress) error {
	if _, err := r.db.NamedExecContext(ctx, insertWallet, wallet); err != nil {
		return translate("inserting wallet", err)
	}
	return nil
}

func (r *SQLRepository) CreatePayment(ctx context.Context, auth *core.PaymentAuthorization) error {
	if _, err := r.db.NamedExecContext(ctx, insertPayment, auth); err != nil {
		return translate("inserting payment authorization", err)
	}
	return nil
}

func (r *SQLRepository) ListPayments(ctx context.Context, userID string) ([]core.PaymentAuthorization, error) {
	var out []core.PaymentAuthorization
	q := r.db.Rebind(`SELECT id, user_id, address, course_id, amount, currency, chain_id, nonce, created_at
		FROM payment_authorizations WHERE user_id = ? ORDER BY created_at`)
	if err := r.db.SelectContext(ctx, &out, q, userID); err != nil {
		return nil, translate("listing payment authorizations", err)
	}
	return out, nil
}

// translate maps driver errors onto core sentinels
func translate(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, core.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
