package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role is the enumerated privilege level of a user
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// User is an application user record
type User struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Name      string    `db:"name" json:"name"`
	Image     string    `db:"image" json:"image,omitempty"`
	Role      Role      `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// WalletAddress binds an address on one chain to a user.
// (Address, ChainID) is unique.
type WalletAddress struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"userId"`
	Address   string    `db:"address" json:"address"`
	ChainID   uint64    `db:"chain_id" json:"chainId"`
	IsPrimary bool      `db:"is_primary" json:"isPrimary"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// PaymentAuthorization records a signed approval to pay for a course
type PaymentAuthorization struct {
	ID        string          `db:"id" json:"id"`
	UserID    string          `db:"user_id" json:"userId"`
	Address   string          `db:"address" json:"address"`
	CourseID  string          `db:"course_id" json:"courseId"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Currency  string          `db:"currency" json:"currency"`
	ChainID   uint64          `db:"chain_id" json:"chainId"`
	Nonce     string          `db:"nonce" json:"-"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
}
