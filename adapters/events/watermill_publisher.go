package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/layer-3/siwegate/core"
	"github.com/layer-3/siwegate/ports"
)

const (
	TopicLogin             = "siwegate.login"
	TopicLogout            = "siwegate.logout"
	TopicUserCreated       = "siwegate.user_created"
	TopicPaymentAuthorized = "siwegate.payment_authorized"
)

// LoginEvent represents a successful sign-in
type LoginEvent struct {
	UserID    string        `json:"user_id"`
	SessionID string        `json:"session_id"`
	Provider  core.Provider `json:"provider"`
	Address   *string       `json:"address,omitempty"`
	ChainID   uint64        `json:"chain_id,omitempty"`
	NewUser   bool          `json:"new_user"`
	At        time.Time     `json:"at"`
}

// LogoutEvent represents a logout event
type LogoutEvent struct {
	UserID  string `json:"user_id"`
	TokenID string `json:"token_id"`
}

// UserCreatedEvent is emitted when a first sign-in creates a user
type UserCreatedEvent struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Address string `json:"address,omitempty"`
	ChainID uint64 `json:"chain_id,omitempty"`
}

// PaymentAuthorizedEvent is emitted for every stored payment authorization
type PaymentAuthorizedEvent struct {
	AuthorizationID string `json:"authorization_id"`
	UserID          string `json:"user_id"`
	Address         string `json:"address"`
	CourseID        string `json:"course_id"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	ChainID         uint64 `json:"chain_id"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher}
}

func (p *WatermillPublisher) publish(ctx context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// PublishLogin publishes a login event
func (p *WatermillPublisher) PublishLogin(ctx context.Context, principal *core.Principal, sessionID string) error {
	return p.publish(ctx, TopicLogin, LoginEvent{
		UserID:    principal.UserID,
		SessionID: sessionID,
		Provider:  principal.Provider,
		Address:   principal.Address,
		ChainID:   principal.ChainID,
		NewUser:   principal.IsNew,
		At:        time.Now().UTC(),
	})
}

// PublishLogout publishes a logout event
func (p *WatermillPublisher) PublishLogout(ctx context.Context, userID string, tokenID string) error {
	return p.publish(ctx, TopicLogout, LogoutEvent{
		UserID:  userID,
		TokenID: tokenID,
	})
}

// PublishUserCreated publishes a user creation event
func (p *WatermillPublisher) PublishUserCreated(ctx context.Context, user *core.User, wallet *core.WalletAddress) error {
	event := UserCreatedEvent{
		UserID: user.ID,
		Email:  user.Email,
	}
	if wallet != nil {
		event.Address = wallet.Address
		event.ChainID = wallet.ChainID
	}
	return p.publish(ctx, TopicUserCreated, event)
}

// PublishPaymentAuthorized publishes a payment authorization event
func (p *WatermillPublisher) PublishPaymentAuthorized(ctx context.Context, auth *core.PaymentAuthorization) error {
	return p.publish(ctx, TopicPaymentAuthorized, PaymentAuthorizedEvent{
		AuthorizationID: auth.ID,
		UserID:          auth.UserID,
		Address:         auth.Address,
		CourseID:        auth.CourseID,
		Amount:          auth.Amount.String(),
		Currency:        auth.Currency,
		ChainID:         auth.ChainID,
	})
}
