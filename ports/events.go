package ports

import (
	"context"

	"github.com/layer-3/siwegate/core"
)

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishLogin(ctx context.Context, principal *core.Principal, sessionID string) error
	PublishLogout(ctx context.Context, userID string, tokenID string) error
	PublishUserCreated(ctx context.Context, user *core.User, wallet *core.WalletAddress) error
	PublishPaymentAuthorized(ctx context.Context, auth *core.PaymentAuthorization) error
}
