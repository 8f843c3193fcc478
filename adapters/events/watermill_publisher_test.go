package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/siwegate/core"
)

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		msg.Ack()
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestWatermillPublisher(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()
	pub := NewWatermillPublisher(pubSub)

	t.Run("Login", func(t *testing.T) {
		ch, err := pubSub.Subscribe(ctx, TopicLogin)
		require.NoError(t, err)

		addr := "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"
		principal := &core.Principal{UserID: "u1", Provider: core.ProviderSIWE, Address: &addr, ChainID: 80002, IsNew: true}
		require.NoError(t, pub.PublishLogin(ctx, principal, "sid-1"))

		var event LoginEvent
		require.NoError(t, json.Unmarshal(receive(t, ch).Payload, &event))
		assert.Equal(t, "u1", event.UserID)
		assert.Equal(t, "sid-1", event.SessionID)
		require.NotNil(t, event.Address)
		assert.Equal(t, addr, *event.Address)
		assert.True(t, event.NewUser)
	})

	t.Run("Logout", func(t *testing.T) {
		ch, err := pubSub.Subscribe(ctx, TopicLogout)
		require.NoError(t, err)

		require.NoError(t, pub.PublishLogout(ctx, "u1", "rid-1"))

		var event LogoutEvent
		require.NoError(t, json.Unmarshal(receive(t, ch).Payload, &event))
		assert.Equal(t, LogoutEvent{UserID: "u1", TokenID: "rid-1"}, event)
	})

	t.Run("PaymentAuthorized", func(t *testing.T) {
		ch, err := pubSub.Subscribe(ctx, TopicPaymentAuthorized)
		require.NoError(t, err)

		auth := &core.PaymentAuthorization{
			ID:       "p1",
			UserID:   "u1",
			CourseID: "course-42",
			Amount:   decimal.RequireFromString("12.50"),
			Currency: "USDC",
			ChainID:  80002,
		}
		require.NoError(t, pub.PublishPaymentAuthorized(ctx, auth))

		var event PaymentAuthorizedEvent
		require.NoError(t, json.Unmarshal(receive(t, ch).Payload, &event))
		assert.Equal(t, "12.5", event.Amount)
		assert.Equal(t, "course-42", event.CourseID)
	})
}
