package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/siwegate/adapters/store"
	"github.com/layer-3/siwegate/core"
	"github.com/layer-3/siwegate/internal/metrics"
)

func TestNonceIssuerIssue(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	n := NewNonceIssuer(nil, 5*time.Minute, m)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		ch, err := n.Issue(context.Background(), core.NoncePurposeLogin)
		require.NoError(t, err)
		assert.Len(t, ch.Nonce, 2*nonceBytes)
		assert.Equal(t, 5*time.Minute, ch.ExpiresAt.Sub(ch.IssuedAt))
		assert.False(t, seen[ch.Nonce])
		seen[ch.Nonce] = true
	}
	assert.Equal(t, 50.0, testutil.ToFloat64(m.NoncesIssued.WithLabelValues("login")))
}

func TestNonceIssuerRedeem(t *testing.T) {
	ctx := context.Background()

	t.Run("without ledger any cookie nonce passes", func(t *testing.T) {
		n := NewNonceIssuer(nil, time.Minute, nil)
		assert.NoError(t, n.Redeem(ctx, core.NoncePurposeLogin, "a1b2c3d4e5f60718"))
		assert.ErrorIs(t, n.Redeem(ctx, core.NoncePurposeLogin, ""), core.ErrMissingNonceCookie)
	})

	t.Run("ledger allows one redemption", func(t *testing.T) {
		n := NewNonceIssuer(store.NewMemoryStore(), time.Minute, nil)
		ch, err := n.Issue(ctx, core.NoncePurposeLogin)
		require.NoError(t, err)

		assert.ErrorIs(t, n.Redeem(ctx, core.NoncePurposePayment, ch.Nonce), core.ErrMissingNonceCookie)
		assert.NoError(t, n.Redeem(ctx, core.NoncePurposeLogin, ch.Nonce))
		assert.ErrorIs(t, n.Redeem(ctx, core.NoncePurposeLogin, ch.Nonce), core.ErrMissingNonceCookie)
	})

	t.Run("unknown nonce", func(t *testing.T) {
		n := NewNonceIssuer(store.NewMemoryStore(), time.Minute, nil)
		assert.ErrorIs(t, n.Redeem(ctx, core.NoncePurposeLogin, "ffffffffffffffff"), core.ErrMissingNonceCookie)
	})
}
