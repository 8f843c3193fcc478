package config

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, uint64(80002), cfg.Auth.AcceptedChainID)
	assert.Equal(t, 5*time.Minute, cfg.Auth.NonceTTL)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 120*time.Hour, cfg.Auth.RefreshTTL)
	assert.Equal(t, "memory", cfg.Auth.NonceLedger)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "gochannel", cfg.Events.Backend)

	key, err := cfg.SessionKey()
	require.NoError(t, err)
	assert.Equal(t, elliptic.P256(), key.Curve)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"ACCEPTED_CHAIN_ID": "1",
		"ALLOWED_ORIGINS":   "https://a.example,https://b.example",
		"NONCE_TTL":         "90s",
		"NONCE_LEDGER":      "redis",
		"REDIS_URL":         "redis://localhost:6379/0",
	}))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), cfg.Auth.AcceptedChainID)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.Origins)
	assert.Equal(t, 90*time.Second, cfg.Auth.NonceTTL)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown ledger", map[string]string{"NONCE_LEDGER": "disk"}},
		{"redis ledger without url", map[string]string{"NONCE_LEDGER": "redis"}},
		{"unknown driver", map[string]string{"DATABASE_DRIVER": "mysql"}},
		{"production without key", map[string]string{"ENV": "prod"}},
		{"zero chain", map[string]string{"ACCEPTED_CHAIN_ID": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadWith(context.Background(), envconfig.MapLookuper(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestSessionKeyFromPEM(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	cfg := &Config{}
	cfg.Auth.SigningKey = string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}))

	got, err := cfg.SessionKey()
	require.NoError(t, err)
	assert.True(t, key.Equal(got))
}
