package main

import (
	"context"
	"net"
	"testing"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/siwegate/internal/config"
)

func TestDefaultServerMatchesServerDefaults(t *testing.T) {
	cfg, err := config.LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)

	_, port, err := net.SplitHostPort(cfg.Server.Addr)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:"+port, defaultServer)
}
