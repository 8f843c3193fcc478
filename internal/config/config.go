package config

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Env      string `env:"ENV,default=dev"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	Server struct {
		Addr            string        `env:"HTTP_ADDR,default=:8080"`
		Origins         []string      `env:"ALLOWED_ORIGINS"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT,default=10s"`
	}

	Auth struct {
		AcceptedChainID uint64        `env:"ACCEPTED_CHAIN_ID,default=80002"`
		Domain          string        `env:"SIWE_DOMAIN"`
		NonceTTL        time.Duration `env:"NONCE_TTL,default=5m"`
		AccessTTL       time.Duration `env:"ACCESS_TTL,default=15m"`
		RefreshTTL      time.Duration `env:"REFRESH_TTL,default=120h"`
		SigningKey      string        `env:"SESSION_SIGNING_KEY"`
		NonceLedger     string        `env:"NONCE_LEDGER,default=memory"`
	}

	Demo struct {
		Username     string `env:"DEMO_USERNAME"`
		PasswordHash string `env:"DEMO_PASSWORD_HASH"`
	}

	Database struct {
		Driver string `env:"DATABASE_DRIVER,default=sqlite3"`
		URL    string `env:"DATABASE_URL,default=file:siwegate.db?_foreign_keys=on"`
	}

	Redis struct {
		URL string `env:"REDIS_URL"`
	}

	RateLimit struct {
		Limit  int           `env:"RATE_LIMIT,default=30"`
		Window time.Duration `env:"RATE_LIMIT_WINDOW,default=1m"`
	}

	Events struct {
		Backend string `env:"EVENTS_BACKEND,default=gochannel"`
	}
}

func Load(ctx context.Context) (*Config, error) {
	config := &Config{}
	if err := envconfig.Process(ctx, config); err != nil {
		return nil, fmt.Errorf("parsing env vars: %w", err)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadWith reads the configuration from l instead of the process environment
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	config := &Config{}
	if err := envconfig.ProcessWith(ctx, config, l); err != nil {
		return nil, fmt.Errorf("parsing env vars: %w", err)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	switch c.Auth.NonceLedger {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("NONCE_LEDGER: unknown value %q", c.Auth.NonceLedger)
	}
	switch c.Events.Backend {
	case "gochannel", "redis":
	default:
		return fmt.Errorf("EVENTS_BACKEND: unknown value %q", c.Events.Backend)
	}
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("DATABASE_DRIVER: unknown value %q", c.Database.Driver)
	}
	if c.Redis.URL == "" && (c.Auth.NonceLedger == "redis" || c.Events.Backend == "redis") {
		return fmt.Errorf("REDIS_URL is required by the redis backends")
	}
	if c.IsProduction() && c.Auth.SigningKey == "" {
		return fmt.Errorf("SESSION_SIGNING_KEY is required in production")
	}
	if c.Auth.AcceptedChainID == 0 {
		return fmt.Errorf("ACCEPTED_CHAIN_ID must be non-zero")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "prod"
}

// SessionKey parses SESSION_SIGNING_KEY, or generates a throwaway P-256 key
// outside production when it is unset.
func (c *Config) SessionKey() (*ecdsa.PrivateKey, error) {
	if c.Auth.SigningKey == "" {
		if c.IsProduction() {
			return nil, fmt.Errorf("SESSION_SIGNING_KEY is required in production")
		}
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}
	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(c.Auth.SigningKey))
	if err != nil {
		return nil, fmt.Errorf("parsing SESSION_SIGNING_KEY: %w", err)
	}
	return key, nil
}
