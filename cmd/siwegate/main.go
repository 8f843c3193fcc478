package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/layer-3/siwegate/adapters/events"
	"github.com/layer-3/siwegate/adapters/identity"
	"github.com/layer-3/siwegate/adapters/ratelimit"
	"github.com/layer-3/siwegate/adapters/store"
	"github.com/layer-3/siwegate/adapters/tokenizer"
	"github.com/layer-3/siwegate/internal/config"
	"github.com/layer-3/siwegate/internal/logging"
	"github.com/layer-3/siwegate/internal/metrics"
	"github.com/layer-3/siwegate/ports"
	"github.com/layer-3/siwegate/service"
	transport "github.com/layer-3/siwegate/transport/http"
)

const sweepInterval = time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		logging.Logger.Fatalf("config: %v", err)
	}
	logging.Init("siwegate", cfg.LogLevel)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	signKey, err := cfg.SessionKey()
	if err != nil {
		logging.Logger.Fatalf("session key: %v", err)
	}
	if cfg.Auth.SigningKey == "" {
		logging.Logger.Warn("SESSION_SIGNING_KEY not set, sessions will not survive a restart")
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logging.Logger.Fatalf("Failed to parse Redis URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logging.Logger.Fatalf("Failed to reach Redis: %v", err)
		}
	}

	repo, err := identity.Open(ctx, cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		logging.Logger.Fatalf("database: %v", err)
	}
	defer repo.Close()

	wmLogger := logging.NewWatermillAdapter(logging.Logger)
	var publisher message.Publisher
	switch cfg.Events.Backend {
	case "redis":
		publisher, err = redisstream.NewPublisher(redisstream.PublisherConfig{Client: redisClient}, wmLogger)
		if err != nil {
			logging.Logger.Fatalf("Failed to create Redis publisher: %v", err)
		}
	default:
		publisher = gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
	}
	defer publisher.Close()

	memStore := store.NewMemoryStore()
	var revocations ports.RevocationStore = memStore
	if redisClient != nil {
		revocations = store.NewRedisStore(redisClient)
	}

	var ledger ports.NonceLedger
	switch cfg.Auth.NonceLedger {
	case "memory":
		ledger = memStore
	case "redis":
		ledger = store.NewRedisStore(redisClient)
	}

	var limiter ports.RateLimiter
	var memLimiter *ratelimit.MemoryLimiter
	if cfg.RateLimit.Limit > 0 {
		if redisClient != nil {
			limiter = ratelimit.NewRedisLimiter(redisClient, cfg.RateLimit.Limit, cfg.RateLimit.Window)
		} else {
			memLimiter = ratelimit.NewMemoryLimiter(cfg.RateLimit.Limit, cfg.RateLimit.Window)
			limiter = memLimiter
		}
	}

	go sweep(ctx, memStore, memLimiter)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	tok := tokenizer.NewJWTTokenizer(signKey)
	eventPub := events.NewWatermillPublisher(publisher)

	nonces := service.NewNonceIssuer(ledger, cfg.Auth.NonceTTL, m)
	resolver := service.NewIdentityResolver(repo, eventPub, m)
	binder := service.NewSessionBinder(tok, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	authService := service.NewAuthService(nonces, resolver, binder, revocations, eventPub, m, service.AuthOptions{
		AcceptedChainID:  cfg.Auth.AcceptedChainID,
		Domain:           cfg.Auth.Domain,
		DemoUsername:     cfg.Demo.Username,
		DemoPasswordHash: cfg.Demo.PasswordHash,
	})
	paymentService := service.NewPaymentService(nonces, repo, eventPub, m, cfg.Auth.AcceptedChainID, cfg.Auth.Domain)

	router := transport.SetupRouter(transport.RouterConfig{
		AuthService:    authService,
		PaymentService: paymentService,
		Tokenizer:      tok,
		RateLimiter:    limiter,
		Metrics:        m,
		Gatherer:       registry,
		AccessTTL:      cfg.Auth.AccessTTL,
		SecureCookies:  cfg.IsProduction(),
	})

	co := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.Origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", transport.RequestIDHeader},
		ExposedHeaders:   []string{transport.RequestIDHeader},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           co.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logging.Logger.Infof("Starting siwegate on %s (chain %d)", cfg.Server.Addr, cfg.Auth.AcceptedChainID)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logging.Logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Logger.WithError(err).Error("Graceful shutdown failed")
	}
}

// sweep drops expired entries from the in-process stores
func sweep(ctx context.Context, s *store.MemoryStore, l *ratelimit.MemoryLimiter) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
			if l != nil {
				l.Sweep()
			}
		}
	}
}
