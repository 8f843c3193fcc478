package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/layer-3/siwegate/internal/metrics"
	"github.com/layer-3/siwegate/ports"
	"github.com/layer-3/siwegate/service"
)

// RouterConfig holds everything the router wires together
type RouterConfig struct {
	AuthService    *service.AuthService
	PaymentService *service.PaymentService
	Tokenizer      ports.Tokenizer
	// RateLimiter guards the nonce and verify routes; nil disables it
	RateLimiter   ports.RateLimiter
	Metrics       *metrics.Metrics
	Gatherer      prometheus.Gatherer
	AccessTTL     time.Duration
	SecureCookies bool
}

// SetupRouter sets up the Gin router
func SetupRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), RequestLogger(cfg.Metrics))

	handlers := NewAuthHandlers(cfg.AuthService, cfg.PaymentService, cfg.Tokenizer, cfg.AccessTTL, cfg.SecureCookies)
	limit := func(scope string) gin.HandlerFunc {
		if cfg.RateLimiter == nil {
			return func(c *gin.Context) { c.Next() }
		}
		return RateLimit(cfg.RateLimiter, scope)
	}
	authenticated := AuthMiddleware(cfg.AuthService)

	router.GET("/healthz", Health)
	router.GET("/.well-known/jwks.json", handlers.JWKS)
	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	auth := router.Group("/api/auth")
	{
		auth.GET("/siwe/nonce", limit("nonce"), handlers.Nonce)
		auth.POST("/siwe/verify", limit("verify"), handlers.Verify)
		auth.POST("/demo/login", limit("verify"), handlers.DemoLogin)
		auth.POST("/refresh", handlers.Refresh)
		auth.POST("/logout", handlers.Logout)
		auth.GET("/session", authenticated, handlers.Session)
	}

	payments := router.Group("/api/payments", authenticated)
	{
		payments.GET("", handlers.Payments)
		payments.GET("/siwe/nonce", limit("nonce"), handlers.PaymentNonce)
		payments.POST("/siwe/verify", limit("verify"), handlers.PaymentVerify)
	}

	return router
}
