package http

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nrednav/cuid2"
	"github.com/sirupsen/logrus"

	"github.com/layer-3/siwegate/core"
	"github.com/layer-3/siwegate/internal/logging"
	"github.com/layer-3/siwegate/internal/metrics"
	"github.com/layer-3/siwegate/ports"
	"github.com/layer-3/siwegate/service"
)

const (
	sessionKey   = "session"
	requestIDKey = "requestID"

	RequestIDHeader = "X-Request-ID"
)

// sessionFrom returns the session stored by AuthMiddleware
func sessionFrom(c *gin.Context) *core.Session {
	return c.MustGet(sessionKey).(*core.Session)
}

// AuthMiddleware creates middleware that validates access tokens from the
// Authorization header or, for browsers, the session cookie
func AuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if auth := c.GetHeader("Authorization"); auth != "" {
			if !strings.HasPrefix(auth, "Bearer ") || len(auth) < 8 {
				respondErrorWithCode(c, http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid authorization header", nil)
				return
			}
			token = auth[7:]
		} else {
			token = readCookie(c, SessionCookie)
		}
		if token == "" {
			respondErrorWithCode(c, http.StatusUnauthorized, ErrCodeUnauthorized, "Not signed in", nil)
			return
		}

		session, err := authService.ValidateAccessToken(c.Request.Context(), token)
		if err != nil {
			respondError(c, err, authService.AcceptedChainID())
			return
		}

		c.Set(sessionKey, session)
		c.Next()
	}
}

// RateLimit rejects requests over the limiter's budget with 429. Limiter
// failures let the request through.
func RateLimit(limiter ports.RateLimiter, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := scope + ":" + clientIP(c)
		allowed, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			logging.Logger.WithError(err).WithField("key", key).Warn("rate limiter unavailable, allowing request")
			c.Next()
			return
		}
		if !allowed {
			respondErrorWithCode(c, http.StatusTooManyRequests, ErrCodeRateLimitExceeded, "Too many requests", nil)
			return
		}
		c.Next()
	}
}

func clientIP(c *gin.Context) string {
	ip := c.ClientIP()
	if host, _, err := net.SplitHostPort(ip); err == nil {
		return host
	}
	return ip
}

// RequestID tags each request with an id, reusing the caller's when present
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = cuid2.Generate()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestLogger logs every request and records its latency
func RequestLogger(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		m.ObserveRequest(route, strconv.Itoa(status), latency.Seconds())

		logging.Logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"latency":    latency.String(),
			"request_id": c.GetString(requestIDKey),
		}).Debug("request")
	}
}
