package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/siwegate/core"
)

const (
	LoginNonceCookie   = "siwe-nonce"
	PaymentNonceCookie = "siwe-payment-nonce"
	SessionCookie      = "siwegate-session"
)

func nonceCookieName(purpose core.NoncePurpose) string {
	if purpose == core.NoncePurposePayment {
		return PaymentNonceCookie
	}
	return LoginNonceCookie
}

// setCookie writes an HttpOnly, SameSite=Lax cookie for the whole origin.
// Secure is only set in production so local http development works.
func setCookie(c *gin.Context, name, value string, ttl time.Duration, secure bool) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearCookie(c *gin.Context, name string, secure bool) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func readCookie(c *gin.Context, name string) string {
	v, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return v
}
