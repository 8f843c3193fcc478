package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/siwegate/core"
	"github.com/layer-3/siwegate/ports"
	"github.com/layer-3/siwegate/service"
)

// AuthHandlers contains HTTP handlers for auth and payment endpoints
type AuthHandlers struct {
	authService    *service.AuthService
	paymentService *service.PaymentService
	tokenizer      ports.Tokenizer
	accessTTL      time.Duration
	secureCookies  bool
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(
	authService *service.AuthService,
	paymentService *service.PaymentService,
	tokenizer ports.Tokenizer,
	accessTTL time.Duration,
	secureCookies bool,
) *AuthHandlers {
	return &AuthHandlers{
		authService:    authService,
		paymentService: paymentService,
		tokenizer:      tokenizer,
		accessTTL:      accessTTL,
		secureCookies:  secureCookies,
	}
}

type signedRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type loginResponse struct {
	core.SessionView
	IsNewUser bool `json:"isNewUser"`
	tokenResponse
}

func newTokenResponse(pair core.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(pair.ExpiresIn / time.Second),
	}
}

// takeNonce reads the flow's nonce cookie and clears it when the request
// carries credentials: one nonce, one attempt.
func (h *AuthHandlers) takeNonce(c *gin.Context, purpose core.NoncePurpose, req signedRequest) string {
	name := nonceCookieName(purpose)
	nonce := readCookie(c, name)
	if req.Message != "" && req.Signature != "" {
		clearCookie(c, name, h.secureCookies)
	}
	return nonce
}

func (h *AuthHandlers) fail(c *gin.Context, err error) {
	respondError(c, err, h.authService.AcceptedChainID())
}

// Nonce issues a login nonce in a cookie and in the body
func (h *AuthHandlers) Nonce(c *gin.Context) {
	challenge, err := h.authService.CreateChallenge(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	setCookie(c, nonceCookieName(core.NoncePurposeLogin), challenge.Nonce, h.authService.NonceTTL(), h.secureCookies)
	c.JSON(http.StatusOK, gin.H{"nonce": challenge.Nonce})
}

// Verify signs in with a SIWE message
func (h *AuthHandlers) Verify(c *gin.Context) {
	var req signedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithCode(c, http.StatusBadRequest, ErrCodeInvalidPayload, "Invalid request", err)
		return
	}

	cookieNonce := h.takeNonce(c, core.NoncePurposeLogin, req)

	res, err := h.authService.VerifySIWE(c.Request.Context(), service.VerifyRequest{
		Message:     req.Message,
		Signature:   req.Signature,
		CookieNonce: cookieNonce,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	h.respondLogin(c, res)
}

// DemoLogin signs in with the demo credential
func (h *AuthHandlers) DemoLogin(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithCode(c, http.StatusBadRequest, ErrCodeInvalidPayload, "Invalid request", err)
		return
	}

	res, err := h.authService.DemoLogin(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.respondLogin(c, res)
}

func (h *AuthHandlers) respondLogin(c *gin.Context, res *service.LoginResult) {
	setCookie(c, SessionCookie, res.Tokens.AccessToken, h.accessTTL, h.secureCookies)
	c.JSON(http.StatusOK, loginResponse{
		SessionView:   h.authService.View(res.Session),
		IsNewUser:     res.Principal.IsNew,
		tokenResponse: newTokenResponse(res.Tokens),
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh handles token refresh
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithCode(c, http.StatusBadRequest, ErrCodeInvalidPayload, "Invalid request", err)
		return
	}

	session, pair, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.fail(c, err)
		return
	}

	setCookie(c, SessionCookie, pair.AccessToken, h.accessTTL, h.secureCookies)
	c.JSON(http.StatusOK, loginResponse{
		SessionView:   h.authService.View(session),
		tokenResponse: newTokenResponse(pair),
	})
}

// Logout handles session logout
func (h *AuthHandlers) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithCode(c, http.StatusBadRequest, ErrCodeInvalidPayload, "Invalid request", err)
		return
	}

	clearCookie(c, SessionCookie, h.secureCookies)
	if err := h.authService.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Session returns the session view of the authenticated caller
func (h *AuthHandlers) Session(c *gin.Context) {
	c.JSON(http.StatusOK, h.authService.View(sessionFrom(c)))
}

// PaymentNonce issues a payment nonce and the message to sign
func (h *AuthHandlers) PaymentNonce(c *gin.Context) {
	terms, err := service.ParsePaymentTerms(c.Query("courseId"), c.Query("amount"), c.Query("currency"))
	if err != nil {
		h.fail(c, err)
		return
	}

	host := c.Request.Host
	scheme := "http"
	if c.Request.TLS != nil || h.secureCookies {
		scheme = "https"
	}

	pc, err := h.paymentService.Challenge(c.Request.Context(), sessionFrom(c), terms, host, scheme+"://"+host)
	if err != nil {
		h.fail(c, err)
		return
	}

	setCookie(c, nonceCookieName(core.NoncePurposePayment), pc.Challenge.Nonce, h.paymentService.NonceTTL(), h.secureCookies)
	c.JSON(http.StatusOK, gin.H{"nonce": pc.Challenge.Nonce, "message": pc.Message})
}

// PaymentVerify records a signed payment authorization
func (h *AuthHandlers) PaymentVerify(c *gin.Context) {
	var req struct {
		signedRequest
		CourseID string `json:"courseId"`
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithCode(c, http.StatusBadRequest, ErrCodeInvalidPayload, "Invalid request", err)
		return
	}

	cookieNonce := h.takeNonce(c, core.NoncePurposePayment, req.signedRequest)

	terms, err := service.ParsePaymentTerms(req.CourseID, req.Amount, req.Currency)
	if err != nil {
		h.fail(c, err)
		return
	}

	auth, err := h.paymentService.Authorize(c.Request.Context(), sessionFrom(c), terms, service.VerifyRequest{
		Message:     req.Message,
		Signature:   req.Signature,
		CookieNonce: cookieNonce,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"authorization": auth})
}

// Payments lists the caller's payment authorizations
func (h *AuthHandlers) Payments(c *gin.Context) {
	list, err := h.paymentService.List(c.Request.Context(), sessionFrom(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if list == nil {
		list = []core.PaymentAuthorization{}
	}
	c.JSON(http.StatusOK, gin.H{"authorizations": list})
}

// JWKS publishes the session verification key
func (h *AuthHandlers) JWKS(c *gin.Context) {
	data, err := h.tokenizer.JWKS()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

// Health reports liveness
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
