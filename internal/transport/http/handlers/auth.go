package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/transport/http/middleware"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/usecase"
)

// AuthHandler exposes registration, login and session termination endpoints.
type AuthHandler struct {
	auth  *usecase.AuthService
	isDev bool
}

// AuthHandlerOption configures optional AuthHandler behaviour.
type AuthHandlerOption func(*AuthHandler)

// WithDevMode returns verification tokens in responses instead of relying on delivery.
func WithDevMode(isDev bool) AuthHandlerOption {
	return func(h *AuthHandler) {
		h.isDev = isDev
	}
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService, opts ...AuthHandlerOption) *AuthHandler {
	handler := &AuthHandler{auth: auth}
	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}
	return handler
}

// AuthGuards are extra middlewares run ahead of the public endpoints, typically rate limits.
type AuthGuards struct {
	Login    []gin.HandlerFunc
	Register []gin.HandlerFunc
}

// RegisterRoutes binds the public routes on r and the session-bound routes behind authRequired.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, authRequired gin.HandlerFunc, guards AuthGuards) {
	r.POST("/register", append(append([]gin.HandlerFunc{}, guards.Register...), h.register)...)
	r.POST("/verify-email", h.verifyEmail)
	r.POST("/login", append(append([]gin.HandlerFunc{}, guards.Login...), h.login)...)

	r.POST("/logout", authRequired, h.logout)
	r.POST("/logout-all", authRequired, h.logoutAll)
	r.GET("/me", authRequired, middleware.RequirePermission(domain.CapabilityProfileRead), h.me)
}

// Register godoc
// @Summary Register a new account
// @Description Creates a pending account, records consent and sends an email verification token.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration payload"
// @Success 201 {object} Envelope
// @Failure 400 {object} Envelope
// @Failure 409 {object} Envelope
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid registration payload")
		return
	}

	reqCtx := middleware.GetRequestContext(c)
	result, err := h.auth.Register(c.Request.Context(), usecase.RegisterInput{
		Email:            strings.TrimSpace(req.Email),
		Password:         req.Password,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		Company:          req.Company,
		Phone:            req.Phone,
		Jurisdiction:     req.Jurisdiction,
		ConsentGiven:     req.ConsentGiven,
		MarketingConsent: req.MarketingConsent,
		IP:               reqCtx.IP,
		UserAgent:        reqCtx.UserAgent,
	})
	if err != nil {
		RespondWithError(c, err)
		return
	}

	resp := RegisterResponse{User: newUserResponse(result.User)}
	if h.isDev {
		resp.VerificationToken = result.VerificationToken
	}
	respond(c, http.StatusCreated, resp)
}

// Login godoc
// @Summary Authenticate with email and password
// @Description Opens a session and returns a signed access token. Every failure, lockouts included, is a 401.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} Envelope
// @Failure 401 {object} Envelope
// @Failure 429 {object} Envelope
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid login payload")
		return
	}

	reqCtx := middleware.GetRequestContext(c)
	result, err := h.auth.Authenticate(c.Request.Context(), usecase.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IP:        reqCtx.IP,
		UserAgent: reqCtx.UserAgent,
	})
	if err != nil {
		RespondWithError(c, err)
		return
	}

	expiresIn := int(time.Until(result.Token.ExpiresAt).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}
	respond(c, http.StatusOK, LoginResponse{
		AccessToken: result.Token.AccessToken,
		TokenType:   result.Token.TokenType,
		ExpiresIn:   expiresIn,
		ExpiresAt:   result.Token.ExpiresAt,
		SessionID:   result.Session.ID,
		User:        newUserResponse(result.User),
	})
}

// VerifyEmail godoc
// @Summary Verify an email address
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body VerifyEmailRequest true "Verification token"
// @Success 200 {object} Envelope
// @Failure 400 {object} Envelope
// @Router /api/v1/auth/verify-email [post]
func (h *AuthHandler) verifyEmail(c *gin.Context) {
	var req VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "verification token is required")
		return
	}
	if err := h.auth.VerifyEmail(c.Request.Context(), req.Token); err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, http.StatusOK, MessageResponse{Message: "email verified"})
}

// Logout godoc
// @Summary End the current session
// @Tags Authentication
// @Security BearerAuth
// @Produce json
// @Success 200 {object} Envelope
// @Failure 401 {object} Envelope
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) logout(c *gin.Context) {
	session, ok := middleware.GetSession(c)
	if !ok {
		RespondWithError(c, domain.ErrNotAuthenticated)
		return
	}
	if err := h.auth.Logout(c.Request.Context(), session.UserID, session.ID); err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, http.StatusOK, MessageResponse{Message: "logged out"})
}

// LogoutAll godoc
// @Summary End every session of the caller
// @Tags Authentication
// @Security BearerAuth
// @Produce json
// @Success 200 {object} Envelope
// @Failure 401 {object} Envelope
// @Router /api/v1/auth/logout-all [post]
func (h *AuthHandler) logoutAll(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		RespondWithError(c, domain.ErrNotAuthenticated)
		return
	}
	revoked, err := h.auth.LogoutAll(c.Request.Context(), userID)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, http.StatusOK, LogoutAllResponse{SessionsRevoked: revoked})
}

// Me godoc
// @Summary Current account profile
// @Tags Authentication
// @Security BearerAuth
// @Produce json
// @Success 200 {object} Envelope
// @Failure 401 {object} Envelope
// @Router /api/v1/auth/me [get]
func (h *AuthHandler) me(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		RespondWithError(c, domain.ErrNotAuthenticated)
		return
	}
	user, err := h.auth.Profile(c.Request.Context(), userID)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, http.StatusOK, newUserResponse(user))
}
