package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/transport/http/middleware"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/usecase"
)

const resetAcceptedMessage = "if the address is registered, a reset link has been sent"

// PasswordHandler exposes password change and reset endpoints.
type PasswordHandler struct {
	passwords *usecase.PasswordResetService
	isDev     bool
}

// NewPasswordHandler constructs PasswordHandler. In development mode reset tokens are echoed back.
func NewPasswordHandler(passwords *usecase.PasswordResetService, isDev bool) *PasswordHandler {
	return &PasswordHandler{passwords: passwords, isDev: isDev}
}

// RegisterRoutes binds password routes. resetMiddlewares guard both reset steps.
func (h *PasswordHandler) RegisterRoutes(r *gin.RouterGroup, authRequired gin.HandlerFunc, resetMiddlewares ...gin.HandlerFunc) {
	r.POST("/change", authRequired, middleware.RequirePermission(domain.CapabilityProfileWrite), h.changePassword)

	reset := r.Group("/reset")
	if len(resetMiddlewares) > 0 {
		reset.Use(resetMiddlewares...)
	}
	reset.POST("/request", h.requestReset)
	reset.POST("/confirm", h.confirmReset)
}

// ChangePassword godoc
// @Summary Change the caller's password
// @Description Verifies the current password, applies the new one and revokes every other session.
// @Tags Password
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body PasswordChangeRequest true "Password change payload"
// @Success 200 {object} Envelope
// @Failure 400 {object} Envelope
// @Failure 401 {object} Envelope
// @Router /api/v1/password/change [post]
func (h *PasswordHandler) changePassword(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		RespondWithError(c, domain.ErrNotAuthenticated)
		return
	}

	var req PasswordChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "current and new password are required")
		return
	}

	reqCtx := middleware.GetRequestContext(c)
	result, err := h.passwords.ChangePassword(c.Request.Context(), usecase.PasswordChangeInput{
		UserID:          userID,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		IP:              reqCtx.IP,
		UserAgent:       reqCtx.UserAgent,
	})
	if err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, http.StatusOK, PasswordChangeResponse{ChangedAt: result.ChangedAt, SessionsRevoked: result.SessionsRevoked})
}

// RequestReset godoc
// @Summary Request a password reset
// @Description Always answers 202 so the response does not reveal whether the address is registered.
// @Tags Password
// @Accept json
// @Produce json
// @Param request body PasswordResetRequest true "Email address"
// @Success 202 {object} Envelope
// @Failure 429 {object} Envelope
// @Router /api/v1/password/reset/request [post]
func (h *PasswordHandler) requestReset(c *gin.Context) {
	var req PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "email is required")
		return
	}

	reqCtx := middleware.GetRequestContext(c)
	result, err := h.passwords.RequestPasswordReset(c.Request.Context(), usecase.PasswordResetRequestInput{
		Email:     req.Email,
		IP:        reqCtx.IP,
		UserAgent: reqCtx.UserAgent,
	})
	if err != nil && domain.KindOf(err) != domain.KindValidation {
		RespondWithError(c, err)
		return
	}

	resp := PasswordResetResponse{Message: resetAcceptedMessage}
	if h.isDev && result != nil && result.Token != "" {
		resp.Token = result.Token
		resp.Expires = &result.ExpiresAt
	}
	respond(c, http.StatusAccepted, resp)
}

// ConfirmReset godoc
// @Summary Complete a password reset
// @Tags Password
// @Accept json
// @Produce json
// @Param request body PasswordResetConfirmRequest true "Reset token and new password"
// @Success 200 {object} Envelope
// @Failure 400 {object} Envelope
// @Router /api/v1/password/reset/confirm [post]
func (h *PasswordHandler) confirmReset(c *gin.Context) {
	var req PasswordResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "token and new password are required")
		return
	}

	result, err := h.passwords.ConfirmPasswordReset(c.Request.Context(), usecase.PasswordResetConfirmInput{
		Token:       req.Token,
		NewPassword: req.NewPassword,
		IP:          middleware.GetRequestContext(c).IP,
	})
	if err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, http.StatusOK, PasswordChangeResponse{ChangedAt: result.ChangedAt, SessionsRevoked: result.SessionsRevoked})
}
