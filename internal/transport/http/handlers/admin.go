package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/transport/http/middleware"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/usecase"
)

// AdminHandler exposes operator actions on individual data subjects.
type AdminHandler struct {
	auth    *usecase.AuthService
	privacy *usecase.PrivacyService
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(auth *usecase.AuthService, privacy *usecase.PrivacyService) *AdminHandler {
	return &AdminHandler{auth: auth, privacy: privacy}
}

// RegisterRoutes binds admin routes on an authenticated group.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup) {
	operator := r.Group("", middleware.RequireRole(domain.RoleOperator))
	operator.GET("/privacy/requests/:id", h.getRequest)
	operator.POST("/privacy/requests/:id/process", h.processRequest)
	operator.POST("/users/:id/legal-holds", h.placeLegalHold)

	r.PUT("/users/:id/lock", middleware.RequireRole(domain.RoleAdmin), h.setAccountLock)
}

// GetRequest godoc
// @Summary Fetch any privacy request
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} Envelope
// @Failure 404 {object} Envelope
// @Router /api/v1/admin/privacy/requests/{id} [get]
func (h *AdminHandler) getRequest(c *gin.Context) {
	request, err := h.privacy.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, http.StatusOK, newPrivacyRequestResponse(*request))
}

// ProcessRequest godoc
// @Summary Process a pending privacy request
// @Description Erasure and rectification requests are only fulfilled through this endpoint.
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} Envelope
// @Failure 409 {object} Envelope
// @Router /api/v1/admin/privacy/requests/{id}/process [post]
func (h *AdminHandler) processRequest(c *gin.Context) {
	request, err := h.privacy.ProcessRequest(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		respond(c, http.StatusOK, newPrivacyRequestResponse(*request))
	case request == nil || domain.KindOf(err) != domain.KindInternal:
		RespondWithError(c, err)
	default:
		// Rejected by a processing failure: report the terminal request without the cause.
		_ = c.Error(err)
		c.JSON(http.StatusUnprocessableEntity, Envelope{
			Data:    newPrivacyRequestResponse(*request),
			Error:   &ErrorBody{Code: "privacy_request_rejected", Message: "privacy request was rejected"},
			TraceID: middleware.GetTraceID(c),
		})
	}
}

// PlaceLegalHold godoc
// @Summary Place a legal hold on a user
// @Description Blocks erasure until the hold expires.
// @Tags Admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param request body LegalHoldRequest true "Hold"
// @Success 201 {object} Envelope
// @Failure 400 {object} Envelope
// @Router /api/v1/admin/users/{id}/legal-holds [post]
func (h *AdminHandler) placeLegalHold(c *gin.Context) {
	var req LegalHoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "reason is required")
		return
	}
	hold, err := h.privacy.PlaceLegalHold(c.Request.Context(), c.Param("id"), req.Reason, req.Until)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, LegalHoldResponse{
		ID:          hold.ID,
		UserID:      hold.UserID,
		Reason:      hold.Reason,
		ActiveFrom:  hold.ActiveFrom,
		ActiveUntil: hold.ActiveUntil,
	})
}

// SetAccountLock godoc
// @Summary Lock or unlock an account
// @Description Locking revokes every session of the account.
// @Tags Admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param request body AccountLockRequest true "Lock state"
// @Success 200 {object} Envelope
// @Failure 404 {object} Envelope
// @Router /api/v1/admin/users/{id}/lock [put]
func (h *AdminHandler) setAccountLock(c *gin.Context) {
	var req AccountLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid lock payload")
		return
	}
	if err := h.auth.SetAccountLock(c.Request.Context(), c.Param("id"), req.Locked); err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"user_id": c.Param("id"), "locked": req.Locked})
}
