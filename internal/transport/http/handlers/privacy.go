package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/transport/http/middleware"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/usecase"
)

// PrivacyHandler exposes the data-subject surface: privacy requests and consent.
// These routes stay reachable while processing is restricted so users can always exercise their rights.
type PrivacyHandler struct {
	privacy  *usecase.PrivacyService
	consents *usecase.ConsentService
}

// NewPrivacyHandler constructs PrivacyHandler.
func NewPrivacyHandler(privacy *usecase.PrivacyService, consents *usecase.ConsentService) *PrivacyHandler {
	return &PrivacyHandler{privacy: privacy, consents: consents}
}

// RegisterRoutes binds privacy routes on a group already guarded by authentication.
func (h *PrivacyHandler) RegisterRoutes(r *gin.RouterGroup, guards PrivacyGuards) {
	submit := append([]gin.HandlerFunc{middleware.RequirePermission(domain.CapabilityPrivacySubmit)}, guards.Submit...)
	submit = append(submit, h.submitRequest)
	r.POST("/requests", submit...)
	r.GET("/requests/:id", h.requestStatus)

	r.GET("/consents", h.consentStatus)
	r.POST("/consents", append(append([]gin.HandlerFunc{}, guards.Consent...), h.recordConsent)...)
	r.DELETE("/consents/:type", append(append([]gin.HandlerFunc{}, guards.Consent...), h.withdrawConsent)...)
}

// PrivacyGuards are extra middlewares run ahead of request submission and consent changes.
type PrivacyGuards struct {
	Submit  []gin.HandlerFunc
	Consent []gin.HandlerFunc
}

// SubmitRequest godoc
// @Summary Submit a data-subject request
// @Description Files an access, portability, erasure, rectification, restriction or objection request.
// @Tags Privacy
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body PrivacyRequestSubmission true "Request"
// @Success 202 {object} Envelope
// @Failure 400 {object} Envelope
// @Failure 401 {object} Envelope
// @Failure 429 {object} Envelope
// @Router /api/v1/privacy/requests [post]
func (h *PrivacyHandler) submitRequest(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		RespondWithError(c, domain.ErrNotAuthenticated)
		return
	}

	var req PrivacyRequestSubmission
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "request type is required")
		return
	}

	id, err := h.privacy.HandlePrivacyRequest(c.Request.Context(), usecase.PrivacyRequestInput{
		UserID:  userID,
		Type:    req.Type,
		Details: req.Details,
		IP:      middleware.GetRequestContext(c).IP,
	})
	if err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, http.StatusAccepted, PrivacyRequestCreated{ID: id, Status: domain.PrivacyStatusPending})
}

// RequestStatus godoc
// @Summary Status of one of the caller's privacy requests
// @Tags Privacy
// @Security BearerAuth
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} Envelope
// @Failure 404 {object} Envelope
// @Router /api/v1/privacy/requests/{id} [get]
func (h *PrivacyHandler) requestStatus(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		RespondWithError(c, domain.ErrNotAuthenticated)
		return
	}
	request, err := h.privacy.RequestStatus(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, http.StatusOK, newPrivacyRequestResponse(*request))
}

// ConsentStatus godoc
// @Summary List the caller's consent records
// @Tags Consent
// @Security BearerAuth
// @Produce json
// @Success 200 {object} Envelope
// @Router /api/v1/privacy/consents [get]
func (h *PrivacyHandler) consentStatus(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		RespondWithError(c, domain.ErrNotAuthenticated)
		return
	}
	records, err := h.consents.ConsentStatus(c.Request.Context(), userID)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	out := make([]ConsentResponse, 0, len(records))
	for _, record := range records {
		out = append(out, newConsentResponse(record))
	}
	respond(c, http.StatusOK, out)
}

// RecordConsent godoc
// @Summary Grant or refresh a consent
// @Tags Consent
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body ConsentRequest true "Consent"
// @Success 200 {object} Envelope
// @Failure 400 {object} Envelope
// @Failure 429 {object} Envelope
// @Router /api/v1/privacy/consents [post]
func (h *PrivacyHandler) recordConsent(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		RespondWithError(c, domain.ErrNotAuthenticated)
		return
	}

	var req ConsentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "consent type is required")
		return
	}
	source := req.Source
	if source == "" {
		source = "api"
	}

	record, err := h.consents.RecordConsent(c.Request.Context(), usecase.ConsentInput{
		UserID:    userID,
		Type:      req.Type,
		Given:     req.Given,
		Source:    source,
		IPAddress: middleware.GetRequestContext(c).IP,
	})
	if err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, http.StatusOK, newConsentResponse(record))
}

// WithdrawConsent godoc
// @Summary Withdraw a consent
// @Description Withdrawing processing consent restricts further processing of the caller's data.
// @Tags Consent
// @Security BearerAuth
// @Produce json
// @Param type path string true "Consent type"
// @Success 200 {object} Envelope
// @Failure 404 {object} Envelope
// @Failure 429 {object} Envelope
// @Router /api/v1/privacy/consents/{type} [delete]
func (h *PrivacyHandler) withdrawConsent(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		RespondWithError(c, domain.ErrNotAuthenticated)
		return
	}
	if err := h.consents.WithdrawConsent(c.Request.Context(), userID, domain.ConsentType(c.Param("type"))); err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, http.StatusOK, MessageResponse{Message: "consent withdrawn"})
}
