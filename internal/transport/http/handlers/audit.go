package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/transport/http/middleware"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/usecase"
)

const (
	defaultTrailLimit = 100
	maxTrailLimit     = 1000
)

// AuditHandler exposes interaction logging, audit trails, alert workflow and system health.
type AuditHandler struct {
	audit   *usecase.AuditService
	monitor *usecase.SecurityMonitor
}

// NewAuditHandler constructs AuditHandler.
func NewAuditHandler(audit *usecase.AuditService, monitor *usecase.SecurityMonitor) *AuditHandler {
	return &AuditHandler{audit: audit, monitor: monitor}
}

// RegisterRoutes binds audit routes on an authenticated group. processing guards the
// routes that process the caller's personal data.
func (h *AuditHandler) RegisterRoutes(r *gin.RouterGroup, processing gin.HandlerFunc) {
	r.POST("/interactions", processing, h.logInteraction)

	read := middleware.RequirePermission(domain.CapabilityAuditRead)
	r.GET("/users/:id/trail", read, h.userTrail)
	r.GET("/events/recent", read, h.recentEvents)
	r.GET("/health", read, h.systemHealth)

	manage := middleware.RequirePermission(domain.CapabilityAlertsManage)
	r.POST("/alerts/:id/acknowledge", manage, h.acknowledgeAlert)
	r.POST("/alerts/:id/resolve", manage, h.resolveAlert)
}

// LogInteraction godoc
// @Summary Record a client-side interaction for the caller
// @Tags Audit
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body InteractionRequest true "Interaction"
// @Success 201 {object} Envelope
// @Failure 403 {object} Envelope
// @Router /api/v1/audit/interactions [post]
func (h *AuditHandler) logInteraction(c *gin.Context) {
	var req InteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "action is required")
		return
	}

	reqCtx := middleware.GetRequestContext(c)
	details := req.Metadata
	if req.Resource != "" {
		if details == nil {
			details = map[string]any{}
		}
		details["resource"] = req.Resource
	}

	event, err := h.audit.LogUserInteraction(c.Request.Context(), usecase.InteractionInput{
		UserID:    reqCtx.UserID,
		SessionID: reqCtx.SessionID,
		Action:    req.Action,
		IPAddress: reqCtx.IP,
		Details:   details,
	})
	if err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, gin.H{"id": event.ID, "risk": event.Risk})
}

// UserTrail godoc
// @Summary Audit trail of a user
// @Description Newest first. Reading another user's trail is itself audited as a data access.
// @Tags Audit
// @Security BearerAuth
// @Produce json
// @Param id path string true "User ID"
// @Param limit query int false "Maximum events (default 100, max 1000)"
// @Success 200 {object} Envelope
// @Failure 403 {object} Envelope
// @Router /api/v1/audit/users/{id}/trail [get]
func (h *AuditHandler) userTrail(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	events, err := h.audit.UserAuditTrail(ctx, c.Param("id"), limit)
	if err != nil {
		RespondWithError(c, err)
		return
	}

	reqCtx := middleware.GetRequestContext(c)
	// Best effort: the trail is already loaded and the audit service logs its own failures.
	_, _ = h.audit.LogDataAccess(ctx, usecase.DataAccessInput{
		UserID:       reqCtx.UserID,
		SessionID:    reqCtx.SessionID,
		Resource:     "audit_logs",
		Operation:    "read",
		RecordCount:  len(events),
		PersonalData: true,
		IPAddress:    reqCtx.IP,
	})

	respond(c, http.StatusOK, events)
}

// RecentEvents godoc
// @Summary Most recent audit events across all users
// @Tags Audit
// @Security BearerAuth
// @Produce json
// @Param limit query int false "Maximum events"
// @Success 200 {object} Envelope
// @Router /api/v1/audit/events/recent [get]
func (h *AuditHandler) recentEvents(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	events, err := h.audit.RecentEvents(c.Request.Context(), limit)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, http.StatusOK, events)
}

// SystemHealth godoc
// @Summary Aggregated compliance and security health
// @Tags Audit
// @Security BearerAuth
// @Produce json
// @Success 200 {object} Envelope
// @Router /api/v1/audit/health [get]
func (h *AuditHandler) systemHealth(c *gin.Context) {
	health, err := h.monitor.SystemHealth(c.Request.Context())
	if err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, http.StatusOK, health)
}

// AcknowledgeAlert godoc
// @Summary Acknowledge a security alert
// @Tags Audit
// @Security BearerAuth
// @Produce json
// @Param id path string true "Alert ID"
// @Success 200 {object} Envelope
// @Failure 404 {object} Envelope
// @Router /api/v1/audit/alerts/{id}/acknowledge [post]
func (h *AuditHandler) acknowledgeAlert(c *gin.Context) {
	alert, err := h.audit.AcknowledgeAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, http.StatusOK, alert)
}

// ResolveAlert godoc
// @Summary Resolve a security alert
// @Tags Audit
// @Security BearerAuth
// @Produce json
// @Param id path string true "Alert ID"
// @Success 200 {object} Envelope
// @Failure 404 {object} Envelope
// @Router /api/v1/audit/alerts/{id}/resolve [post]
func (h *AuditHandler) resolveAlert(c *gin.Context) {
	alert, err := h.audit.ResolveAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, http.StatusOK, alert)
}

func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultTrailLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		respondError(c, http.StatusBadRequest, ErrorBody{
			Code:    "invalid_request",
			Message: "limit must be a positive integer",
			Fields:  map[string]string{"limit": "must be a positive integer"},
		})
		return 0, false
	}
	if limit > maxTrailLimit {
		limit = maxTrailLimit
	}
	return limit, true
}
