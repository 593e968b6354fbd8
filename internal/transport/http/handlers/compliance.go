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

var reportPeriods = map[string]time.Duration{
	usecase.ReportTypeDaily:   24 * time.Hour,
	usecase.ReportTypeWeekly:  7 * 24 * time.Hour,
	usecase.ReportTypeMonthly: 30 * 24 * time.Hour,
}

// ComplianceHandler exposes operator endpoints for reports, retention and analytics exports.
type ComplianceHandler struct {
	compliance *usecase.ComplianceService
	retention  *usecase.RetentionService
	anonymizer *usecase.Anonymizer
	audit      *usecase.AuditService
	now        func() time.Time
}

// NewComplianceHandler constructs ComplianceHandler.
func NewComplianceHandler(compliance *usecase.ComplianceService, retention *usecase.RetentionService, anonymizer *usecase.Anonymizer, audit *usecase.AuditService) *ComplianceHandler {
	return &ComplianceHandler{
		compliance: compliance,
		retention:  retention,
		anonymizer: anonymizer,
		audit:      audit,
		now:        time.Now,
	}
}

// RegisterRoutes binds operator routes on an authenticated group.
func (h *ComplianceHandler) RegisterRoutes(r *gin.RouterGroup) {
	reports := r.Group("/reports", middleware.RequirePermission(domain.CapabilityComplianceReports))
	reports.POST("", h.generateReport)
	reports.GET("/latest", h.latestReport)
	reports.GET("/:id", h.getReport)

	retention := r.Group("/retention", middleware.RequirePermission(domain.CapabilityRetentionManage))
	retention.GET("/status", h.retentionStatus)
	retention.POST("/policies/:dataType/run", h.triggerPolicy)

	r.POST("/analytics/anonymize", middleware.RequirePermission(domain.CapabilityAnalyticsRead), h.anonymize)
}

// GenerateReport godoc
// @Summary Generate a compliance report
// @Description Daily, weekly and monthly reports default to the trailing period; custom reports need start and end.
// @Tags Compliance
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body ReportRequest true "Report parameters"
// @Success 201 {object} Envelope
// @Failure 400 {object} Envelope
// @Router /api/v1/compliance/reports [post]
func (h *ComplianceHandler) generateReport(c *gin.Context) {
	var req ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "report type is required")
		return
	}

	reportType := strings.ToLower(strings.TrimSpace(req.Type))
	var start, end time.Time
	if req.End != nil {
		end = *req.End
	}
	if req.Start != nil {
		start = *req.Start
	}
	if period, ok := reportPeriods[reportType]; ok {
		if end.IsZero() {
			end = h.now()
		}
		if start.IsZero() {
			start = end.Add(-period)
		}
	}

	report, err := h.compliance.GenerateComplianceReport(c.Request.Context(), reportType, start, end)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, report)
}

// LatestReport godoc
// @Summary Latest report of a type
// @Tags Compliance
// @Security BearerAuth
// @Produce json
// @Param type query string false "Report type (default daily)"
// @Success 200 {object} Envelope
// @Failure 404 {object} Envelope
// @Router /api/v1/compliance/reports/latest [get]
func (h *ComplianceHandler) latestReport(c *gin.Context) {
	reportType := c.DefaultQuery("type", usecase.ReportTypeDaily)
	report, err := h.compliance.LatestReport(c.Request.Context(), reportType)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, http.StatusOK, report)
}

// GetReport godoc
// @Summary Fetch a stored report
// @Tags Compliance
// @Security BearerAuth
// @Produce json
// @Param id path string true "Report ID"
// @Success 200 {object} Envelope
// @Failure 404 {object} Envelope
// @Router /api/v1/compliance/reports/{id} [get]
func (h *ComplianceHandler) getReport(c *gin.Context) {
	report, err := h.compliance.GetReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWithError(c, err)
		return
	}
	respond(c, http.StatusOK, report)
}

// RetentionStatus godoc
// @Summary Retention policies with backlog and last run
// @Tags Compliance
// @Security BearerAuth
// @Produce json
// @Success 200 {object} Envelope
// @Router /api/v1/compliance/retention/status [get]
func (h *ComplianceHandler) retentionStatus(c *gin.Context) {
	statuses, err := h.retention.RetentionStatus(c.Request.Context())
	if err != nil {
		RespondWithError(c, err)
		return
	}
	out := make([]RetentionStatusResponse, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, newRetentionStatusResponse(status))
	}
	respond(c, http.StatusOK, out)
}

// TriggerPolicy godoc
// @Summary Run one retention policy now
// @Description The run completes even when some records fail; failures are listed on the job.
// @Tags Compliance
// @Security BearerAuth
// @Produce json
// @Param dataType path string true "Policy data type"
// @Success 200 {object} Envelope
// @Failure 404 {object} Envelope
// @Router /api/v1/compliance/retention/policies/{dataType}/run [post]
func (h *ComplianceHandler) triggerPolicy(c *gin.Context) {
	job, err := h.retention.TriggerPolicy(c.Request.Context(), c.Param("dataType"))
	if err != nil && job.ID == "" {
		RespondWithError(c, err)
		return
	}
	if job.Status == domain.RetentionJobFailed {
		if err != nil {
			_ = c.Error(err)
		}
		c.JSON(http.StatusInternalServerError, Envelope{
			Data:    newRetentionJobResponse(job),
			Error:   &ErrorBody{Code: "retention_job_failed", Message: "retention job failed"},
			TraceID: middleware.GetTraceID(c),
		})
		return
	}
	respond(c, http.StatusOK, newRetentionJobResponse(job))
}

// Anonymize godoc
// @Summary Anonymize records for analytics export
// @Description Every field must have a declared rule; records with undeclared fields are rejected.
// @Tags Compliance
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body AnonymizeRequest true "Records"
// @Success 200 {object} Envelope
// @Failure 400 {object} Envelope
// @Router /api/v1/compliance/analytics/anonymize [post]
func (h *ComplianceHandler) anonymize(c *gin.Context) {
	var req AnonymizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "records are required")
		return
	}

	out, err := h.anonymizer.AnonymizeDataForAnalytics(req.Records)
	if err != nil {
		RespondWithError(c, err)
		return
	}

	reqCtx := middleware.GetRequestContext(c)
	_, _ = h.audit.LogDataAccess(c.Request.Context(), usecase.DataAccessInput{
		UserID:      reqCtx.UserID,
		SessionID:   reqCtx.SessionID,
		Resource:    "analytics",
		Operation:   "export",
		RecordCount: len(out),
		IPAddress:   reqCtx.IP,
	})

	respond(c, http.StatusOK, out)
}
