package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/repository"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/transport/http/middleware"
)

var kindStatus = map[domain.ErrorKind]int{
	domain.KindValidation:     http.StatusBadRequest,
	domain.KindAuthentication: http.StatusUnauthorized,
	domain.KindAuthorization:  http.StatusForbidden,
	domain.KindNotFound:       http.StatusNotFound,
	domain.KindConflict:       http.StatusConflict,
	domain.KindUnavailable:    http.StatusServiceUnavailable,
}

// Envelope is the body of every API response.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
	TraceID string     `json:"trace_id,omitempty"`
}

// ErrorBody describes a failed request. Fields carries per-field validation detail.
type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, Envelope{Success: true, Data: data, TraceID: middleware.GetTraceID(c)})
}

func respondError(c *gin.Context, status int, body ErrorBody) {
	c.AbortWithStatusJSON(status, Envelope{Error: &body, TraceID: middleware.GetTraceID(c)})
}

func respondBadRequest(c *gin.Context, message string) {
	respondError(c, http.StatusBadRequest, ErrorBody{Code: "invalid_request", Message: message})
}

// RespondWithError renders err by its domain kind. Authentication failures share
// one body so callers cannot learn which check failed, and untyped errors are
// logged through gin but rendered as a generic 500.
func RespondWithError(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var typed *domain.Error
	if !errors.As(err, &typed) {
		_ = c.Error(err)
		if errors.Is(err, repository.ErrNotFound) {
			respondError(c, http.StatusNotFound, ErrorBody{Code: "not_found", Message: "resource not found"})
			return
		}
		respondError(c, http.StatusInternalServerError, ErrorBody{Code: "internal_error", Message: "an unexpected error occurred"})
		return
	}

	status, ok := kindStatus[typed.Kind]
	if !ok {
		_ = c.Error(err)
		respondError(c, http.StatusInternalServerError, ErrorBody{Code: "internal_error", Message: "an unexpected error occurred"})
		return
	}

	switch typed.Kind {
	case domain.KindAuthentication:
		respondError(c, status, ErrorBody{Code: domain.ErrNotAuthenticated.Code, Message: domain.ErrNotAuthenticated.Message})
	case domain.KindUnavailable:
		_ = c.Error(err)
		respondError(c, status, ErrorBody{Code: typed.Code, Message: typed.Message})
	default:
		respondError(c, status, ErrorBody{Code: typed.Code, Message: typed.Message, Fields: typed.Fields})
	}
}
