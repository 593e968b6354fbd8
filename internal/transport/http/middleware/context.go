package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
)

const (
	// TraceIDHeader is the HTTP header carrying the trace identifier.
	TraceIDHeader = "X-Trace-ID"
	// TraceIDKey is the gin context key for the trace identifier.
	TraceIDKey = "trace_id"
	// UserIDKey is the gin context key for the authenticated user id.
	UserIDKey = "user_id"
	// SessionKey is the gin context key for the validated *domain.Session.
	SessionKey = "session"
	// ClaimsKey is the gin context key for the verified domain.AccessClaims.
	ClaimsKey = "claims"

	requestContextKey = "request_context"
)

// RequestContext holds request-scoped metadata shared by handlers and the access logger.
type RequestContext struct {
	TraceID   string
	UserID    string
	SessionID string
	Role      string
	IP        string
	UserAgent string
}

// EnrichContext assigns a trace id and records client metadata for every request.
func EnrichContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)

		c.Set(requestContextKey, &RequestContext{
			TraceID:   traceID,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})

		c.Next()
	}
}

// GetTraceID retrieves the trace ID from the context.
func GetTraceID(c *gin.Context) string {
	if traceID, exists := c.Get(TraceIDKey); exists {
		if id, ok := traceID.(string); ok {
			return id
		}
	}
	return ""
}

// GetRequestContext retrieves the request metadata; never nil.
func GetRequestContext(c *gin.Context) *RequestContext {
	if ctx, exists := c.Get(requestContextKey); exists {
		if reqCtx, ok := ctx.(*RequestContext); ok {
			return reqCtx
		}
	}
	return &RequestContext{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

// GetAuthenticatedUserID returns the user id set by RequireAuthentication.
func GetAuthenticatedUserID(c *gin.Context) (string, bool) {
	if id, ok := c.Get(UserIDKey); ok {
		if userID, ok := id.(string); ok && userID != "" {
			return userID, true
		}
	}
	return "", false
}

// GetSession returns the session validated by RequireAuthentication.
func GetSession(c *gin.Context) (*domain.Session, bool) {
	if value, ok := c.Get(SessionKey); ok {
		if session, ok := value.(*domain.Session); ok && session != nil {
			return session, true
		}
	}
	return nil, false
}

// GetClaims returns the verified access token claims.
func GetClaims(c *gin.Context) (domain.AccessClaims, bool) {
	if value, ok := c.Get(ClaimsKey); ok {
		if claims, ok := value.(domain.AccessClaims); ok {
			return claims, true
		}
	}
	return domain.AccessClaims{}, false
}
