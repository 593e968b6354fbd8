package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/logger"
)

// Authenticator verifies a bearer token and resolves the live session it names.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (domain.AccessClaims, *domain.Session, error)
}

// RestrictionChecker reports whether processing of a user's personal data is restricted.
type RestrictionChecker interface {
	ProcessingRestricted(ctx context.Context, userID string) error
}

// errorBody mirrors handlers.ErrorBody; the packages cannot share it without an import cycle.
type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
	TraceID string    `json:"trace_id,omitempty"`
}

func abortWithError(c *gin.Context, status int, code, message string) {
	abortWithFields(c, status, code, message, nil)
}

func abortWithFields(c *gin.Context, status int, code, message string, fields map[string]string) {
	c.AbortWithStatusJSON(status, errorEnvelope{
		Error:   errorBody{Code: code, Message: message, Fields: fields},
		TraceID: GetTraceID(c),
	})
}

func abortNotAuthenticated(c *gin.Context) {
	abortWithError(c, http.StatusUnauthorized, "not_authenticated", "authentication required")
}

func abortForbidden(c *gin.Context) {
	abortWithError(c, http.StatusForbidden, "forbidden", "insufficient permissions")
}

// RequireAuthentication accepts "Authorization: Bearer <token>" only. Every failure
// yields the same 401 body so callers cannot tell which check rejected them.
func RequireAuthentication(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok || auth == nil {
			abortNotAuthenticated(c)
			return
		}

		claims, session, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			if kind := domain.KindOf(err); kind == domain.KindUnavailable || kind == domain.KindInternal {
				_ = c.Error(err)
				abortWithError(c, http.StatusServiceUnavailable, "unavailable", "authentication temporarily unavailable")
				return
			}
			abortNotAuthenticated(c)
			return
		}

		c.Set(UserIDKey, claims.Subject)
		c.Set(SessionKey, session)
		c.Set(ClaimsKey, claims)

		reqCtx := GetRequestContext(c)
		reqCtx.UserID = claims.Subject
		reqCtx.SessionID = session.ID
		reqCtx.Role = session.Role

		ctx := context.WithValue(c.Request.Context(), logger.UserIDKey{}, claims.Subject)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireDataProcessing rejects requests for users whose processing restriction
// flag is set. Must run after RequireAuthentication.
func RequireDataProcessing(checker RestrictionChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetAuthenticatedUserID(c)
		if !ok {
			abortNotAuthenticated(c)
			return
		}
		if checker == nil {
			c.Next()
			return
		}

		err := checker.ProcessingRestricted(c.Request.Context(), userID)
		switch {
		case err == nil:
			c.Next()
		case domain.KindOf(err) == domain.KindAuthorization:
			abortWithError(c, http.StatusForbidden, "processing_restricted", "processing of personal data is restricted")
		default:
			_ = c.Error(err)
			abortWithError(c, http.StatusServiceUnavailable, "unavailable", "consent state temporarily unavailable")
		}
	}
}

// RequirePermission allows the request only when the session grants capability name.
func RequirePermission(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := GetSession(c)
		if !ok {
			abortNotAuthenticated(c)
			return
		}
		if !session.HasCapability(name) {
			abortForbidden(c)
			return
		}
		c.Next()
	}
}

// RequireRole allows the request when the session role is one of roles. Admins pass every role check.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := GetSession(c)
		if !ok {
			abortNotAuthenticated(c)
			return
		}
		if session.Role == domain.RoleAdmin {
			c.Next()
			return
		}
		for _, role := range roles {
			if session.Role == role {
				c.Next()
				return
			}
		}
		abortForbidden(c)
	}
}
