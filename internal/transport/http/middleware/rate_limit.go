package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/security"
)

// Operation names a rate-limited action. It prefixes the storage key and is reported to clients.
type Operation string

const (
	OpLogin          Operation = "login"
	OpRegister       Operation = "register"
	OpPasswordReset  Operation = "password_reset"
	OpPrivacyRequest Operation = "privacy_request"
	OpConsentChange  Operation = "consent_change"
)

// Scope selects who a limit is counted against.
type Scope string

const (
	// ScopeClientIP counts against the caller's address. Used on unauthenticated routes.
	ScopeClientIP Scope = "ip"
	// ScopeUser counts against the authenticated subject; anonymous requests pass through.
	ScopeUser Scope = "user"
)

// OperationLimit allows Limit requests per Window for one operation.
type OperationLimit struct {
	Operation Operation
	Scope     Scope
	Limit     int
	Window    time.Duration
}

// RateLimiter enforces per-operation sliding windows over a shared store so limits hold
// across replicas. Subjects are hashed before they reach the store, keeping client
// addresses and user ids out of Redis.
type RateLimiter struct {
	store  port.RateLimitStore
	limits map[Operation]OperationLimit
	logger *zap.Logger
	now    func() time.Time
}

// NewRateLimiter builds a limiter for the given operations. Entries without a positive
// limit and window are dropped, leaving that operation unlimited.
func NewRateLimiter(store port.RateLimitStore, limits []OperationLimit, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	byOp := make(map[Operation]OperationLimit, len(limits))
	for _, l := range limits {
		if l.Operation == "" || l.Limit <= 0 || l.Window <= 0 {
			continue
		}
		if l.Scope == "" {
			l.Scope = ScopeClientIP
		}
		byOp[l.Operation] = l
	}
	return &RateLimiter{store: store, limits: byOp, logger: logger, now: time.Now}
}

// WithClock swaps the time source, for tests.
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// Limits reports whether op has an active limit.
func (rl *RateLimiter) Limits(op Operation) bool {
	if rl == nil {
		return false
	}
	_, ok := rl.limits[op]
	return ok
}

// Guard returns a middleware enforcing the limit configured for op. An unconfigured
// operation passes every request.
func (rl *RateLimiter) Guard(op Operation) gin.HandlerFunc {
	limit, ok := OperationLimit{}, false
	if rl != nil {
		limit, ok = rl.limits[op]
	}
	return func(c *gin.Context) {
		if !ok || rl.store == nil {
			c.Next()
			return
		}
		subject, found := limit.subject(c)
		if !found {
			c.Next()
			return
		}

		now := rl.now()
		w, err := rl.evaluate(c, limit, subject, now)
		if err != nil {
			// Fail open: a cache outage must not lock every data subject out.
			rl.logger.Warn("rate limit check failed", zap.String("operation", string(op)), zap.String("scope", string(limit.Scope)), zap.Error(err))
			c.Next()
			return
		}

		setRateLimitHeaders(c, limit, w)
		if !w.allowed {
			rl.logger.Info("rate limit exceeded", zap.String("operation", string(op)), zap.String("scope", string(limit.Scope)), zap.String("trace_id", GetTraceID(c)))
			retry := retrySeconds(w.retryAfter)
			abortWithFields(c, http.StatusTooManyRequests, "rate_limited",
				fmt.Sprintf("too many %s requests; try again in %d seconds", op, retry),
				map[string]string{"operation": string(op), "retry_after": strconv.Itoa(retry)})
			return
		}
		c.Next()
	}
}

func (l OperationLimit) subject(c *gin.Context) (string, bool) {
	switch l.Scope {
	case ScopeUser:
		return GetAuthenticatedUserID(c)
	default:
		ip := c.ClientIP()
		return ip, ip != ""
	}
}

func (l OperationLimit) key(subject string) string {
	return fmt.Sprintf("%s:%s:%s", l.Operation, l.Scope, security.HashToken(subject))
}

type window struct {
	allowed    bool
	remaining  int
	reset      time.Time
	retryAfter time.Duration
}

func (rl *RateLimiter) evaluate(c *gin.Context, limit OperationLimit, subject string, now time.Time) (window, error) {
	ctx := c.Request.Context()
	key := limit.key(subject)

	if err := rl.store.TrimWindow(ctx, key, limit.Window, now); err != nil {
		return window{}, err
	}
	count, err := rl.store.CountAttempts(ctx, key, limit.Window, now)
	if err != nil {
		return window{}, err
	}
	oldest, hasAttempts, err := rl.store.OldestAttempt(ctx, key, limit.Window, now)
	if err != nil {
		return window{}, err
	}

	w := window{allowed: true, reset: now.Add(limit.Window)}
	if hasAttempts {
		w.reset = oldest.Add(limit.Window)
	}
	w.retryAfter = max(w.reset.Sub(now), 0)

	if count >= limit.Limit {
		w.allowed = false
		return w, nil
	}
	if err := rl.store.RecordAttempt(ctx, key, now); err != nil {
		return window{}, err
	}
	w.remaining = max(limit.Limit-count-1, 0)
	return w, nil
}

func setRateLimitHeaders(c *gin.Context, limit OperationLimit, w window) {
	headers := c.Writer.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit.Limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(w.remaining))
	headers.Set("X-RateLimit-Reset", strconv.FormatInt(w.reset.Unix(), 10))
	if !w.allowed {
		headers.Set("Retry-After", strconv.Itoa(retrySeconds(w.retryAfter)))
	}
}

func retrySeconds(d time.Duration) int {
	return max(int(math.Ceil(d.Seconds())), 0)
}
