package interceptors

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/logger"
)

const authorizationKey = "authorization"

// Health checks and server reflection never carry credentials.
var publicPrefixes = []string{
	"/grpc.health.v1.Health/",
	"/grpc.reflection.",
}

// Authenticator resolves a bearer token to its claims and live session.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (domain.AccessClaims, *domain.Session, error)
}

// AuthOptions fine-tunes interceptor behaviour.
type AuthOptions struct {
	AllowMethods []string
	Logger       *zap.Logger
}

// AuthInterceptor validates incoming calls using session-bound access tokens.
type AuthInterceptor struct {
	auth   Authenticator
	logger *zap.Logger
	allow  map[string]struct{}
}

// NewAuthInterceptor constructs a new AuthInterceptor instance.
func NewAuthInterceptor(auth Authenticator, opts AuthOptions) *AuthInterceptor {
	allow := make(map[string]struct{}, len(opts.AllowMethods))
	for _, method := range opts.AllowMethods {
		if method = strings.TrimSpace(method); method != "" {
			allow[method] = struct{}{}
		}
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &AuthInterceptor{auth: auth, logger: log, allow: allow}
}

// UnaryServerInterceptor returns a gRPC unary interceptor that enforces authentication.
func (ai *AuthInterceptor) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if ai.public(info.FullMethod) {
			return handler(ctx, req)
		}
		ctx, err := ai.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor enforces authentication on streaming calls.
func (ai *AuthInterceptor) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if ai.public(info.FullMethod) {
			return handler(srv, ss)
		}
		ctx, err := ai.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authenticatedStream{ServerStream: ss, ctx: ctx})
	}
}

func (ai *AuthInterceptor) public(method string) bool {
	if ai == nil || ai.auth == nil {
		return true
	}
	if _, ok := ai.allow[method]; ok {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(method, prefix) {
			return true
		}
	}
	return false
}

func (ai *AuthInterceptor) authenticate(ctx context.Context, method string) (context.Context, error) {
	raw, ok := tokenFromMetadata(ctx)
	if !ok {
		ai.logger.Warn("gRPC call without bearer token", zap.String("method", method))
		return ctx, status.Error(codes.Unauthenticated, domain.ErrNotAuthenticated.Message)
	}

	claims, session, err := ai.auth.Authenticate(ctx, raw)
	if err != nil {
		switch domain.KindOf(err) {
		case domain.KindUnavailable, domain.KindInternal:
			ai.logger.Error("gRPC authentication backend failed", zap.String("method", method), zap.Error(err))
			return ctx, status.Error(codes.Unavailable, "authentication temporarily unavailable")
		default:
			ai.logger.Warn("gRPC token rejected", zap.String("method", method), zap.Error(err))
			return ctx, status.Error(codes.Unauthenticated, domain.ErrNotAuthenticated.Message)
		}
	}

	ctx = WithIdentity(ctx, claims, session)
	return context.WithValue(ctx, logger.UserIDKey{}, claims.Subject), nil
}

type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authenticatedStream) Context() context.Context { return s.ctx }

type identityContextKey struct{}

type identity struct {
	claims  domain.AccessClaims
	session *domain.Session
}

// WithIdentity returns a derived context carrying the caller's claims and session.
func WithIdentity(ctx context.Context, claims domain.AccessClaims, session *domain.Session) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity{claims: claims, session: session})
}

// ClaimsFromContext extracts token claims from context when available.
func ClaimsFromContext(ctx context.Context) (domain.AccessClaims, bool) {
	id, ok := ctx.Value(identityContextKey{}).(identity)
	return id.claims, ok
}

// SessionFromContext returns the session the caller authenticated with.
func SessionFromContext(ctx context.Context) (*domain.Session, bool) {
	id, ok := ctx.Value(identityContextKey{}).(identity)
	return id.session, ok && id.session != nil
}

func tokenFromMetadata(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	values := md.Get(authorizationKey)
	if len(values) == 0 {
		return "", false
	}

	scheme, token, found := strings.Cut(strings.TrimSpace(values[0]), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
