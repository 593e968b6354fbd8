package transportgrpc

import (
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	grpcinterceptors "github.com/Ngulliinsights/Obvious-Company-sub004/internal/transport/grpc/interceptors"
)

// ServerDependencies encapsulates what the gRPC server layer needs.
type ServerDependencies struct {
	Authenticator grpcinterceptors.Authenticator
	Health        *HealthServer
	Metrics       *grpcinterceptors.GRPCMetrics
	Tracing       grpcinterceptors.TracingOptions
	Logger        *zap.Logger
	PublicMethods []string // methods that don't require authentication
}

// NewServer builds the gRPC server: tracing stats handler, metrics, then authentication.
func NewServer(deps ServerDependencies) *grpc.Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	auth := grpcinterceptors.NewAuthInterceptor(deps.Authenticator, grpcinterceptors.AuthOptions{
		Logger:       logger,
		AllowMethods: deps.PublicMethods,
	})

	server := grpc.NewServer(
		grpcinterceptors.TracingServerOption(deps.Tracing),
		grpc.ChainUnaryInterceptor(
			deps.Metrics.UnaryServerInterceptor(),
			auth.UnaryServerInterceptor(),
		),
		grpc.ChainStreamInterceptor(
			deps.Metrics.StreamServerInterceptor(),
			auth.StreamServerInterceptor(),
		),
	)

	if deps.Health != nil {
		deps.Health.Register(server)
	}

	// Register reflection service for tools like grpcurl.
	reflection.Register(server)

	return server
}
