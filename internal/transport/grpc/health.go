package transportgrpc

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
)

// ComplianceService is the health service name checked for the compliance engine.
// The empty service name reports process liveness only.
const ComplianceService = "obvious.compliance.v1.Compliance"

// HealthReporter produces the aggregated compliance health snapshot.
type HealthReporter interface {
	SystemHealth(ctx context.Context) (domain.SystemHealth, error)
}

// HealthServer publishes SystemHealth through the standard grpc.health.v1 service.
type HealthServer struct {
	server   *health.Server
	reporter HealthReporter
	logger   *zap.Logger
}

// NewHealthServer starts with the compliance service NOT_SERVING until the first Refresh.
func NewHealthServer(reporter HealthReporter, logger *zap.Logger) *HealthServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := health.NewServer()
	srv.SetServingStatus(ComplianceService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthServer{server: srv, reporter: reporter, logger: logger}
}

// Register attaches the health service to a gRPC server.
func (h *HealthServer) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Refresh re-evaluates SystemHealth and updates the serving status. Watchers are notified on change.
func (h *HealthServer) Refresh(ctx context.Context) error {
	if h.reporter == nil {
		h.server.SetServingStatus(ComplianceService, healthpb.HealthCheckResponse_SERVING)
		return nil
	}

	report, err := h.reporter.SystemHealth(ctx)
	if err != nil {
		h.server.SetServingStatus(ComplianceService, healthpb.HealthCheckResponse_NOT_SERVING)
		return fmt.Errorf("evaluate system health: %w", err)
	}

	serving := servingStatus(report.Status)
	h.server.SetServingStatus(ComplianceService, serving)
	if serving != healthpb.HealthCheckResponse_SERVING {
		h.logger.Warn("compliance health degraded",
			zap.String("status", string(report.Status)),
			zap.Int("critical_alerts", report.CriticalAlerts),
			zap.Any("checks", report.Checks),
		)
	}
	return nil
}

// Shutdown flips every service to NOT_SERVING so load balancers drain the instance.
func (h *HealthServer) Shutdown() {
	h.server.Shutdown()
}

// Warnings keep serving. Only a critical state takes the service out of rotation.
func servingStatus(status domain.HealthStatus) healthpb.HealthCheckResponse_ServingStatus {
	switch status {
	case domain.HealthHealthy, domain.HealthWarning:
		return healthpb.HealthCheckResponse_SERVING
	case domain.HealthCritical:
		return healthpb.HealthCheckResponse_NOT_SERVING
	default:
		return healthpb.HealthCheckResponse_UNKNOWN
	}
}
