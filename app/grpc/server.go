package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Check reports whether one dependency of the service is usable.
type Check func(ctx context.Context) error

// Server exposes the standard gRPC health service. The overall status follows the
// registered checks.
type Server struct {
	health *health.Server
	checks map[string]Check
}

func NewServer(checks map[string]Check) *Server {
	return &Server{
		health: health.NewServer(),
		checks: checks,
	}
}

func (s *Server) Register(registrar grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(registrar, s.health)
}

// Refresh runs every check and publishes SERVING only when all of them pass.
func (s *Server) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	serving := healthpb.HealthCheckResponse_SERVING
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			loggerWithContext(ctx).WithError(err).WithField("check", name).Warn("Health check failed")
			serving = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", serving)
	return serving
}

func (s *Server) Shutdown() {
	s.health.Shutdown()
}

func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	return s.health.Check(ctx, req)
}
