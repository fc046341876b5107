package server

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/safehome/safehome/internal/system"
)

// SystemService is the health service name that follows the power state
// of the appliance. The empty service reports the process itself.
const SystemService = "safehome.System"

// GRPCServer serves the standard gRPC health service and reflection.
type GRPCServer struct {
	sys    *system.System
	srv    *grpc.Server
	health *health.Server
}

// NewGRPCServer creates a gRPC server reporting the state of sys.
func NewGRPCServer(sys *system.System) *GRPCServer {
	g := &GRPCServer{
		sys:    sys,
		srv:    grpc.NewServer(),
		health: health.NewServer(),
	}

	grpc_health_v1.RegisterHealthServer(g.srv, g.health)
	reflection.Register(g.srv)

	g.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	g.Sync()
	return g
}

// Sync publishes the current power state as the SystemService status.
func (g *GRPCServer) Sync() {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if g.sys.IsOn() {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus(SystemService, status)
}

// Watch calls Sync every interval until ctx is canceled.
func (g *GRPCServer) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.Sync()
		case <-ctx.Done():
			return
		}
	}
}

// Serve accepts connections on lis. Blocks until Stop.
func (g *GRPCServer) Serve(lis net.Listener) error {
	return g.srv.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains open calls.
func (g *GRPCServer) Stop() {
	g.health.Shutdown()
	g.srv.GracefulStop()
}
