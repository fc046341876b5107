package server

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/safehome/safehome/internal/system"
)

func TestGRPCServer_Health(t *testing.T) {
	store := newTestStore(t)
	sys := system.New(store, system.Options{PollInterval: time.Hour, CallDelay: time.Hour})
	ctx := context.Background()

	g := NewGRPCServer(sys)

	lis, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	go g.Serve(lis)
	defer g.Stop()

	conn, err := grpc.NewClient(lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	client := grpc_health_v1.NewHealthClient(conn)
	check := func(service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
		t.Helper()
		resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("Check(%q) failed: %v", service, err)
		}
		return resp.GetStatus()
	}

	if got := check(""); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("Process should be SERVING, got %v", got)
	}
	if got := check(SystemService); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("System is off, expected NOT_SERVING, got %v", got)
	}

	if err := sys.TurnOn(ctx); err != nil {
		t.Fatalf("TurnOn failed: %v", err)
	}
	defer sys.TurnOff(ctx)
	g.Sync()

	if got := check(SystemService); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("System is on, expected SERVING, got %v", got)
	}
}

func TestGRPCServer_WatchStopsOnCancel(t *testing.T) {
	sys := system.New(newTestStore(t), system.Options{})
	g := NewGRPCServer(sys)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		g.Watch(ctx, time.Millisecond)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Watch did not stop within timeout")
	}
}
