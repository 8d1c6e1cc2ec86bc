package grpcx

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func TestHealthRoundTrip(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := NewServer()
	hs := RegisterHealth(srv)
	hs.SetServingStatus("booking", healthpb.HealthCheckResponse_SERVING)
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	conn, err := Dial("passthrough:///bufnet", DialOptions{}, grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	status, err := CheckHealth(context.Background(), conn, "booking", 0)
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if status != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v", status)
	}

	hs.SetServingStatus("booking", healthpb.HealthCheckResponse_NOT_SERVING)
	status, err = CheckHealth(context.Background(), conn, "booking", 0)
	if err != nil || status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %v (%v)", status, err)
	}
}
