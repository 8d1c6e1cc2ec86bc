package grpcx

import (
	"context"
	"strings"
	"testing"

	"github.com/md-rashed-zaman/salonbook/libs/httpx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

func TestServerInterceptorAdoptsRequestID(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDMetadataKey, "req-42"))
	var got string
	_, err := UnaryServerRequestIDInterceptor()(ctx, nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, _ any) (any, error) {
		got = httpx.RequestIDFromContext(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if got != "req-42" {
		t.Fatalf("expected req-42, got %q", got)
	}
}

func TestServerInterceptorMintsOversizedID(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDMetadataKey, strings.Repeat("x", 200)))
	var got string
	_, _ = UnaryServerRequestIDInterceptor()(ctx, nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, _ any) (any, error) {
		got = httpx.RequestIDFromContext(ctx)
		return nil, nil
	})
	if got == "" || len(got) > 128 {
		t.Fatalf("expected a fresh id, got %q", got)
	}
}

func TestClientInterceptorForwardsRequestID(t *testing.T) {
	ctx := httpx.ContextWithRequestID(context.Background(), "req-7")
	var forwarded []string
	err := UnaryClientRequestIDInterceptor()(ctx, "/svc/M", nil, nil, nil, func(ctx context.Context, _ string, _, _ any, _ *grpc.ClientConn, _ ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		forwarded = md.Get(RequestIDMetadataKey)
		return nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if len(forwarded) != 1 || forwarded[0] != "req-7" {
		t.Fatalf("unexpected metadata %v", forwarded)
	}
}
