package rawserver

import (
	"context"
	"testing"
	"time"

	"github.com/WhileEndless/go-rawserver/pkg/dispatch"
)

func TestNewServerOptionsAppliesDefaultsThenOverrides(t *testing.T) {
	opts := NewServerOptions(WithHTTPPort(9090), WithMaxRequestBodySize(1024))

	if opts.HTTPPort != 9090 {
		t.Fatalf("expected overridden HTTPPort 9090, got %d", opts.HTTPPort)
	}
	if opts.MaxRequestBodySize != 1024 {
		t.Fatalf("expected overridden body size 1024, got %d", opts.MaxRequestBodySize)
	}
	if opts.HTTPSPort != 8443 {
		t.Fatalf("expected default HTTPSPort 8443, got %d", opts.HTTPSPort)
	}
	if opts.HeaderTimeout != 30*time.Second {
		t.Fatalf("expected default header timeout, got %v", opts.HeaderTimeout)
	}
	if opts.H2MaxConcurrentStreams != 100 {
		t.Fatalf("expected default H2 max concurrent streams 100, got %d", opts.H2MaxConcurrentStreams)
	}
}

func TestServerStartAndShutdownWithNoListeners(t *testing.T) {
	opts := NewServerOptions(WithHTTPPort(0), WithHTTPSPort(0))
	handler := dispatch.HandlerFunc(func(ctx context.Context, req *dispatch.Request) *dispatch.Response {
		return &dispatch.Response{Status: 200}
	})

	srv := New(opts, handler, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start with no listeners configured: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
