package grpc

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const testService = "taskflow.test.v1.Probe"

type healthServer struct {
	addr   string
	health *health.Server
}

func startHealthServer(t *testing.T, status grpc_health_v1.HealthCheckResponse_ServingStatus) *healthServer {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := gogrpc.NewServer()
	healthSrv := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthSrv)
	healthSrv.SetServingStatus("", status)
	healthSrv.SetServingStatus(testService, status)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()
	t.Cleanup(func() {
		server.Stop()
		select {
		case <-serveErr:
		case <-time.After(2 * time.Second):
		}
	})
	return &healthServer{addr: listener.Addr().String(), health: healthSrv}
}

func (s *healthServer) set(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(testService, status)
}

func TestDialWaitsForServing(t *testing.T) {
	t.Parallel()

	srv := startHealthServer(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	go func() {
		time.Sleep(150 * time.Millisecond)
		srv.set(grpc_health_v1.HealthCheckResponse_SERVING)
	}()

	var mu sync.Mutex
	var lines []string
	logf := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, format)
	}

	conn, err := Dial(context.Background(), srv.addr, DialConfig{Timeout: 2 * time.Second, Service: testService, Logf: logf}, ClientOptions()...)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close conn: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(lines) < 2 || !strings.Contains(lines[len(lines)-1], "SERVING") {
		t.Fatalf("log lines = %v, want waiting lines then SERVING", lines)
	}
}

func TestDialTimesOutWhenNotServing(t *testing.T) {
	t.Parallel()

	srv := startHealthServer(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	start := time.Now()
	conn, err := Dial(context.Background(), srv.addr, DialConfig{Timeout: 200 * time.Millisecond}, ClientOptions()...)
	if conn != nil {
		_ = conn.Close()
		t.Fatal("expected nil connection on error")
	}
	var dialErr *DialError
	if !errors.As(err, &dialErr) || dialErr.Stage != DialStageHealth {
		t.Fatalf("err = %v, want health stage DialError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 1500*time.Millisecond {
		t.Fatalf("dial took %v, want bounded by timeout", elapsed)
	}
}

func TestDialRequiresTransportCredentials(t *testing.T) {
	t.Parallel()

	_, err := Dial(context.Background(), "127.0.0.1:1", DialConfig{Timeout: time.Second})
	var dialErr *DialError
	if !errors.As(err, &dialErr) || dialErr.Stage != DialStageConnect {
		t.Fatalf("err = %v, want connect stage DialError", err)
	}
}

func TestCheckHealth(t *testing.T) {
	t.Parallel()

	srv := startHealthServer(t, grpc_health_v1.HealthCheckResponse_SERVING)
	conn, err := gogrpc.NewClient(srv.addr, ClientOptions()...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := CheckHealth(ctx, conn, testService); err != nil {
		t.Fatalf("check serving: %v", err)
	}

	srv.set(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	if err := CheckHealth(ctx, conn, testService); !errors.Is(err, ErrNotServing) {
		t.Fatalf("err = %v, want ErrNotServing", err)
	}
	if err := CheckHealth(ctx, nil, testService); err == nil {
		t.Fatal("expected nil connection error")
	}
}

func TestDialErrorFormatting(t *testing.T) {
	t.Parallel()

	wrapped := &DialError{Stage: DialStageConnect, Err: errors.New("boom")}
	if got := wrapped.Error(); got != "gRPC connect error: boom" {
		t.Fatalf("error = %q", got)
	}
	if wrapped.Unwrap() == nil {
		t.Fatal("expected wrapped error")
	}

	var nilErr *DialError
	if nilErr.Error() == "" {
		t.Fatal("expected fallback error message")
	}
	if nilErr.Unwrap() != nil {
		t.Fatal("expected nil unwrap for nil error")
	}
}
