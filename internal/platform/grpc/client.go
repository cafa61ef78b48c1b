// Package grpc holds client helpers for reaching the taskflow gRPC API from
// sidecar processes.
package grpc

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// DialStage names the step of Dial that failed.
type DialStage string

const (
	// DialStageConnect means the client could not be created.
	DialStageConnect DialStage = "connect"
	// DialStageHealth means the server never reported SERVING.
	DialStageHealth DialStage = "health"
)

// DialError wraps a Dial failure with the stage it happened in.
type DialError struct {
	Stage DialStage
	Err   error
}

// Error implements the error interface.
func (e *DialError) Error() string {
	if e == nil {
		return "gRPC dial error"
	}
	return fmt.Sprintf("gRPC %s error: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *DialError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ClientOptions returns the dial options shared by internal clients:
// plaintext transport and trace propagation.
func ClientOptions() []gogrpc.DialOption {
	return []gogrpc.DialOption{
		gogrpc.WithTransportCredentials(insecure.NewCredentials()),
		gogrpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
}

// DialConfig controls Dial.
type DialConfig struct {
	// Timeout bounds the wait for a SERVING health status. Zero waits for ctx.
	Timeout time.Duration
	// Service is the health service name to probe. Empty probes the server.
	Service string
	// Logf receives progress lines while waiting. Nil discards them.
	Logf func(string, ...any)
}

// Dial creates a client for addr and waits until its health check serves.
// The connection is closed when the wait fails.
func Dial(ctx context.Context, addr string, cfg DialConfig, opts ...gogrpc.DialOption) (*gogrpc.ClientConn, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := gogrpc.NewClient(addr, opts...)
	if err != nil {
		return nil, &DialError{Stage: DialStageConnect, Err: err}
	}

	waitCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	if err := WaitForHealth(waitCtx, conn, cfg.Service, cfg.Logf); err != nil {
		_ = conn.Close()
		return nil, &DialError{Stage: DialStageHealth, Err: err}
	}
	return conn, nil
}
