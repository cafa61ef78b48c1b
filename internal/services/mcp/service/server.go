// Package service runs the taskflow MCP server over stdio.
//
// It dials the taskflow gRPC server as a trusted service acting as one
// configured account and delegates tool behavior to the domain package.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/grpc"

	platformgrpc "github.com/louisbranch/taskflow/internal/platform/grpc"
	"github.com/louisbranch/taskflow/internal/platform/timeouts"
	"github.com/louisbranch/taskflow/internal/services/identity"
	"github.com/louisbranch/taskflow/internal/services/mcp/domain"
	"github.com/louisbranch/taskflow/internal/services/taskflow/api/grpcapi/sharedlistv1"
)

const (
	// serverName identifies this MCP server to clients.
	serverName = "Taskflow MCP"
	// serverVersion identifies the MCP server version.
	serverVersion = "0.1.0"
	// healthInterval is how often the gRPC connection is checked.
	healthInterval = 30 * time.Second
)

// Config configures the MCP server.
type Config struct {
	GRPCAddr string
	// ActorEmail is the account every tool call acts as.
	ActorEmail string
	// ServiceToken must match the taskflow server's service token.
	ServiceToken string
}

func (c Config) validate() (Config, error) {
	c.GRPCAddr = strings.TrimSpace(c.GRPCAddr)
	c.ServiceToken = strings.TrimSpace(c.ServiceToken)
	if c.GRPCAddr == "" {
		return Config{}, errors.New("gRPC address is required")
	}
	if c.ServiceToken == "" {
		return Config{}, errors.New("service token is required")
	}
	email, err := identity.ValidateEmail(c.ActorEmail)
	if err != nil {
		return Config{}, fmt.Errorf("actor email: %w", err)
	}
	c.ActorEmail = email
	return c, nil
}

// Server hosts the MCP server.
type Server struct {
	mcpServer *mcp.Server
	conn      *grpc.ClientConn
}

// newServer registers the shared-list tools against conn.
func newServer(conn *grpc.ClientConn, client domain.SharedListClient) (*Server, error) {
	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)
	if err := registerSharedListTools(mcpServerRegistrationAdapter{server: mcpServer}, client); err != nil {
		return nil, fmt.Errorf("register shared list tools: %w", err)
	}
	return &Server{mcpServer: mcpServer, conn: conn}, nil
}

// Run dials the taskflow gRPC server and serves MCP on stdio until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	return runWithTransport(ctx, cfg, &mcp.StdioTransport{})
}

// runWithTransport creates a server and serves it over the provided transport.
func runWithTransport(ctx context.Context, cfg Config, transport mcp.Transport) error {
	cfg, err := cfg.validate()
	if err != nil {
		return err
	}
	conn, err := dialTaskflowGRPC(ctx, cfg)
	if err != nil {
		return err
	}
	server, err := newServer(conn, sharedlistv1.NewClient(conn))
	if err != nil {
		_ = conn.Close()
		return err
	}

	healthCtx, healthCancel := context.WithCancel(ctx)
	defer healthCancel()
	go server.monitorHealth(healthCtx)

	log.Printf("mcp: serving shared list tools actor=%s grpc=%s", cfg.ActorEmail, cfg.GRPCAddr)
	return server.serveWithTransport(ctx, transport)
}

// monitorHealth periodically checks gRPC connection health. Failures are
// logged; individual tool calls report their own errors.
func (s *Server) monitorHealth(ctx context.Context) {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.conn == nil {
				log.Printf("mcp: gRPC connection is nil, health check skipped")
				continue
			}

			callCtx, cancel := context.WithTimeout(ctx, timeouts.GRPCCall)
			err := platformgrpc.CheckHealth(callCtx, s.conn, sharedlistv1.ServiceName)
			cancel()
			if err != nil {
				log.Printf("mcp: gRPC health check failed err=%v", err)
			}
		}
	}
}

// Close releases the gRPC connection held by the server.
func (s *Server) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		return err
	}
	s.conn = nil
	return nil
}

// serveWithTransport runs the MCP session and then closes the gRPC
// connection.
func (s *Server) serveWithTransport(ctx context.Context, transport mcp.Transport) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	closeErr := s.Close()
	if closeErr != nil {
		if err == nil {
			return fmt.Errorf("close gRPC connection: %w", closeErr)
		}
		return fmt.Errorf("serve MCP: %v; close gRPC connection: %w", err, closeErr)
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}

func dialTaskflowGRPC(ctx context.Context, cfg Config) (*grpc.ClientConn, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logf := func(format string, args ...any) {
		log.Printf("mcp: taskflow %s", fmt.Sprintf(format, args...))
	}
	dialOpts := append(
		platformgrpc.ClientOptions(),
		grpc.WithChainUnaryInterceptor(sharedlistv1.ServiceActorUnaryClientInterceptor(cfg.ServiceToken, cfg.ActorEmail)),
		grpc.WithChainStreamInterceptor(sharedlistv1.ServiceActorStreamClientInterceptor(cfg.ServiceToken, cfg.ActorEmail)),
	)
	conn, err := platformgrpc.Dial(ctx, cfg.GRPCAddr, platformgrpc.DialConfig{
		Timeout: timeouts.GRPCDial,
		Service: sharedlistv1.ServiceName,
		Logf:    logf,
	}, dialOpts...)
	if err != nil {
		var dialErr *platformgrpc.DialError
		if errors.As(err, &dialErr) {
			if dialErr.Stage == platformgrpc.DialStageConnect {
				return nil, fmt.Errorf("connect to taskflow server at %s: %w", cfg.GRPCAddr, dialErr.Err)
			}
			return nil, dialErr.Err
		}
		return nil, err
	}
	return conn, nil
}
