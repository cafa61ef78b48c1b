// Package server wires the taskflow runtime: storage, the realtime broker,
// the gRPC API and the HTTP/WebSocket API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/louisbranch/taskflow/internal/platform/config"
	"github.com/louisbranch/taskflow/internal/platform/timeouts"
	"github.com/louisbranch/taskflow/internal/services/assistant"
	"github.com/louisbranch/taskflow/internal/services/identity"
	identitysqlite "github.com/louisbranch/taskflow/internal/services/identity/storage/sqlite"
	personalapp "github.com/louisbranch/taskflow/internal/services/personal/app"
	personalbbolt "github.com/louisbranch/taskflow/internal/services/personal/storage/bbolt"
	listapp "github.com/louisbranch/taskflow/internal/services/sharedlist/app"
	"github.com/louisbranch/taskflow/internal/services/sharedlist/realtime"
	listsqlite "github.com/louisbranch/taskflow/internal/services/sharedlist/storage/sqlite"
	"github.com/louisbranch/taskflow/internal/services/taskflow/api/grpcapi"
	"github.com/louisbranch/taskflow/internal/services/taskflow/api/grpcapi/sharedlistv1"
	"github.com/louisbranch/taskflow/internal/services/taskflow/api/httpapi"
)

type serverEnv struct {
	IdentityDBPath   string `env:"TASKFLOW_IDENTITY_DB_PATH"`
	SharedListDBPath string `env:"TASKFLOW_SHAREDLIST_DB_PATH"`
	PersonalDBPath   string `env:"TASKFLOW_PERSONAL_DB_PATH"`
	ServiceToken     string `env:"TASKFLOW_SERVICE_TOKEN"`
}

func loadServerEnv() serverEnv {
	var cfg serverEnv
	_ = config.ParseEnv(&cfg)
	return cfg
}

// Config holds the listen addresses and storage locations of a server.
type Config struct {
	GRPCAddr string
	HTTPAddr string

	// DataDir holds any storage file without an explicit path. Defaults to
	// "data".
	DataDir          string
	IdentityDBPath   string
	SharedListDBPath string
	PersonalDBPath   string

	// ServiceToken enables trusted service actors on the gRPC API. Empty
	// disables them.
	ServiceToken string

	Identity  identity.Config
	Assistant assistant.Config
}

// ConfigFromEnv fills storage paths and the service token from the
// environment, keeping any values already set on cfg. Paths still empty
// afterwards are placed under DataDir.
func ConfigFromEnv(cfg Config) Config {
	env := loadServerEnv()
	cfg.IdentityDBPath = firstNonEmpty(cfg.IdentityDBPath, env.IdentityDBPath)
	cfg.SharedListDBPath = firstNonEmpty(cfg.SharedListDBPath, env.SharedListDBPath)
	cfg.PersonalDBPath = firstNonEmpty(cfg.PersonalDBPath, env.PersonalDBPath)
	cfg.ServiceToken = firstNonEmpty(cfg.ServiceToken, env.ServiceToken)

	dataDir := firstNonEmpty(cfg.DataDir, "data")
	cfg.IdentityDBPath = firstNonEmpty(cfg.IdentityDBPath, filepath.Join(dataDir, "identity.db"))
	cfg.SharedListDBPath = firstNonEmpty(cfg.SharedListDBPath, filepath.Join(dataDir, "sharedlists.db"))
	cfg.PersonalDBPath = firstNonEmpty(cfg.PersonalDBPath, filepath.Join(dataDir, "personal.db"))
	return cfg
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}

// Server hosts the taskflow gRPC and HTTP APIs and owns their storage.
type Server struct {
	grpcListener net.Listener
	httpListener net.Listener
	grpcServer   *grpc.Server
	httpServer   *http.Server
	health       *health.Server

	identityStore *identitysqlite.Store
	listStore     *listsqlite.Store
	personalStore *personalbbolt.Store
	broker        *realtime.Broker
}

// New opens storage, builds the services and binds both listeners.
func New(cfg Config) (*Server, error) {
	s := &Server{}
	if err := s.open(cfg); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) open(cfg Config) error {
	var err error
	if s.identityStore, err = openIdentityStore(cfg.IdentityDBPath); err != nil {
		return err
	}
	if s.listStore, err = openSharedListStore(cfg.SharedListDBPath); err != nil {
		return err
	}
	if s.personalStore, err = openPersonalStore(cfg.PersonalDBPath); err != nil {
		return err
	}
	if s.broker, err = realtime.NewBroker(s.listStore); err != nil {
		return fmt.Errorf("start realtime broker: %w", err)
	}

	signer, err := cfg.Identity.Signer()
	if err != nil {
		return fmt.Errorf("session signer: %w", err)
	}
	identityService, err := identity.NewService(
		s.identityStore,
		signer,
		identity.WithMailer(cfg.Identity.Mailer()),
		identity.WithResetURL(cfg.Identity.PasswordResetURL),
		identity.WithOAuthProviders(cfg.Identity.Providers()...),
	)
	if err != nil {
		return fmt.Errorf("identity service: %w", err)
	}
	listService, err := listapp.NewService(s.listStore, s.broker)
	if err != nil {
		return fmt.Errorf("shared list service: %w", err)
	}
	personalService, err := personalapp.NewService(s.personalStore)
	if err != nil {
		return fmt.Errorf("personal service: %w", err)
	}
	assistantService := cfg.Assistant.Assistant(&http.Client{Timeout: timeouts.Generate})

	handler, err := httpapi.NewHandler(httpapi.Deps{
		Identity:    identityService,
		SharedLists: listService,
		Personal:    personalService,
		Assistant:   assistantService,
	})
	if err != nil {
		return fmt.Errorf("build http handler: %w", err)
	}

	auth := grpcapi.AuthConfig{Sessions: identityService, ServiceToken: cfg.ServiceToken}
	s.grpcServer = grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(grpcapi.UnaryAuthInterceptor(auth)),
		grpc.ChainStreamInterceptor(grpcapi.StreamAuthInterceptor(auth)),
	)
	sharedlistv1.RegisterSharedListServiceServer(s.grpcServer, grpcapi.NewService(listService))
	s.health = health.NewServer()
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(sharedlistv1.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	s.httpServer = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	if s.grpcListener, err = net.Listen("tcp", cfg.GRPCAddr); err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.GRPCAddr, err)
	}
	if s.httpListener, err = net.Listen("tcp", cfg.HTTPAddr); err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
	}
	return nil
}

// GRPCAddr returns the bound gRPC address.
func (s *Server) GRPCAddr() string {
	if s == nil || s.grpcListener == nil {
		return ""
	}
	return s.grpcListener.Addr().String()
}

// HTTPAddr returns the bound HTTP address.
func (s *Server) HTTPAddr() string {
	if s == nil || s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// Run creates and serves a taskflow server until context cancellation.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve runs both APIs until ctx ends or either one fails, then stops the
// other and releases storage.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("taskflow: grpc listening at %v", s.grpcListener.Addr())
	log.Printf("taskflow: http listening at %v", s.httpListener.Addr())
	grpcErr := make(chan error, 1)
	httpErr := make(chan error, 1)
	go func() {
		grpcErr <- s.grpcServer.Serve(s.grpcListener)
	}()
	go func() {
		httpErr <- s.httpServer.Serve(s.httpListener)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-grpcErr:
		grpcErr <- err
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serveErr = fmt.Errorf("serve gRPC: %w", err)
		}
	case err := <-httpErr:
		httpErr <- err
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("serve http: %w", err)
		}
	}

	s.health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("taskflow: shutdown http err=%v", err)
	}
	// Open WatchList streams only end once their watches detach.
	s.broker.Close()
	s.grpcServer.GracefulStop()
	<-grpcErr
	<-httpErr
	return serveErr
}

// Close releases listeners, the broker and storage. It is safe to call more
// than once.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
	if s.grpcListener != nil {
		_ = s.grpcListener.Close()
	}
	if s.httpListener != nil {
		_ = s.httpListener.Close()
	}
	if s.broker != nil {
		s.broker.Close()
		s.broker = nil
	}
	if s.identityStore != nil {
		closeStore("identity", s.identityStore)
		s.identityStore = nil
	}
	if s.listStore != nil {
		closeStore("shared list", s.listStore)
		s.listStore = nil
	}
	if s.personalStore != nil {
		closeStore("personal", s.personalStore)
		s.personalStore = nil
	}
}

func closeStore(name string, store interface{ Close() error }) {
	if err := store.Close(); err != nil {
		log.Printf("taskflow: close %s store err=%v", name, err)
	}
}

func ensureDir(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}
	return nil
}

func openIdentityStore(path string) (*identitysqlite.Store, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	store, err := identitysqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open identity sqlite store: %w", err)
	}
	return store, nil
}

func openSharedListStore(path string) (*listsqlite.Store, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	store, err := listsqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shared list sqlite store: %w", err)
	}
	return store, nil
}

func openPersonalStore(path string) (*personalbbolt.Store, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	store, err := personalbbolt.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open personal bbolt store: %w", err)
	}
	return store, nil
}
