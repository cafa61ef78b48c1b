// Package taskflow parses taskflow server flags and launches the service.
package taskflow

import (
	"context"
	"flag"

	entrypoint "github.com/louisbranch/taskflow/internal/platform/cmd"
	"github.com/louisbranch/taskflow/internal/services/assistant"
	"github.com/louisbranch/taskflow/internal/services/identity"
	server "github.com/louisbranch/taskflow/internal/services/taskflow/app"
)

// Config holds taskflow command configuration.
type Config struct {
	GRPCAddr string `env:"TASKFLOW_GRPC_ADDR" envDefault:":8090"`
	HTTPAddr string `env:"TASKFLOW_HTTP_ADDR" envDefault:":8080"`
	DataDir  string `env:"TASKFLOW_DATA_DIR"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "The taskflow gRPC listen address")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The taskflow HTTP listen address")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory for storage files; per-store env paths win")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ServerConfig resolves the server configuration from cfg and the
// environment.
func (c Config) ServerConfig() (server.Config, error) {
	identityCfg, err := identity.LoadConfigFromEnv()
	if err != nil {
		return server.Config{}, err
	}
	assistantCfg, err := assistant.LoadConfigFromEnv()
	if err != nil {
		return server.Config{}, err
	}
	return server.ConfigFromEnv(server.Config{
		GRPCAddr:  c.GRPCAddr,
		HTTPAddr:  c.HTTPAddr,
		DataDir:   c.DataDir,
		Identity:  identityCfg,
		Assistant: assistantCfg,
	}), nil
}

// Run starts the taskflow gRPC and HTTP APIs.
func Run(ctx context.Context, cfg Config) error {
	serverCfg, err := cfg.ServerConfig()
	if err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceTaskflow, func(ctx context.Context) error {
		return server.Run(ctx, serverCfg)
	})
}
