// Package mcp parses MCP command flags and starts the stdio tool server.
package mcp

import (
	"context"
	"flag"

	entrypoint "github.com/louisbranch/taskflow/internal/platform/cmd"
	"github.com/louisbranch/taskflow/internal/platform/config"
	mcpservice "github.com/louisbranch/taskflow/internal/services/mcp/service"
)

// Config holds MCP command configuration.
type Config struct {
	Addr         string `env:"TASKFLOW_GRPC_ADDR"       envDefault:"localhost:8090"`
	ActorEmail   string `env:"TASKFLOW_MCP_ACTOR_EMAIL"`
	ServiceToken string `env:"TASKFLOW_SERVICE_TOKEN"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "taskflow gRPC server address")
	fs.StringVar(&cfg.ActorEmail, "actor", cfg.ActorEmail, "email of the account tools act as")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if err := config.RequireValues(map[string]string{
		"TASKFLOW_MCP_ACTOR_EMAIL": cfg.ActorEmail,
		"TASKFLOW_SERVICE_TOKEN":   cfg.ServiceToken,
	}); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the MCP protocol adapter on stdio.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMCP, func(ctx context.Context) error {
		return mcpservice.Run(ctx, mcpservice.Config{
			GRPCAddr:     cfg.Addr,
			ActorEmail:   cfg.ActorEmail,
			ServiceToken: cfg.ServiceToken,
		})
	})
}
