package mcp

import (
	"bytes"
	"errors"
	"flag"
	"os"
	"testing"

	"github.com/louisbranch/taskflow/internal/platform/config"
)

func TestParseConfigDefaults(t *testing.T) {
	unsetEnv(t, "TASKFLOW_GRPC_ADDR")
	t.Setenv("TASKFLOW_MCP_ACTOR_EMAIL", "ana@example.com")
	t.Setenv("TASKFLOW_SERVICE_TOKEN", "svc")

	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Addr != "localhost:8090" {
		t.Fatalf("addr = %q, want localhost:8090", cfg.Addr)
	}
	if cfg.ActorEmail != "ana@example.com" || cfg.ServiceToken != "svc" {
		t.Fatalf("config = %+v", cfg)
	}
}

func TestParseConfigFlagsOverrideEnv(t *testing.T) {
	t.Setenv("TASKFLOW_GRPC_ADDR", "env:9000")
	t.Setenv("TASKFLOW_MCP_ACTOR_EMAIL", "env@example.com")
	t.Setenv("TASKFLOW_SERVICE_TOKEN", "svc")

	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-addr", "flag:9001", "-actor", "flag@example.com"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Addr != "flag:9001" {
		t.Fatalf("addr = %q, want flag value", cfg.Addr)
	}
	if cfg.ActorEmail != "flag@example.com" {
		t.Fatalf("actor = %q, want flag value", cfg.ActorEmail)
	}
}

func TestParseConfigRequiresActorAndToken(t *testing.T) {
	t.Setenv("TASKFLOW_MCP_ACTOR_EMAIL", "")
	t.Setenv("TASKFLOW_SERVICE_TOKEN", "")

	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	_, err := ParseConfig(fs, nil)
	var missing *config.MissingError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want missing values", err)
	}
	if len(missing.Names) != 2 {
		t.Fatalf("missing = %v, want actor and token", missing.Names)
	}
}

func TestParseConfigRejectsUnknownFlag(t *testing.T) {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	fs.SetOutput(&bytes.Buffer{})
	if _, err := ParseConfig(fs, []string{"-transport", "http"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

// unsetEnv clears key for the test so env defaults apply.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("unset %s: %v", key, err)
	}
}
