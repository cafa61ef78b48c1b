package taskflow

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	unsetEnv(t, "TASKFLOW_GRPC_ADDR")
	unsetEnv(t, "TASKFLOW_HTTP_ADDR")
	fs := flag.NewFlagSet("taskflow", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.GRPCAddr != ":8090" {
		t.Fatalf("grpc addr = %q, want :8090", cfg.GRPCAddr)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("http addr = %q, want :8080", cfg.HTTPAddr)
	}
}

func TestParseConfigFlagsOverrideEnv(t *testing.T) {
	t.Setenv("TASKFLOW_GRPC_ADDR", "env:1")
	t.Setenv("TASKFLOW_HTTP_ADDR", "env:2")
	fs := flag.NewFlagSet("taskflow", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-http-addr", "flag:3", "-data-dir", "/srv/taskflow"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.GRPCAddr != "env:1" {
		t.Fatalf("grpc addr = %q, want env value", cfg.GRPCAddr)
	}
	if cfg.HTTPAddr != "flag:3" {
		t.Fatalf("http addr = %q, want flag value", cfg.HTTPAddr)
	}
	if cfg.DataDir != "/srv/taskflow" {
		t.Fatalf("data dir = %q, want flag value", cfg.DataDir)
	}
}

func TestParseConfigRejectsUnknownFlag(t *testing.T) {
	fs := flag.NewFlagSet("taskflow", flag.ContinueOnError)
	fs.SetOutput(&bytes.Buffer{})
	if _, err := ParseConfig(fs, []string{"-port", "1"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestServerConfigRequiresSessionSecret(t *testing.T) {
	t.Setenv("TASKFLOW_SESSION_SECRET", "")
	if _, err := (Config{}).ServerConfig(); err == nil {
		t.Fatal("expected missing session secret error")
	}
}

func TestServerConfigPlacesStoresUnderDataDir(t *testing.T) {
	t.Setenv("TASKFLOW_SESSION_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("TASKFLOW_IDENTITY_DB_PATH", "")
	t.Setenv("TASKFLOW_SHAREDLIST_DB_PATH", "")
	t.Setenv("TASKFLOW_PERSONAL_DB_PATH", "")
	t.Setenv("TASKFLOW_SERVICE_TOKEN", "svc")

	cfg, err := (Config{GRPCAddr: ":1", HTTPAddr: ":2", DataDir: "/srv/taskflow"}).ServerConfig()
	if err != nil {
		t.Fatalf("server config: %v", err)
	}
	if want := filepath.Join("/srv/taskflow", "sharedlists.db"); cfg.SharedListDBPath != want {
		t.Fatalf("shared list path = %q, want %q", cfg.SharedListDBPath, want)
	}
	if cfg.ServiceToken != "svc" || cfg.GRPCAddr != ":1" || cfg.HTTPAddr != ":2" {
		t.Fatalf("server config = %+v", cfg)
	}
	if cfg.Identity.SessionSecret == "" {
		t.Fatal("expected identity config to be loaded")
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
