package sessionkey

import (
	"bytes"
	"encoding/hex"
	"flag"
	"fmt"
	"strings"
	"testing"

	"github.com/louisbranch/taskflow/internal/services/identity"
)

const prefix = "TASKFLOW_SESSION_SECRET="

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "default", args: nil, want: identity.MinSessionKeyBytes},
		{name: "override", args: []string{"-bytes", "64"}, want: 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := flag.NewFlagSet("sessionkey", flag.ContinueOnError)
			cfg, err := ParseConfig(fs, tt.args)
			if err != nil {
				t.Fatalf("parse config: %v", err)
			}
			if cfg.Bytes != tt.want {
				t.Fatalf("bytes = %d, want %d", cfg.Bytes, tt.want)
			}
		})
	}
}

func TestParseConfigBadArgs(t *testing.T) {
	fs := flag.NewFlagSet("sessionkey", flag.ContinueOnError)
	fs.SetOutput(&bytes.Buffer{})
	if _, err := ParseConfig(fs, []string{"-invalid"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestRunRejectsShortKeys(t *testing.T) {
	if err := Run(Config{Bytes: 16}, &bytes.Buffer{}, nil); err == nil {
		t.Fatal("expected error for a key below the session minimum")
	}
}

func TestRunNilOutput(t *testing.T) {
	if err := Run(Config{Bytes: identity.MinSessionKeyBytes}, nil, nil); err == nil {
		t.Fatal("expected error for nil output")
	}
}

func TestRunWritesHex(t *testing.T) {
	seed := bytes.Repeat([]byte{0xab}, identity.MinSessionKeyBytes)
	buf := &bytes.Buffer{}
	if err := Run(Config{Bytes: identity.MinSessionKeyBytes}, buf, bytes.NewReader(seed)); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := prefix + hex.EncodeToString(seed)
	if got := strings.TrimSpace(buf.String()); got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

func TestRunOutputIsAcceptedByIdentityConfig(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := Run(Config{Bytes: identity.MinSessionKeyBytes}, buf, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	secret := strings.TrimPrefix(strings.TrimSpace(buf.String()), prefix)
	key, err := identity.Config{SessionSecret: secret}.SessionKey()
	if err != nil {
		t.Fatalf("session key: %v", err)
	}
	if len(key) != identity.MinSessionKeyBytes {
		t.Fatalf("key length = %d, want %d", len(key), identity.MinSessionKeyBytes)
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, fmt.Errorf("read error") }

func TestRunReaderError(t *testing.T) {
	if err := Run(Config{Bytes: identity.MinSessionKeyBytes}, &bytes.Buffer{}, errReader{}); err == nil {
		t.Fatal("expected error from failing reader")
	}
}
