package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wippyai/rbridge/errors"
	"github.com/wippyai/rbridge/session"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(Options{Dirs: []string{t.TempDir()}})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RHome != "" {
		t.Errorf("RHome = %q", cfg.RHome)
	}
	if got := strings.Join(cfg.Args, " "); got != "rbridge --quiet --no-save" {
		t.Errorf("Args = %q", got)
	}
	if !cfg.Interactive {
		t.Error("Interactive should default to true")
	}
	if cfg.Session.InboundKey != session.InboundKey || cfg.Session.OutboundKey != session.OutboundKey {
		t.Errorf("session keys = %+v", cfg.Session)
	}
	if cfg.Log.Level != "warn" || cfg.Log.Format != "console" {
		t.Errorf("log = %+v", cfg.Log)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	data := `r_home: /opt/R/4.4
min_version: "4.1"
interactive: false
args: [app, --vanilla]
session:
  inbound_key: HOST_R_SESSION
log:
  level: debug
  format: json
`
	if err := os.WriteFile(filepath.Join(dir, "rbridge.yaml"), []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(Options{Dirs: []string{dir}})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RHome != "/opt/R/4.4" || cfg.MinVersion != "4.1" || cfg.Interactive {
		t.Errorf("cfg = %+v", cfg)
	}
	if got := strings.Join(cfg.Args, " "); got != "app --vanilla" {
		t.Errorf("Args = %q", got)
	}
	if cfg.Session.InboundKey != "HOST_R_SESSION" {
		t.Errorf("inbound = %q", cfg.Session.InboundKey)
	}
	if cfg.Session.OutboundKey != session.OutboundKey {
		t.Errorf("outbound default lost: %q", cfg.Session.OutboundKey)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "rbridge.yaml"), []byte("r_home: /from/file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RBRIDGE_R_HOME", "/from/env")
	t.Setenv("RBRIDGE_LOG_LEVEL", "info")
	t.Setenv("RBRIDGE_SESSION_OUTBOUND_KEY", "APP_SESSION")

	cfg, err := Load(Options{Dirs: []string{dir}})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RHome != "/from/env" {
		t.Errorf("RHome = %q, want env to win", cfg.RHome)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log.level = %q", cfg.Log.Level)
	}
	if cfg.Session.OutboundKey != "APP_SESSION" {
		t.Errorf("outbound = %q", cfg.Session.OutboundKey)
	}
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	_, err := Load(Options{File: filepath.Join(t.TempDir(), "nope.yaml")})
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindConfiguration}) {
		t.Errorf("err = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no args", func(c *Config) { c.Args = nil }},
		{"empty key", func(c *Config) { c.Session.InboundKey = "" }},
		{"same keys", func(c *Config) { c.Session.OutboundKey = c.Session.InboundKey }},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }},
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindInvalidInput}) {
				t.Errorf("Validate = %v", err)
			}
		})
	}
}

func TestLoad_CallerViper(t *testing.T) {
	v := New()
	v.Set("log.level", "error")

	cfg, err := Load(Options{Viper: v})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("log.level = %q, want override", cfg.Log.Level)
	}
}
