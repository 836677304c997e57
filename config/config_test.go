package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	t.Setenv(envRPCToken, "")
	t.Setenv(envEnv, "")
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Registry.MinCommitmentAgeSeconds != 60 || cfg.Registry.DurationUnitSeconds != 31_536_000 {
		t.Fatalf("unexpected defaults: %+v", cfg.Registry)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not persisted: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.ListenAddress != cfg.ListenAddress || reloaded.Registry.LockAmountWei != cfg.Registry.LockAmountWei {
		t.Fatalf("round trip mismatch: %+v vs %+v", reloaded, cfg)
	}
}

func TestLoadParsesRegistrySettings(t *testing.T) {
	t.Setenv(envRPCToken, "")
	t.Setenv(envEnv, "")
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `ListenAddress = "0.0.0.0:9000"
DataDir = "./data"
Env = "staging"

[Registry]
MinCommitmentAgeSeconds = 5
MaxCommitmentAgeSeconds = 600
MinDurationMultiplier = 2
FeePerSymbolWei = "7"
LockAmountWei = "1000"
DurationUnitSeconds = 3600

[RPC]
AuthToken = "secret"
RequestsPerMinute = 30
Burst = 5

[Indexer]
Driver = "sqlite"
DSN = "file::memory:"
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	params, err := cfg.Registry.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if params.MinCommitmentAge != 5 || params.MaxCommitmentAge != 600 || params.MinDurationMultiplier != 2 {
		t.Fatalf("unexpected params: %+v", params)
	}
	if params.FeePerSymbol.Int64() != 7 || params.LockAmount.Int64() != 1000 || params.DurationUnit != 3600 {
		t.Fatalf("unexpected params: %+v", params)
	}
	if cfg.RPC.AuthToken != "secret" || cfg.Env != "staging" {
		t.Fatalf("unexpected rpc/env: %+v %s", cfg.RPC, cfg.Env)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(envRPCToken, "from-env")
	t.Setenv(envEnv, "prod")
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPC.AuthToken != "from-env" || cfg.Env != "prod" {
		t.Fatalf("env overrides not applied: token=%q env=%q", cfg.RPC.AuthToken, cfg.Env)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("DataDir = \"x\"\nBogus = 1\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "Bogus") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidateRegistry(t *testing.T) {
	base := Default().Registry
	cases := []struct {
		name   string
		mutate func(*Registry)
	}{
		{"window inverted", func(r *Registry) { r.MaxCommitmentAgeSeconds = r.MinCommitmentAgeSeconds }},
		{"zero unit", func(r *Registry) { r.DurationUnitSeconds = 0 }},
		{"zero multiplier", func(r *Registry) { r.MinDurationMultiplier = 0 }},
		{"bad fee", func(r *Registry) { r.FeePerSymbolWei = "abc" }},
		{"negative lock", func(r *Registry) { r.LockAmountWei = "-1" }},
	}
	if err := ValidateRegistry(base); err != nil {
		t.Fatalf("default registry invalid: %v", err)
	}
	for _, tc := range cases {
		r := base
		tc.mutate(&r)
		if err := ValidateRegistry(r); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestValidateIndexerAndWebhook(t *testing.T) {
	cfg := Default()
	cfg.Indexer.Driver = "mysql"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	cfg = Default()
	cfg.Indexer.Driver = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing DSN error")
	}
	cfg = Default()
	cfg.Webhook.URL = "https://example.invalid/hook"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing secret error")
	}
}
