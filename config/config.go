package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	envRPCToken = "VNR_RPC_TOKEN"
	envEnv      = "VNR_ENV"
)

type Config struct {
	ListenAddress  string    `toml:"ListenAddress"`
	MetricsAddress string    `toml:"MetricsAddress"`
	DataDir        string    `toml:"DataDir"`
	GenesisFile    string    `toml:"GenesisFile"`
	Env            string    `toml:"Env"`
	Registry       Registry  `toml:"Registry"`
	RPC            RPC       `toml:"RPC"`
	Indexer        Indexer   `toml:"Indexer"`
	Webhook        Webhook   `toml:"Webhook"`
	Telemetry      Telemetry `toml:"Telemetry"`
}

// Load loads the configuration from the given path. A default file is written
// when none exists. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, err := createDefault(path)
		if err != nil {
			return nil, err
		}
		applyEnv(cfg)
		return cfg, nil
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration written for a fresh node.
func Default() *Config {
	return &Config{
		ListenAddress:  "127.0.0.1:8547",
		MetricsAddress: "",
		DataDir:        "./vnr-data",
		Env:            "dev",
		Registry: Registry{
			MinCommitmentAgeSeconds: 60,
			MaxCommitmentAgeSeconds: 86_400,
			MinDurationMultiplier:   1,
			FeePerSymbolWei:         "1000000000000000",
			LockAmountWei:           "100000000000000000",
			DurationUnitSeconds:     31_536_000,
		},
		RPC: RPC{
			RequestsPerMinute: 600,
			Burst:             60,
			AllowedOrigins:    []string{},
			EventBacklog:      256,
		},
		Indexer: Indexer{Driver: "sqlite"},
		Webhook: Webhook{MaxRetries: 3},
	}
}

func applyEnv(cfg *Config) {
	if token := strings.TrimSpace(os.Getenv(envRPCToken)); token != "" {
		cfg.RPC.AuthToken = token
	}
	if env := strings.TrimSpace(os.Getenv(envEnv)); env != "" {
		cfg.Env = env
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
