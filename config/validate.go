package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/amalashkevich/vanitynamereg/native/names"
)

// Validate checks the configuration for values the node cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must not be empty")
	}
	if _, err := c.Registry.Params(); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.Indexer.Driver)) {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("indexer: unsupported driver %q", c.Indexer.Driver)
	}
	if strings.EqualFold(c.Indexer.Driver, "postgres") && strings.TrimSpace(c.Indexer.DSN) == "" {
		return fmt.Errorf("indexer: postgres driver requires a DSN")
	}
	if c.RPC.RequestsPerMinute < 0 || c.RPC.Burst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if c.Webhook.URL != "" && strings.TrimSpace(c.Webhook.Secret) == "" {
		return fmt.Errorf("webhook: secret required when URL is set")
	}
	return nil
}

// ValidateRegistry rejects inconsistent registry parameters.
func ValidateRegistry(r Registry) error {
	_, err := r.Params()
	return err
}

// Params converts the registry section into engine parameters.
func (r Registry) Params() (names.Params, error) {
	fee, err := parseUintAmount(r.FeePerSymbolWei)
	if err != nil {
		return names.Params{}, fmt.Errorf("invalid Registry.FeePerSymbolWei: %w", err)
	}
	lock, err := parseUintAmount(r.LockAmountWei)
	if err != nil {
		return names.Params{}, fmt.Errorf("invalid Registry.LockAmountWei: %w", err)
	}
	p := names.Params{
		MinCommitmentAge:      r.MinCommitmentAgeSeconds,
		MaxCommitmentAge:      r.MaxCommitmentAgeSeconds,
		MinDurationMultiplier: r.MinDurationMultiplier,
		FeePerSymbol:          fee,
		LockAmount:            lock,
		DurationUnit:          r.DurationUnitSeconds,
	}
	if err := p.Validate(); err != nil {
		return names.Params{}, fmt.Errorf("registry: %w", err)
	}
	return p, nil
}

func parseUintAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}
