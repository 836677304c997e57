package names

import (
	"fmt"
	"math/big"
)

// Params holds the registry constants. They are fixed for the lifetime of an
// engine. Ages and the duration unit are in seconds.
type Params struct {
	MinCommitmentAge      int64
	MaxCommitmentAge      int64
	MinDurationMultiplier uint64
	FeePerSymbol          *big.Int
	LockAmount            *big.Int
	DurationUnit          int64
}

// DefaultParams returns the parameters used when no configuration overrides
// them: a one minute to one day reveal window, yearly duration units, a fee of
// 0.001 per byte and a 0.1 collateral lock (in 18-decimal wei).
func DefaultParams() Params {
	return Params{
		MinCommitmentAge:      60,
		MaxCommitmentAge:      86_400,
		MinDurationMultiplier: 1,
		FeePerSymbol:          big.NewInt(1_000_000_000_000_000),
		LockAmount:            big.NewInt(100_000_000_000_000_000),
		DurationUnit:          31_536_000,
	}
}

// Validate reports whether the parameters are internally consistent.
func (p Params) Validate() error {
	if p.MinCommitmentAge < 0 {
		return fmt.Errorf("names: min commitment age must not be negative")
	}
	if p.MaxCommitmentAge <= p.MinCommitmentAge {
		return fmt.Errorf("names: max commitment age %d must exceed min %d", p.MaxCommitmentAge, p.MinCommitmentAge)
	}
	if p.MinDurationMultiplier == 0 {
		return fmt.Errorf("names: min duration multiplier must be positive")
	}
	if p.DurationUnit <= 0 {
		return fmt.Errorf("names: duration unit must be positive")
	}
	if p.FeePerSymbol == nil || p.FeePerSymbol.Sign() < 0 {
		return fmt.Errorf("names: fee per symbol must not be negative")
	}
	if p.LockAmount == nil || p.LockAmount.Sign() < 0 {
		return fmt.Errorf("names: lock amount must not be negative")
	}
	return nil
}

// Clone returns a deep copy of the parameters.
func (p Params) Clone() Params {
	out := p
	out.FeePerSymbol = cloneBigInt(p.FeePerSymbol)
	out.LockAmount = cloneBigInt(p.LockAmount)
	return out
}
