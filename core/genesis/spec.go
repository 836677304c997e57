package genesis

import (
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/amalashkevich/vanitynamereg/crypto"
)

// GenesisSpec describes the initial balances of a registry node.
type GenesisSpec struct {
	GenesisTime string            `yaml:"genesisTime"`
	Alloc       map[string]string `yaml:"alloc"` // bech32 addr -> wei amount

	genesisTimestamp time.Time
	allocations      []Allocation
}

// Allocation is a validated genesis balance.
type Allocation struct {
	Address [20]byte
	Amount  *big.Int
}

// LoadSpecFromFile reads and validates a YAML genesis file.
func LoadSpecFromFile(path string) (*GenesisSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis %s: %w", path, err)
	}
	return ParseSpec(data)
}

// ParseSpec decodes and validates a YAML genesis document.
func ParseSpec(data []byte) (*GenesisSpec, error) {
	spec := new(GenesisSpec)
	if err := yaml.Unmarshal(data, spec); err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

func (s *GenesisSpec) validate() error {
	if strings.TrimSpace(s.GenesisTime) != "" {
		ts, err := time.Parse(time.RFC3339, strings.TrimSpace(s.GenesisTime))
		if err != nil {
			return fmt.Errorf("invalid genesisTime: %w", err)
		}
		s.genesisTimestamp = ts.UTC()
	}
	allocs := make([]Allocation, 0, len(s.Alloc))
	for addr, amount := range s.Alloc {
		parsed, err := crypto.ParseAccount(addr)
		if err != nil {
			return fmt.Errorf("alloc %s: %w", addr, err)
		}
		value, ok := new(big.Int).SetString(strings.TrimSpace(amount), 10)
		if !ok || value.Sign() < 0 {
			return fmt.Errorf("alloc %s: invalid amount %q", addr, amount)
		}
		allocs = append(allocs, Allocation{Address: parsed, Amount: value})
	}
	sort.Slice(allocs, func(i, j int) bool {
		return string(allocs[i].Address[:]) < string(allocs[j].Address[:])
	})
	for i := 1; i < len(allocs); i++ {
		if allocs[i].Address == allocs[i-1].Address {
			return fmt.Errorf("alloc: duplicate address %s", crypto.FormatAccount(allocs[i].Address))
		}
	}
	s.allocations = allocs
	return nil
}

// GenesisTimestamp returns the parsed genesis time, zero when unset.
func (s *GenesisSpec) GenesisTimestamp() time.Time {
	return s.genesisTimestamp
}

// Allocations returns the validated allocations sorted by address.
func (s *GenesisSpec) Allocations() []Allocation {
	out := make([]Allocation, len(s.allocations))
	for i, a := range s.allocations {
		out[i] = Allocation{Address: a.Address, Amount: new(big.Int).Set(a.Amount)}
	}
	return out
}
