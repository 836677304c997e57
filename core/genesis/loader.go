package genesis

import (
	"fmt"

	"github.com/amalashkevich/vanitynamereg/core/state"
	"github.com/amalashkevich/vanitynamereg/crypto"
)

// Apply credits every allocation into the state manager in address order.
// The caller is responsible for committing the trie.
func Apply(spec *GenesisSpec, manager *state.Manager) error {
	if spec == nil {
		return fmt.Errorf("genesis spec must not be nil")
	}
	if manager == nil {
		return fmt.Errorf("state manager must not be nil")
	}
	for _, alloc := range spec.Allocations() {
		if err := manager.Credit(alloc.Address[:], alloc.Amount); err != nil {
			return fmt.Errorf("alloc %s: %w", crypto.FormatAccount(alloc.Address), err)
		}
	}
	return nil
}
