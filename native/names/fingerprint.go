package names

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// MaxNameLength bounds names in bytes.
const MaxNameLength = 64

// NameHash returns keccak256(name) over the raw bytes.
func NameHash(name string) [32]byte {
	return ethcrypto.Keccak256Hash([]byte(name))
}

// ComputeFingerprint derives the commitment fingerprint
// keccak256(keccak256(name) || owner || salt). Off-ledger tooling must use
// the same function so commitments match on reveal.
func ComputeFingerprint(name string, owner [20]byte, salt [32]byte) [32]byte {
	nameHash := NameHash(name)
	return ethcrypto.Keccak256Hash(nameHash[:], owner[:], salt[:])
}

// ValidateName rejects names that are empty, longer than MaxNameLength bytes,
// not valid UTF-8 or that contain control characters. Names are otherwise used
// verbatim; no case folding or normalisation is applied.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidName, len(name), MaxNameLength)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: not valid utf-8", ErrInvalidName)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: contains control character %U", ErrInvalidName, r)
		}
	}
	return nil
}
