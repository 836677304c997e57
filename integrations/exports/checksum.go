package exports

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

// Checksum returns the hex blake3-256 digest of an export payload.
func Checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
