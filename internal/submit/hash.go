package submit

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// IPHasher derives a one-way keyed digest of client addresses so raw IPs
// are never stored.
type IPHasher struct {
	key []byte
}

// NewIPHasher creates a hasher. Keys longer than 64 bytes are rejected.
func NewIPHasher(key []byte) (*IPHasher, error) {
	if len(key) > blake2b.Size {
		return nil, fmt.Errorf("ip hash key is %d bytes, max %d", len(key), blake2b.Size)
	}
	// Validate the key once so Hash cannot fail later.
	if _, err := blake2b.New256(key); err != nil {
		return nil, fmt.Errorf("ip hash key: %w", err)
	}
	return &IPHasher{key: append([]byte(nil), key...)}, nil
}

// RandomIPHasher creates a hasher with a fresh 32-byte key. Digests are
// only comparable within the process lifetime.
func RandomIPHasher() (*IPHasher, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate ip hash key: %w", err)
	}
	return NewIPHasher(key)
}

// Hash returns the hex BLAKE2b-256 digest of ip under the hasher's key.
func (h *IPHasher) Hash(ip string) string {
	d, _ := blake2b.New256(h.key)
	d.Write([]byte(ip))
	return hex.EncodeToString(d.Sum(nil))
}
