package chunk

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// HashSize is the size of a content hash in bytes.
const HashSize = 32

// Hash is a 256-bit BLAKE3 digest of a byte span. Chunks, manifests
// and commits are all identified by a Hash of their serialized form,
// so a Hash is sufficient to locate any object in the repository.
type Hash [HashSize]byte

// Sum computes the BLAKE3 hash of data.
func Sum(data []byte) Hash {
	return blake3.Sum256(data)
}

// String returns the 64-character lowercase hex encoding of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether the hash is all zero bytes. The zero hash is
// never a valid object identity and is used as an absent-value marker.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// MarshalText encodes the hash as lowercase hex. JSON-encoded
// records (metadata index, mirror journal) use this so database
// contents stay human-inspectable.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText decodes a hash from its strict hex encoding.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash decodes a 64-character hex string into a Hash.
//
// The encoding is strict: anything other than exactly 64 lowercase or
// uppercase hex characters is an error. Callers parsing HEAD or ref
// files rely on this to reject truncated or corrupted identifiers
// instead of guessing.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if len(s) != HashSize*2 {
		return h, fmt.Errorf("invalid hash length %d (want %d)", len(s), HashSize*2)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hash encoding: %w", err)
	}
	copy(h[:], raw)
	return h, nil
}
