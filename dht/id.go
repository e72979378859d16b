package dht

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// IDLength is the width of identifiers and content hashes in bytes.
const IDLength = 32

// NumBuckets is the number of routing table buckets, one per bit of the identifier.
const NumBuckets = IDLength * 8

// ID addresses both peers and content in the identifier space.
type ID [IDLength]byte

// Distance returns the XOR distance between two identifiers.
func Distance(a, b ID) ID {
	var d ID
	for i := range d {
		d[i] = a[i] ^ b[i]
	}
	return d
}

// BucketIndex returns the bucket that other falls into relative to self. The
// index is 255 minus the number of leading zero bits of the XOR distance; it
// reports false when other equals self.
func BucketIndex(self, other ID) (int, bool) {
	d := Distance(self, other)
	bitLen := new(uint256.Int).SetBytes32(d[:]).BitLen()
	if bitLen == 0 {
		return 0, false
	}
	return bitLen - 1, true
}

// Less reports whether id sorts before other when both are read as big-endian
// unsigned integers. Used to order distances.
func (id ID) Less(other ID) bool {
	return bytes.Compare(id[:], other[:]) < 0
}

// Cmp compares two identifiers as big-endian unsigned integers.
func (id ID) Cmp(other ID) int {
	return bytes.Compare(id[:], other[:])
}

// IsZero reports whether every bit of the identifier is zero.
func (id ID) IsZero() bool {
	return id == ID{}
}

// String hex-encodes the full identifier.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Short renders the first two bytes, enough to tell peers apart in logs.
func (id ID) Short() string {
	return "0x" + hex.EncodeToString(id[:2])
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseID decodes a 64 character hex string, with or without a 0x prefix.
func ParseID(s string) (ID, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return ID{}, fmt.Errorf("dht: parse id: %w", err)
	}
	if len(raw) != IDLength {
		return ID{}, fmt.Errorf("dht: parse id: got %d bytes want %d", len(raw), IDLength)
	}
	var id ID
	copy(id[:], raw)
	return id, nil
}
