package dht

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2s"
	"lukechampine.com/blake3"
)

// Hasher derives the content address of a blob.
type Hasher func(data []byte) ID

const (
	HashBlake2s = "blake2s"
	HashBlake3  = "blake3"
)

// Blake2s is the default content hash.
func Blake2s(data []byte) ID {
	return blake2s.Sum256(data)
}

// Blake3 is an alternative content hash. Every peer of an overlay must agree on it.
func Blake3(data []byte) ID {
	return blake3.Sum256(data)
}

// HasherByName resolves a configured hash name.
func HasherByName(name string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", HashBlake2s:
		return Blake2s, nil
	case HashBlake3:
		return Blake3, nil
	default:
		return nil, fmt.Errorf("dht: unknown hash %q", name)
	}
}
