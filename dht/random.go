package dht

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
)

// RandomSource supplies message ids, find ids and node ids.
type RandomSource interface {
	NextU64() uint64
}

type cryptoSource struct{}

// NewCryptoSource draws from the operating system CSPRNG.
func NewCryptoSource() RandomSource {
	return cryptoSource{}
}

func (cryptoSource) NextU64() uint64 {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		panic("dht: crypto/rand failed: " + err.Error())
	}
	return binary.BigEndian.Uint64(buf[:])
}

type seededSource struct {
	rng *rand.ChaCha8
}

// NewSeededSource returns a deterministic ChaCha8 stream. Not safe for
// concurrent use; every peer derives its own.
func NewSeededSource(seed uint64) RandomSource {
	var key [32]byte
	binary.BigEndian.PutUint64(key[:8], seed)
	return &seededSource{rng: rand.NewChaCha8(key)}
}

func (s *seededSource) NextU64() uint64 {
	return s.rng.Uint64()
}

// RandomID fills an identifier from src.
func RandomID(src RandomSource) ID {
	var id ID
	for i := 0; i < IDLength; i += 8 {
		binary.BigEndian.PutUint64(id[i:i+8], src.NextU64())
	}
	return id
}
