package block

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/FranchuFranchu/kelili/dht"
)

// Block is a unit of code published to the overlay. The overlay only stores
// its encoding; executing Code is up to the consumer.
type Block struct {
	Index     uint64
	ManaLimit uint64
	MemoLimit uint64
	Code      []byte
	Name      string `rlp:"optional"`
}

// Storer publishes raw content, as dht.Client does.
type Storer interface {
	Store(ctx context.Context, data []byte) (dht.ID, error)
}

// Finder resolves raw content by hash, as dht.Client does.
type Finder interface {
	Find(ctx context.Context, hash dht.ID) ([]byte, bool, error)
}

// Encode returns the RLP encoding of b.
func Encode(b *Block) ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("block: nil block")
	}
	encoded, err := rlp.EncodeToBytes(b)
	if err != nil {
		return nil, fmt.Errorf("block: encode: %w", err)
	}
	return encoded, nil
}

// Decode parses an RLP encoded block.
func Decode(data []byte) (*Block, error) {
	var b Block
	if err := rlp.DecodeBytes(data, &b); err != nil {
		return nil, fmt.Errorf("block: decode: %w", err)
	}
	return &b, nil
}

// Hash returns the address b is stored under.
func Hash(b *Block, hasher dht.Hasher) (dht.ID, error) {
	encoded, err := Encode(b)
	if err != nil {
		return dht.ID{}, err
	}
	if hasher == nil {
		hasher = dht.Blake2s
	}
	return hasher(encoded), nil
}

// Put publishes b and returns its address.
func Put(ctx context.Context, s Storer, b *Block) (dht.ID, error) {
	encoded, err := Encode(b)
	if err != nil {
		return dht.ID{}, err
	}
	return s.Store(ctx, encoded)
}

// Get fetches and decodes the block stored under hash. A false result means
// the lookup did not find it.
func Get(ctx context.Context, f Finder, hash dht.ID) (*Block, bool, error) {
	data, found, err := f.Find(ctx, hash)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	b, err := Decode(data)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}
