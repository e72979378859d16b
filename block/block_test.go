package block

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FranchuFranchu/kelili/dht"
)

type memStore map[dht.ID][]byte

func (m memStore) Store(_ context.Context, data []byte) (dht.ID, error) {
	id := dht.Blake2s(data)
	m[id] = data
	return id, nil
}

func (m memStore) Find(_ context.Context, hash dht.ID) ([]byte, bool, error) {
	data, ok := m[hash]
	return data, ok, nil
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	store := memStore{}
	b := &Block{Index: 3, ManaLimit: 1000, MemoLimit: 64, Code: []byte("return 1"), Name: "one"}

	id, err := Put(ctx, store, b)
	require.NoError(t, err)
	want, err := Hash(b, nil)
	require.NoError(t, err)
	require.Equal(t, want, id)

	got, found, err := Get(ctx, store, id)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, b, got)

	_, found, err = Get(ctx, store, dht.Blake2s([]byte("nothing")))
	require.NoError(t, err)
	require.False(t, found)
}

func TestUnnamedBlockRoundTrip(t *testing.T) {
	b := &Block{Code: []byte{0x01}}
	encoded, err := Encode(b)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Empty(t, decoded.Name)
	require.Equal(t, b.Code, decoded.Code)
}

func TestGetRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	store := memStore{}
	id, err := store.Store(ctx, []byte{0xff, 0x00})
	require.NoError(t, err)

	_, found, err := Get(ctx, store, id)
	require.Error(t, err)
	require.False(t, found)
}

func TestBlockThroughPeer(t *testing.T) {
	ctx := context.Background()
	peer := dht.NewPeer(dht.DefaultConfig(), dht.NewSeededSource(5))
	defer peer.Close()

	b := &Block{Index: 1, Code: []byte("print('hi')"), Name: "hello"}
	id, err := Put(ctx, peer, b)
	require.NoError(t, err)

	got, found, err := Get(ctx, peer, id)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, b.Name, got.Name)
	require.Equal(t, b.Code, got.Code)
}
