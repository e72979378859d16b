package dht

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func idWithPrefix(prefix ...byte) ID {
	var id ID
	copy(id[:], prefix)
	return id
}

func TestDistanceIsSymmetricXOR(t *testing.T) {
	src := NewSeededSource(7)
	for i := 0; i < 32; i++ {
		a, b := RandomID(src), RandomID(src)
		require.Equal(t, Distance(a, b), Distance(b, a))
		require.True(t, Distance(a, a).IsZero())
		require.Equal(t, b, Distance(Distance(a, b), a))
	}
}

func TestBucketIndex(t *testing.T) {
	var self ID
	if _, ok := BucketIndex(self, self); ok {
		t.Fatalf("self must not have a bucket")
	}

	idx, ok := BucketIndex(self, idWithPrefix(0x80))
	require.True(t, ok)
	require.Equal(t, 255, idx)

	idx, ok = BucketIndex(self, idWithPrefix(0x01))
	require.True(t, ok)
	require.Equal(t, 248, idx)

	var last ID
	last[IDLength-1] = 1
	idx, ok = BucketIndex(self, last)
	require.True(t, ok)
	require.Equal(t, 0, idx)

	// Only the distance matters, not the absolute position.
	a, b := idWithPrefix(0xff, 0x00), idWithPrefix(0xff, 0x40)
	idx, ok = BucketIndex(a, b)
	require.True(t, ok)
	require.Equal(t, 246, idx)
}

func TestParseIDRoundTrip(t *testing.T) {
	id := RandomID(NewSeededSource(1))

	parsed, err := ParseID(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	parsed, err = ParseID("0x" + id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	_, err = ParseID("abcd")
	require.Error(t, err)
	_, err = ParseID("zz")
	require.Error(t, err)
}

func TestSeededSourceIsDeterministic(t *testing.T) {
	a, b := NewSeededSource(42), NewSeededSource(42)
	for i := 0; i < 8; i++ {
		require.Equal(t, a.NextU64(), b.NextU64())
	}
	require.NotEqual(t, RandomID(NewSeededSource(1)), RandomID(NewSeededSource(2)))
}

func TestHasherByName(t *testing.T) {
	data := []byte("kelili")

	h, err := HasherByName("")
	require.NoError(t, err)
	require.Equal(t, Blake2s(data), h(data))

	h, err = HasherByName(" BLAKE3 ")
	require.NoError(t, err)
	require.Equal(t, Blake3(data), h(data))
	require.NotEqual(t, Blake2s(data), Blake3(data))

	_, err = HasherByName("sha1")
	require.Error(t, err)
}
