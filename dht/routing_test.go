package dht

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testHandle(id ID) PeerInfo {
	return PeerInfo{ID: id, box: newMailbox(4)}
}

func TestRoutingTableObserveIsIdempotent(t *testing.T) {
	table := NewRoutingTable(testHandle(ID{}), 4)
	peer := testHandle(idWithPrefix(0x80))

	_, changed := table.Observe(peer)
	require.True(t, changed)
	_, changed = table.Observe(peer)
	require.False(t, changed)
	require.Equal(t, 1, table.Len())

	_, changed = table.Observe(testHandle(ID{}))
	require.False(t, changed, "self is never stored")
	require.Equal(t, 1, table.Len())
}

func TestRoutingTableOverflowEvictsFarthest(t *testing.T) {
	table := NewRoutingTable(testHandle(ID{}), 4)
	for _, prefix := range []byte{0x80, 0x90, 0xa0, 0xb0} {
		_, changed := table.Observe(testHandle(idWithPrefix(prefix)))
		require.True(t, changed)
	}
	require.Len(t, table.Bucket(255), 4)

	// The newcomer is the farthest, so it is the one dropped.
	evicted, changed := table.Observe(testHandle(idWithPrefix(0xf0)))
	require.False(t, changed)
	require.Equal(t, idWithPrefix(0xf0), evicted.ID)
	require.False(t, table.Contains(idWithPrefix(0xf0)))

	evicted, changed = table.Observe(testHandle(idWithPrefix(0x85)))
	require.True(t, changed)
	require.Equal(t, idWithPrefix(0xb0), evicted.ID)
	require.True(t, table.Contains(idWithPrefix(0x85)))
	require.False(t, table.Contains(idWithPrefix(0xb0)))
	require.Equal(t, 4, table.Len())
	require.Len(t, table.Bucket(255), 4)
}

func TestRoutingTableClosestIncludesSelf(t *testing.T) {
	self := testHandle(idWithPrefix(0x10))
	table := NewRoutingTable(self, DefaultK)
	for _, prefix := range []byte{0x80, 0x11, 0x40, 0x12} {
		table.Observe(testHandle(idWithPrefix(prefix)))
	}

	closest := table.Closest(idWithPrefix(0x10), 3)
	require.Len(t, closest, 3)
	require.Equal(t, self.ID, closest[0].ID)
	require.Equal(t, idWithPrefix(0x11), closest[1].ID)
	require.Equal(t, idWithPrefix(0x12), closest[2].ID)

	all := table.Closest(idWithPrefix(0x80), 100)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		prev := Distance(all[i-1].ID, idWithPrefix(0x80))
		cur := Distance(all[i].ID, idWithPrefix(0x80))
		require.True(t, prev.Cmp(cur) <= 0)
	}
	require.Nil(t, table.Closest(idWithPrefix(0x80), 0))
}

func TestRoutingTableRemove(t *testing.T) {
	table := NewRoutingTable(testHandle(ID{}), 4)
	table.Observe(testHandle(idWithPrefix(0x01)))
	table.Observe(testHandle(idWithPrefix(0x02)))

	require.True(t, table.Remove(idWithPrefix(0x01)))
	require.False(t, table.Remove(idWithPrefix(0x01)))
	require.False(t, table.Remove(ID{}))
	require.Equal(t, 1, table.Len())
	require.Len(t, table.Closest(ID{}, 10), 2)
}
