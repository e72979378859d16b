package dht

import "slices"

// DefaultK is the default bucket capacity.
const DefaultK = 20

// RoutingTable holds up to k peers per XOR-distance bucket. It is owned by a
// single Peer actor and is not safe for concurrent use.
type RoutingTable struct {
	self    PeerInfo
	k       int
	buckets [NumBuckets][]PeerInfo
	size    int
}

// NewRoutingTable returns an empty table centred on self.
func NewRoutingTable(self PeerInfo, k int) *RoutingTable {
	if k < 1 {
		k = DefaultK
	}
	return &RoutingTable{self: self, k: k}
}

// Observe inserts info unless it is self or already present. When the bucket
// overflows, the entry farthest from self among the old entries and the new
// one is evicted. It returns the evicted peer, if any, and whether the table
// changed.
func (t *RoutingTable) Observe(info PeerInfo) (evicted PeerInfo, changed bool) {
	idx, ok := BucketIndex(t.self.ID, info.ID)
	if !ok {
		return PeerInfo{}, false
	}
	bucket := t.buckets[idx]
	for _, existing := range bucket {
		if existing.ID == info.ID {
			return PeerInfo{}, false
		}
	}
	bucket = append(bucket, info)
	if len(bucket) <= t.k {
		t.buckets[idx] = bucket
		t.size++
		return PeerInfo{}, true
	}

	far := 0
	farDist := Distance(t.self.ID, bucket[0].ID)
	for i := 1; i < len(bucket); i++ {
		if d := Distance(t.self.ID, bucket[i].ID); farDist.Less(d) {
			far, farDist = i, d
		}
	}
	evicted = bucket[far]
	t.buckets[idx] = slices.Delete(bucket, far, far+1)
	return evicted, evicted.ID != info.ID
}

// Remove drops the peer with the given id.
func (t *RoutingTable) Remove(id ID) bool {
	idx, ok := BucketIndex(t.self.ID, id)
	if !ok {
		return false
	}
	bucket := t.buckets[idx]
	for i, existing := range bucket {
		if existing.ID == id {
			t.buckets[idx] = slices.Delete(bucket, i, i+1)
			t.size--
			return true
		}
	}
	return false
}

// Contains reports whether id is in the table.
func (t *RoutingTable) Contains(id ID) bool {
	idx, ok := BucketIndex(t.self.ID, id)
	if !ok {
		return false
	}
	for _, existing := range t.buckets[idx] {
		if existing.ID == id {
			return true
		}
	}
	return false
}

// Closest returns up to n peers ordered by distance to target, nearest first.
// Self is always a candidate, so callers may find themselves in the result.
func (t *RoutingTable) Closest(target ID, n int) []PeerInfo {
	if n <= 0 {
		return nil
	}
	candidates := make([]PeerInfo, 0, t.size+1)
	candidates = append(candidates, t.self)
	for _, bucket := range t.buckets {
		candidates = append(candidates, bucket...)
	}
	slices.SortFunc(candidates, func(a, b PeerInfo) int {
		return Distance(a.ID, target).Cmp(Distance(b.ID, target))
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

// Bucket returns a copy of bucket i.
func (t *RoutingTable) Bucket(i int) []PeerInfo {
	if i < 0 || i >= NumBuckets {
		return nil
	}
	return slices.Clone(t.buckets[i])
}

// Len returns the number of peers in the table.
func (t *RoutingTable) Len() int {
	return t.size
}

// K returns the bucket capacity.
func (t *RoutingTable) K() int {
	return t.k
}
