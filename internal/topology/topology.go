package topology

import (
	"fmt"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
)

// CacheTopology is the ownership view installed on every member. While state
// transfer runs Pending holds the target hash: reads still go to Current
// owners and writes go to the owners of both.
type CacheTopology struct {
	ID      int
	Members []Address
	Current *ConsistentHash
	Pending *ConsistentHash
}

func (t *CacheTopology) IsRebalancing() bool {
	return t.Pending != nil
}

// ReadCH is the hash that serves reads and queries.
func (t *CacheTopology) ReadCH() *ConsistentHash {
	return t.Current
}

// WriteCH is the union of the current and pending hashes.
func (t *CacheTopology) WriteCH() *ConsistentHash {
	if t.Pending == nil {
		return t.Current
	}
	return t.Current.Union(t.Pending)
}

func (t *CacheTopology) PrimaryOwner(segment int) Address {
	return t.Current.PrimaryOwner(segment)
}

func (t *CacheTopology) WriteOwners(segment int) []Address {
	owners := slices.Clone(t.Current.Owners(segment))
	if t.Pending != nil {
		for _, m := range t.Pending.Owners(segment) {
			if !slices.Contains(owners, m) {
				owners = append(owners, m)
			}
		}
	}
	return owners
}

func (t *CacheTopology) OwnedSegments(addr Address) *roaring.Bitmap {
	return t.ReadCH().OwnedSegments(addr)
}

func (t *CacheTopology) IsMember(addr Address) bool {
	return slices.Contains(t.Members, addr)
}

func (t *CacheTopology) String() string {
	return fmt.Sprintf("CacheTopology{id=%d, members=%v, rebalancing=%t}", t.ID, t.Members, t.IsRebalancing())
}
