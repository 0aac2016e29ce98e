package topology

import (
	"crypto/sha256"
	"fmt"
	"slices"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
)

// DefaultVirtualNodes is the default number of ring positions per member.
const DefaultVirtualNodes = 150

// Address identifies a cluster member.
type Address string

// ConsistentHash is an immutable segment ownership table. Every segment has
// an ordered owner list whose first element is the primary owner. Owners are
// picked by walking a hash ring of virtual nodes clockwise from the segment's
// position, so adding or removing a member moves only a fraction of segments.
type ConsistentHash struct {
	members   []Address
	numOwners int
	owners    [][]Address
}

// NewConsistentHash builds the table. numOwners <= 0 or >= len(members) makes
// every member own every segment (replicated mode).
func NewConsistentHash(members []Address, numSegments, numOwners, virtualNodes int) *ConsistentHash {
	if virtualNodes <= 0 {
		virtualNodes = DefaultVirtualNodes
	}
	if numSegments <= 0 {
		numSegments = 1
	}
	sorted := slices.Clone(members)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	if numOwners <= 0 || numOwners > len(sorted) {
		numOwners = len(sorted)
	}

	ring := make(map[uint32]Address, len(sorted)*virtualNodes)
	hashes := make([]uint32, 0, len(sorted)*virtualNodes)
	for _, member := range sorted {
		for i := 0; i < virtualNodes; i++ {
			h := hashKey(fmt.Sprintf("%s:%d", member, i))
			if _, taken := ring[h]; taken {
				continue
			}
			ring[h] = member
			hashes = append(hashes, h)
		}
	}
	slices.Sort(hashes)

	owners := make([][]Address, numSegments)
	for seg := range owners {
		owners[seg] = pickOwners(ring, hashes, hashKey(fmt.Sprintf("segment:%d", seg)), numOwners)
	}

	return &ConsistentHash{members: sorted, numOwners: numOwners, owners: owners}
}

func pickOwners(ring map[uint32]Address, hashes []uint32, start uint32, n int) []Address {
	if len(hashes) == 0 || n == 0 {
		return nil
	}
	picked := make([]Address, 0, n)
	idx := search(hashes, start)
	for i := 0; i < len(hashes) && len(picked) < n; i++ {
		member := ring[hashes[(idx+i)%len(hashes)]]
		if !slices.Contains(picked, member) {
			picked = append(picked, member)
		}
	}
	return picked
}

// search finds the first hash >= the given hash, wrapping around to index 0.
func search(hashes []uint32, hash uint32) int {
	idx := sort.Search(len(hashes), func(i int) bool {
		return hashes[i] >= hash
	})
	if idx == len(hashes) {
		idx = 0
	}
	return idx
}

// hashKey uses the first 4 bytes of the SHA-256 digest as ring position.
func hashKey(key string) uint32 {
	h := sha256.Sum256([]byte(key))
	return uint32(h[0])<<24 | uint32(h[1])<<16 | uint32(h[2])<<8 | uint32(h[3])
}

func (c *ConsistentHash) Members() []Address {
	return slices.Clone(c.members)
}

func (c *ConsistentHash) NumSegments() int {
	return len(c.owners)
}

func (c *ConsistentHash) NumOwners() int {
	return c.numOwners
}

func (c *ConsistentHash) Owners(segment int) []Address {
	return c.owners[segment]
}

func (c *ConsistentHash) PrimaryOwner(segment int) Address {
	if owners := c.owners[segment]; len(owners) > 0 {
		return owners[0]
	}
	return ""
}

func (c *ConsistentHash) IsOwner(addr Address, segment int) bool {
	return slices.Contains(c.owners[segment], addr)
}

// OwnedSegments returns the segments addr owns as primary or backup.
func (c *ConsistentHash) OwnedSegments(addr Address) *roaring.Bitmap {
	bm := roaring.New()
	for seg, owners := range c.owners {
		if slices.Contains(owners, addr) {
			bm.Add(uint32(seg))
		}
	}
	return bm
}

// PrimarySegments returns the segments addr is primary owner of.
func (c *ConsistentHash) PrimarySegments(addr Address) *roaring.Bitmap {
	bm := roaring.New()
	for seg := range c.owners {
		if c.PrimaryOwner(seg) == addr {
			bm.Add(uint32(seg))
		}
	}
	return bm
}

// Union keeps the primaries of c and appends the owners only other has.
func (c *ConsistentHash) Union(other *ConsistentHash) *ConsistentHash {
	members := slices.Clone(c.members)
	for _, m := range other.members {
		if !slices.Contains(members, m) {
			members = append(members, m)
		}
	}
	slices.Sort(members)

	owners := make([][]Address, len(c.owners))
	for seg := range owners {
		merged := slices.Clone(c.owners[seg])
		for _, m := range other.owners[seg] {
			if !slices.Contains(merged, m) {
				merged = append(merged, m)
			}
		}
		owners[seg] = merged
	}
	return &ConsistentHash{members: members, numOwners: max(c.numOwners, other.numOwners), owners: owners}
}

func (c *ConsistentHash) Stats() map[string]any {
	return map[string]any{
		"members":    len(c.members),
		"segments":   len(c.owners),
		"num_owners": c.numOwners,
	}
}
