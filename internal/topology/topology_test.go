package topology

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionerIsStable(t *testing.T) {
	p := NewKeyPartitioner(16)
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("key-%d", i)
		seg := p.SegmentOf(key)
		assert.GreaterOrEqual(t, seg, 0)
		assert.Less(t, seg, 16)
		assert.Equal(t, seg, p.SegmentOf(key))
	}
}

func TestReplicatedHashOwnsEverything(t *testing.T) {
	ch := NewConsistentHash([]Address{"b", "a"}, 32, 0, 50)
	assert.Equal(t, []Address{"a", "b"}, ch.Members())
	for seg := 0; seg < ch.NumSegments(); seg++ {
		assert.Len(t, ch.Owners(seg), 2)
	}
	assert.Equal(t, uint64(32), ch.OwnedSegments("a").GetCardinality())

	primaries := ch.PrimarySegments("a").GetCardinality() + ch.PrimarySegments("b").GetCardinality()
	assert.Equal(t, uint64(32), primaries)
}

func TestDistributedHashHonoursNumOwners(t *testing.T) {
	members := []Address{"a", "b", "c", "d"}
	ch := NewConsistentHash(members, 64, 2, 100)
	for seg := 0; seg < ch.NumSegments(); seg++ {
		owners := ch.Owners(seg)
		require.Len(t, owners, 2)
		assert.NotEqual(t, owners[0], owners[1])
	}
	for _, m := range members {
		assert.Positive(t, ch.OwnedSegments(m).GetCardinality(), "member %s owns nothing", m)
	}
}

func TestAddingMemberMovesFewPrimaries(t *testing.T) {
	before := NewConsistentHash([]Address{"a", "b", "c"}, 256, 1, 150)
	after := NewConsistentHash([]Address{"a", "b", "c", "d"}, 256, 1, 150)

	moved := 0
	for seg := 0; seg < 256; seg++ {
		if before.PrimaryOwner(seg) != after.PrimaryOwner(seg) {
			assert.Equal(t, Address("d"), after.PrimaryOwner(seg))
			moved++
		}
	}
	assert.Less(t, moved, 256/2)
}

func TestRebalancingTopology(t *testing.T) {
	current := NewConsistentHash([]Address{"a"}, 8, 0, 10)
	pending := NewConsistentHash([]Address{"a", "b"}, 8, 0, 10)
	topo := &CacheTopology{ID: 2, Members: []Address{"a", "b"}, Current: current, Pending: pending}

	assert.True(t, topo.IsRebalancing())
	assert.Same(t, current, topo.ReadCH())
	for seg := 0; seg < 8; seg++ {
		assert.Equal(t, Address("a"), topo.PrimaryOwner(seg))
		assert.ElementsMatch(t, []Address{"a", "b"}, topo.WriteOwners(seg))
	}
	assert.True(t, topo.OwnedSegments("b").IsEmpty())
	assert.Equal(t, uint64(8), topo.WriteCH().OwnedSegments("b").GetCardinality())
}

func TestStateTransferLockWaitsForOlderReaders(t *testing.T) {
	l := NewStateTransferLock()
	releaseOld := l.AcquireRead(1)
	releaseNew := l.AcquireRead(2)
	defer releaseNew()

	assert.Equal(t, 1, l.Readers(2))
	assert.Equal(t, 0, l.Readers(1))

	done := make(chan error, 1)
	go func() { done <- l.AwaitReaders(context.Background(), 2) }()

	select {
	case <-done:
		t.Fatal("AwaitReaders returned while a reader of topology 1 was active")
	case <-time.After(20 * time.Millisecond):
	}

	releaseOld()
	releaseOld()
	require.NoError(t, <-done)
	assert.Equal(t, 0, l.Readers(2))
	assert.Equal(t, 1, l.Readers(3))
}

func TestStateTransferLockTimeout(t *testing.T) {
	l := NewStateTransferLock()
	release := l.AcquireRead(4)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.AwaitReaders(ctx, 5)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
