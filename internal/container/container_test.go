package container

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"meteorgrid/internal/common"
	"meteorgrid/internal/topology"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContainer() *Container[string, int] {
	return New[string, int](topology.NewKeyPartitioner(8))
}

func entry(key string, value int, version uint64) Entry[string, int] {
	return Entry[string, int]{Key: key, Value: value, Metadata: common.Metadata{Version: version}}
}

func TestPutGetRemove(t *testing.T) {
	c := newContainer()

	_, replaced := c.Put(entry("a", 1, 1))
	assert.False(t, replaced)
	prev, replaced := c.Put(entry("a", 2, 2))
	assert.True(t, replaced)
	assert.Equal(t, 1, prev.Value)

	e, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, e.Value)
	assert.Equal(t, 1, c.Size())

	_, ok = c.Remove("a")
	assert.True(t, ok)
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestPutIfNewerIsLastWriteWins(t *testing.T) {
	c := newContainer()
	assert.True(t, c.PutIfNewer(entry("a", 1, 5)))
	assert.False(t, c.PutIfNewer(entry("a", 2, 5)))
	assert.False(t, c.PutIfNewer(entry("a", 3, 4)))
	assert.True(t, c.PutIfNewer(entry("a", 4, 6)))

	e, _ := c.Get("a")
	assert.Equal(t, 4, e.Value)

	assert.False(t, c.RemoveIfNotNewer("a", 5))
	assert.True(t, c.RemoveIfNotNewer("a", 6))
}

func TestExpiredEntriesAreHidden(t *testing.T) {
	c := newContainer()
	now := time.Now()
	c.now = func() time.Time { return now }
	c.Put(Entry[string, int]{Key: "a", Value: 1, Metadata: common.Metadata{Created: now.Add(-time.Minute), Lifespan: time.Second}})

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Empty(t, c.SegmentEntries(c.SegmentOf("a")))
}

func TestSegments(t *testing.T) {
	c := newContainer()
	for i := 0; i < 100; i++ {
		c.Put(entry(fmt.Sprintf("k%d", i), i, 1))
	}

	total := 0
	for seg := 0; seg < c.NumSegments(); seg++ {
		for _, e := range c.SegmentEntries(seg) {
			assert.Equal(t, seg, c.SegmentOf(e.Key))
		}
		total += len(c.SegmentEntries(seg))
	}
	assert.Equal(t, 100, total)

	seg := c.SegmentOf("k1")
	inSeg := len(c.SegmentEntries(seg))
	removed := c.RemoveSegments(roaring.BitmapOf(uint32(seg)))
	assert.Len(t, removed, inSeg)
	assert.Equal(t, 100-inSeg, c.Size())
}

func TestScanWithFilter(t *testing.T) {
	c := newContainer()
	for i := 0; i < 10; i++ {
		c.Put(entry(fmt.Sprintf("k%d", i), i, 1))
	}
	even := c.ScanWithFilter(func(e Entry[string, int]) bool { return e.Value%2 == 0 })
	assert.Len(t, even, 5)
	assert.Equal(t, 5, c.CountWithFilter(func(e Entry[string, int]) bool { return e.Value >= 5 }))

	c.Clear()
	assert.Zero(t, c.Size())
}

func TestConcurrentWrites(t *testing.T) {
	c := newContainer()
	numThreads := 8
	numKeysPerThread := 250
	var wg sync.WaitGroup
	wg.Add(numThreads)
	for i := 0; i < numThreads; i++ {
		go func(threadID int) {
			defer wg.Done()
			for j := 0; j < numKeysPerThread; j++ {
				c.Put(entry(fmt.Sprintf("t%d-k%d", threadID, j), j, 1))
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, numThreads*numKeysPerThread, c.Size())
	assert.Len(t, c.Keys(), numThreads*numKeysPerThread)
}

type recordingObserver struct {
	stored  []string
	removed []string
}

func (r *recordingObserver) EntryStored(_ int, e Entry[string, int]) {
	r.stored = append(r.stored, e.Key)
}

func (r *recordingObserver) EntryRemoved(_ int, key string) {
	r.removed = append(r.removed, key)
}

func TestObserver(t *testing.T) {
	c := newContainer()
	obs := &recordingObserver{}
	c.SetObserver(obs)

	c.Put(entry("a", 1, 1))
	assert.False(t, c.PutIfNewer(entry("a", 2, 1)))
	assert.True(t, c.PutIfNewer(entry("b", 2, 3)))
	c.Remove("a")
	c.Remove("missing")
	assert.True(t, c.RemoveIfNotNewer("b", 3))

	assert.Equal(t, []string{"a", "b"}, obs.stored)
	assert.Equal(t, []string{"a", "b"}, obs.removed)
}
