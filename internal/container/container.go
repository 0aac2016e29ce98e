package container

import (
	"sync"
	"time"

	"meteorgrid/internal/common"
	"meteorgrid/internal/topology"

	"github.com/RoaringBitmap/roaring/v2"
)

// Entry is a stored key/value pair. Entries are immutable once stored.
type Entry[K comparable, V any] struct {
	Key      K
	Value    V
	Metadata common.Metadata
}

// Observer is told about every change to the container. Calls happen with the
// segment lock held, so an observer must not call back into the container.
type Observer[K comparable, V any] interface {
	EntryStored(segment int, e Entry[K, V])
	EntryRemoved(segment int, key K)
}

type segment[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]*Entry[K, V]
}

// Container is the node-local data store, split into segments that map 1:1
// onto topology segments. Each segment has its own lock.
type Container[K comparable, V any] struct {
	partitioner topology.KeyPartitioner
	segments    []*segment[K, V]
	observer    Observer[K, V]
	now         func() time.Time
}

func New[K comparable, V any](partitioner topology.KeyPartitioner) *Container[K, V] {
	segments := make([]*segment[K, V], partitioner.NumSegments())
	for i := range segments {
		segments[i] = &segment[K, V]{entries: make(map[K]*Entry[K, V])}
	}
	return &Container[K, V]{
		partitioner: partitioner,
		segments:    segments,
		now:         time.Now,
	}
}

// SetObserver must be called before the container is shared.
func (c *Container[K, V]) SetObserver(o Observer[K, V]) {
	c.observer = o
}

func (c *Container[K, V]) stored(seg int, e Entry[K, V]) {
	if c.observer != nil {
		c.observer.EntryStored(seg, e)
	}
}

func (c *Container[K, V]) removed(seg int, key K) {
	if c.observer != nil {
		c.observer.EntryRemoved(seg, key)
	}
}

func (c *Container[K, V]) SegmentOf(key K) int {
	return c.partitioner.SegmentOf(key)
}

func (c *Container[K, V]) NumSegments() int {
	return len(c.segments)
}

func (c *Container[K, V]) segmentFor(key K) *segment[K, V] {
	return c.segments[c.partitioner.SegmentOf(key)]
}

// Get returns the live entry for key. Expired entries are reported missing.
func (c *Container[K, V]) Get(key K) (Entry[K, V], bool) {
	s := c.segmentFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok || e.Metadata.IsExpired(c.now()) {
		return Entry[K, V]{}, false
	}
	return *e, true
}

// Put stores e and returns the entry it replaced.
func (c *Container[K, V]) Put(e Entry[K, V]) (Entry[K, V], bool) {
	seg := c.SegmentOf(e.Key)
	s := c.segments[seg]
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.entries[e.Key]
	stored := e
	s.entries[e.Key] = &stored
	c.stored(seg, e)
	if !ok {
		return Entry[K, V]{}, false
	}
	return *prev, true
}

// PutIfNewer stores e unless the current entry has an equal or higher
// version. Used when applying replicated and transferred entries.
func (c *Container[K, V]) PutIfNewer(e Entry[K, V]) bool {
	seg := c.SegmentOf(e.Key)
	s := c.segments[seg]
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.entries[e.Key]; ok && prev.Metadata.Version >= e.Metadata.Version {
		return false
	}
	stored := e
	s.entries[e.Key] = &stored
	c.stored(seg, e)
	return true
}

func (c *Container[K, V]) Remove(key K) (Entry[K, V], bool) {
	seg := c.SegmentOf(key)
	s := c.segments[seg]
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.entries[key]
	if !ok {
		return Entry[K, V]{}, false
	}
	delete(s.entries, key)
	c.removed(seg, key)
	return *prev, true
}

// RemoveIfNotNewer removes key unless the stored entry carries a version
// above version.
func (c *Container[K, V]) RemoveIfNotNewer(key K, version uint64) bool {
	seg := c.SegmentOf(key)
	s := c.segments[seg]
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.entries[key]
	if !ok || prev.Metadata.Version > version {
		return false
	}
	delete(s.entries, key)
	c.removed(seg, key)
	return true
}

func (c *Container[K, V]) Size() int {
	total := 0
	for _, s := range c.segments {
		s.mu.RLock()
		total += len(s.entries)
		s.mu.RUnlock()
	}
	return total
}

// Keys returns a snapshot of every stored key.
func (c *Container[K, V]) Keys() []K {
	keys := make([]K, 0)
	for _, s := range c.segments {
		s.mu.RLock()
		for k := range s.entries {
			keys = append(keys, k)
		}
		s.mu.RUnlock()
	}
	return keys
}

// SegmentEntries returns a snapshot of the live entries of one segment.
func (c *Container[K, V]) SegmentEntries(seg int) []Entry[K, V] {
	s := c.segments[seg]
	now := c.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry[K, V], 0, len(s.entries))
	for _, e := range s.entries {
		if !e.Metadata.IsExpired(now) {
			out = append(out, *e)
		}
	}
	return out
}

// RemoveSegments drops every entry of the given segments and returns the removed keys.
func (c *Container[K, V]) RemoveSegments(segments *roaring.Bitmap) []K {
	var removed []K
	it := segments.Iterator()
	for it.HasNext() {
		seg := int(it.Next())
		if seg >= len(c.segments) {
			continue
		}
		s := c.segments[seg]
		s.mu.Lock()
		for k := range s.entries {
			removed = append(removed, k)
			c.removed(seg, k)
		}
		s.entries = make(map[K]*Entry[K, V])
		s.mu.Unlock()
	}
	return removed
}

func (c *Container[K, V]) Clear() {
	for seg, s := range c.segments {
		s.mu.Lock()
		for k := range s.entries {
			c.removed(seg, k)
		}
		s.entries = make(map[K]*Entry[K, V])
		s.mu.Unlock()
	}
}

// ScanWithFilter returns the live entries accepted by filterFunc.
func (c *Container[K, V]) ScanWithFilter(filterFunc func(Entry[K, V]) bool) []Entry[K, V] {
	result := make([]Entry[K, V], 0)
	for seg := range c.segments {
		for _, e := range c.SegmentEntries(seg) {
			if filterFunc(e) {
				result = append(result, e)
			}
		}
	}
	return result
}

func (c *Container[K, V]) CountWithFilter(filterFunc func(Entry[K, V]) bool) int {
	return len(c.ScanWithFilter(filterFunc))
}
