package invocation

import (
	"context"
	"fmt"

	"meteorgrid/internal/common"

	"go.uber.org/atomic"
)

// CacheEntry is the per-invocation working copy of one key.
type CacheEntry[K comparable, V any] struct {
	Key      K
	Value    V
	Metadata common.Metadata
	// Exists is true when the key had a live value when it was looked up.
	Exists bool

	Prev         V
	PrevMetadata common.Metadata
	HadPrev      bool

	Created bool
	Changed bool
	Removed bool
	Loaded  bool
	// Committed is set once the change reached the data container.
	Committed bool
}

// NewCacheEntry wraps a looked up value. exists=false creates an empty entry.
func NewCacheEntry[K comparable, V any](key K, value V, md common.Metadata, exists bool) *CacheEntry[K, V] {
	return &CacheEntry[K, V]{
		Key:          key,
		Value:        value,
		Metadata:     md,
		Exists:       exists,
		Prev:         value,
		PrevMetadata: md,
		HadPrev:      exists,
	}
}

func (e *CacheEntry[K, V]) SetValue(value V, md common.Metadata) {
	e.Value = value
	e.Metadata = md
	e.Created = !e.HadPrev
	e.Removed = false
	e.Changed = true
	e.Exists = true
}

func (e *CacheEntry[K, V]) Remove() {
	var zero V
	e.Value = zero
	e.Exists = false
	e.Created = false
	e.Removed = e.HadPrev
	e.Changed = e.HadPrev
}

func (e *CacheEntry[K, V]) String() string {
	return fmt.Sprintf("CacheEntry{key=%v, exists=%t, created=%t, changed=%t, removed=%t, loaded=%t}",
		e.Key, e.Exists, e.Created, e.Changed, e.Removed, e.Loaded)
}

// Origin is the address an invocation came from. LocalOrigin marks calls made on this node.
type Origin string

const LocalOrigin Origin = ""

// EntryLookup fetches the working copy of a key that is not yet in the context.
type EntryLookup[K comparable, V any] func(ctx context.Context, key K) (*CacheEntry[K, V], error)

// Context holds the state of one invocation. It is never shared between invocations.
type Context[K comparable, V any] struct {
	id      uint64
	origin  Origin
	entries map[K]*CacheEntry[K, V]
	lookup  EntryLookup[K, V]
}

func (c *Context[K, V]) ID() uint64 {
	return c.id
}

func (c *Context[K, V]) Origin() Origin {
	return c.origin
}

func (c *Context[K, V]) IsOriginLocal() bool {
	return c.origin == LocalOrigin
}

// SetLookup installs the function used by Lookup on a miss.
func (c *Context[K, V]) SetLookup(lookup EntryLookup[K, V]) {
	c.lookup = lookup
}

// Lookup returns the working copy of key, fetching it on first access.
func (c *Context[K, V]) Lookup(ctx context.Context, key K) (*CacheEntry[K, V], error) {
	if e, ok := c.entries[key]; ok {
		return e, nil
	}
	if c.lookup == nil {
		var zero V
		e := NewCacheEntry(key, zero, common.Metadata{}, false)
		c.entries[key] = e
		return e, nil
	}
	e, err := c.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	c.entries[key] = e
	return e, nil
}

// Entry returns the working copy if key was already looked up.
func (c *Context[K, V]) Entry(key K) (*CacheEntry[K, V], bool) {
	e, ok := c.entries[key]
	return e, ok
}

// PutEntry records an entry resolved elsewhere, e.g. by the primary owner.
func (c *Context[K, V]) PutEntry(e *CacheEntry[K, V]) {
	c.entries[e.Key] = e
}

func (c *Context[K, V]) Entries() map[K]*CacheEntry[K, V] {
	return c.entries
}

// Factory creates invocation contexts with node-unique ids.
type Factory[K comparable, V any] struct {
	nextID *atomic.Uint64
}

func NewFactory[K comparable, V any]() *Factory[K, V] {
	return &Factory[K, V]{nextID: atomic.NewUint64(0)}
}

// Create returns a context sized for the given number of keys.
func (f *Factory[K, V]) Create(origin Origin, size int) *Context[K, V] {
	return &Context[K, V]{
		id:      f.nextID.Inc(),
		origin:  origin,
		entries: make(map[K]*CacheEntry[K, V], size),
	}
}
