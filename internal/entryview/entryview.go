package entryview

import (
	"errors"
	"fmt"
	"time"

	"meteorgrid/internal/common"
	"meteorgrid/internal/invocation"
)

var ErrNoSuchEntry = errors.New("no such entry")

// ReadEntryView exposes the current value of one key to a user function.
type ReadEntryView[K comparable, V any] interface {
	Key() K
	Find() (V, bool)
	Get() (V, error)
	Metadata() common.Metadata
}

// ReadWriteEntryView additionally lets the function replace or remove the value.
type ReadWriteEntryView[K comparable, V any] interface {
	ReadEntryView[K, V]
	Set(value V, meta ...MetaParam)
	Remove()
}

// MetaParam adjusts the metadata stored with a new value.
type MetaParam func(*common.Metadata)

// Lifespan expires the entry d after it is written.
func Lifespan(d time.Duration) MetaParam {
	return func(md *common.Metadata) {
		md.Lifespan = d
	}
}

type readWriteView[K comparable, V any] struct {
	entry *invocation.CacheEntry[K, V]
}

// ReadWrite binds a view to the working copy of an invocation.
func ReadWrite[K comparable, V any](entry *invocation.CacheEntry[K, V]) ReadWriteEntryView[K, V] {
	return &readWriteView[K, V]{entry: entry}
}

func (v *readWriteView[K, V]) Key() K {
	return v.entry.Key
}

func (v *readWriteView[K, V]) Find() (V, bool) {
	return v.entry.Value, v.entry.Exists
}

func (v *readWriteView[K, V]) Get() (V, error) {
	if !v.entry.Exists {
		var zero V
		return zero, fmt.Errorf("%w: %v", ErrNoSuchEntry, v.entry.Key)
	}
	return v.entry.Value, nil
}

func (v *readWriteView[K, V]) Metadata() common.Metadata {
	return v.entry.Metadata
}

// Set keeps the creation time of an existing entry; a lifespan only survives
// when passed again.
func (v *readWriteView[K, V]) Set(value V, meta ...MetaParam) {
	md := common.Metadata{
		Version: v.entry.Metadata.Version,
		Created: v.entry.Metadata.Created,
	}
	if !v.entry.Exists {
		md.Created = time.Time{}
	}
	for _, m := range meta {
		m(&md)
	}
	v.entry.SetValue(value, md)
}

func (v *readWriteView[K, V]) Remove() {
	v.entry.Remove()
}
