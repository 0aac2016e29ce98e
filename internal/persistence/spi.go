package persistence

import (
	"context"

	"meteorgrid/internal/common"
	"meteorgrid/internal/stream"
)

// MarshalledEntry is the unit exchanged with stores.
type MarshalledEntry[K comparable, V any] struct {
	Key      K
	Value    V
	Metadata common.Metadata
}

type Lifecycle interface {
	Start(ctx context.Context) error
	Stop() error
}

// Destroyer is implemented by stores that can remove their backing data.
type Destroyer interface {
	Destroy() error
}

// Availability is implemented by stores whose backend can go away.
type Availability interface {
	IsAvailable() bool
}

// CacheLoader reads entries. Load returns nil, nil for a missing key.
type CacheLoader[K comparable, V any] interface {
	Lifecycle
	Load(ctx context.Context, key K) (*MarshalledEntry[K, V], error)
	Contains(ctx context.Context, key K) (bool, error)
}

// EntryLister is implemented by loaders that can enumerate their content for preload.
type EntryLister[K comparable, V any] interface {
	Entries(ctx context.Context) stream.Iterator[MarshalledEntry[K, V]]
}

type CacheWriter[K comparable, V any] interface {
	Lifecycle
	Write(ctx context.Context, entry MarshalledEntry[K, V]) error
	Delete(ctx context.Context, key K) (bool, error)
}

type ExternalStore[K comparable, V any] interface {
	CacheLoader[K, V]
	CacheWriter[K, V]
}

// Destroy removes the store's data when it supports it and stops it otherwise.
func Destroy(s Lifecycle) error {
	if d, ok := s.(Destroyer); ok {
		return d.Destroy()
	}
	return s.Stop()
}

// IsAvailable defaults to true for stores without an availability check.
func IsAvailable(s Lifecycle) bool {
	if a, ok := s.(Availability); ok {
		return a.IsAvailable()
	}
	return true
}
