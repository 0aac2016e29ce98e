package transport

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"meteorgrid/internal/commands"
	"meteorgrid/internal/common"
	"meteorgrid/internal/container"
	"meteorgrid/internal/invocation"
	"meteorgrid/internal/query/index"
	"meteorgrid/internal/topology"
)

var (
	ErrMemberNotFound = errors.New("transport: member not found")
	// ErrSegmentsNotOwned is returned by a member asked for segments it no
	// longer holds; the caller retries against a newer topology.
	ErrSegmentsNotOwned = errors.New("transport: segments not owned")
)

// Update is a committed change shipped from a primary owner to the other owners.
type Update[K comparable, V any] struct {
	Key      K
	Value    V
	Metadata common.Metadata
	Removed  bool
}

// Response carries the outcome of a command executed by a primary owner.
// Entries are the working copies the primary committed.
type Response[K comparable, V any] struct {
	Value   any
	Results []commands.KeyResult[K]
	Entries []invocation.CacheEntry[K, V]
}

// Candidate is an entry produced by a member for a base query.
type Candidate[K comparable, V any] struct {
	Key      K
	Value    V
	Metadata common.Metadata
	Score    float32
}

// Member is what one node exposes to the others.
type Member[K comparable, V any] interface {
	Address() topology.Address
	// HandleCommand executes cmd as primary owner of its keys.
	HandleCommand(ctx context.Context, origin topology.Address, cmd commands.Command[K, V]) (*Response[K, V], error)
	ApplyUpdates(ctx context.Context, updates []Update[K, V]) error
	SegmentEntries(ctx context.Context, segment int) ([]container.Entry[K, V], error)
	Candidates(ctx context.Context, req index.Request) ([]Candidate[K, V], error)
	InstallTopology(ctx context.Context, t *topology.CacheTopology) error
}

// Transport is an in-process member registry. Calls go straight to the
// registered member on the caller's goroutine.
type Transport[K comparable, V any] struct {
	mu      sync.RWMutex
	members map[topology.Address]Member[K, V]
}

func New[K comparable, V any]() *Transport[K, V] {
	return &Transport[K, V]{members: make(map[topology.Address]Member[K, V])}
}

func (t *Transport[K, V]) Register(m Member[K, V]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.members[m.Address()] = m
}

func (t *Transport[K, V]) Unregister(addr topology.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.members, addr)
}

func (t *Transport[K, V]) Member(addr topology.Address) (Member[K, V], error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.members[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, addr)
	}
	return m, nil
}

func (t *Transport[K, V]) Addresses() []topology.Address {
	t.mu.RLock()
	defer t.mu.RUnlock()
	addrs := make([]topology.Address, 0, len(t.members))
	for a := range t.members {
		addrs = append(addrs, a)
	}
	slices.Sort(addrs)
	return addrs
}
