package notify

import (
	"fmt"
	"log/slog"
	"sync"

	"meteorgrid/internal/common"

	"github.com/google/uuid"
)

type EventType int

const (
	Created EventType = iota
	Modified
	Removed
)

func (t EventType) String() string {
	switch t {
	case Created:
		return "CREATED"
	case Modified:
		return "MODIFIED"
	case Removed:
		return "REMOVED"
	default:
		return "UNKNOWN"
	}
}

// Event describes one committed change. Prev is only meaningful when HadPrev is set.
type Event[K comparable, V any] struct {
	Type     EventType
	Key      K
	Prev     V
	HadPrev  bool
	Value    V
	Metadata common.Metadata
}

type Listener[K comparable, V any] func(Event[K, V])

// Handle identifies a registration.
type Handle uuid.UUID

func (h Handle) String() string {
	return uuid.UUID(h).String()
}

type registration[K comparable, V any] struct {
	types    []EventType
	listener Listener[K, V]
}

func (r registration[K, V]) accepts(t EventType) bool {
	for _, rt := range r.types {
		if rt == t {
			return true
		}
	}
	return false
}

// Registry holds the listeners of one cache. A single registry is shared by
// every functional map view and every command built for them.
type Registry[K comparable, V any] struct {
	mu        sync.RWMutex
	listeners map[Handle]registration[K, V]
	order     []Handle
}

func NewRegistry[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{listeners: make(map[Handle]registration[K, V])}
}

func (r *Registry[K, V]) OnCreate(l Listener[K, V]) Handle {
	return r.add(l, Created)
}

func (r *Registry[K, V]) OnModify(l Listener[K, V]) Handle {
	return r.add(l, Modified)
}

func (r *Registry[K, V]) OnRemove(l Listener[K, V]) Handle {
	return r.add(l, Removed)
}

// OnWrite receives every event type.
func (r *Registry[K, V]) OnWrite(l Listener[K, V]) Handle {
	return r.add(l, Created, Modified, Removed)
}

func (r *Registry[K, V]) add(l Listener[K, V], types ...EventType) Handle {
	h := Handle(uuid.New())
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[h] = registration[K, V]{types: types, listener: l}
	r.order = append(r.order, h)
	return h
}

// Remove unregisters h. It reports whether h was registered.
func (r *Registry[K, V]) Remove(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.listeners[h]; !ok {
		return false
	}
	delete(r.listeners, h)
	for i, o := range r.order {
		if o == h {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

// Fire delivers ev to the matching listeners in registration order. A
// panicking listener is logged and does not affect the others.
func (r *Registry[K, V]) Fire(ev Event[K, V]) {
	r.mu.RLock()
	targets := make([]Listener[K, V], 0, len(r.order))
	for _, h := range r.order {
		if reg := r.listeners[h]; reg.accepts(ev.Type) {
			targets = append(targets, reg.listener)
		}
	}
	r.mu.RUnlock()

	for _, l := range targets {
		deliver(l, ev)
	}
}

func deliver[K comparable, V any](l Listener[K, V], ev Event[K, V]) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Listener panicked", "event", ev.Type.String(), "key", fmt.Sprint(ev.Key), "panic", fmt.Sprint(rec))
		}
	}()
	l(ev)
}
