package commands

import (
	"maps"

	"meteorgrid/internal/notify"
	"meteorgrid/internal/param"

	"github.com/google/uuid"
)

// Factory builds commands bound to one listener registry.
type Factory[K comparable, V any] struct {
	notifier *notify.Registry[K, V]
}

func NewFactory[K comparable, V any](notifier *notify.Registry[K, V]) *Factory[K, V] {
	return &Factory[K, V]{notifier: notifier}
}

func (f *Factory[K, V]) newBase(params param.Params) base[K, V] {
	return base[K, V]{id: uuid.New(), params: params, notifier: f.notifier}
}

func (f *Factory[K, V]) BuildReadWriteKeyCommand(key K, fn KeyFunc[K, V], params param.Params) *ReadWriteKeyCommand[K, V] {
	return &ReadWriteKeyCommand[K, V]{base: f.newBase(params), Key: key, Fn: fn}
}

func (f *Factory[K, V]) BuildReadWriteKeyValueCommand(key K, value V, fn KeyValueFunc[K, V], params param.Params) *ReadWriteKeyValueCommand[K, V] {
	return &ReadWriteKeyValueCommand[K, V]{base: f.newBase(params), Key: key, Value: value, Fn: fn}
}

// BuildReadWriteManyCommand copies keys and drops duplicates, keeping the first occurrence.
func (f *Factory[K, V]) BuildReadWriteManyCommand(keys []K, fn KeyFunc[K, V], params param.Params) *ReadWriteManyCommand[K, V] {
	seen := make(map[K]struct{}, len(keys))
	unique := make([]K, 0, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, k)
	}
	return &ReadWriteManyCommand[K, V]{base: f.newBase(params), Keys: unique, Fn: fn}
}

func (f *Factory[K, V]) BuildReadWriteManyEntriesCommand(entries map[K]V, fn KeyValueFunc[K, V], params param.Params) *ReadWriteManyEntriesCommand[K, V] {
	keys := make([]K, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	return &ReadWriteManyEntriesCommand[K, V]{base: f.newBase(params), Entries: maps.Clone(entries), Keys: keys, Fn: fn}
}
