package commands

import (
	"fmt"

	"meteorgrid/internal/entryview"
	"meteorgrid/internal/notify"
	"meteorgrid/internal/param"

	"github.com/google/uuid"
)

// KeyFunc is a user function with its result type erased.
type KeyFunc[K comparable, V any] func(entryview.ReadWriteEntryView[K, V]) (any, error)

// KeyValueFunc also receives the value passed along with the key.
type KeyValueFunc[K comparable, V any] func(V, entryview.ReadWriteEntryView[K, V]) (any, error)

// Command is one of ReadWriteKeyCommand, ReadWriteKeyValueCommand,
// ReadWriteManyCommand or ReadWriteManyEntriesCommand. The set is closed.
type Command[K comparable, V any] interface {
	ID() uuid.UUID
	Params() param.Params
	Notifier() *notify.Registry[K, V]
	Validate() error

	sealed()
}

// KeyResult is the outcome of a many-key command for one key.
type KeyResult[K comparable] struct {
	Key   K
	Value any
	Err   error
}

type base[K comparable, V any] struct {
	id       uuid.UUID
	params   param.Params
	notifier *notify.Registry[K, V]
}

func (b *base[K, V]) ID() uuid.UUID                     { return b.id }
func (b *base[K, V]) Params() param.Params              { return b.params }
func (b *base[K, V]) Notifier() *notify.Registry[K, V] { return b.notifier }
func (b *base[K, V]) sealed()                           {}

type ReadWriteKeyCommand[K comparable, V any] struct {
	base[K, V]
	Key K
	Fn  KeyFunc[K, V]
}

func (c *ReadWriteKeyCommand[K, V]) Validate() error {
	if c.Fn == nil {
		return ErrNilFunction
	}
	return validateKey(c.Key)
}

type ReadWriteKeyValueCommand[K comparable, V any] struct {
	base[K, V]
	Key   K
	Value V
	Fn    KeyValueFunc[K, V]
}

func (c *ReadWriteKeyValueCommand[K, V]) Validate() error {
	if c.Fn == nil {
		return ErrNilFunction
	}
	return validateKey(c.Key)
}

type ReadWriteManyCommand[K comparable, V any] struct {
	base[K, V]
	Keys []K
	Fn   KeyFunc[K, V]
}

func (c *ReadWriteManyCommand[K, V]) Validate() error {
	if c.Fn == nil {
		return ErrNilFunction
	}
	for _, k := range c.Keys {
		if err := validateKey(k); err != nil {
			return err
		}
	}
	return nil
}

// WithKeys returns a copy restricted to keys, keeping the invocation id.
func (c *ReadWriteManyCommand[K, V]) WithKeys(keys []K) *ReadWriteManyCommand[K, V] {
	cp := *c
	cp.Keys = append([]K(nil), keys...)
	return &cp
}

// ReadWriteManyEntriesCommand applies Fn to each key with its value. Keys
// holds the iteration order of Entries.
type ReadWriteManyEntriesCommand[K comparable, V any] struct {
	base[K, V]
	Entries map[K]V
	Keys    []K
	Fn      KeyValueFunc[K, V]
}

func (c *ReadWriteManyEntriesCommand[K, V]) Validate() error {
	if c.Fn == nil {
		return ErrNilFunction
	}
	for _, k := range c.Keys {
		if err := validateKey(k); err != nil {
			return err
		}
	}
	return nil
}

func (c *ReadWriteManyEntriesCommand[K, V]) WithKeys(keys []K) *ReadWriteManyEntriesCommand[K, V] {
	cp := *c
	cp.Keys = append([]K(nil), keys...)
	cp.Entries = make(map[K]V, len(keys))
	for _, k := range keys {
		cp.Entries[k] = c.Entries[k]
	}
	return &cp
}

func validateKey[K comparable](key K) error {
	if any(key) == nil {
		return ErrNilKey
	}
	return nil
}

// Keys returns the keys a command operates on.
func Keys[K comparable, V any](cmd Command[K, V]) []K {
	switch c := cmd.(type) {
	case *ReadWriteKeyCommand[K, V]:
		return []K{c.Key}
	case *ReadWriteKeyValueCommand[K, V]:
		return []K{c.Key}
	case *ReadWriteManyCommand[K, V]:
		return c.Keys
	case *ReadWriteManyEntriesCommand[K, V]:
		return c.Keys
	default:
		panic(fmt.Sprintf("unknown command %T", cmd))
	}
}

// IsMany reports whether cmd returns a stream of KeyResult.
func IsMany[K comparable, V any](cmd Command[K, V]) bool {
	switch cmd.(type) {
	case *ReadWriteManyCommand[K, V], *ReadWriteManyEntriesCommand[K, V]:
		return true
	default:
		return false
	}
}

func Kind[K comparable, V any](cmd Command[K, V]) string {
	switch cmd.(type) {
	case *ReadWriteKeyCommand[K, V]:
		return "ReadWriteKey"
	case *ReadWriteKeyValueCommand[K, V]:
		return "ReadWriteKeyValue"
	case *ReadWriteManyCommand[K, V]:
		return "ReadWriteMany"
	case *ReadWriteManyEntriesCommand[K, V]:
		return "ReadWriteManyEntries"
	default:
		return fmt.Sprintf("%T", cmd)
	}
}

// Subset restricts a many-key command to keys. Single-key commands are returned as is.
func Subset[K comparable, V any](cmd Command[K, V], keys []K) Command[K, V] {
	switch c := cmd.(type) {
	case *ReadWriteManyCommand[K, V]:
		return c.WithKeys(keys)
	case *ReadWriteManyEntriesCommand[K, V]:
		return c.WithKeys(keys)
	default:
		return cmd
	}
}
