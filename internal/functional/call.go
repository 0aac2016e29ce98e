package functional

import (
	"context"
	"fmt"

	"meteorgrid/internal/commands"
	"meteorgrid/internal/entryview"
	"meteorgrid/internal/invocation"
	"meteorgrid/internal/stream"
)

// Call is the terminal handler of the chain. It applies the user function
// of cmd to the working copy of each key. Many-key commands return a lazy
// stream that applies the function as it is pulled.
func Call[K comparable, V any](ctx context.Context, ictx *invocation.Context[K, V], cmd commands.Command[K, V]) (any, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	switch c := cmd.(type) {
	case *commands.ReadWriteKeyCommand[K, V]:
		return applyKey(ctx, ictx, c.Key, func(view entryview.ReadWriteEntryView[K, V]) (any, error) {
			return c.Fn(view)
		})
	case *commands.ReadWriteKeyValueCommand[K, V]:
		return applyKey(ctx, ictx, c.Key, func(view entryview.ReadWriteEntryView[K, V]) (any, error) {
			return c.Fn(c.Value, view)
		})
	case *commands.ReadWriteManyCommand[K, V]:
		return applyMany(ctx, ictx, c.Keys, func(K) commands.KeyFunc[K, V] { return c.Fn }), nil
	case *commands.ReadWriteManyEntriesCommand[K, V]:
		return applyMany(ctx, ictx, c.Keys, func(k K) commands.KeyFunc[K, V] {
			value := c.Entries[k]
			return func(view entryview.ReadWriteEntryView[K, V]) (any, error) {
				return c.Fn(value, view)
			}
		}), nil
	default:
		return nil, fmt.Errorf("unsupported command %T", cmd)
	}
}

func applyKey[K comparable, V any](ctx context.Context, ictx *invocation.Context[K, V], key K, fn commands.KeyFunc[K, V]) (any, error) {
	entry, err := ictx.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	return invokeUser(entry, fn)
}

func applyMany[K comparable, V any](ctx context.Context, ictx *invocation.Context[K, V], keys []K, fnFor func(K) commands.KeyFunc[K, V]) stream.Iterator[commands.KeyResult[K]] {
	pos := 0
	return stream.Func(func() (commands.KeyResult[K], bool, error) {
		if pos >= len(keys) {
			return commands.KeyResult[K]{}, false, nil
		}
		key := keys[pos]
		pos++
		v, err := applyKey(ctx, ictx, key, fnFor(key))
		return commands.KeyResult[K]{Key: key, Value: v, Err: err}, true, nil
	}, nil)
}

func invokeUser[K comparable, V any](entry *invocation.CacheEntry[K, V], fn commands.KeyFunc[K, V]) (v any, err error) {
	defer func() {
		if p := recover(); p != nil {
			v, err = nil, &KeyError{Key: entry.Key, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	v, err = fn(entryview.ReadWrite(entry))
	if err != nil {
		return nil, &KeyError{Key: entry.Key, Err: err}
	}
	return v, nil
}
