package interceptors

import (
	"context"
	"time"

	"meteorgrid/internal/chain"
	"meteorgrid/internal/commands"
	"meteorgrid/internal/common"
	"meteorgrid/internal/container"
	"meteorgrid/internal/invocation"
	"meteorgrid/internal/param"
	"meteorgrid/internal/persistence"
)

// EntryWrapping installs the entry lookup of the invocation: the container
// first, then the stores on a miss. Loaded entries are activated into the
// container.
type EntryWrapping[K comparable, V any] struct {
	container   *container.Container[K, V]
	persistence *persistence.Manager[K, V]
	now         func() time.Time
}

func NewEntryWrapping[K comparable, V any](c *container.Container[K, V], m *persistence.Manager[K, V]) *EntryWrapping[K, V] {
	return &EntryWrapping[K, V]{container: c, persistence: m, now: time.Now}
}

func (w *EntryWrapping[K, V]) Name() string { return "EntryWrapping" }

func (w *EntryWrapping[K, V]) Handle(ctx context.Context, ictx *invocation.Context[K, V], cmd commands.Command[K, V], next chain.Handler[K, V]) (any, error) {
	load := w.persistence != nil && w.persistence.Enabled() && cmd.Params().PersistenceMode() != param.PersistSkip
	ictx.SetLookup(func(ctx context.Context, key K) (*invocation.CacheEntry[K, V], error) {
		if e, ok := w.container.Get(key); ok {
			return invocation.NewCacheEntry(key, e.Value, e.Metadata, true), nil
		}
		var zero V
		if !load {
			return invocation.NewCacheEntry(key, zero, common.Metadata{}, false), nil
		}
		me, err := w.persistence.Load(ctx, key)
		if err != nil {
			return nil, err
		}
		if me == nil || me.Metadata.IsExpired(w.now()) {
			return invocation.NewCacheEntry(key, zero, common.Metadata{}, false), nil
		}
		w.container.PutIfNewer(container.Entry[K, V]{Key: key, Value: me.Value, Metadata: me.Metadata})
		ce := invocation.NewCacheEntry(key, me.Value, me.Metadata, true)
		ce.Loaded = true
		return ce, nil
	})
	return next(ctx, ictx, cmd)
}
