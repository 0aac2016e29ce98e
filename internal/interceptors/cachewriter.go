package interceptors

import (
	"context"

	"meteorgrid/internal/chain"
	"meteorgrid/internal/commands"
	"meteorgrid/internal/invocation"
	"meteorgrid/internal/param"
	"meteorgrid/internal/persistence"
)

// CacheWriter mirrors committed changes into the configured stores.
type CacheWriter[K comparable, V any] struct {
	persistence *persistence.Manager[K, V]
}

func NewCacheWriter[K comparable, V any](m *persistence.Manager[K, V]) *CacheWriter[K, V] {
	return &CacheWriter[K, V]{persistence: m}
}

func (w *CacheWriter[K, V]) Name() string { return "CacheWriter" }

func (w *CacheWriter[K, V]) Handle(ctx context.Context, ictx *invocation.Context[K, V], cmd commands.Command[K, V], next chain.Handler[K, V]) (any, error) {
	if w.persistence == nil || !w.persistence.Enabled() || cmd.Params().PersistenceMode() == param.PersistSkip {
		return next(ctx, ictx, cmd)
	}
	res, err := next(ctx, ictx, cmd)
	if err != nil {
		return nil, err
	}
	return forEachKey(cmd, res, func(r *commands.KeyResult[K]) {
		if r.Err != nil {
			return
		}
		e, ok := ictx.Entry(r.Key)
		if !ok || !e.Changed || !e.Committed {
			return
		}
		if e.Removed {
			_, r.Err = w.persistence.Delete(ctx, e.Key)
			return
		}
		r.Err = w.persistence.Write(ctx, persistence.MarshalledEntry[K, V]{Key: e.Key, Value: e.Value, Metadata: e.Metadata})
	})
}
