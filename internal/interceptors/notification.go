package interceptors

import (
	"context"

	"meteorgrid/internal/chain"
	"meteorgrid/internal/commands"
	"meteorgrid/internal/invocation"
	"meteorgrid/internal/notify"
)

// Notification fires listener events for committed keys. Only the node the
// invocation started on fires.
type Notification[K comparable, V any] struct{}

func NewNotification[K comparable, V any]() *Notification[K, V] {
	return &Notification[K, V]{}
}

func (n *Notification[K, V]) Name() string { return "Notification" }

func (n *Notification[K, V]) Handle(ctx context.Context, ictx *invocation.Context[K, V], cmd commands.Command[K, V], next chain.Handler[K, V]) (any, error) {
	res, err := next(ctx, ictx, cmd)
	if err != nil || !ictx.IsOriginLocal() {
		return res, err
	}
	registry := cmd.Notifier()
	if registry == nil || registry.Len() == 0 {
		return res, nil
	}
	return forEachKey(cmd, res, func(r *commands.KeyResult[K]) {
		if r.Err != nil {
			return
		}
		if e, ok := ictx.Entry(r.Key); ok && e.Changed && e.Committed {
			registry.Fire(eventOf(e))
		}
	})
}

func eventOf[K comparable, V any](e *invocation.CacheEntry[K, V]) notify.Event[K, V] {
	ev := notify.Event[K, V]{
		Type:     notify.Modified,
		Key:      e.Key,
		Prev:     e.Prev,
		HadPrev:  e.HadPrev,
		Value:    e.Value,
		Metadata: e.Metadata,
	}
	switch {
	case e.Removed:
		ev.Type = notify.Removed
	case e.Created:
		ev.Type = notify.Created
	}
	return ev
}
