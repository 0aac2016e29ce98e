package interceptors

import (
	"context"
	"time"

	"meteorgrid/internal/chain"
	"meteorgrid/internal/commands"
	"meteorgrid/internal/container"
	"meteorgrid/internal/gsnmanager"
	"meteorgrid/internal/invocation"
)

// EntryCommit stamps a new version on every changed entry and writes it to
// the container. Keys whose function failed are left untouched.
type EntryCommit[K comparable, V any] struct {
	container *container.Container[K, V]
	gsn       *gsnmanager.GsnManager
	now       func() time.Time
}

func NewEntryCommit[K comparable, V any](c *container.Container[K, V], gsn *gsnmanager.GsnManager) *EntryCommit[K, V] {
	return &EntryCommit[K, V]{container: c, gsn: gsn, now: time.Now}
}

func (c *EntryCommit[K, V]) Name() string { return "EntryCommit" }

func (c *EntryCommit[K, V]) Handle(ctx context.Context, ictx *invocation.Context[K, V], cmd commands.Command[K, V], next chain.Handler[K, V]) (any, error) {
	res, err := next(ctx, ictx, cmd)
	if err != nil {
		return nil, err
	}
	return forEachKey(cmd, res, func(r *commands.KeyResult[K]) {
		if r.Err == nil {
			c.commit(ictx, r.Key)
		}
	})
}

func (c *EntryCommit[K, V]) commit(ictx *invocation.Context[K, V], key K) {
	e, ok := ictx.Entry(key)
	if !ok || !e.Changed || e.Committed {
		return
	}
	version := c.gsn.NextAfter(e.PrevMetadata.Version)
	if e.Removed {
		c.container.Remove(key)
		e.Metadata = e.PrevMetadata
		e.Metadata.Version = version
	} else {
		e.Metadata = e.Metadata.WithVersion(version, c.now())
		c.container.Put(container.Entry[K, V]{Key: key, Value: e.Value, Metadata: e.Metadata})
	}
	e.Committed = true
}
