package interceptors

import (
	"cmp"
	"context"
	"slices"
	"time"

	"meteorgrid/internal/chain"
	"meteorgrid/internal/commands"
	"meteorgrid/internal/common"
	"meteorgrid/internal/invocation"
	"meteorgrid/internal/lockmanager"
	"meteorgrid/internal/param"
	"meteorgrid/internal/stream"
	"meteorgrid/internal/topology"
)

// Locking takes a write lock on every key this node is primary owner of.
// Keys owned elsewhere are locked by their primary when the command is
// forwarded there. Locks are taken in a fixed order and owned by the
// invocation id.
type Locking[K comparable, V any] struct {
	locks       *lockmanager.LockManager
	timeout     time.Duration
	placement   Placement
	partitioner topology.KeyPartitioner
}

func NewLocking[K comparable, V any](locks *lockmanager.LockManager, timeout time.Duration, placement Placement, partitioner topology.KeyPartitioner) *Locking[K, V] {
	return &Locking[K, V]{locks: locks, timeout: timeout, placement: placement, partitioner: partitioner}
}

func (l *Locking[K, V]) Name() string { return "Locking" }

func (l *Locking[K, V]) Handle(ctx context.Context, ictx *invocation.Context[K, V], cmd commands.Command[K, V], next chain.Handler[K, V]) (any, error) {
	if cmd.Params().LockingMode() == param.LockingSkip {
		return next(ctx, ictx, cmd)
	}

	owner := ictx.ID()
	keys := l.lockable(cmd)
	for _, k := range keys {
		if err := l.locks.AcquireLock(ctx, owner, k, lockmanager.WriteLock, l.timeout); err != nil {
			_ = l.locks.ReleaseAllLocks(owner)
			return nil, err
		}
	}

	res, err := next(ctx, ictx, cmd)
	if err != nil || !commands.IsMany(cmd) {
		_ = l.locks.ReleaseAllLocks(owner)
		return res, err
	}

	held := make(map[K]struct{}, len(keys))
	for _, k := range keys {
		held[k] = struct{}{}
	}
	res, err = forEachKey(cmd, res, func(r *commands.KeyResult[K]) {
		if _, ok := held[r.Key]; ok {
			delete(held, r.Key)
			_ = l.locks.ReleaseLock(owner, r.Key, lockmanager.WriteLock)
		}
	})
	if err != nil {
		_ = l.locks.ReleaseAllLocks(owner)
		return nil, err
	}
	return stream.OnClose(res.(stream.Iterator[commands.KeyResult[K]]), func() {
		_ = l.locks.ReleaseAllLocks(owner)
	}), nil
}

// lockable returns the locally owned keys in lock order.
func (l *Locking[K, V]) lockable(cmd commands.Command[K, V]) []K {
	self := l.placement.Self()
	var keys []K
	for _, k := range commands.Keys(cmd) {
		if primaryOf(l.placement, l.partitioner, k) == self {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, func(a, b K) int {
		if c := cmp.Compare(common.HashKey(a), common.HashKey(b)); c != 0 {
			return c
		}
		return cmp.Compare(common.KeyString(a), common.KeyString(b))
	})
	return keys
}
