package interceptors

import (
	"context"
	"log/slog"
	"slices"

	"meteorgrid/internal/chain"
	"meteorgrid/internal/commands"
	"meteorgrid/internal/executor"
	"meteorgrid/internal/invocation"
	"meteorgrid/internal/param"
	"meteorgrid/internal/stream"
	"meteorgrid/internal/topology"
	"meteorgrid/internal/transport"

	"golang.org/x/sync/errgroup"
)

// Distribution runs keys on their primary owner. Keys owned here go down the
// chain; the rest are forwarded, grouped by primary. Once a key commits here
// it is replicated to the other write owners, which include the pending
// owners while state transfer runs.
type Distribution[K comparable, V any] struct {
	placement   Placement
	partitioner topology.KeyPartitioner
	transport   *transport.Transport[K, V]
	backups     *executor.Executor
	log         *slog.Logger
}

func NewDistribution[K comparable, V any](
	placement Placement,
	partitioner topology.KeyPartitioner,
	tr *transport.Transport[K, V],
	backups *executor.Executor,
	log *slog.Logger,
) *Distribution[K, V] {
	return &Distribution[K, V]{placement: placement, partitioner: partitioner, transport: tr, backups: backups, log: log}
}

func (d *Distribution[K, V]) Name() string { return "Distribution" }

func (d *Distribution[K, V]) Handle(ctx context.Context, ictx *invocation.Context[K, V], cmd commands.Command[K, V], next chain.Handler[K, V]) (any, error) {
	// A forwarded command already reached its primary.
	if !ictx.IsOriginLocal() {
		return d.local(ctx, ictx, cmd, next)
	}

	self := d.placement.Self()
	if !commands.IsMany(cmd) {
		primary := primaryOf(d.placement, d.partitioner, commands.Keys(cmd)[0])
		if primary == self {
			return d.local(ctx, ictx, cmd, next)
		}
		return d.forwardKey(ctx, ictx, cmd, primary)
	}

	var local []K
	remote := make(map[topology.Address][]K)
	for _, k := range commands.Keys(cmd) {
		primary := primaryOf(d.placement, d.partitioner, k)
		if primary == self {
			local = append(local, k)
		} else {
			remote[primary] = append(remote[primary], k)
		}
	}
	if len(remote) == 0 {
		return d.local(ctx, ictx, cmd, next)
	}

	var parts []stream.Iterator[commands.KeyResult[K]]
	if len(local) > 0 {
		res, err := d.local(ctx, ictx, commands.Subset(cmd, local), next)
		if err != nil {
			return nil, err
		}
		it, err := results[K](res)
		if err != nil {
			return nil, err
		}
		parts = append(parts, it)
	}
	owners := make([]topology.Address, 0, len(remote))
	for addr := range remote {
		owners = append(owners, addr)
	}
	slices.Sort(owners)
	for _, addr := range owners {
		sub := commands.Subset(cmd, remote[addr])
		parts = append(parts, stream.Lazy(func() (stream.Iterator[commands.KeyResult[K]], error) {
			return d.forwardMany(ctx, ictx, sub, addr), nil
		}))
	}
	return stream.Concat(parts...), nil
}

// local holds the installed topology until every key is replicated, so a
// rebalance only starts its transfer once older writes reached their owners.
func (d *Distribution[K, V]) local(ctx context.Context, ictx *invocation.Context[K, V], cmd commands.Command[K, V], next chain.Handler[K, V]) (any, error) {
	release := d.placement.AcquireRead(d.placement.Topology().ID)
	res, err := next(ctx, ictx, cmd)
	if err != nil {
		release()
		return nil, err
	}
	mode := cmd.Params().ReplicationMode()
	out, err := forEachKey(cmd, res, func(r *commands.KeyResult[K]) {
		if r.Err != nil {
			return
		}
		if err := d.replicate(ctx, ictx, r.Key, mode); err != nil {
			r.Err = err
		}
	})
	if err != nil || !commands.IsMany(cmd) {
		release()
		return out, err
	}
	return stream.OnClose(out.(stream.Iterator[commands.KeyResult[K]]), release), nil
}

func (d *Distribution[K, V]) forwardKey(ctx context.Context, ictx *invocation.Context[K, V], cmd commands.Command[K, V], primary topology.Address) (any, error) {
	member, err := d.transport.Member(primary)
	if err != nil {
		return nil, err
	}
	resp, err := member.HandleCommand(ctx, d.placement.Self(), cmd)
	if err != nil {
		return nil, err
	}
	d.adopt(ictx, resp)
	return resp.Value, nil
}

// forwardMany never fails as a whole: a transport failure becomes the
// error of every key sent to that member.
func (d *Distribution[K, V]) forwardMany(ctx context.Context, ictx *invocation.Context[K, V], cmd commands.Command[K, V], primary topology.Address) stream.Iterator[commands.KeyResult[K]] {
	failed := func(err error) stream.Iterator[commands.KeyResult[K]] {
		keys := commands.Keys(cmd)
		out := make([]commands.KeyResult[K], 0, len(keys))
		for _, k := range keys {
			out = append(out, commands.KeyResult[K]{Key: k, Err: err})
		}
		return stream.FromSlice(out)
	}
	member, err := d.transport.Member(primary)
	if err != nil {
		return failed(err)
	}
	resp, err := member.HandleCommand(ctx, d.placement.Self(), cmd)
	if err != nil {
		return failed(err)
	}
	d.adopt(ictx, resp)
	return stream.FromSlice(resp.Results)
}

// adopt records the entries the primary committed so the outer stages see them.
func (d *Distribution[K, V]) adopt(ictx *invocation.Context[K, V], resp *transport.Response[K, V]) {
	for i := range resp.Entries {
		e := resp.Entries[i]
		ictx.PutEntry(&e)
	}
}

func (d *Distribution[K, V]) replicate(ctx context.Context, ictx *invocation.Context[K, V], key K, mode param.ReplicationMode) error {
	e, ok := ictx.Entry(key)
	if !ok || !e.Changed || !e.Committed {
		return nil
	}
	self := d.placement.Self()
	var targets []topology.Address
	for _, addr := range d.placement.Topology().WriteOwners(d.partitioner.SegmentOf(key)) {
		if addr != self {
			targets = append(targets, addr)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	update := []transport.Update[K, V]{{Key: key, Value: e.Value, Metadata: e.Metadata, Removed: e.Removed}}
	send := func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		for _, addr := range targets {
			g.Go(func() error {
				member, err := d.transport.Member(addr)
				if err != nil {
					return err
				}
				return member.ApplyUpdates(gctx, update)
			})
		}
		return g.Wait()
	}

	if mode == param.ReplicationAsync {
		return d.backups.Submit(func() {
			if err := send(context.Background()); err != nil {
				d.log.Warn("Async replication failed", "key", key, "owners", targets, "error", err)
			}
		})
	}
	return send(ctx)
}
