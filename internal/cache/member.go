package cache

import (
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"go.uber.org/multierr"

	"meteorgrid/internal/commands"
	"meteorgrid/internal/container"
	"meteorgrid/internal/invocation"
	"meteorgrid/internal/persistence"
	"meteorgrid/internal/query/index"
	"meteorgrid/internal/query/objectfilter"
	"meteorgrid/internal/stream"
	"meteorgrid/internal/topology"
	"meteorgrid/internal/transport"
)

// HandleCommand runs cmd for a member that forwarded it here as primary owner.
func (n *Node[K, V]) HandleCommand(ctx context.Context, origin topology.Address, cmd commands.Command[K, V]) (*transport.Response[K, V], error) {
	ictx := n.contexts.Create(invocation.Origin(origin), len(commands.Keys(cmd)))
	res, err := n.chain.Invoke(ctx, ictx, cmd)
	if err != nil {
		return nil, err
	}
	resp := &transport.Response[K, V]{}
	if commands.IsMany(cmd) {
		it, ok := res.(stream.Iterator[commands.KeyResult[K]])
		if !ok {
			return nil, fmt.Errorf("unexpected result %T for %s", res, commands.Kind(cmd))
		}
		if resp.Results, err = stream.Collect(it); err != nil {
			return nil, err
		}
	} else {
		resp.Value = res
	}
	for _, e := range ictx.Entries() {
		if e.Changed && e.Committed {
			resp.Entries = append(resp.Entries, *e)
		}
	}
	return resp, nil
}

// ApplyUpdates stores changes committed by a primary owner. Older versions
// than the ones held are ignored.
func (n *Node[K, V]) ApplyUpdates(ctx context.Context, updates []transport.Update[K, V]) error {
	top := n.Topology()
	rebalancing := top != nil && top.IsRebalancing()
	var err error
	for _, u := range updates {
		n.gsn.Observe(u.Metadata.Version)
		if u.Removed {
			n.container.RemoveIfNotNewer(u.Key, u.Metadata.Version)
			if rebalancing {
				n.mu.Lock()
				n.tombstones[u.Key] = max(n.tombstones[u.Key], u.Metadata.Version)
				n.mu.Unlock()
			}
			if n.persistence.Enabled() {
				_, derr := n.persistence.Delete(ctx, u.Key)
				err = multierr.Append(err, derr)
			}
			continue
		}
		stored := n.container.PutIfNewer(container.Entry[K, V]{Key: u.Key, Value: u.Value, Metadata: u.Metadata})
		if stored && n.persistence.Enabled() {
			err = multierr.Append(err, n.persistence.Write(ctx, persistence.MarshalledEntry[K, V]{
				Key: u.Key, Value: u.Value, Metadata: u.Metadata,
			}))
		}
	}
	n.stats.RecordReplication(len(updates))
	return err
}

func (n *Node[K, V]) SegmentEntries(_ context.Context, segment int) ([]container.Entry[K, V], error) {
	if segment < 0 || segment >= n.container.NumSegments() {
		return nil, fmt.Errorf("segment %d out of range", segment)
	}
	return n.container.SegmentEntries(segment), nil
}

// Candidates answers a base query over segments this node holds. Indexed
// entities are searched in the index, others are scanned.
func (n *Node[K, V]) Candidates(_ context.Context, req index.Request) ([]transport.Candidate[K, V], error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	segs := req.Segments
	if segs == nil {
		segs = n.held.Clone()
	} else if missing := roaring.AndNot(segs, n.held); !missing.IsEmpty() {
		return nil, fmt.Errorf("%w: %s lacks %d of %d segments", transport.ErrSegmentsNotOwned, n.addr,
			missing.GetCardinality(), segs.GetCardinality())
	}

	var out []transport.Candidate[K, V]
	if e, ok := n.schema.Lookup(req.Entity); ok {
		req.Entity = e.Name
		req.Segments = segs
		for _, h := range n.index.Search(req) {
			entry, ok := n.container.Get(h.Key)
			if !ok {
				continue
			}
			out = append(out, transport.Candidate[K, V]{Key: h.Key, Value: entry.Value, Metadata: entry.Metadata, Score: h.Score})
		}
		return out, nil
	}
	it := segs.Iterator()
	for it.HasNext() {
		for _, e := range n.container.SegmentEntries(int(it.Next())) {
			if objectfilter.SameEntity(objectfilter.EntityName(e.Value), req.Entity) {
				out = append(out, transport.Candidate[K, V]{Key: e.Key, Value: e.Value, Metadata: e.Metadata})
			}
		}
	}
	return out, nil
}

// InstallTopology switches to t and returns once local readers and writers of
// older topologies are done. Once t is stable, segments this node no longer
// owns are dropped.
func (n *Node[K, V]) InstallTopology(ctx context.Context, t *topology.CacheTopology) error {
	n.mu.Lock()
	if n.topology != nil && t.ID <= n.topology.ID {
		n.mu.Unlock()
		return nil
	}
	if n.topology == nil {
		n.held = t.Current.OwnedSegments(n.addr)
	}
	n.topology = t
	var lost *roaring.Bitmap
	if !t.IsRebalancing() {
		lost = roaring.AndNot(n.held, t.Current.OwnedSegments(n.addr))
		clear(n.tombstones)
	}
	n.mu.Unlock()
	n.log.Debug("Installed topology", "topology", t.String())

	if t.IsRebalancing() {
		// Writes still on an older topology may skip the pending owners.
		return n.transfers.AwaitReaders(ctx, t.ID)
	}
	if lost.IsEmpty() {
		return nil
	}
	if err := n.transfers.AwaitReaders(ctx, t.ID); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.held.AndNot(lost)
	removed := n.container.RemoveSegments(lost)
	n.index.DropSegments(lost)
	n.log.Info("Dropped segments", "segments", lost.GetCardinality(), "entries", len(removed))
	return nil
}

// MissingSegments are the segments the installed topology assigns to this
// node that it does not hold yet.
func (n *Node[K, V]) MissingSegments() *roaring.Bitmap {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.topology == nil {
		return roaring.New()
	}
	target := n.topology.Current
	if n.topology.Pending != nil {
		target = n.topology.Pending
	}
	return roaring.AndNot(target.OwnedSegments(n.addr), n.held)
}

// ApplyTransfer stores entries received by state transfer. An entry is
// skipped when a newer version or a removal of its key arrived meanwhile.
func (n *Node[K, V]) ApplyTransfer(ctx context.Context, entries []container.Entry[K, V]) (int, error) {
	stored := 0
	var err error
	for _, e := range entries {
		n.mu.RLock()
		tomb, removed := n.tombstones[e.Key]
		n.mu.RUnlock()
		if removed && tomb >= e.Metadata.Version {
			continue
		}
		n.gsn.Observe(e.Metadata.Version)
		if !n.container.PutIfNewer(e) {
			continue
		}
		stored++
		if n.persistence.Enabled() {
			err = multierr.Append(err, n.persistence.Write(ctx, persistence.MarshalledEntry[K, V]{
				Key: e.Key, Value: e.Value, Metadata: e.Metadata,
			}))
		}
	}
	n.stats.RecordTransfer(stored)
	return stored, err
}

// MarkHeld records that the given segments were transferred completely.
func (n *Node[K, V]) MarkHeld(segs *roaring.Bitmap) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.held.Or(segs)
}
