package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"meteorgrid/internal/cache"
	"meteorgrid/internal/topology"
)

const defaultChunkSize = 512

// transfer makes every member pull the segments the pending hash gives it
// and it does not hold yet. Each member pulls from the current primary
// owners concurrently, one source per goroutine.
func (c *Cluster[K, V]) transfer(ctx context.Context, members []topology.Address) error {
	limiter := c.limiter()
	g, gctx := errgroup.WithContext(ctx)
	for _, addr := range members {
		node, ok := c.Node(addr)
		if !ok {
			continue
		}
		missing := node.MissingSegments()
		if missing.IsEmpty() {
			continue
		}
		sources := bySource(node.Topology().ReadCH(), missing)
		for src, segs := range sources {
			g.Go(func() error {
				return c.pull(gctx, node, src, segs, limiter)
			})
		}
	}
	return g.Wait()
}

func (c *Cluster[K, V]) limiter() *rate.Limiter {
	st := c.cfg.Clustering.StateTransfer
	chunk := st.ChunkSize
	if chunk <= 0 {
		chunk = defaultChunkSize
	}
	if st.EntriesPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, chunk)
	}
	return rate.NewLimiter(rate.Limit(st.EntriesPerSecond), max(chunk, st.EntriesPerSecond))
}

func bySource(ch *topology.ConsistentHash, segs *roaring.Bitmap) map[topology.Address]*roaring.Bitmap {
	out := make(map[topology.Address]*roaring.Bitmap)
	it := segs.Iterator()
	for it.HasNext() {
		seg := it.Next()
		src := ch.PrimaryOwner(int(seg))
		if out[src] == nil {
			out[src] = roaring.New()
		}
		out[src].Add(seg)
	}
	return out
}

// pull copies segs from src into node, chunk by chunk. A segment counts as
// held once all its entries are applied.
func (c *Cluster[K, V]) pull(ctx context.Context, node *cache.Node[K, V], src topology.Address, segs *roaring.Bitmap, limiter *rate.Limiter) error {
	start := time.Now()
	source, err := c.transport.Member(src)
	if err != nil {
		return err
	}
	chunk := c.cfg.Clustering.StateTransfer.ChunkSize
	if chunk <= 0 {
		chunk = defaultChunkSize
	}

	received, stored := 0, 0
	it := segs.Iterator()
	for it.HasNext() {
		seg := it.Next()
		entries, err := source.SegmentEntries(ctx, int(seg))
		if err != nil {
			return fmt.Errorf("segment %d from %s: %w", seg, src, err)
		}
		for lo := 0; lo < len(entries); lo += chunk {
			part := entries[lo:min(lo+chunk, len(entries))]
			if err := limiter.WaitN(ctx, len(part)); err != nil {
				return err
			}
			n, err := node.ApplyTransfer(ctx, part)
			if err != nil {
				return fmt.Errorf("applying segment %d on %s: %w", seg, node.Address(), err)
			}
			received += len(part)
			stored += n
		}
		node.MarkHeld(roaring.BitmapOf(seg))
	}
	c.log.Info("State transfer done",
		"from", src, "to", node.Address(),
		"segments", segs.GetCardinality(),
		"entries", humanize.Comma(int64(received)),
		"stored", humanize.Comma(int64(stored)),
		"took", time.Since(start))
	return nil
}
