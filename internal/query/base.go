package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"meteorgrid/internal/common"
	"meteorgrid/internal/query/index"
	"meteorgrid/internal/stream"
	"meteorgrid/internal/topology"
	"meteorgrid/internal/transport"
)

const (
	// Unbounded disables MaxResults.
	Unbounded = -1

	maxTopologyRetries = 10
	retryDelay         = 5 * time.Millisecond
)

// Source is the node a query runs on.
type Source[K comparable, V any] interface {
	Self() topology.Address
	Topology() *topology.CacheTopology
	Member(addr topology.Address) (transport.Member[K, V], error)
	// AcquireRead keeps segments of topologyID and older from being dropped
	// locally until the returned release is called.
	AcquireRead(topologyID int) func()
}

type BaseOptions struct {
	StartOffset   int
	MaxResults    int
	Local         bool
	ScoreRequired bool
	WithMetadata  bool
}

// BaseQuery produces the candidate entries of a query, each entry at most once.
type BaseQuery[K comparable, V any] interface {
	EntryIterator(ctx context.Context, opts BaseOptions) stream.Iterator[transport.Candidate[K, V]]
}

// segmentQuery asks, for every segment, the primary owner in the read hash
// for its candidates. With Local only the segments this node owns are read,
// from this node.
type segmentQuery[K comparable, V any] struct {
	src     Source[K, V]
	entity  string
	clauses []index.Clause
	log     *slog.Logger
}

type segmentGroup struct {
	addr topology.Address
	segs *roaring.Bitmap
}

func groupByPrimary(ch *topology.ConsistentHash, segs *roaring.Bitmap) []segmentGroup {
	byAddr := make(map[topology.Address]*roaring.Bitmap)
	it := segs.Iterator()
	for it.HasNext() {
		seg := it.Next()
		addr := ch.PrimaryOwner(int(seg))
		if byAddr[addr] == nil {
			byAddr[addr] = roaring.New()
		}
		byAddr[addr].Add(seg)
	}
	groups := make([]segmentGroup, 0, len(byAddr))
	for addr, b := range byAddr {
		groups = append(groups, segmentGroup{addr: addr, segs: b})
	}
	slices.SortFunc(groups, func(a, b segmentGroup) int {
		switch {
		case a.addr < b.addr:
			return -1
		case a.addr > b.addr:
			return 1
		}
		return 0
	})
	return groups
}

func (q *segmentQuery[K, V]) EntryIterator(ctx context.Context, opts BaseOptions) stream.Iterator[transport.Candidate[K, V]] {
	top := q.src.Topology()
	release := q.src.AcquireRead(top.ID)

	var groups []segmentGroup
	if opts.Local {
		groups = []segmentGroup{{addr: q.src.Self(), segs: top.ReadCH().OwnedSegments(q.src.Self())}}
	} else {
		all := roaring.New()
		all.AddRange(0, uint64(top.ReadCH().NumSegments()))
		groups = groupByPrimary(top.ReadCH(), all)
	}
	q.log.Debug("[QUERY] base", "entity", q.entity, "clauses", len(q.clauses), "topology", top.ID,
		"members", len(groups), "local", opts.Local)

	parts := make([]stream.Iterator[transport.Candidate[K, V]], 0, len(groups))
	for _, g := range groups {
		parts = append(parts, stream.Lazy(func() (stream.Iterator[transport.Candidate[K, V]], error) {
			cands, err := q.fetch(ctx, g, opts, 0)
			if err != nil {
				return nil, err
			}
			return stream.FromSlice(cands), nil
		}))
	}
	it := stream.Page(stream.Concat(parts...), opts.StartOffset, opts.MaxResults)
	return stream.OnClose(it, release)
}

func (q *segmentQuery[K, V]) fetch(ctx context.Context, g segmentGroup, opts BaseOptions, attempt int) ([]transport.Candidate[K, V], error) {
	if g.segs.IsEmpty() {
		return nil, nil
	}
	m, err := q.src.Member(g.addr)
	var cands []transport.Candidate[K, V]
	if err == nil {
		cands, err = m.Candidates(ctx, index.Request{
			Entity:   q.entity,
			Must:     q.clauses,
			Segments: g.segs,
			Score:    opts.ScoreRequired,
		})
	}
	retry := errors.Is(err, transport.ErrSegmentsNotOwned) || errors.Is(err, transport.ErrMemberNotFound)
	if err != nil && (!retry || opts.Local || attempt >= maxTopologyRetries) {
		return nil, fmt.Errorf("query: candidates from %s: %w", g.addr, err)
	}
	if err != nil {
		q.log.Debug("[QUERY] retrying segments", "member", g.addr, "segments", g.segs.GetCardinality(), "attempt", attempt+1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
		var out []transport.Candidate[K, V]
		for _, sub := range groupByPrimary(q.src.Topology().ReadCH(), g.segs) {
			c, err := q.fetch(ctx, sub, opts, attempt+1)
			if err != nil {
				return nil, err
			}
			out = append(out, c...)
		}
		return out, nil
	}
	if !opts.WithMetadata {
		for i := range cands {
			cands[i].Metadata = common.Metadata{}
		}
	}
	return cands, nil
}
