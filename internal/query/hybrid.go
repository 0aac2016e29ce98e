package query

import (
	"context"

	"github.com/bits-and-blooms/bitset"

	"meteorgrid/internal/query/objectfilter"
	"meteorgrid/internal/stats"
	"meteorgrid/internal/stream"
	"meteorgrid/internal/transport"
)

// HybridQuery runs the candidates of a base query through an ObjectFilter.
// Candidates come back in base order; the base is read once.
type HybridQuery[K comparable, V any] struct {
	base   BaseQuery[K, V]
	filter *objectfilter.ObjectFilter
	stats  *stats.Stats
}

func NewHybridQuery[K comparable, V any](base BaseQuery[K, V], filter *objectfilter.ObjectFilter, st *stats.Stats) *HybridQuery[K, V] {
	return &HybridQuery[K, V]{base: base, filter: filter, stats: st}
}

func (q *HybridQuery[K, V]) Iterator(ctx context.Context, local bool) stream.Iterator[objectfilter.FilterResult] {
	src := q.base.EntryIterator(ctx, BaseOptions{MaxResults: Unbounded, Local: local})
	return q.filtered(src, nil)
}

func (q *HybridQuery[K, V]) filtered(src stream.Iterator[transport.Candidate[K, V]],
	patch func(*objectfilter.FilterResult, transport.Candidate[K, V])) stream.Iterator[objectfilter.FilterResult] {
	return stream.Func(func() (objectfilter.FilterResult, bool, error) {
		for src.Next() {
			c := src.Value()
			r := q.filter.Filter(c.Key, c.Value, c.Metadata)
			if q.stats != nil {
				q.stats.RecordCandidate(r != nil)
			}
			if r == nil {
				continue
			}
			if patch != nil {
				patch(r, c)
			}
			return *r, true, nil
		}
		return objectfilter.FilterResult{}, false, src.Err()
	}, src.Close)
}

// MetadataHybridQuery is a HybridQuery whose results may carry the entry
// score and version. Where they go is worked out once, from the projection.
type MetadataHybridQuery[K comparable, V any] struct {
	HybridQuery[K, V]
	scorePositions    *bitset.BitSet
	sortScore         []int
	versionProjection bool
	projectionLength  int
}

func NewMetadataHybridQuery[K comparable, V any](base BaseQuery[K, V], filter *objectfilter.ObjectFilter, st *stats.Stats) *MetadataHybridQuery[K, V] {
	q := &MetadataHybridQuery[K, V]{HybridQuery: HybridQuery[K, V]{base: base, filter: filter, stats: st}}
	projection := filter.Projection()
	q.projectionLength = len(projection)
	q.scorePositions = bitset.New(uint(len(projection)))
	for i, p := range projection {
		switch p {
		case objectfilter.ScoreProperty:
			q.scorePositions.Set(uint(i))
		case objectfilter.VersionProperty:
			q.versionProjection = true
		}
	}
	for i, s := range filter.OrderBy() {
		switch s.Path {
		case objectfilter.ScoreProperty:
			q.sortScore = append(q.sortScore, i)
		case objectfilter.VersionProperty:
			q.versionProjection = true
		}
	}
	return q
}

// needsMetadata reports whether a plain HybridQuery would lose information.
func needsMetadata(f *objectfilter.ObjectFilter) bool {
	for _, p := range f.Projection() {
		if p == objectfilter.ScoreProperty || p == objectfilter.VersionProperty {
			return true
		}
	}
	for _, s := range f.OrderBy() {
		if s.Path == objectfilter.ScoreProperty || s.Path == objectfilter.VersionProperty {
			return true
		}
	}
	return false
}

func (q *MetadataHybridQuery[K, V]) scoreRequired() bool {
	return q.scorePositions.Any() || len(q.sortScore) > 0
}

func (q *MetadataHybridQuery[K, V]) Iterator(ctx context.Context, local bool) stream.Iterator[objectfilter.FilterResult] {
	src := q.base.EntryIterator(ctx, BaseOptions{
		MaxResults:    Unbounded,
		Local:         local,
		ScoreRequired: q.scoreRequired(),
		WithMetadata:  q.versionProjection,
	})
	if !q.scoreRequired() {
		return q.filtered(src, nil)
	}
	return q.filtered(src, q.patch)
}

// patch fills the score into projecting results. A result without projection
// only gets its sort keys, so ORDER BY score(e) still orders instances.
func (q *MetadataHybridQuery[K, V]) patch(r *objectfilter.FilterResult, c transport.Candidate[K, V]) {
	if r.Projection != nil {
		r.Score, r.HasScore = c.Score, true
		for i, ok := q.scorePositions.NextSet(0); ok; i, ok = q.scorePositions.NextSet(i + 1) {
			r.Projection[i] = c.Score
		}
	}
	for _, i := range q.sortScore {
		r.SortProjection[i] = c.Score
	}
}
