// Package query runs queries over the entries of a cluster.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"meteorgrid/internal/query/objectfilter"
	"meteorgrid/internal/query/parser"
	"meteorgrid/internal/stats"
	"meteorgrid/internal/stream"
	"meteorgrid/internal/transport"
)

const maxCachedStatements = 512

// Engine creates queries and caches parsed statements by query string.
type Engine[K comparable, V any] struct {
	src    Source[K, V]
	schema *Schema
	stats  *stats.Stats
	log    *slog.Logger

	mu         sync.Mutex
	statements map[string]*parser.Statement
}

func NewEngine[K comparable, V any](src Source[K, V], schema *Schema, st *stats.Stats, log *slog.Logger) *Engine[K, V] {
	return &Engine[K, V]{
		src:        src,
		schema:     schema,
		stats:      st,
		log:        log,
		statements: make(map[string]*parser.Statement),
	}
}

func (e *Engine[K, V]) parse(q string) (*parser.Statement, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if stmt, ok := e.statements[q]; ok {
		return stmt, nil
	}
	stmt, err := parser.Parse(q)
	if err != nil {
		return nil, err
	}
	if len(e.statements) >= maxCachedStatements {
		clear(e.statements)
	}
	e.statements[q] = stmt
	return stmt, nil
}

// Create returns a query for q. Syntax errors are reported when the query is
// used.
func (e *Engine[K, V]) Create(q string) *Query[K, V] {
	stmt, err := e.parse(q)
	return &Query[K, V]{
		engine:     e,
		text:       q,
		stmt:       stmt,
		err:        err,
		params:     make(map[string]any),
		maxResults: Unbounded,
	}
}

// Query is a single query with its parameters and paging. It is not safe for
// concurrent configuration.
type Query[K comparable, V any] struct {
	engine      *Engine[K, V]
	text        string
	stmt        *parser.Statement
	err         error
	params      map[string]any
	startOffset int
	maxResults  int
	local       bool
}

func (q *Query[K, V]) String() string {
	return q.text
}

// SetParameter binds a named parameter the query references.
func (q *Query[K, V]) SetParameter(name string, value any) error {
	if q.err != nil {
		return q.err
	}
	if !slices.Contains(q.stmt.Params, name) {
		return fmt.Errorf("%w: %s in %q", ErrUnknownParameter, name, q.text)
	}
	q.params[name] = value
	return nil
}

func (q *Query[K, V]) StartOffset(n int) *Query[K, V] {
	q.startOffset = max(n, 0)
	return q
}

// MaxResults limits the returned results; Unbounded or any negative value
// disables the limit.
func (q *Query[K, V]) MaxResults(n int) *Query[K, V] {
	q.maxResults = n
	return q
}

// Local restricts the query to the segments this node owns.
func (q *Query[K, V]) Local(local bool) *Query[K, V] {
	q.local = local
	return q
}

// Result holds one page of results and the number of all matches.
type Result struct {
	count int
	list  []objectfilter.FilterResult
}

func (r *Result) Count() int {
	return r.count
}

func (r *Result) List() []objectfilter.FilterResult {
	return r.list
}

type filterQuery interface {
	Iterator(ctx context.Context, local bool) stream.Iterator[objectfilter.FilterResult]
}

func (q *Query[K, V]) compile() (*objectfilter.ObjectFilter, *segmentQuery[K, V], error) {
	if q.err != nil {
		return nil, nil, q.err
	}
	f, err := objectfilter.New(q.stmt, q.params)
	if err != nil {
		return nil, nil, err
	}
	base := &segmentQuery[K, V]{src: q.engine.src, entity: q.stmt.Entity, log: q.engine.log}
	if e, ok := q.engine.schema.Lookup(q.stmt.Entity); ok {
		base.entity = e.Name
		base.clauses = indexClauses(f, e)
	}
	return f, base, nil
}

func (q *Query[K, V]) executor() (*objectfilter.ObjectFilter, filterQuery, error) {
	f, base, err := q.compile()
	if err != nil {
		return nil, nil, err
	}
	if !needsMetadata(f) {
		q.engine.stats.RecordQuery("hybrid")
		return f, NewHybridQuery[K, V](base, f, q.engine.stats), nil
	}
	mq := NewMetadataHybridQuery[K, V](base, f, q.engine.stats)
	if _, indexed := q.engine.schema.Lookup(q.stmt.Entity); mq.scoreRequired() && !indexed {
		return nil, nil, fmt.Errorf("%w: %s has no score", ErrUnindexedEntity, q.stmt.Entity)
	}
	q.engine.stats.RecordQuery("metadata_hybrid")
	return f, mq, nil
}

// Iterator streams the matching results, ordered and paged. With ORDER BY
// every match is read before the first result is returned.
func (q *Query[K, V]) Iterator(ctx context.Context) (stream.Iterator[objectfilter.FilterResult], error) {
	f, exec, err := q.executor()
	if err != nil {
		return nil, err
	}
	it := exec.Iterator(ctx, q.local)
	if len(f.OrderBy()) > 0 {
		all, err := stream.Collect(it)
		if err != nil {
			return nil, err
		}
		sortResults(all, f)
		it = stream.FromSlice(all)
	}
	return stream.Page(it, q.startOffset, q.maxResults), nil
}

// Execute runs the query to completion. Count ignores paging.
func (q *Query[K, V]) Execute(ctx context.Context) (*Result, error) {
	f, exec, err := q.executor()
	if err != nil {
		return nil, err
	}
	all, err := stream.Collect(exec.Iterator(ctx, q.local))
	if err != nil {
		return nil, err
	}
	if len(f.OrderBy()) > 0 {
		sortResults(all, f)
	}
	res := &Result{count: len(all)}
	start := min(q.startOffset, len(all))
	end := len(all)
	if q.maxResults >= 0 {
		end = min(start+q.maxResults, end)
	}
	res.list = all[start:end]
	return res, nil
}

// EntryIterator streams the matching entries without projection or ordering.
// Metadata is zero unless withMetadata is set.
func (q *Query[K, V]) EntryIterator(ctx context.Context, withMetadata bool) (stream.Iterator[transport.Candidate[K, V]], error) {
	f, base, err := q.compile()
	if err != nil {
		return nil, err
	}
	q.engine.stats.RecordQuery("entries")
	src := base.EntryIterator(ctx, BaseOptions{MaxResults: Unbounded, Local: q.local, WithMetadata: withMetadata})
	matched := stream.Filter(src, func(c transport.Candidate[K, V]) bool {
		ok := f.Filter(c.Key, c.Value, c.Metadata) != nil
		q.engine.stats.RecordCandidate(ok)
		return ok
	})
	return stream.Page(matched, q.startOffset, q.maxResults), nil
}

func sortResults(rs []objectfilter.FilterResult, f *objectfilter.ObjectFilter) {
	specs := f.OrderBy()
	slices.SortStableFunc(rs, func(a, b objectfilter.FilterResult) int {
		for i, s := range specs {
			c := objectfilter.Compare(a.SortProjection[i], b.SortProjection[i])
			if s.Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}
