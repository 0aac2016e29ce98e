package index

import (
	"math"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

const (
	k1 = 1.2
	b  = 0.75
)

// Document is the indexed view of one entry.
type Document struct {
	Entity  string
	Segment int
	Text    map[string]string
	Keyword map[string]string
}

type ClauseKind int

const (
	// MatchClause is a full-text clause: every token must occur in the field.
	MatchClause ClauseKind = iota
	// TermClause is an exact keyword match.
	TermClause
)

type Clause struct {
	Kind  ClauseKind
	Field string
	Value string
}

func Match(field, text string) Clause { return Clause{Kind: MatchClause, Field: field, Value: text} }
func Term(field, value string) Clause { return Clause{Kind: TermClause, Field: field, Value: value} }

// Request selects documents of one entity matching every clause. A nil
// Segments bitmap means all segments.
type Request struct {
	Entity   string
	Must     []Clause
	Segments *roaring.Bitmap
	Score    bool
}

type Hit[K comparable] struct {
	Key   K
	Score float32
}

type docInfo struct {
	entity   string
	segment  int
	terms    map[string]map[string]int
	lengths  map[string]int
	keywords map[string]string
}

type fieldStats struct {
	docs        int
	totalLength int64
}

// Index is an in-memory inverted index over entries. Text fields are
// scored with BM25, keyword fields are exact bitmaps.
type Index[K comparable] struct {
	mu       sync.RWMutex
	nextID   uint32
	ids      map[K]uint32
	keys     map[uint32]K
	docs     map[uint32]*docInfo
	entities map[string]*roaring.Bitmap
	segments map[int]*roaring.Bitmap
	postings map[string]map[string]*roaring.Bitmap
	keywords map[string]map[string]*roaring.Bitmap
	fields   map[string]*fieldStats
}

func New[K comparable]() *Index[K] {
	return &Index[K]{
		ids:      make(map[K]uint32),
		keys:     make(map[uint32]K),
		docs:     make(map[uint32]*docInfo),
		entities: make(map[string]*roaring.Bitmap),
		segments: make(map[int]*roaring.Bitmap),
		postings: make(map[string]map[string]*roaring.Bitmap),
		keywords: make(map[string]map[string]*roaring.Bitmap),
		fields:   make(map[string]*fieldStats),
	}
}

func bitmapFor[T comparable](m map[T]*roaring.Bitmap, k T) *roaring.Bitmap {
	bm, ok := m[k]
	if !ok {
		bm = roaring.New()
		m[k] = bm
	}
	return bm
}

func nestedBitmap(m map[string]map[string]*roaring.Bitmap, field, value string) *roaring.Bitmap {
	inner, ok := m[field]
	if !ok {
		inner = make(map[string]*roaring.Bitmap)
		m[field] = inner
	}
	return bitmapFor(inner, value)
}

// Add indexes doc under key, replacing an earlier document for the same key.
func (idx *Index[K]) Add(key K, doc Document) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if id, ok := idx.ids[key]; ok {
		idx.deleteLocked(id)
	}

	id := idx.nextID
	idx.nextID++
	idx.ids[key] = id
	idx.keys[id] = key

	info := &docInfo{
		entity:   doc.Entity,
		segment:  doc.Segment,
		terms:    make(map[string]map[string]int, len(doc.Text)),
		lengths:  make(map[string]int, len(doc.Text)),
		keywords: doc.Keyword,
	}
	idx.docs[id] = info
	bitmapFor(idx.entities, doc.Entity).Add(id)
	bitmapFor(idx.segments, doc.Segment).Add(id)

	for field, text := range doc.Text {
		tokens := Analyze(text)
		tf := make(map[string]int)
		for _, t := range tokens {
			tf[t]++
		}
		info.terms[field] = tf
		info.lengths[field] = len(tokens)
		for t := range tf {
			nestedBitmap(idx.postings, field, t).Add(id)
		}
		fs, ok := idx.fields[field]
		if !ok {
			fs = &fieldStats{}
			idx.fields[field] = fs
		}
		fs.docs++
		fs.totalLength += int64(len(tokens))
	}
	for field, value := range doc.Keyword {
		nestedBitmap(idx.keywords, field, value).Add(id)
	}
}

func (idx *Index[K]) Delete(key K) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if id, ok := idx.ids[key]; ok {
		idx.deleteLocked(id)
	}
}

func (idx *Index[K]) deleteLocked(id uint32) {
	info := idx.docs[id]
	key := idx.keys[id]
	delete(idx.docs, id)
	delete(idx.keys, id)
	delete(idx.ids, key)

	idx.entities[info.entity].Remove(id)
	idx.segments[info.segment].Remove(id)
	for field, tf := range info.terms {
		for t := range tf {
			idx.postings[field][t].Remove(id)
		}
		fs := idx.fields[field]
		fs.docs--
		fs.totalLength -= int64(info.lengths[field])
	}
	for field, value := range info.keywords {
		idx.keywords[field][value].Remove(id)
	}
}

// DropSegments removes every document of the given segments.
func (idx *Index[K]) DropSegments(segs *roaring.Bitmap) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	dropped := 0
	it := segs.Iterator()
	for it.HasNext() {
		bm, ok := idx.segments[int(it.Next())]
		if !ok {
			continue
		}
		for _, id := range bm.ToArray() {
			idx.deleteLocked(id)
			dropped++
		}
	}
	return dropped
}

func (idx *Index[K]) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

// Search returns the keys matching req in document order. Scores are BM25
// sums over the full-text clauses, or 1 when the request has none.
func (idx *Index[K]) Search(req Request) []Hit[K] {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	entity, ok := idx.entities[req.Entity]
	if !ok {
		return nil
	}
	candidates := entity.Clone()
	if req.Segments != nil {
		inSegments := roaring.New()
		it := req.Segments.Iterator()
		for it.HasNext() {
			if bm, ok := idx.segments[int(it.Next())]; ok {
				inSegments.Or(bm)
			}
		}
		candidates.And(inSegments)
	}

	var terms [][2]string
	for _, c := range req.Must {
		switch c.Kind {
		case TermClause:
			candidates.And(idx.lookup(idx.keywords, c.Field, c.Value))
		case MatchClause:
			tokens := Analyze(c.Value)
			if len(tokens) == 0 {
				return nil
			}
			for _, t := range tokens {
				candidates.And(idx.lookup(idx.postings, c.Field, t))
				terms = append(terms, [2]string{c.Field, t})
			}
		}
		if candidates.IsEmpty() {
			return nil
		}
	}

	hits := make([]Hit[K], 0, candidates.GetCardinality())
	it := candidates.Iterator()
	for it.HasNext() {
		id := it.Next()
		hit := Hit[K]{Key: idx.keys[id], Score: 1}
		if req.Score && len(terms) > 0 {
			hit.Score = idx.score(id, terms)
		}
		hits = append(hits, hit)
	}
	return hits
}

func (idx *Index[K]) lookup(m map[string]map[string]*roaring.Bitmap, field, value string) *roaring.Bitmap {
	if bm, ok := m[field][value]; ok {
		return bm
	}
	return roaring.New()
}

func (idx *Index[K]) score(id uint32, terms [][2]string) float32 {
	info := idx.docs[id]
	var score float64
	for _, ft := range terms {
		field, term := ft[0], ft[1]
		fs := idx.fields[field]
		if fs == nil || fs.docs == 0 {
			continue
		}
		avgDL := float64(fs.totalLength) / float64(fs.docs)
		df := float64(idx.postings[field][term].GetCardinality())
		n := float64(fs.docs)
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))

		tf := float64(info.terms[field][term])
		docLen := float64(info.lengths[field])
		score += idf * (tf * (k1 + 1)) / (tf + k1*(1-b+b*(docLen/avgDL)))
	}
	return float32(score)
}
