package stream

import (
	"go.uber.org/multierr"
)

// Iterator is a forward-only, closeable cursor:
//
//	for it.Next() {
//		use(it.Value())
//	}
//	if err := it.Err(); err != nil { ... }
//
// Close must be called when the caller stops early; it is idempotent for every
// iterator in this package.
type Iterator[T any] interface {
	Next() bool
	Value() T
	Err() error
	Close() error
}

type sliceIterator[T any] struct {
	items []T
	pos   int
	cur   T
}

// FromSlice iterates over items. The slice is not copied.
func FromSlice[T any](items []T) Iterator[T] {
	return &sliceIterator[T]{items: items}
}

// Empty returns an iterator with no elements.
func Empty[T any]() Iterator[T] {
	return &sliceIterator[T]{}
}

func (s *sliceIterator[T]) Next() bool {
	if s.pos >= len(s.items) {
		var zero T
		s.cur = zero
		return false
	}
	s.cur = s.items[s.pos]
	s.pos++
	return true
}

func (s *sliceIterator[T]) Value() T     { return s.cur }
func (s *sliceIterator[T]) Err() error   { return nil }
func (s *sliceIterator[T]) Close() error { s.pos = len(s.items); return nil }

type funcIterator[T any] struct {
	next   func() (T, bool, error)
	close  func() error
	cur    T
	err    error
	done   bool
	closed bool
}

// Func adapts a pull function. next returns the next element, false at the
// end, or an error that terminates the iteration. close may be nil.
func Func[T any](next func() (T, bool, error), close func() error) Iterator[T] {
	return &funcIterator[T]{next: next, close: close}
}

func (f *funcIterator[T]) Next() bool {
	if f.done {
		return false
	}
	v, ok, err := f.next()
	if err != nil {
		f.err = err
	}
	if !ok || err != nil {
		f.done = true
		var zero T
		f.cur = zero
		return false
	}
	f.cur = v
	return true
}

func (f *funcIterator[T]) Value() T   { return f.cur }
func (f *funcIterator[T]) Err() error { return f.err }

func (f *funcIterator[T]) Close() error {
	f.done = true
	if f.closed || f.close == nil {
		return nil
	}
	f.closed = true
	return f.close()
}

// Errored returns an iterator that yields nothing and reports err.
func Errored[T any](err error) Iterator[T] {
	return Func(func() (T, bool, error) {
		var zero T
		return zero, false, err
	}, nil)
}

// Map transforms every element. The source is closed with the result.
func Map[T, R any](src Iterator[T], fn func(T) R) Iterator[R] {
	return Func(func() (R, bool, error) {
		if !src.Next() {
			var zero R
			return zero, false, src.Err()
		}
		return fn(src.Value()), true, nil
	}, src.Close)
}

// Filter keeps the elements for which keep returns true.
func Filter[T any](src Iterator[T], keep func(T) bool) Iterator[T] {
	return Func(func() (T, bool, error) {
		for src.Next() {
			if v := src.Value(); keep(v) {
				return v, true, nil
			}
		}
		var zero T
		return zero, false, src.Err()
	}, src.Close)
}

// Concat drains the iterators in order. Each one is closed as soon as it is
// exhausted; the rest are closed by Close.
func Concat[T any](parts ...Iterator[T]) Iterator[T] {
	pos := 0
	return Func(func() (T, bool, error) {
		for pos < len(parts) {
			cur := parts[pos]
			if cur.Next() {
				return cur.Value(), true, nil
			}
			pos++
			if err := multierr.Append(cur.Err(), cur.Close()); err != nil {
				var zero T
				return zero, false, err
			}
		}
		var zero T
		return zero, false, nil
	}, func() error {
		var err error
		for ; pos < len(parts); pos++ {
			err = multierr.Append(err, parts[pos].Close())
		}
		return err
	})
}

// Lazy defers open until the first call to Next.
func Lazy[T any](open func() (Iterator[T], error)) Iterator[T] {
	var src Iterator[T]
	return Func(func() (T, bool, error) {
		if src == nil {
			it, err := open()
			if err != nil {
				var zero T
				return zero, false, err
			}
			src = it
		}
		if src.Next() {
			return src.Value(), true, nil
		}
		var zero T
		return zero, false, src.Err()
	}, func() error {
		if src == nil {
			return nil
		}
		return src.Close()
	})
}

// OnClose runs fn once after src is closed.
func OnClose[T any](src Iterator[T], fn func()) Iterator[T] {
	return Func(func() (T, bool, error) {
		if src.Next() {
			return src.Value(), true, nil
		}
		var zero T
		return zero, false, src.Err()
	}, func() error {
		defer fn()
		return src.Close()
	})
}

// Collect drains and closes it.
func Collect[T any](it Iterator[T]) ([]T, error) {
	var out []T
	for it.Next() {
		out = append(out, it.Value())
	}
	return out, multierr.Append(it.Err(), it.Close())
}

// Page skips offset elements and yields at most limit more. A negative limit
// means no limit. The source is closed once the page is complete.
func Page[T any](src Iterator[T], offset, limit int) Iterator[T] {
	if offset <= 0 && limit < 0 {
		return src
	}
	skipped, taken := 0, 0
	return Func(func() (T, bool, error) {
		var zero T
		if limit >= 0 && taken >= limit {
			return zero, false, src.Close()
		}
		for src.Next() {
			if skipped < offset {
				skipped++
				continue
			}
			taken++
			return src.Value(), true, nil
		}
		return zero, false, src.Err()
	}, src.Close)
}
