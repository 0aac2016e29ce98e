package stream

import (
	"iter"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

// Traversable is a single-use lazy sequence of results. It can be consumed
// either as a scanner (Next/Value) or with one of the terminal operations,
// but only once. The underlying iterator is closed when the sequence is
// exhausted or when Close is called, whichever comes first.
type Traversable[R any] struct {
	it      Iterator[R]
	started atomic.Bool
	closed  atomic.Bool

	cur  R
	done bool

	mu        sync.Mutex
	err       error
	closeOnce sync.Once
	closeErr  error
}

func NewTraversable[R any](it Iterator[R]) *Traversable[R] {
	return &Traversable[R]{it: it}
}

// Of returns a Traversable over already materialised results. err is reported
// by Err once the results are drained.
func Of[R any](results []R, err error) *Traversable[R] {
	if err == nil {
		return NewTraversable(FromSlice(results))
	}
	return NewTraversable(Concat(FromSlice(results), Errored[R](err)))
}

func (t *Traversable[R]) begin() error {
	if t.closed.Load() {
		return ErrClosed
	}
	if !t.started.CAS(false, true) {
		return ErrConsumed
	}
	return nil
}

func (t *Traversable[R]) Next() bool {
	if t.closed.Load() {
		t.setErr(ErrClosed)
		return false
	}
	t.started.Store(true)
	if t.done {
		return false
	}
	if t.it.Next() {
		t.cur = t.it.Value()
		return true
	}
	t.finish()
	return false
}

func (t *Traversable[R]) Value() R {
	return t.cur
}

// All yields every element. A failure (closed, consumed or mid-stream) is
// reported by Err after the loop.
func (t *Traversable[R]) All() iter.Seq[R] {
	return func(yield func(R) bool) {
		if err := t.begin(); err != nil {
			t.setErr(err)
			return
		}
		for t.Next() {
			if !yield(t.cur) {
				t.setErr(t.closeIterator())
				return
			}
		}
	}
}

func (t *Traversable[R]) ForEach(fn func(R)) error {
	for v := range t.All() {
		fn(v)
	}
	return t.Err()
}

func (t *Traversable[R]) Collect() ([]R, error) {
	var out []R
	for v := range t.All() {
		out = append(out, v)
	}
	return out, t.Err()
}

func (t *Traversable[R]) Count() (int, error) {
	n := 0
	for range t.All() {
		n++
	}
	return n, t.Err()
}

// FindFirst returns the first element and closes the sequence.
func (t *Traversable[R]) FindFirst() (R, bool, error) {
	for v := range t.All() {
		_ = t.Close()
		return v, true, nil
	}
	var zero R
	return zero, false, t.Err()
}

func (t *Traversable[R]) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Close releases the underlying iterator. Later operations fail with ErrClosed.
func (t *Traversable[R]) Close() error {
	t.closed.Store(true)
	return t.closeIterator()
}

func (t *Traversable[R]) finish() {
	t.done = true
	var zero R
	t.cur = zero
	t.setErr(multierr.Append(t.it.Err(), t.closeIterator()))
}

func (t *Traversable[R]) closeIterator() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.it.Close()
	})
	return t.closeErr
}

func (t *Traversable[R]) setErr(err error) {
	if err == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil {
		t.err = err
	}
}
