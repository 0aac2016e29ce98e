package future

import (
	"context"
	"sync"
)

// Future is a write-once result. The first Complete wins.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Completed returns a future that is already done.
func Completed[T any](value T, err error) *Future[T] {
	f := New[T]()
	f.Complete(value, err)
	return f
}

// Complete sets the result. It reports false when the future was already completed.
func (f *Future[T]) Complete(value T, err error) bool {
	completed := false
	f.once.Do(func() {
		f.value, f.err = value, err
		close(f.done)
		completed = true
	})
	return completed
}

func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Get waits for the result or for ctx to end.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Join waits without a deadline.
func (f *Future[T]) Join() (T, error) {
	<-f.done
	return f.value, f.err
}
