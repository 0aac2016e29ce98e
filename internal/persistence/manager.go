package persistence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Manager fans operations out to every configured store.
type Manager[K comparable, V any] struct {
	stores  []Lifecycle
	loaders []CacheLoader[K, V]
	writers []CacheWriter[K, V]
	started []Lifecycle
}

// NewManager accepts loaders, writers or full external stores.
func NewManager[K comparable, V any](stores ...Lifecycle) *Manager[K, V] {
	m := &Manager[K, V]{stores: stores}
	for _, s := range stores {
		if l, ok := s.(CacheLoader[K, V]); ok {
			m.loaders = append(m.loaders, l)
		}
		if w, ok := s.(CacheWriter[K, V]); ok {
			m.writers = append(m.writers, w)
		}
	}
	return m
}

func (m *Manager[K, V]) Enabled() bool {
	return len(m.stores) > 0
}

// Start starts every store. Stores started before a failure are stopped
// again. Starting a started manager does nothing.
func (m *Manager[K, V]) Start(ctx context.Context) error {
	if len(m.started) > 0 {
		return nil
	}
	for _, s := range m.stores {
		if err := s.Start(ctx); err != nil {
			stopErr := m.Stop()
			return multierr.Append(fmt.Errorf("starting store %T: %w", s, err), stopErr)
		}
		m.started = append(m.started, s)
	}
	return nil
}

func (m *Manager[K, V]) Stop() error {
	var err error
	for i := len(m.started) - 1; i >= 0; i-- {
		err = multierr.Append(err, m.started[i].Stop())
	}
	m.started = nil
	return err
}

// Destroy removes the data of every store.
func (m *Manager[K, V]) Destroy() error {
	var err error
	for _, s := range m.stores {
		err = multierr.Append(err, Destroy(s))
	}
	m.started = nil
	return err
}

func (m *Manager[K, V]) IsAvailable() bool {
	for _, s := range m.stores {
		if !IsAvailable(s) {
			return false
		}
	}
	return true
}

// Load returns the entry from the first loader that has it, or nil.
func (m *Manager[K, V]) Load(ctx context.Context, key K) (*MarshalledEntry[K, V], error) {
	for _, l := range m.loaders {
		if !IsAvailable(l) {
			return nil, fmt.Errorf("%w: %T", ErrStoreUnavailable, l)
		}
		e, err := l.Load(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("loading %v from %T: %w", key, l, err)
		}
		if e != nil {
			return e, nil
		}
	}
	return nil, nil
}

// Write stores entry in every writer concurrently.
func (m *Manager[K, V]) Write(ctx context.Context, entry MarshalledEntry[K, V]) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range m.writers {
		g.Go(func() error {
			if !IsAvailable(w) {
				return fmt.Errorf("%w: %T", ErrStoreUnavailable, w)
			}
			return w.Write(gctx, entry)
		})
	}
	return g.Wait()
}

// Delete removes key from every writer and reports whether any of them had it.
func (m *Manager[K, V]) Delete(ctx context.Context, key K) (bool, error) {
	g, gctx := errgroup.WithContext(ctx)
	deleted := make([]bool, len(m.writers))
	for i, w := range m.writers {
		g.Go(func() error {
			if !IsAvailable(w) {
				return fmt.Errorf("%w: %T", ErrStoreUnavailable, w)
			}
			ok, err := w.Delete(gctx, key)
			deleted[i] = ok
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}
	for _, d := range deleted {
		if d {
			return true, nil
		}
	}
	return false, nil
}

// Preload feeds every entry of the listing stores to apply.
func (m *Manager[K, V]) Preload(ctx context.Context, apply func(MarshalledEntry[K, V]) error) (int, error) {
	total := 0
	for _, l := range m.loaders {
		lister, ok := l.(EntryLister[K, V])
		if !ok {
			continue
		}
		it := lister.Entries(ctx)
		for it.Next() {
			if err := apply(it.Value()); err != nil {
				return total, multierr.Append(err, it.Close())
			}
			total++
		}
		if err := multierr.Append(it.Err(), it.Close()); err != nil {
			return total, err
		}
	}
	if total > 0 {
		slog.Info("Preloaded entries", "count", humanize.Comma(int64(total)))
	}
	return total, nil
}
