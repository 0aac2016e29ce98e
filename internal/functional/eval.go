package functional

import (
	"context"
	"fmt"

	"meteorgrid/internal/commands"
	"meteorgrid/internal/entryview"
	"meteorgrid/internal/future"
	"meteorgrid/internal/stream"
)

// Eval applies f to the entry of key. In blocking mode the returned future
// is already complete.
func Eval[K comparable, V any, R any](m *ReadWriteMap[K, V], key K, f func(entryview.ReadWriteEntryView[K, V]) (R, error)) *future.Future[R] {
	var fn commands.KeyFunc[K, V]
	if f != nil {
		fn = func(view entryview.ReadWriteEntryView[K, V]) (any, error) {
			return f(view)
		}
	}
	cmd := m.fmap.commands.BuildReadWriteKeyCommand(key, fn, m.params)
	return evalOne[K, V, R](m, cmd)
}

// EvalWithValue applies f to value and the entry of key.
func EvalWithValue[K comparable, V any, R any](m *ReadWriteMap[K, V], key K, value V, f func(V, entryview.ReadWriteEntryView[K, V]) (R, error)) *future.Future[R] {
	var fn commands.KeyValueFunc[K, V]
	if f != nil {
		fn = func(v V, view entryview.ReadWriteEntryView[K, V]) (any, error) {
			return f(v, view)
		}
	}
	cmd := m.fmap.commands.BuildReadWriteKeyValueCommand(key, value, fn, m.params)
	return evalOne[K, V, R](m, cmd)
}

// EvalMany applies f to each distinct key. Each key commits on its own;
// failures are reported by Err of the returned Traversable.
func EvalMany[K comparable, V any, R any](m *ReadWriteMap[K, V], keys []K, f func(entryview.ReadWriteEntryView[K, V]) (R, error)) *stream.Traversable[R] {
	cmd := m.fmap.commands.BuildReadWriteManyCommand(keys, keyFunc(f), m.params)
	return evalMany[K, V, R](m, cmd)
}

// EvalManyEntries applies f to each key with its value.
func EvalManyEntries[K comparable, V any, R any](m *ReadWriteMap[K, V], entries map[K]V, f func(V, entryview.ReadWriteEntryView[K, V]) (R, error)) *stream.Traversable[R] {
	var fn commands.KeyValueFunc[K, V]
	if f != nil {
		fn = func(v V, view entryview.ReadWriteEntryView[K, V]) (any, error) {
			return f(v, view)
		}
	}
	cmd := m.fmap.commands.BuildReadWriteManyEntriesCommand(entries, fn, m.params)
	return evalMany[K, V, R](m, cmd)
}

// EvalAll applies f to every key present when it is called.
func EvalAll[K comparable, V any, R any](m *ReadWriteMap[K, V], f func(entryview.ReadWriteEntryView[K, V]) (R, error)) *stream.Traversable[R] {
	keys, err := m.fmap.keySource(context.Background())
	if err != nil {
		return stream.Of[R](nil, err)
	}
	return EvalMany(m, keys, f)
}

func keyFunc[K comparable, V any, R any](f func(entryview.ReadWriteEntryView[K, V]) (R, error)) commands.KeyFunc[K, V] {
	if f == nil {
		return nil
	}
	return func(view entryview.ReadWriteEntryView[K, V]) (any, error) {
		return f(view)
	}
}

// invoke runs cmd and reports a panic of any stage as an error. A dispatched
// invocation must complete its future whatever happens.
func invoke[K comparable, V any](m *ReadWriteMap[K, V], cmd commands.Command[K, V]) (res any, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, fmt.Errorf("%w: %v", ErrInvocationPanic, p)
		}
	}()
	return m.fmap.invoke(context.Background(), cmd)
}

func evalOne[K comparable, V any, R any](m *ReadWriteMap[K, V], cmd commands.Command[K, V]) *future.Future[R] {
	fut := future.New[R]()
	err := m.completion.dispatch(func() {
		res, err := invoke(m, cmd)
		v, ok := res.(R)
		if err == nil && !ok && res != nil {
			err = errUnexpected(res)
		}
		fut.Complete(v, err)
	})
	if err != nil {
		var zero R
		fut.Complete(zero, err)
	}
	return fut
}

func evalMany[K comparable, V any, R any](m *ReadWriteMap[K, V], cmd commands.Command[K, V]) *stream.Traversable[R] {
	if m.completion.materialise() {
		res, err := invoke(m, cmd)
		if err != nil {
			return stream.Of[R](nil, err)
		}
		it, ok := res.(stream.Iterator[commands.KeyResult[K]])
		if !ok {
			return stream.Of[R](nil, errUnexpected(res))
		}
		out, err := stream.Collect(values[K, R](it))
		return stream.Of(out, err)
	}

	fut := future.New[stream.Iterator[commands.KeyResult[K]]]()
	err := m.completion.dispatch(func() {
		res, err := invoke(m, cmd)
		if err != nil {
			fut.Complete(nil, err)
			return
		}
		it, ok := res.(stream.Iterator[commands.KeyResult[K]])
		if !ok {
			fut.Complete(nil, errUnexpected(res))
			return
		}
		fut.Complete(it, nil)
	})
	if err != nil {
		fut.Complete(nil, err)
	}
	return stream.NewTraversable(values[K, R](awaitStream(fut)))
}
