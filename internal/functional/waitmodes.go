package functional

import (
	"meteorgrid/internal/commands"
	"meteorgrid/internal/executor"
	"meteorgrid/internal/future"
	"meteorgrid/internal/param"
	"meteorgrid/internal/stream"

	"go.uber.org/multierr"
)

// completion decides where an invocation runs and how its results reach the
// caller. It is picked once, when a ReadWriteMap is built.
type completion interface {
	// dispatch runs task, on the caller goroutine or elsewhere.
	dispatch(task func()) error
	// materialise reports whether streams are drained before they are returned.
	materialise() bool
}

type blocking struct{}

func (blocking) dispatch(task func()) error {
	task()
	return nil
}

func (blocking) materialise() bool { return true }

type nonBlocking struct {
	exec *executor.Executor
}

func (m nonBlocking) dispatch(task func()) error {
	return m.exec.Submit(task)
}

func (nonBlocking) materialise() bool { return false }

func completionFor(mode param.WaitMode, exec *executor.Executor) completion {
	if mode == param.WaitNonBlocking && exec != nil {
		return nonBlocking{exec: exec}
	}
	return blocking{}
}

// awaitStream waits for the chain's stream on first pull. A stream that was
// never pulled is still closed, so its key locks are released.
func awaitStream[K comparable](fut *future.Future[stream.Iterator[commands.KeyResult[K]]]) stream.Iterator[commands.KeyResult[K]] {
	var src stream.Iterator[commands.KeyResult[K]]
	open := func() error {
		if src != nil {
			return nil
		}
		it, err := fut.Join()
		if err != nil {
			return err
		}
		src = it
		return nil
	}
	return stream.Func(func() (commands.KeyResult[K], bool, error) {
		if err := open(); err != nil {
			return commands.KeyResult[K]{}, false, err
		}
		if src.Next() {
			return src.Value(), true, nil
		}
		return commands.KeyResult[K]{}, false, src.Err()
	}, func() error {
		if err := open(); err != nil {
			return nil
		}
		return src.Close()
	})
}

// values yields the successful results as R. Per-key failures are combined
// and reported once the stream is exhausted.
func values[K comparable, R any](src stream.Iterator[commands.KeyResult[K]]) stream.Iterator[R] {
	var failures error
	return stream.Func(func() (R, bool, error) {
		for src.Next() {
			r := src.Value()
			if r.Err != nil {
				failures = multierr.Append(failures, r.Err)
				continue
			}
			v, ok := r.Value.(R)
			if !ok && r.Value != nil {
				failures = multierr.Append(failures, errUnexpected(r.Value))
				continue
			}
			return v, true, nil
		}
		var zero R
		return zero, false, multierr.Append(src.Err(), failures)
	}, src.Close)
}
