package executor

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/atomic"
)

var ErrStopped = errors.New("executor: stopped")

// Executor runs submitted tasks on a bounded goroutine pool.
type Executor struct {
	name    string
	pool    *pool.Pool
	mu      sync.RWMutex
	stopped bool

	submitted atomic.Uint64
	completed atomic.Uint64
	panics    atomic.Uint64
}

func New(name string, workers int) *Executor {
	if workers <= 0 {
		workers = 1
	}
	return &Executor{
		name: name,
		pool: pool.New().WithMaxGoroutines(workers),
	}
}

// Submit schedules task. It blocks while every worker is busy.
func (e *Executor) Submit(task func()) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		return ErrStopped
	}

	e.submitted.Inc()
	e.pool.Go(func() {
		defer e.completed.Inc()
		defer func() {
			if r := recover(); r != nil {
				e.panics.Inc()
				slog.Error("Task panicked", "executor", e.name, "panic", fmt.Sprint(r))
			}
		}()
		task()
	})
	return nil
}

// Stop rejects new tasks and waits for the running ones.
func (e *Executor) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.mu.Unlock()

	e.pool.Wait()
	slog.Debug("Executor stopped", "executor", e.name, "completed", e.completed.Load(), "panics", e.panics.Load())
}

func (e *Executor) Stats() (submitted, completed uint64) {
	return e.submitted.Load(), e.completed.Load()
}
