package topology

import (
	"context"
	"fmt"
	"sync"
)

// StateTransferLock tracks readers per topology id. A node that lost segments
// in topology N waits until every reader of an older topology is gone before
// it drops their data.
type StateTransferLock struct {
	mu      sync.Mutex
	readers map[int]int
	changed chan struct{}
}

func NewStateTransferLock() *StateTransferLock {
	return &StateTransferLock{
		readers: make(map[int]int),
		changed: make(chan struct{}),
	}
}

// AcquireRead registers a reader of topologyID. The returned release func is
// safe to call more than once.
func (l *StateTransferLock) AcquireRead(topologyID int) func() {
	l.mu.Lock()
	l.readers[topologyID]++
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { l.release(topologyID) })
	}
}

func (l *StateTransferLock) release(topologyID int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readers[topologyID]--
	if l.readers[topologyID] <= 0 {
		delete(l.readers, topologyID)
	}
	close(l.changed)
	l.changed = make(chan struct{})
}

// Readers counts the readers holding a topology older than belowID.
func (l *StateTransferLock) Readers(belowID int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.countBelow(belowID)
}

func (l *StateTransferLock) countBelow(belowID int) int {
	n := 0
	for id, c := range l.readers {
		if id < belowID {
			n += c
		}
	}
	return n
}

// AwaitReaders blocks until no reader of a topology older than belowID is left.
func (l *StateTransferLock) AwaitReaders(ctx context.Context, belowID int) error {
	for {
		l.mu.Lock()
		n := l.countBelow(belowID)
		changed := l.changed
		l.mu.Unlock()
		if n == 0 {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return fmt.Errorf("%d readers of topologies before %d still active: %w", n, belowID, ctx.Err())
		}
	}
}
