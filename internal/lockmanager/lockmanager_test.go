package lockmanager

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteLockIsExclusive(t *testing.T) {
	lm := NewLockManager()
	ctx := context.Background()

	require.NoError(t, lm.AcquireLock(ctx, 1, "k", WriteLock, time.Second))
	assert.Equal(t, Statistics{KeysLocked: 1, Owners: 1}, lm.Statistics())

	err := lm.AcquireLock(ctx, 2, "k", WriteLock, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.Equal(t, 0, lm.Statistics().Waiting)

	require.NoError(t, lm.ReleaseLock(1, "k", WriteLock))
	require.NoError(t, lm.AcquireLock(ctx, 2, "k", WriteLock, 20*time.Millisecond))
}

func TestReadLocksShare(t *testing.T) {
	lm := NewLockManager()
	ctx := context.Background()
	require.NoError(t, lm.AcquireLock(ctx, 1, 7, ReadLock, 20*time.Millisecond))
	require.NoError(t, lm.AcquireLock(ctx, 2, 7, ReadLock, 20*time.Millisecond))
	assert.ErrorIs(t, lm.AcquireLock(ctx, 3, 7, WriteLock, 20*time.Millisecond), ErrLockTimeout)
	assert.Equal(t, Statistics{KeysLocked: 1, Owners: 2}, lm.Statistics())
}

func TestWaiterIsGrantedOnRelease(t *testing.T) {
	lm := NewLockManager()
	ctx := context.Background()
	require.NoError(t, lm.AcquireLock(ctx, 1, "k", WriteLock, time.Second))

	acquired := make(chan error, 1)
	go func() {
		acquired <- lm.AcquireLock(ctx, 2, "k", WriteLock, 5*time.Second)
	}()

	assert.Eventually(t, func() bool {
		return lm.Statistics().Waiting == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, lm.ReleaseAllLocks(1))
	require.NoError(t, <-acquired)
	assert.Equal(t, Statistics{KeysLocked: 1, Owners: 1}, lm.Statistics())
}

func TestContextCancellation(t *testing.T) {
	lm := NewLockManager()
	require.NoError(t, lm.AcquireLock(context.Background(), 1, "k", WriteLock, time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := lm.AcquireLock(ctx, 2, "k", WriteLock, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, lm.Statistics().Waiting)
}

func TestDeadlockDetection(t *testing.T) {
	lm := NewLockManager()
	ctx := context.Background()
	require.NoError(t, lm.AcquireLock(ctx, 1, "a", WriteLock, time.Second))
	require.NoError(t, lm.AcquireLock(ctx, 2, "b", WriteLock, time.Second))

	waiting := make(chan error, 1)
	go func() { waiting <- lm.AcquireLock(ctx, 1, "b", WriteLock, time.Second) }()
	assert.Eventually(t, func() bool {
		return lm.Statistics().Waiting == 1
	}, time.Second, time.Millisecond)

	err := lm.AcquireLock(ctx, 2, "a", WriteLock, time.Second)
	assert.ErrorIs(t, err, ErrDeadlock)

	require.NoError(t, lm.ReleaseAllLocks(2))
	require.NoError(t, <-waiting)
}

func TestConcurrentLocking(t *testing.T) {
	lm := NewLockManager()
	ctx := context.Background()
	numThreads := 10
	numOperationsPerThread := 200

	var inside atomic.Int32
	var violations atomic.Int32
	var wg sync.WaitGroup
	wg.Add(numThreads)

	for i := 0; i < numThreads; i++ {
		owner := uint64(i + 1)
		go func() {
			defer wg.Done()
			for j := 0; j < numOperationsPerThread; j++ {
				if err := lm.AcquireLock(ctx, owner, "hot", WriteLock, 5*time.Second); err != nil {
					t.Errorf("owner %d: %v", owner, err)
					return
				}
				if inside.Add(1) != 1 {
					violations.Add(1)
				}
				inside.Add(-1)
				if err := lm.ReleaseLock(owner, "hot", WriteLock); err != nil {
					t.Errorf("owner %d: %v", owner, err)
					return
				}
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, violations.Load())
	assert.Equal(t, 0, lm.Statistics().KeysLocked)
}
