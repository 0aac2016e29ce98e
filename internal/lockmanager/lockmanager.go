package lockmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrDeadlock    = errors.New("deadlock detected")
	ErrLockTimeout = errors.New("lock acquisition timeout")
)

// LockType represents the type of lock
type LockType int

const (
	ReadLock LockType = iota
	WriteLock
)

func (lt LockType) String() string {
	switch lt {
	case ReadLock:
		return "READ"
	case WriteLock:
		return "WRITE"
	default:
		return "UNKNOWN"
	}
}

// Lock represents a single lock held by an invocation
type Lock struct {
	Owner      uint64
	Key        any
	Type       LockType
	AcquiredAt time.Time
}

// LockRequest represents a request for acquiring a lock
type LockRequest struct {
	Owner      uint64
	Key        any
	Type       LockType
	AcquiredCh chan error
}

// LockManager manages key locks for invocations. Keys must be comparable.
type LockManager struct {
	// lockTable maps key -> list of locks on that key
	lockTable map[any][]*Lock
	// ownerLocks maps owner -> list of locks held by that owner
	ownerLocks map[uint64][]*Lock
	// waitingRequests maps key -> queue of waiting lock requests
	waitingRequests map[any][]*LockRequest
	mutex           sync.RWMutex
}

// NewLockManager creates a new lock manager
func NewLockManager() *LockManager {
	return &LockManager{
		lockTable:       make(map[any][]*Lock),
		ownerLocks:      make(map[uint64][]*Lock),
		waitingRequests: make(map[any][]*LockRequest),
	}
}

// AcquireLock attempts to acquire a lock for an owner.
// Returns immediately if lock can be granted, otherwise blocks until available, ctx is done or timeout.
func (lm *LockManager) AcquireLock(ctx context.Context, owner uint64, key any, lockType LockType, timeout time.Duration) error {
	lm.mutex.Lock()

	if lm.canGrantLock(key, lockType, owner) {
		lm.grantLock(&Lock{Owner: owner, Key: key, Type: lockType, AcquiredAt: time.Now()})
		lm.mutex.Unlock()
		return nil
	}

	// Check for deadlock before adding to waiting queue
	if lm.wouldCauseDeadlock(owner, key) {
		lm.mutex.Unlock()
		return fmt.Errorf("%w: owner %d on key %v", ErrDeadlock, owner, key)
	}

	request := &LockRequest{
		Owner:      owner,
		Key:        key,
		Type:       lockType,
		AcquiredCh: make(chan error, 1),
	}

	lm.waitingRequests[key] = append(lm.waitingRequests[key], request)
	lm.mutex.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-request.AcquiredCh:
		return err
	case <-timer.C:
		if lm.abandonRequest(request) {
			return fmt.Errorf("%w for owner %d on key %v", ErrLockTimeout, owner, key)
		}
		return <-request.AcquiredCh
	case <-ctx.Done():
		if lm.abandonRequest(request) {
			return ctx.Err()
		}
		return <-request.AcquiredCh
	}
}

// ReleaseLock releases a specific lock
func (lm *LockManager) ReleaseLock(owner uint64, key any, lockType LockType) error {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	return lm.releaseLock(owner, key, lockType)
}

// ReleaseAllLocks releases all locks held by an owner
func (lm *LockManager) ReleaseAllLocks(owner uint64) error {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	locks, exists := lm.ownerLocks[owner]
	if !exists {
		return nil
	}

	// releaseLock rewrites ownerLocks, iterate over a copy
	for _, lock := range append([]*Lock(nil), locks...) {
		if err := lm.releaseLock(owner, lock.Key, lock.Type); err != nil {
			return fmt.Errorf("failed to release lock %v for owner %d: %w", lock.Key, owner, err)
		}
	}

	return nil
}

// canGrantLock checks if a lock can be granted immediately
func (lm *LockManager) canGrantLock(key any, lockType LockType, owner uint64) bool {
	for _, existingLock := range lm.lockTable[key] {
		// Same owner may hold the key again (reentrant)
		if existingLock.Owner == owner {
			continue
		}
		if !lm.areLocksCompatible(existingLock.Type, lockType) {
			return false
		}
	}
	return true
}

// areLocksCompatible checks if two lock types are compatible
func (lm *LockManager) areLocksCompatible(existing, requested LockType) bool {
	return existing == ReadLock && requested == ReadLock
}

// grantLock grants a lock to an owner
func (lm *LockManager) grantLock(lock *Lock) {
	lm.lockTable[lock.Key] = append(lm.lockTable[lock.Key], lock)
	lm.ownerLocks[lock.Owner] = append(lm.ownerLocks[lock.Owner], lock)
}

// releaseLock releases a specific lock
func (lm *LockManager) releaseLock(owner uint64, key any, lockType LockType) error {
	locks := lm.lockTable[key]
	newLocks := make([]*Lock, 0, len(locks))
	found := false

	for _, lock := range locks {
		if !found && lock.Owner == owner && lock.Type == lockType {
			found = true
			continue
		}
		newLocks = append(newLocks, lock)
	}

	if !found {
		return fmt.Errorf("lock not found for owner %d on key %v", owner, key)
	}

	if len(newLocks) == 0 {
		delete(lm.lockTable, key)
	} else {
		lm.lockTable[key] = newLocks
	}

	ownerLocks := lm.ownerLocks[owner]
	newOwnerLocks := make([]*Lock, 0, len(ownerLocks))
	removed := false
	for _, lock := range ownerLocks {
		if !removed && lock.Key == key && lock.Type == lockType {
			removed = true
			continue
		}
		newOwnerLocks = append(newOwnerLocks, lock)
	}

	if len(newOwnerLocks) == 0 {
		delete(lm.ownerLocks, owner)
	} else {
		lm.ownerLocks[owner] = newOwnerLocks
	}

	lm.processWaitingRequests(key)

	return nil
}

// processWaitingRequests grants queued requests for a key in arrival order
func (lm *LockManager) processWaitingRequests(key any) {
	waitingQueue := lm.waitingRequests[key]
	if len(waitingQueue) == 0 {
		return
	}

	newQueue := make([]*LockRequest, 0)

	for _, request := range waitingQueue {
		if lm.canGrantLock(key, request.Type, request.Owner) {
			lm.grantLock(&Lock{Owner: request.Owner, Key: key, Type: request.Type, AcquiredAt: time.Now()})
			request.AcquiredCh <- nil
		} else {
			newQueue = append(newQueue, request)
		}
	}

	if len(newQueue) == 0 {
		delete(lm.waitingRequests, key)
	} else {
		lm.waitingRequests[key] = newQueue
	}
}

// abandonRequest removes a waiting request. It returns false when the lock
// was granted concurrently, in which case the grant is already in AcquiredCh.
func (lm *LockManager) abandonRequest(request *LockRequest) bool {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	waitingQueue := lm.waitingRequests[request.Key]
	newQueue := make([]*LockRequest, 0, len(waitingQueue))
	found := false

	for _, r := range waitingQueue {
		if r == request {
			found = true
			continue
		}
		newQueue = append(newQueue, r)
	}

	if len(newQueue) == 0 {
		delete(lm.waitingRequests, request.Key)
	} else {
		lm.waitingRequests[request.Key] = newQueue
	}
	return found
}

// wouldCauseDeadlock performs simple deadlock detection: an owner holding the
// key is itself waiting for a key held by the requester.
func (lm *LockManager) wouldCauseDeadlock(owner uint64, key any) bool {
	myLocks := lm.ownerLocks[owner]

	for _, lockOnKey := range lm.lockTable[key] {
		other := lockOnKey.Owner
		if other == owner {
			continue
		}

		for _, myLock := range myLocks {
			for _, waitingRequest := range lm.waitingRequests[myLock.Key] {
				if waitingRequest.Owner == other {
					return true
				}
			}
		}
	}

	return false
}

// Statistics is a snapshot of the lock table.
type Statistics struct {
	KeysLocked int
	Owners     int
	Waiting    int
}

func (lm *LockManager) Statistics() Statistics {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()

	st := Statistics{KeysLocked: len(lm.lockTable), Owners: len(lm.ownerLocks)}
	for _, requests := range lm.waitingRequests {
		st.Waiting += len(requests)
	}
	return st
}
