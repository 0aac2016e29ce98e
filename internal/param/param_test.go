package param

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	var p Params
	assert.Equal(t, WaitBlocking, p.WaitMode())
	assert.Equal(t, PersistLoadWrite, p.PersistenceMode())
	assert.Equal(t, LockingLock, p.LockingMode())
	assert.Equal(t, ReplicationSync, p.ReplicationMode())
	assert.True(t, p.ContainsAll())
	assert.True(t, p.ContainsAll(WaitBlocking, LockingLock), "defaults count as present")
	assert.False(t, p.ContainsAll(WaitNonBlocking))
}

func TestAddAllIsCopyOnWrite(t *testing.T) {
	base := From(WaitNonBlocking)
	next := base.AddAll(PersistSkip, WaitBlocking)

	assert.Equal(t, WaitNonBlocking, base.WaitMode())
	assert.Equal(t, PersistLoadWrite, base.PersistenceMode())
	assert.Equal(t, WaitBlocking, next.WaitMode())
	assert.Equal(t, PersistSkip, next.PersistenceMode())
}

func TestContainsAll(t *testing.T) {
	p := From(LockingSkip, ReplicationAsync)
	assert.True(t, p.ContainsAll(LockingSkip))
	assert.True(t, p.ContainsAll(ReplicationAsync, LockingSkip))
	assert.False(t, p.ContainsAll(LockingLock))
	assert.False(t, p.ContainsAll(LockingSkip, WaitNonBlocking))
	assert.True(t, p.ContainsAll(LockingSkip, PersistLoadWrite))
}

func TestString(t *testing.T) {
	s := From(WaitNonBlocking).String()
	assert.Contains(t, s, "wait-mode=non-blocking")
	assert.Contains(t, s, "locking-mode=lock")
}
