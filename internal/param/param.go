package param

import (
	"fmt"
	"strings"
)

// ID identifies a parameter slot. At most one Param per ID is present in a Params.
type ID int

const (
	WaitModeID ID = iota
	PersistenceModeID
	LockingModeID
	ReplicationModeID

	numIDs
)

func (id ID) String() string {
	switch id {
	case WaitModeID:
		return "wait-mode"
	case PersistenceModeID:
		return "persistence-mode"
	case LockingModeID:
		return "locking-mode"
	case ReplicationModeID:
		return "replication-mode"
	default:
		return fmt.Sprintf("param(%d)", int(id))
	}
}

type Param interface {
	ID() ID
}

// WaitMode selects the completion strategy of functional map operations.
type WaitMode int

const (
	WaitBlocking WaitMode = iota
	WaitNonBlocking
)

func (WaitMode) ID() ID { return WaitModeID }

func (m WaitMode) String() string {
	if m == WaitNonBlocking {
		return "non-blocking"
	}
	return "blocking"
}

type PersistenceMode int

const (
	PersistLoadWrite PersistenceMode = iota
	PersistSkip
)

func (PersistenceMode) ID() ID { return PersistenceModeID }

func (m PersistenceMode) String() string {
	if m == PersistSkip {
		return "skip-persistence"
	}
	return "load-write"
}

type LockingMode int

const (
	LockingLock LockingMode = iota
	LockingSkip
)

func (LockingMode) ID() ID { return LockingModeID }

func (m LockingMode) String() string {
	if m == LockingSkip {
		return "skip-locking"
	}
	return "lock"
}

type ReplicationMode int

const (
	ReplicationSync ReplicationMode = iota
	ReplicationAsync
)

func (ReplicationMode) ID() ID { return ReplicationModeID }

func (m ReplicationMode) String() string {
	if m == ReplicationAsync {
		return "async"
	}
	return "sync"
}

var defaults = [numIDs]Param{WaitBlocking, PersistLoadWrite, LockingLock, ReplicationSync}

// Params is an immutable set of parameters indexed by ID. The zero value
// holds no explicit parameters and reports defaults from the accessors.
type Params struct {
	slots [numIDs]Param
}

// From builds a Params. Later entries with the same ID win.
func From(ps ...Param) Params {
	return Params{}.AddAll(ps...)
}

// Get returns the parameter for id, or its default when absent.
func (p Params) Get(id ID) Param {
	if id < 0 || id >= numIDs {
		return nil
	}
	if v := p.slots[id]; v != nil {
		return v
	}
	return defaults[id]
}

// ContainsAll reports whether every given parameter equals the one Get
// returns for its ID. Defaults count as present.
func (p Params) ContainsAll(ps ...Param) bool {
	for _, q := range ps {
		if q == nil {
			continue
		}
		id := q.ID()
		if id < 0 || id >= numIDs || p.Get(id) != q {
			return false
		}
	}
	return true
}

// AddAll returns a copy with the given parameters applied, last applied wins.
func (p Params) AddAll(ps ...Param) Params {
	next := p
	for _, q := range ps {
		if q == nil {
			continue
		}
		if id := q.ID(); id >= 0 && id < numIDs {
			next.slots[id] = q
		}
	}
	return next
}

func (p Params) WaitMode() WaitMode {
	return p.Get(WaitModeID).(WaitMode)
}

func (p Params) PersistenceMode() PersistenceMode {
	return p.Get(PersistenceModeID).(PersistenceMode)
}

func (p Params) LockingMode() LockingMode {
	return p.Get(LockingModeID).(LockingMode)
}

func (p Params) ReplicationMode() ReplicationMode {
	return p.Get(ReplicationModeID).(ReplicationMode)
}

func (p Params) String() string {
	parts := make([]string, 0, numIDs)
	for id := ID(0); id < numIDs; id++ {
		parts = append(parts, fmt.Sprintf("%s=%v", id, p.Get(id)))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
