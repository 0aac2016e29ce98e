package gsnmanager

import (
	"go.uber.org/atomic"
)

// GsnManager hands out global sequence numbers used as entry versions.
type GsnManager struct {
	gsn *atomic.Uint64
}

func NewGsnManager(start uint64) *GsnManager {
	return &GsnManager{gsn: atomic.NewUint64(start)}
}

func (gm *GsnManager) GetNewGsn() uint64 {
	return gm.gsn.Inc()
}

// NextAfter returns a gsn greater than both the counter and current.
// A new primary owner may see versions assigned by a previous one, so the
// counter is fast-forwarded past them.
func (gm *GsnManager) NextAfter(current uint64) uint64 {
	for {
		last := gm.gsn.Load()
		next := last + 1
		if next <= current {
			next = current + 1
		}
		if gm.gsn.CAS(last, next) {
			return next
		}
	}
}

// Observe fast-forwards the counter to at least gsn.
func (gm *GsnManager) Observe(gsn uint64) {
	for {
		last := gm.gsn.Load()
		if last >= gsn || gm.gsn.CAS(last, gsn) {
			return
		}
	}
}

func (gm *GsnManager) Current() uint64 {
	return gm.gsn.Load()
}
