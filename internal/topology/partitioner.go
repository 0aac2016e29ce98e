package topology

import "meteorgrid/internal/common"

// KeyPartitioner maps keys to segments.
type KeyPartitioner struct {
	numSegments int
}

func NewKeyPartitioner(numSegments int) KeyPartitioner {
	if numSegments <= 0 {
		numSegments = 1
	}
	return KeyPartitioner{numSegments: numSegments}
}

func (p KeyPartitioner) SegmentOf(key any) int {
	return int(common.HashKey(key) % uint32(p.numSegments))
}

func (p KeyPartitioner) NumSegments() int {
	return p.numSegments
}
