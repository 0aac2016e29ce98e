package interceptors

import (
	"fmt"

	"meteorgrid/internal/commands"
	"meteorgrid/internal/stream"
	"meteorgrid/internal/topology"
)

// forEachKey runs fn on the outcome of every key of cmd. For many-key
// commands fn runs lazily, as the result stream is pulled.
func forEachKey[K comparable, V any](cmd commands.Command[K, V], result any, fn func(r *commands.KeyResult[K])) (any, error) {
	if !commands.IsMany(cmd) {
		r := commands.KeyResult[K]{Key: commands.Keys(cmd)[0], Value: result}
		fn(&r)
		return r.Value, r.Err
	}
	it, err := results[K](result)
	if err != nil {
		return nil, err
	}
	return stream.Map(it, func(r commands.KeyResult[K]) commands.KeyResult[K] {
		fn(&r)
		return r
	}), nil
}

func results[K comparable](result any) (stream.Iterator[commands.KeyResult[K]], error) {
	it, ok := result.(stream.Iterator[commands.KeyResult[K]])
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedResult, result)
	}
	return it, nil
}

// Placement answers ownership questions against the installed topology.
type Placement interface {
	Self() topology.Address
	Topology() *topology.CacheTopology
	// AcquireRead pins topologyID until the returned func is called.
	AcquireRead(topologyID int) func()
}

func primaryOf[K comparable](p Placement, part topology.KeyPartitioner, key K) topology.Address {
	return p.Topology().PrimaryOwner(part.SegmentOf(key))
}
