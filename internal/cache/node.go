// Package cache assembles one cluster member: its data container, search
// index, interceptor chain, stores and functional map.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"go.uber.org/multierr"

	"meteorgrid/internal/chain"
	"meteorgrid/internal/config"
	"meteorgrid/internal/container"
	"meteorgrid/internal/entryview"
	"meteorgrid/internal/executor"
	"meteorgrid/internal/functional"
	"meteorgrid/internal/gsnmanager"
	"meteorgrid/internal/interceptors"
	"meteorgrid/internal/invocation"
	"meteorgrid/internal/lockmanager"
	"meteorgrid/internal/notify"
	"meteorgrid/internal/param"
	"meteorgrid/internal/persistence"
	"meteorgrid/internal/query"
	"meteorgrid/internal/query/index"
	"meteorgrid/internal/stats"
	"meteorgrid/internal/topology"
	"meteorgrid/internal/transport"
)

type Options[K comparable, V any] struct {
	Address   topology.Address
	Config    *config.MeteorGridConfig
	Transport *transport.Transport[K, V]
	// Stores overrides the stores built from Config.Persistence.
	Stores []persistence.Lifecycle
	Log    *slog.Logger
}

// Node is one member of a cache cluster.
type Node[K comparable, V any] struct {
	addr  topology.Address
	cfg   *config.MeteorGridConfig
	log   *slog.Logger
	stats *stats.Stats

	partitioner topology.KeyPartitioner
	container   *container.Container[K, V]
	index       *index.Index[K]
	schema      *query.Schema
	gsn         *gsnmanager.GsnManager
	listeners   *notify.Registry[K, V]
	persistence *persistence.Manager[K, V]
	transport   *transport.Transport[K, V]
	async       *executor.Executor
	backups     *executor.Executor
	chain       *chain.Chain[K, V]
	contexts    *invocation.Factory[K, V]
	rw          *functional.ReadWriteMap[K, V]
	queries     *query.Engine[K, V]
	transfers   *topology.StateTransferLock

	mu       sync.RWMutex
	topology *topology.CacheTopology
	// held are the segments this node has a complete copy of.
	held *roaring.Bitmap
	// tombstones keep the version of keys removed while state transfer runs.
	tombstones map[K]uint64
}

func NewNode[K comparable, V any](opts Options[K, V]) (*Node[K, V], error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("node", string(opts.Address))

	stores := opts.Stores
	if stores == nil {
		var err error
		if stores, err = NewStores[K, V](cfg.Persistence); err != nil {
			return nil, err
		}
	}

	part := topology.NewKeyPartitioner(cfg.Clustering.NumSegments)
	n := &Node[K, V]{
		addr:        opts.Address,
		cfg:         cfg,
		log:         log,
		stats:       stats.New(string(opts.Address)),
		partitioner: part,
		container:   container.New[K, V](part),
		index:       index.New[K](),
		schema:      query.NewSchema(cfg.Indexing),
		gsn:         gsnmanager.NewGsnManager(0),
		listeners:   notify.NewRegistry[K, V](),
		persistence: persistence.NewManager[K, V](stores...),
		transport:   opts.Transport,
		async:       executor.New(string(opts.Address), cfg.Functional.AsyncWorkers),
		backups:     executor.New(string(opts.Address)+"/backups", cfg.Clustering.AsyncBackups),
		contexts:    invocation.NewFactory[K, V](),
		transfers:   topology.NewStateTransferLock(),
		held:        roaring.New(),
		tombstones:  make(map[K]uint64),
	}
	if n.transport == nil {
		n.transport = transport.New[K, V]()
	}
	n.container.SetObserver(n)

	locks := lockmanager.NewLockManager()
	n.stats.WatchLocks(
		func() int { return locks.Statistics().KeysLocked },
		func() int { return locks.Statistics().Waiting },
	)

	n.chain = chain.New[K, V](functional.Call[K, V],
		interceptors.NewInvocationStats[K, V](n.stats, log),
		interceptors.NewLocking[K, V](locks, cfg.Locking.AcquireTimeout, n, part),
		interceptors.NewNotification[K, V](),
		interceptors.NewDistribution(n, part, n.transport, n.backups, log),
		interceptors.NewCacheWriter(n.persistence),
		interceptors.NewEntryCommit(n.container, n.gsn),
		interceptors.NewEntryWrapping(n.container, n.persistence),
	)

	fm := functional.NewFunctionalMap(n.chain, n.listeners, n.async, n.Keys)
	wait := param.WaitBlocking
	if cfg.Functional.WaitMode == config.WaitModeNonBlocking {
		wait = param.WaitNonBlocking
	}
	n.rw = functional.NewReadWriteMap(fm, wait)
	n.queries = query.NewEngine[K, V](n, n.schema, n.stats, log)
	return n, nil
}

// OpenStores starts the stores, so entries a joining node receives by state
// transfer are written through.
func (n *Node[K, V]) OpenStores(ctx context.Context) error {
	return n.persistence.Start(ctx)
}

// Start opens the stores if needed and, when configured, loads their entries
// for the segments this node owns. A topology must be installed first.
func (n *Node[K, V]) Start(ctx context.Context) error {
	if err := n.OpenStores(ctx); err != nil {
		return err
	}
	if !n.cfg.Persistence.Preload {
		return nil
	}
	owned := n.Topology().WriteCH().OwnedSegments(n.addr)
	_, err := n.persistence.Preload(ctx, func(me persistence.MarshalledEntry[K, V]) error {
		if !owned.Contains(uint32(n.partitioner.SegmentOf(me.Key))) {
			return nil
		}
		n.gsn.Observe(me.Metadata.Version)
		n.container.PutIfNewer(container.Entry[K, V]{Key: me.Key, Value: me.Value, Metadata: me.Metadata})
		return nil
	})
	return err
}

func (n *Node[K, V]) Stop() error {
	n.async.Stop()
	n.backups.Stop()
	return n.persistence.Stop()
}

// Destroy stops the node and removes the data of its stores.
func (n *Node[K, V]) Destroy() error {
	n.async.Stop()
	n.backups.Stop()
	return multierr.Append(n.persistence.Stop(), n.persistence.Destroy())
}

func (n *Node[K, V]) Address() topology.Address { return n.addr }
func (n *Node[K, V]) Self() topology.Address    { return n.addr }

func (n *Node[K, V]) Topology() *topology.CacheTopology {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.topology
}

func (n *Node[K, V]) Member(addr topology.Address) (transport.Member[K, V], error) {
	return n.transport.Member(addr)
}

func (n *Node[K, V]) AcquireRead(topologyID int) func() {
	return n.transfers.AcquireRead(topologyID)
}

func (n *Node[K, V]) Stats() *stats.Stats {
	return n.stats
}

func (n *Node[K, V]) Listeners() *notify.Registry[K, V] {
	return n.listeners
}

// ReadWriteMap returns the functional view of the cache.
func (n *Node[K, V]) ReadWriteMap() *functional.ReadWriteMap[K, V] {
	return n.rw
}

// Query creates a query over the whole cluster.
func (n *Node[K, V]) Query(q string) *query.Query[K, V] {
	return n.queries.Create(q)
}

// Put stores value and returns the previous one.
func (n *Node[K, V]) Put(key K, value V) (V, bool, error) {
	type prev struct {
		v  V
		ok bool
	}
	p, err := functional.EvalWithValue(n.rw, key, value, func(v V, view entryview.ReadWriteEntryView[K, V]) (prev, error) {
		old, ok := view.Find()
		view.Set(v)
		return prev{old, ok}, nil
	}).Join()
	return p.v, p.ok, err
}

func (n *Node[K, V]) Get(key K) (V, bool, error) {
	type found struct {
		v  V
		ok bool
	}
	f, err := functional.Eval(n.rw.WithParams(param.LockingSkip), key, func(view entryview.ReadWriteEntryView[K, V]) (found, error) {
		v, ok := view.Find()
		return found{v, ok}, nil
	}).Join()
	return f.v, f.ok, err
}

// Remove deletes key and returns the value it had.
func (n *Node[K, V]) Remove(key K) (V, bool, error) {
	type removed struct {
		v  V
		ok bool
	}
	r, err := functional.Eval(n.rw, key, func(view entryview.ReadWriteEntryView[K, V]) (removed, error) {
		v, ok := view.Find()
		if ok {
			view.Remove()
		}
		return removed{v, ok}, nil
	}).Join()
	return r.v, r.ok, err
}

// Keys lists the keys of the whole cluster, each read from the primary
// owner of its segment.
func (n *Node[K, V]) Keys(ctx context.Context) ([]K, error) {
	var keys []K
	err := n.eachPrimaryEntry(ctx, func(e container.Entry[K, V]) {
		keys = append(keys, e.Key)
	})
	return keys, err
}

// Size counts the entries of the whole cluster.
func (n *Node[K, V]) Size(ctx context.Context) (int, error) {
	size := 0
	err := n.eachPrimaryEntry(ctx, func(container.Entry[K, V]) { size++ })
	return size, err
}

// LocalSize counts the entries stored on this node, backups included.
func (n *Node[K, V]) LocalSize() int {
	return n.container.Size()
}

func (n *Node[K, V]) eachPrimaryEntry(ctx context.Context, fn func(container.Entry[K, V])) error {
	top := n.Topology()
	if top == nil {
		return fmt.Errorf("node %s has no topology", n.addr)
	}
	release := n.AcquireRead(top.ID)
	defer release()
	ch := top.ReadCH()
	for seg := 0; seg < ch.NumSegments(); seg++ {
		m, err := n.transport.Member(ch.PrimaryOwner(seg))
		if err != nil {
			return err
		}
		entries, err := m.SegmentEntries(ctx, seg)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fn(e)
		}
	}
	return nil
}

// EntryStored keeps the index in step with the container.
func (n *Node[K, V]) EntryStored(segment int, e container.Entry[K, V]) {
	if doc, ok := n.schema.Document(e.Value, segment); ok {
		n.index.Add(e.Key, doc)
		return
	}
	n.index.Delete(e.Key)
}

func (n *Node[K, V]) EntryRemoved(_ int, key K) {
	n.index.Delete(key)
}
