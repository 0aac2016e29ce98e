// Package cluster manages the members of an in-process cache cluster and
// moves data between them when membership changes.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"meteorgrid/internal/cache"
	"meteorgrid/internal/config"
	"meteorgrid/internal/topology"
	"meteorgrid/internal/transport"
)

var (
	ErrAlreadyMember = errors.New("cluster: address already a member")
	ErrNotMember     = errors.New("cluster: not a member")
)

// Cluster coordinates membership. Joins and leaves are serialised; each one
// installs a rebalancing topology, transfers the segments that changed
// owners and then installs the stable topology.
type Cluster[K comparable, V any] struct {
	cfg       *config.MeteorGridConfig
	log       *slog.Logger
	transport *transport.Transport[K, V]

	membership sync.Mutex

	mu       sync.RWMutex
	nodes    map[topology.Address]*cache.Node[K, V]
	topology *topology.CacheTopology
	nextID   int
	settled  chan struct{}
}

func New[K comparable, V any](cfg *config.MeteorGridConfig, log *slog.Logger) *Cluster[K, V] {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = slog.Default()
	}
	settled := make(chan struct{})
	close(settled)
	return &Cluster[K, V]{
		cfg:       cfg,
		log:       log,
		transport: transport.New[K, V](),
		nodes:     make(map[topology.Address]*cache.Node[K, V]),
		settled:   settled,
	}
}

func (c *Cluster[K, V]) Topology() *topology.CacheTopology {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topology
}

func (c *Cluster[K, V]) Node(addr topology.Address) (*cache.Node[K, V], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.nodes[addr]
	return n, ok
}

// Nodes returns the members ordered by address.
func (c *Cluster[K, V]) Nodes() []*cache.Node[K, V] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*cache.Node[K, V], 0, len(c.nodes))
	for _, n := range c.nodes {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b *cache.Node[K, V]) int {
		switch {
		case a.Address() < b.Address():
			return -1
		case a.Address() > b.Address():
			return 1
		}
		return 0
	})
	return out
}

// AwaitRebalance blocks until no membership change is in progress.
func (c *Cluster[K, V]) AwaitRebalance(ctx context.Context) error {
	c.mu.RLock()
	settled := c.settled
	c.mu.RUnlock()
	select {
	case <-settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Cluster[K, V]) hash(members []topology.Address) *topology.ConsistentHash {
	owners := 0
	if c.cfg.Clustering.Mode == config.ModeDistributed {
		owners = c.cfg.Clustering.NumOwners
	}
	return topology.NewConsistentHash(members, c.cfg.Clustering.NumSegments, owners, c.cfg.Clustering.VirtualNodes)
}

// Join starts a new member named name, or a generated name when empty, and
// returns once it owns its share of the data.
func (c *Cluster[K, V]) Join(ctx context.Context, name string) (*cache.Node[K, V], error) {
	if name == "" {
		name = "node-" + uuid.NewString()[:8]
	}
	addr := topology.Address(name)

	c.membership.Lock()
	defer c.membership.Unlock()
	if _, ok := c.Node(addr); ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyMember, addr)
	}

	node, err := cache.NewNode(cache.Options[K, V]{
		Address:   addr,
		Config:    c.cfg,
		Transport: c.transport,
		Log:       c.log,
	})
	if err != nil {
		return nil, err
	}
	c.transport.Register(node)

	prev := c.Topology()
	if prev == nil {
		top := c.newTopology([]topology.Address{addr}, c.hash([]topology.Address{addr}), nil)
		if err := node.InstallTopology(ctx, top); err != nil {
			c.transport.Unregister(addr)
			return nil, err
		}
		c.addNode(node, top)
		if err := node.Start(ctx); err != nil {
			return nil, c.abortJoin(ctx, node, err)
		}
		c.log.Info("Cluster started", "node", addr)
		return node, nil
	}

	if err := node.OpenStores(ctx); err != nil {
		c.transport.Unregister(addr)
		return nil, fmt.Errorf("starting %s: %w", addr, err)
	}
	members := append(slices.Clone(prev.Members), addr)
	slices.Sort(members)
	c.addNode(node, nil)
	if err := c.rebalance(ctx, prev, members, []topology.Address{addr}); err != nil {
		c.removeNode(addr)
		c.transport.Unregister(addr)
		return nil, multierr.Append(err, node.Stop())
	}
	if err := node.Start(ctx); err != nil {
		return nil, c.abortJoin(ctx, node, err)
	}
	c.log.Info("Node joined", "node", addr, "members", len(members))
	return node, nil
}

// Leave moves the data of addr to the remaining members and stops it.
func (c *Cluster[K, V]) Leave(ctx context.Context, addr topology.Address) error {
	c.membership.Lock()
	defer c.membership.Unlock()
	node, ok := c.Node(addr)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotMember, addr)
	}
	return c.leave(ctx, node)
}

// abortJoin takes back the share a node got before it failed to start.
func (c *Cluster[K, V]) abortJoin(ctx context.Context, node *cache.Node[K, V], cause error) error {
	c.log.Error("Node failed to start", "node", node.Address(), "error", cause)
	return multierr.Append(fmt.Errorf("starting %s: %w", node.Address(), cause), c.leave(ctx, node))
}

func (c *Cluster[K, V]) leave(ctx context.Context, node *cache.Node[K, V]) error {
	addr := node.Address()
	prev := c.Topology()
	members := slices.DeleteFunc(slices.Clone(prev.Members), func(a topology.Address) bool { return a == addr })
	if len(members) > 0 {
		if err := c.rebalance(ctx, prev, members, nil); err != nil {
			return err
		}
	} else {
		c.mu.Lock()
		c.topology = nil
		c.mu.Unlock()
	}
	c.removeNode(addr)
	c.transport.Unregister(addr)
	c.log.Info("Node left", "node", addr, "members", len(members))
	return node.Stop()
}

func (c *Cluster[K, V]) newTopology(members []topology.Address, current, pending *topology.ConsistentHash) *topology.CacheTopology {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	return &topology.CacheTopology{ID: c.nextID, Members: members, Current: current, Pending: pending}
}

func (c *Cluster[K, V]) addNode(n *cache.Node[K, V], top *topology.CacheTopology) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes[n.Address()] = n
	if top != nil {
		c.topology = top
	}
}

func (c *Cluster[K, V]) removeNode(addr topology.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.nodes, addr)
}

// rebalance moves from prev to a topology over members. Nodes in joining
// receive the rebalancing topology first; they are not in prev.
func (c *Cluster[K, V]) rebalance(ctx context.Context, prev *topology.CacheTopology, members, joining []topology.Address) error {
	done := make(chan struct{})
	c.mu.Lock()
	c.settled = done
	c.mu.Unlock()
	defer close(done)

	if timeout := c.cfg.Clustering.StateTransfer.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	target := c.hash(members)
	all := append(slices.Clone(prev.Members), joining...)
	rebalancing := c.newTopology(all, prev.Current, target)
	if err := c.install(ctx, rebalancing, all); err != nil {
		return err
	}
	c.setTopology(rebalancing)

	transferErr := c.transfer(ctx, members)
	stable := c.newTopology(members, target, nil)
	if transferErr != nil {
		// Keep the previous owners; members that joined are dropped by the caller.
		stable = c.newTopology(prev.Members, prev.Current, nil)
	}
	if err := c.install(ctx, stable, all); err != nil {
		return err
	}
	c.setTopology(stable)
	return transferErr
}

func (c *Cluster[K, V]) setTopology(t *topology.CacheTopology) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topology = t
}

func (c *Cluster[K, V]) install(ctx context.Context, t *topology.CacheTopology, members []topology.Address) error {
	for _, addr := range members {
		node, ok := c.Node(addr)
		if !ok {
			continue
		}
		if err := node.InstallTopology(ctx, t); err != nil {
			return fmt.Errorf("installing topology %d on %s: %w", t.ID, addr, err)
		}
	}
	return nil
}
