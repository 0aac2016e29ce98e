package cluster

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"meteorgrid/internal/cache"
	"meteorgrid/internal/config"
	"meteorgrid/internal/entryview"
	"meteorgrid/internal/functional"
	"meteorgrid/internal/future"
	"meteorgrid/internal/param"
	"meteorgrid/internal/topology"
)

type Entity struct {
	Name string `cache:"name"`
}

func testConfig(mode string) *config.MeteorGridConfig {
	cfg := config.Default()
	cfg.Clustering.Mode = mode
	cfg.Clustering.NumOwners = 1
	cfg.Clustering.NumSegments = 16
	cfg.Clustering.StateTransfer.ChunkSize = 3
	cfg.Indexing = config.IndexingConfig{
		Enabled:  true,
		Entities: []config.IndexedEntityConfig{{Name: "Entity", TextFields: []string{"name"}}},
	}
	return cfg
}

func newCluster(t *testing.T, mode string) *Cluster[string, Entity] {
	t.Helper()
	c := New[string, Entity](testConfig(mode), slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() {
		for _, n := range c.Nodes() {
			_ = n.Stop()
		}
	})
	return c
}

func count(t *testing.T, n *cache.Node[string, Entity], q string, local bool) int {
	t.Helper()
	res, err := n.Query(q).Local(local).Execute(context.Background())
	require.NoError(t, err)
	return res.Count()
}

func TestCountsSurviveJoin(t *testing.T) {
	ctx := context.Background()
	c := newCluster(t, config.ModeReplicated)
	n1, err := c.Join(ctx, "node-1")
	require.NoError(t, err)

	_, _, err = n1.Put("k0", Entity{Name: "name0"})
	require.NoError(t, err)
	_, _, err = n1.Put("k1", Entity{Name: "name1"})
	require.NoError(t, err)
	assert.Equal(t, 2, count(t, n1, "FROM Entity", false))
	assert.Equal(t, 1, count(t, n1, "FROM Entity where name:'name1'", false))

	stop := make(chan struct{})
	var wrong atomic.Int32
	var failures atomic.Int32
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			all, err := n1.Query("FROM Entity").Execute(ctx)
			if err != nil {
				failures.Add(1)
				continue
			}
			one, err := n1.Query("FROM Entity where name:'name1'").Execute(ctx)
			if err != nil {
				failures.Add(1)
				continue
			}
			if all.Count() != 2 || one.Count() != 1 {
				wrong.Add(1)
			}
		}
	}()

	n2, err := c.Join(ctx, "node-2")
	close(stop)
	wg.Wait()
	require.NoError(t, err)
	require.NoError(t, c.AwaitRebalance(ctx))

	assert.Zero(t, wrong.Load())
	assert.Zero(t, failures.Load())
	for _, n := range []*cache.Node[string, Entity]{n1, n2} {
		assert.Equal(t, 2, count(t, n, "FROM Entity", false))
		assert.Equal(t, 1, count(t, n, "FROM Entity where name:'name1'", false))
		assert.Equal(t, 2, count(t, n, "FROM Entity", true))
		assert.Equal(t, 1, count(t, n, "FROM Entity where name:'name1'", true))
	}
	assert.Equal(t, 2, n2.LocalSize())
}

func TestWritesDuringJoinReachNewMember(t *testing.T) {
	ctx := context.Background()
	c := newCluster(t, config.ModeReplicated)
	n1, err := c.Join(ctx, "node-1")
	require.NoError(t, err)
	for i := range 20 {
		_, _, err := n1.Put(fmt.Sprintf("k%d", i), Entity{Name: "before"})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 20 {
			if _, _, err := n1.Put(fmt.Sprintf("k%d", i), Entity{Name: "after"}); err != nil {
				t.Errorf("put k%d: %v", i, err)
			}
			if i%2 == 0 {
				if _, _, err := n1.Remove(fmt.Sprintf("k%d", i)); err != nil {
					t.Errorf("remove k%d: %v", i, err)
				}
			}
		}
	}()
	n2, err := c.Join(ctx, "node-2")
	require.NoError(t, err)
	wg.Wait()

	assert.Equal(t, 10, n2.LocalSize())
	assert.Equal(t, 10, count(t, n2, "FROM Entity where name:'after'", true))
	assert.Equal(t, 0, count(t, n2, "FROM Entity where name:'before'", true))
}

func TestDistributedJoinAndLeave(t *testing.T) {
	ctx := context.Background()
	c := newCluster(t, config.ModeDistributed)
	n1, err := c.Join(ctx, "node-1")
	require.NoError(t, err)
	const total = 40
	for i := range total {
		_, _, err := n1.Put(fmt.Sprintf("k%d", i), Entity{Name: fmt.Sprintf("name%d", i)})
		require.NoError(t, err)
	}

	n2, err := c.Join(ctx, "node-2")
	require.NoError(t, err)
	n3, err := c.Join(ctx, "node-3")
	require.NoError(t, err)

	nodes := []*cache.Node[string, Entity]{n1, n2, n3}
	local := 0
	for _, n := range nodes {
		assert.Equal(t, total, count(t, n, "FROM Entity", false))
		local += count(t, n, "FROM Entity", true)
		assert.Equal(t, n.LocalSize(), count(t, n, "FROM Entity", true))
	}
	assert.Equal(t, total, local)
	assert.Equal(t, 1, count(t, n3, "FROM Entity where name:'name7'", false))

	size, err := n2.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, total, size)

	require.NoError(t, c.Leave(ctx, "node-2"))
	_, ok := c.Node("node-2")
	assert.False(t, ok)
	assert.Equal(t, []topology.Address{"node-1", "node-3"}, c.Topology().Members)
	assert.Equal(t, total, n1.LocalSize()+n3.LocalSize())
	assert.Equal(t, total, count(t, n1, "FROM Entity", false))
	v, found, err := n3.Get("k7")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "name7", v.Name)
}

func TestMembershipErrors(t *testing.T) {
	ctx := context.Background()
	c := newCluster(t, config.ModeReplicated)
	_, err := c.Join(ctx, "node-1")
	require.NoError(t, err)
	_, err = c.Join(ctx, "node-1")
	assert.ErrorIs(t, err, ErrAlreadyMember)
	assert.ErrorIs(t, c.Leave(ctx, "node-9"), ErrNotMember)

	generated, err := c.Join(ctx, "")
	require.NoError(t, err)
	assert.NotEmpty(t, generated.Address())
	assert.Len(t, c.Nodes(), 2)
}

func TestThrottledTransfer(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(config.ModeReplicated)
	cfg.Clustering.StateTransfer.EntriesPerSecond = 1000
	c := New[string, Entity](cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	n1, err := c.Join(ctx, "node-1")
	require.NoError(t, err)
	for i := range 10 {
		_, _, err := n1.Put(fmt.Sprintf("k%d", i), Entity{Name: "x"})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	n2, err := c.Join(ctx, "node-2")
	require.NoError(t, err)
	assert.Equal(t, 10, n2.LocalSize())
	assert.Equal(t, float64(1000), float64(c.limiter().Limit()))
}

func TestNonBlockingEvalsWithAsyncReplication(t *testing.T) {
	ctx := context.Background()
	const workers = 2
	cfg := testConfig(config.ModeReplicated)
	cfg.Functional.AsyncWorkers = workers
	cfg.Clustering.AsyncBackups = 1
	c := New[string, Entity](cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() {
		for _, n := range c.Nodes() {
			_ = n.Stop()
		}
	})
	n1, err := c.Join(ctx, "node-1")
	require.NoError(t, err)
	n2, err := c.Join(ctx, "node-2")
	require.NoError(t, err)

	rw := n1.ReadWriteMap().WithParams(param.WaitNonBlocking, param.ReplicationAsync)
	futs := make([]*future.Future[bool], 0, 4*workers)
	for i := range 4 * workers {
		key := fmt.Sprintf("k%d", i)
		futs = append(futs, functional.Eval(rw, key, func(view entryview.ReadWriteEntryView[string, Entity]) (bool, error) {
			view.Set(Entity{Name: key})
			return true, nil
		}))
	}

	for i, fut := range futs {
		waitCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		ok, err := fut.Get(waitCtx)
		cancel()
		require.NoError(t, err, "k%d", i)
		assert.True(t, ok)
	}
	assert.Eventually(t, func() bool {
		return n1.LocalSize() == 4*workers && n2.LocalSize() == 4*workers
	}, 3*time.Second, 10*time.Millisecond)
}

func TestJoinRollsBackWhenStartFails(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(config.ModeReplicated)
	cfg.Persistence.Type = config.PersistenceFile
	cfg.Persistence.File.Path = filepath.Join(t.TempDir(), "missing", "node-1.log")
	c := New[string, Entity](cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() {
		for _, n := range c.Nodes() {
			_ = n.Stop()
		}
	})

	_, err := c.Join(ctx, "node-1")
	require.Error(t, err)
	assert.Nil(t, c.Topology())
	assert.Empty(t, c.Nodes())

	cfg.Persistence.File.Path = filepath.Join(t.TempDir(), "node-1.log")
	n1, err := c.Join(ctx, "node-1")
	require.NoError(t, err)
	_, _, err = n1.Put("k", Entity{Name: "kept"})
	require.NoError(t, err)

	cfg.Persistence.File.Path = filepath.Join(t.TempDir(), "missing", "node-2.log")
	_, err = c.Join(ctx, "node-2")
	require.Error(t, err)
	_, ok := c.Node("node-2")
	assert.False(t, ok)
	assert.Equal(t, []topology.Address{"node-1"}, c.Topology().Members)
	assert.False(t, c.Topology().IsRebalancing())

	// Transferred entries are written through to the stores of the new member.
	cfg.Persistence.File.Path = filepath.Join(t.TempDir(), "node-2.log")
	n2, err := c.Join(ctx, "node-2")
	require.NoError(t, err)
	assert.Equal(t, 1, n2.LocalSize())
	v, ok, err := n2.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "kept", v.Name)
}
