package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"meteorgrid/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stopOnly has no Destroy method.
type stopOnly struct {
	stopped bool
}

func (s *stopOnly) Start(context.Context) error { return nil }
func (s *stopOnly) Stop() error                 { s.stopped = true; return nil }

type failingStart struct{ stopOnly }

func (f *failingStart) Start(context.Context) error { return errors.New("no backend") }

func TestDestroyDefaultsToStop(t *testing.T) {
	s := &stopOnly{}
	require.NoError(t, Destroy(s))
	assert.True(t, s.stopped)
	assert.True(t, IsAvailable(s))

	m := NewMemoryStore[string, int]()
	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Write(context.Background(), MarshalledEntry[string, int]{Key: "a", Value: 1}))
	require.NoError(t, Destroy(m))
	assert.Zero(t, m.Size())
}

func TestManagerRoundTrip(t *testing.T) {
	ctx := context.Background()
	a, b := NewMemoryStore[string, int](), NewMemoryStore[string, int]()
	m := NewManager[string, int](a, b)
	require.True(t, m.Enabled())
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	require.NoError(t, m.Write(ctx, MarshalledEntry[string, int]{Key: "k", Value: 5, Metadata: common.Metadata{Version: 2}}))
	assert.Equal(t, 1, a.Size())
	assert.Equal(t, 1, b.Size())

	e, err := m.Load(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, 5, e.Value)
	assert.Equal(t, uint64(2), e.Metadata.Version)

	missing, err := m.Load(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	deleted, err := m.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = m.Delete(ctx, "k")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestUnavailableStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore[string, int]()
	m := NewManager[string, int](s)
	require.NoError(t, m.Start(ctx))

	s.SetAvailable(false)
	assert.False(t, m.IsAvailable())
	_, err := m.Load(ctx, "k")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, m.Write(ctx, MarshalledEntry[string, int]{Key: "k"}), ErrStoreUnavailable)
}

func TestStartFailureStopsStartedStores(t *testing.T) {
	first := &stopOnly{}
	m := NewManager[string, int](first, &failingStart{})
	assert.Error(t, m.Start(context.Background()))
	assert.True(t, first.stopped)
}

func TestPreload(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore[string, int]()
	require.NoError(t, s.Start(ctx))
	for i, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.Write(ctx, MarshalledEntry[string, int]{Key: k, Value: i}))
	}

	m := NewManager[string, int](s)
	loaded := map[string]int{}
	n, err := m.Preload(ctx, func(e MarshalledEntry[string, int]) error {
		loaded[e.Key] = e.Value
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, map[string]int{"a": 0, "b": 1, "c": 2}, loaded)
}

func TestCodec(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	in := MarshalledEntry[int, map[string]any]{
		Key:      7,
		Value:    map[string]any{"name": "name1"},
		Metadata: common.Metadata{Version: 9, Created: created, LastModified: created, Lifespan: time.Minute},
	}
	data, err := EncodeEntry(JSONMarshaller{}, in)
	require.NoError(t, err)

	out, err := DecodeEntry[int, map[string]any](JSONMarshaller{}, data)
	require.NoError(t, err)
	assert.Equal(t, 7, out.Key)
	assert.Equal(t, "name1", out.Value["name"])
	assert.Equal(t, uint64(9), out.Metadata.Version)
	assert.True(t, created.Equal(out.Metadata.Created))
	assert.Equal(t, time.Minute, out.Metadata.Lifespan)
}
