package objectstore

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"

	"meteorgrid/internal/persistence"
	"meteorgrid/internal/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entity struct {
	Name string `json:"name"`
}

func TestObjectNames(t *testing.T) {
	s, err := New[int, entity](Options{Endpoint: "localhost:9000", Bucket: "b", Prefix: "entries"})
	require.NoError(t, err)

	name, err := s.objectName(42)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "entries/"))
	raw, err := hex.DecodeString(strings.TrimPrefix(name, "entries/"))
	require.NoError(t, err)
	assert.Equal(t, "42", string(raw))
	assert.False(t, s.IsAvailable(), "unavailable until started")
}

// TestStoreIntegration requires a running MinIO instance.
func TestStoreIntegration(t *testing.T) {
	s, err := New[string, entity](Options{
		Endpoint:  "localhost:9000",
		Bucket:    "meteorgrid-test",
		Prefix:    "it",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	})
	require.NoError(t, err)

	ctx := context.Background()
	if _, err := s.client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}
	require.NoError(t, s.Start(ctx))
	defer func() { require.NoError(t, persistence.Destroy(s)) }()

	require.NoError(t, s.Write(ctx, persistence.MarshalledEntry[string, entity]{Key: "a", Value: entity{Name: "name0"}}))
	e, err := s.Load(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "name0", e.Value.Name)

	all, err := stream.Collect(s.Entries(ctx))
	require.NoError(t, err)
	assert.Len(t, all, 1)

	deleted, err := s.Delete(ctx, "a")
	require.NoError(t, err)
	assert.True(t, deleted)
	missing, err := s.Load(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
