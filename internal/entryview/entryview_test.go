package entryview

import (
	"testing"
	"time"

	"meteorgrid/internal/common"
	"meteorgrid/internal/invocation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissingEntry(t *testing.T) {
	view := ReadWrite(invocation.NewCacheEntry("k", "", common.Metadata{}, false))

	assert.Equal(t, "k", view.Key())
	_, ok := view.Find()
	assert.False(t, ok)
	_, err := view.Get()
	assert.ErrorIs(t, err, ErrNoSuchEntry)

	view.Set("v", Lifespan(time.Minute))
	v, err := view.Get()
	require.NoError(t, err)
	assert.Equal(t, "v", v)
	assert.Equal(t, time.Minute, view.Metadata().Lifespan)
}

func TestSetAndRemoveExisting(t *testing.T) {
	created := time.Now().Add(-time.Hour)
	entry := invocation.NewCacheEntry("k", "old", common.Metadata{Version: 4, Created: created, Lifespan: time.Hour * 2}, true)
	view := ReadWrite(entry)

	view.Set("new")
	assert.True(t, entry.Changed)
	assert.False(t, entry.Created)
	assert.Equal(t, created, view.Metadata().Created)
	assert.Zero(t, view.Metadata().Lifespan)

	view.Remove()
	_, ok := view.Find()
	assert.False(t, ok)
	assert.True(t, entry.Removed)
}
