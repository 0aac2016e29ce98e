package future

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstCompletionWins(t *testing.T) {
	f := New[int]()
	assert.False(t, f.IsDone())
	assert.True(t, f.Complete(1, nil))
	assert.False(t, f.Complete(2, errors.New("late")))

	v, err := f.Join()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestGetHonoursContext(t *testing.T) {
	f := New[string]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	go f.Complete("ok", nil)
	v, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestCompletedCarriesError(t *testing.T) {
	boom := errors.New("boom")
	f := Completed(0, boom)
	assert.True(t, f.IsDone())
	_, err := f.Join()
	assert.ErrorIs(t, err, boom)
}
