package commands

import (
	"testing"

	"meteorgrid/internal/entryview"
	"meteorgrid/internal/notify"
	"meteorgrid/internal/param"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identity(v entryview.ReadWriteEntryView[string, int]) (any, error) {
	value, _ := v.Find()
	return value, nil
}

func TestFactoryBindsNotifierAndParams(t *testing.T) {
	registry := notify.NewRegistry[string, int]()
	f := NewFactory(registry)
	params := param.From(param.WaitNonBlocking)

	a := f.BuildReadWriteKeyCommand("a", identity, params)
	b := f.BuildReadWriteKeyCommand("a", identity, params)

	assert.Same(t, registry, a.Notifier())
	assert.Equal(t, param.WaitNonBlocking, a.Params().WaitMode())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, "ReadWriteKey", Kind[string, int](a))
	assert.False(t, IsMany[string, int](a))
}

func TestManyKeysAreCopiedAndDeduplicated(t *testing.T) {
	f := NewFactory(notify.NewRegistry[string, int]())
	keys := []string{"a", "b", "a", "c", "b"}
	cmd := f.BuildReadWriteManyCommand(keys, identity, param.Params{})
	keys[0] = "z"

	assert.Equal(t, []string{"a", "b", "c"}, Keys[string, int](cmd))
	assert.True(t, IsMany[string, int](cmd))

	sub := Subset[string, int](cmd, []string{"b"})
	assert.Equal(t, []string{"b"}, Keys(sub))
	assert.Equal(t, cmd.ID(), sub.ID())
	assert.Equal(t, []string{"a", "b", "c"}, cmd.Keys)
}

func TestManyEntries(t *testing.T) {
	f := NewFactory(notify.NewRegistry[string, int]())
	entries := map[string]int{"a": 1, "b": 2}
	cmd := f.BuildReadWriteManyEntriesCommand(entries, func(v int, view entryview.ReadWriteEntryView[string, int]) (any, error) {
		view.Set(v)
		return nil, nil
	}, param.Params{})
	entries["c"] = 3

	assert.ElementsMatch(t, []string{"a", "b"}, cmd.Keys)
	assert.Len(t, cmd.Entries, 2)

	sub := cmd.WithKeys([]string{"a"})
	assert.Equal(t, map[string]int{"a": 1}, sub.Entries)
	assert.Equal(t, "ReadWriteManyEntries", Kind[string, int](sub))
}

func TestValidate(t *testing.T) {
	f := NewFactory(notify.NewRegistry[any, int]())
	fn := func(entryview.ReadWriteEntryView[any, int]) (any, error) { return nil, nil }

	require.NoError(t, f.BuildReadWriteKeyCommand("k", fn, param.Params{}).Validate())
	assert.ErrorIs(t, f.BuildReadWriteKeyCommand(nil, fn, param.Params{}).Validate(), ErrNilKey)
	assert.ErrorIs(t, f.BuildReadWriteKeyCommand("k", nil, param.Params{}).Validate(), ErrNilFunction)
	assert.ErrorIs(t, f.BuildReadWriteManyCommand([]any{"a", nil}, fn, param.Params{}).Validate(), ErrNilKey)
}
