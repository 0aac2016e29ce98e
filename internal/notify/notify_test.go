package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListenersReceiveMatchingEvents(t *testing.T) {
	r := NewRegistry[string, int]()
	var created, removed, all []string

	r.OnCreate(func(ev Event[string, int]) { created = append(created, ev.Key) })
	r.OnRemove(func(ev Event[string, int]) { removed = append(removed, ev.Key) })
	r.OnWrite(func(ev Event[string, int]) { all = append(all, ev.Type.String()) })

	r.Fire(Event[string, int]{Type: Created, Key: "a", Value: 1})
	r.Fire(Event[string, int]{Type: Modified, Key: "a", Prev: 1, HadPrev: true, Value: 2})
	r.Fire(Event[string, int]{Type: Removed, Key: "a", Prev: 2, HadPrev: true})

	assert.Equal(t, []string{"a"}, created)
	assert.Equal(t, []string{"a"}, removed)
	assert.Equal(t, []string{"CREATED", "MODIFIED", "REMOVED"}, all)
}

func TestRemove(t *testing.T) {
	r := NewRegistry[int, int]()
	calls := 0
	h := r.OnWrite(func(Event[int, int]) { calls++ })
	assert.Equal(t, 1, r.Len())

	assert.True(t, r.Remove(h))
	assert.False(t, r.Remove(h))
	r.Fire(Event[int, int]{Type: Created, Key: 1})
	assert.Zero(t, calls)
}

func TestPanickingListenerIsIsolated(t *testing.T) {
	r := NewRegistry[int, int]()
	calls := 0
	r.OnWrite(func(Event[int, int]) { panic("boom") })
	r.OnWrite(func(Event[int, int]) { calls++ })

	assert.NotPanics(t, func() { r.Fire(Event[int, int]{Type: Modified, Key: 1}) })
	assert.Equal(t, 1, calls)
}
