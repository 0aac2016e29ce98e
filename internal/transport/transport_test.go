package transport

import (
	"context"
	"testing"

	"meteorgrid/internal/commands"
	"meteorgrid/internal/container"
	"meteorgrid/internal/query/index"
	"meteorgrid/internal/topology"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMember struct {
	addr topology.Address
}

func (s stubMember) Address() topology.Address { return s.addr }
func (s stubMember) HandleCommand(context.Context, topology.Address, commands.Command[string, int]) (*Response[string, int], error) {
	return &Response[string, int]{Value: 1}, nil
}
func (s stubMember) ApplyUpdates(context.Context, []Update[string, int]) error { return nil }
func (s stubMember) SegmentEntries(context.Context, int) ([]container.Entry[string, int], error) {
	return nil, nil
}
func (s stubMember) Candidates(context.Context, index.Request) ([]Candidate[string, int], error) {
	return nil, nil
}
func (s stubMember) InstallTopology(context.Context, *topology.CacheTopology) error { return nil }

func TestRegistry(t *testing.T) {
	tr := New[string, int]()
	tr.Register(stubMember{addr: "b"})
	tr.Register(stubMember{addr: "a"})

	assert.Equal(t, []topology.Address{"a", "b"}, tr.Addresses())
	m, err := tr.Member("a")
	require.NoError(t, err)
	assert.Equal(t, topology.Address("a"), m.Address())

	tr.Unregister("a")
	_, err = tr.Member("a")
	assert.ErrorIs(t, err, ErrMemberNotFound)
}
