package admin

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meteorgrid/internal/cluster"
	"meteorgrid/internal/config"
	"meteorgrid/internal/parser"
)

func newNode(t *testing.T) *Node {
	t.Helper()
	cfg := config.Default()
	cfg.Clustering.NumSegments = 8
	cfg.Indexing = config.IndexingConfig{
		Enabled:  true,
		Entities: []config.IndexedEntityConfig{{Name: "Book", TextFields: []string{"title"}, KeywordFields: []string{"lang"}}},
	}
	c := cluster.New[string, Document](cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	n, err := c.Join(context.Background(), "admin-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Stop() })
	return n
}

func run(t *testing.T, n *Node, line string) (string, error) {
	t.Helper()
	cmd, err := parser.NewStringParser().Parse([]byte(line))
	require.NoError(t, err)
	out, err := Execute(context.Background(), n, cmd)
	return string(out), err
}

func mustRun(t *testing.T, n *Node, line string) string {
	t.Helper()
	out, err := run(t, n, line)
	require.NoError(t, err, line)
	return out
}

func TestKeyCommands(t *testing.T) {
	n := newNode(t)

	assert.Equal(t, "OK", mustRun(t, n, `PUT b1 '{"$type":"Book","title":"learning go"}'`))
	assert.JSONEq(t, `{"$type":"Book","title":"learning go"}`,
		mustRun(t, n, `PUT b1 '{"$type":"Book","title":"go in practice"}'`))
	assert.JSONEq(t, `{"$type":"Book","title":"go in practice"}`, mustRun(t, n, "get b1"))
	assert.Equal(t, "1", mustRun(t, n, "SIZE"))

	assert.Equal(t, "OK", mustRun(t, n, "REMOVE b1"))
	assert.Equal(t, "-1", mustRun(t, n, "REMOVE b1"))
	assert.Equal(t, "-1", mustRun(t, n, "GET b1"))
	assert.Equal(t, "0", mustRun(t, n, "SIZE"))
}

func TestQueryCommands(t *testing.T) {
	n := newNode(t)
	mustRun(t, n, `PUT b1 '{"$type":"Book","title":"learning go","lang":"en","pages":300}'`)
	mustRun(t, n, `PUT b2 '{"$type":"Book","title":"go fundamentals","lang":"en","pages":120}'`)
	mustRun(t, n, `PUT b3 '{"$type":"Book","title":"rust in action","lang":"de","pages":450}'`)

	assert.Equal(t, "3", mustRun(t, n, `COUNT "FROM Book"`))
	assert.Equal(t, "2", mustRun(t, n, `COUNT "FROM Book where title:'go'"`))
	assert.Equal(t, "1", mustRun(t, n, `COUNT "FROM Book WHERE lang = 'de'"`))

	var rows []Row
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, n, `QUERY "SELECT title FROM Book ORDER BY pages DESC" 1 1`)), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "b1", rows[0].Key)
	assert.Equal(t, []any{"learning go"}, rows[0].Projection)
	assert.Nil(t, rows[0].Value)

	rows = nil
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, n, `QUERY "FROM Book WHERE pages < 200"`)), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "b2", rows[0].Key)
	assert.Equal(t, map[string]any{"$type": "Book", "title": "go fundamentals", "lang": "en", "pages": float64(120)}, rows[0].Value)
}

func TestCommandErrors(t *testing.T) {
	n := newNode(t)

	_, err := run(t, n, "FLUSH")
	assert.ErrorIs(t, err, ErrUnknownCommand)
	_, err = run(t, n, "GET")
	assert.ErrorIs(t, err, ErrUsage)
	_, err = run(t, n, "PUT k notjson")
	assert.ErrorIs(t, err, ErrInvalidValue)
	_, err = run(t, n, "PUT k '[1,2]'")
	assert.ErrorIs(t, err, ErrInvalidValue)
	_, err = run(t, n, `QUERY "FROM Book" -1`)
	assert.ErrorIs(t, err, ErrUsage)
	_, err = run(t, n, `COUNT "FROM Book WHERE"`)
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	for _, name := range []string{"PUT", "GET", "REMOVE", "SIZE", "COUNT", "QUERY"} {
		spec, ok := Get(name)
		require.True(t, ok, name)
		assert.Equal(t, name, spec.Name)
	}
	_, ok := Get("query")
	assert.True(t, ok)
	assert.Panics(t, func() {
		Register("get", nil, ensureKey("GET <key>"), execGet)
	})
}
