package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meteorgrid/internal/admin"
	"meteorgrid/internal/cluster"
	"meteorgrid/internal/config"
)

func startServer(t *testing.T) (addr string, stop func()) {
	t.Helper()
	cfg := config.Default()
	cfg.Clustering.NumSegments = 8
	c := cluster.New[string, admin.Document](cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	node, err := c.Join(context.Background(), "server-test")
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		New(node).Serve(ctx, ln)
	}()
	return ln.Addr().String(), func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
		_ = node.Stop()
	}
}

type client struct {
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &client{conn: conn, r: bufio.NewReader(conn)}
}

func (c *client) send(t *testing.T, line string) string {
	t.Helper()
	_, err := fmt.Fprintf(c.conn, "%s\n", line)
	require.NoError(t, err)
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	resp, err := c.r.ReadString('\n')
	require.NoError(t, err)
	return resp[:len(resp)-1]
}

func TestLineProtocol(t *testing.T) {
	addr, stop := startServer(t)
	defer stop()

	a := dial(t, addr)
	b := dial(t, addr)
	assert.Equal(t, "OK", a.send(t, `PUT k1 '{"$type":"Note","text":"hello world"}'`))
	assert.JSONEq(t, `{"$type":"Note","text":"hello world"}`, b.send(t, "GET k1"))
	assert.Equal(t, "1", b.send(t, "SIZE"))
	assert.Equal(t, "1", a.send(t, `COUNT "FROM Note WHERE text LIKE 'hello%'"`))
	assert.Equal(t, "OK", b.send(t, "REMOVE k1"))
	assert.Equal(t, "-1", a.send(t, "GET k1"))
}

func TestErrorsAreReplies(t *testing.T) {
	addr, stop := startServer(t)
	defer stop()

	c := dial(t, addr)
	assert.Contains(t, c.send(t, "NOPE"), "error: unknown command")
	assert.Contains(t, c.send(t, `GET "open`), "error: unterminated")
	assert.Contains(t, c.send(t, "PUT k v"), "error: value must be a JSON object")
	assert.Equal(t, "0", c.send(t, "SIZE"))
}

func TestShutdownClosesConnections(t *testing.T) {
	addr, stop := startServer(t)
	c := dial(t, addr)
	assert.Equal(t, "0", c.send(t, "SIZE"))

	stop()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err := c.r.ReadString('\n')
	assert.Error(t, err)
}
