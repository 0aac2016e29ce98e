package server

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"meteorgrid/internal/admin"
	"meteorgrid/internal/cluster"
	"meteorgrid/internal/config"
	"meteorgrid/internal/logger"
	"meteorgrid/internal/parser"
)

const maxLineSize = 1 << 20

func Init() {
	slog.SetDefault(logger.New())

	ctx, cancel := context.WithCancel(context.Background())
	go handleShutdown(cancel)

	c := cluster.New[string, admin.Document](config.Config, slog.Default())
	node, err := c.Join(ctx, config.Config.NodeName)
	if err != nil {
		slog.Error("Failed to start node", "error", err)
		return
	}

	ln, err := net.Listen("tcp", config.Config.Host+":"+config.Config.Port)
	if err != nil {
		slog.Error("Failed to listen", "error", err)
		_ = node.Stop()
		return
	}
	slog.Info("Server started", "host", config.Config.Host, "port", config.Config.Port, "node", node.Address())

	New(node).Serve(ctx, ln)
	if err := node.Stop(); err != nil {
		slog.Error("Failed to stop node", "error", err)
	}
	slog.Info("Server stopped")
}

// Server answers the admin line protocol for one node.
type Server struct {
	node   *admin.Node
	parser parser.Parser
	wg     sync.WaitGroup
}

func New(node *admin.Node) *Server {
	return &Server{node: node, parser: parser.NewStringParser()}
}

// Serve accepts connections on ln until ctx is done, then waits for open
// connections to finish their current command.
func (s *Server) Serve(ctx context.Context, ln net.Listener) {
	go func() {
		<-ctx.Done()
		slog.Info("No longer accepting connections")
		_ = ln.Close()
	}()
	s.listenForConnections(ctx, ln)
	s.wg.Wait()
}

func (s *Server) listenForConnections(ctx context.Context, listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Error("Failed to accept connection", "error", err)
			continue
		}
		slog.Debug("Accepted connection", "remoteAddr", conn.RemoteAddr().String())
		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	// Unblocks the read below on shutdown.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxLineSize)
	w := bufio.NewWriter(conn)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		w.Write(s.respond(ctx, scanner.Bytes()))
		w.WriteByte('\n')
		if err := w.Flush(); err != nil {
			slog.Error("Failed to write to connection", "error", err)
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		slog.Error("Failed to read from connection", "error", err)
	}
	slog.Debug("Connection closed", "remoteAddr", conn.RemoteAddr().String())
}

func (s *Server) respond(ctx context.Context, line []byte) []byte {
	cmd, err := s.parser.Parse(line)
	if err == nil {
		var out []byte
		if out, err = admin.Execute(ctx, s.node, cmd); err == nil {
			return out
		}
	}
	return []byte("error: " + err.Error())
}

func handleShutdown(contextCancel context.CancelFunc) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	slog.Info("Received shutdown signal")
	contextCancel()
}
