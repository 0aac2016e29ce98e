package interceptors

import (
	"context"
	"log/slog"
	"time"

	"meteorgrid/internal/chain"
	"meteorgrid/internal/commands"
	"meteorgrid/internal/invocation"
	"meteorgrid/internal/stats"
	"meteorgrid/internal/stream"
)

// InvocationStats times every command. Many-key commands are timed until
// their result stream is closed.
type InvocationStats[K comparable, V any] struct {
	stats *stats.Stats
	log   *slog.Logger
}

func NewInvocationStats[K comparable, V any](s *stats.Stats, log *slog.Logger) *InvocationStats[K, V] {
	return &InvocationStats[K, V]{stats: s, log: log}
}

func (s *InvocationStats[K, V]) Name() string { return "InvocationStats" }

func (s *InvocationStats[K, V]) Handle(ctx context.Context, ictx *invocation.Context[K, V], cmd commands.Command[K, V], next chain.Handler[K, V]) (any, error) {
	kind := commands.Kind(cmd)
	s.log.Debug("[CMD] START", "kind", kind, "id", cmd.ID(), "invocation", ictx.ID(), "keys", len(commands.Keys(cmd)))
	t0 := time.Now()

	res, err := next(ctx, ictx, cmd)
	if err != nil || !commands.IsMany(cmd) {
		s.done(kind, ictx, time.Since(t0), err)
		return res, err
	}
	it, err := results[K](res)
	if err != nil {
		return nil, err
	}
	return stream.OnClose(it, func() {
		s.done(kind, ictx, time.Since(t0), it.Err())
	}), nil
}

func (s *InvocationStats[K, V]) done(kind string, ictx *invocation.Context[K, V], dt time.Duration, err error) {
	s.stats.RecordCommand(kind, dt, err)
	if err != nil {
		s.log.Debug("[CMD] ERROR", "kind", kind, "invocation", ictx.ID(), "took", dt, "error", err)
		return
	}
	s.log.Debug("[CMD] DONE", "kind", kind, "invocation", ictx.ID(), "took", dt)
}
