package chain

import (
	"context"

	"meteorgrid/internal/commands"
	"meteorgrid/internal/invocation"
)

// Handler runs a command. Single-key commands return the user function's
// result; many-key commands return a stream.Iterator[commands.KeyResult[K]].
type Handler[K comparable, V any] func(ctx context.Context, ictx *invocation.Context[K, V], cmd commands.Command[K, V]) (any, error)

// Interceptor is one stage of the chain. It decides whether and how to call next.
type Interceptor[K comparable, V any] interface {
	Name() string
	Handle(ctx context.Context, ictx *invocation.Context[K, V], cmd commands.Command[K, V], next Handler[K, V]) (any, error)
}

// Chain is an ordered list of interceptors ending in a terminal handler.
// It is immutable after New and safe for concurrent use.
type Chain[K comparable, V any] struct {
	stages []Interceptor[K, V]
	entry  Handler[K, V]
}

// New builds a chain. stages are listed outermost first.
func New[K comparable, V any](terminal Handler[K, V], stages ...Interceptor[K, V]) *Chain[K, V] {
	entry := terminal
	for i := len(stages) - 1; i >= 0; i-- {
		stage, next := stages[i], entry
		entry = func(ctx context.Context, ictx *invocation.Context[K, V], cmd commands.Command[K, V]) (any, error) {
			return stage.Handle(ctx, ictx, cmd, next)
		}
	}
	return &Chain[K, V]{stages: stages, entry: entry}
}

func (c *Chain[K, V]) Invoke(ctx context.Context, ictx *invocation.Context[K, V], cmd commands.Command[K, V]) (any, error) {
	return c.entry(ctx, ictx, cmd)
}

func (c *Chain[K, V]) Names() []string {
	names := make([]string, len(c.stages))
	for i, s := range c.stages {
		names[i] = s.Name()
	}
	return names
}
