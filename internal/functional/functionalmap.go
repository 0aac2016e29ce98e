package functional

import (
	"context"

	"meteorgrid/internal/chain"
	"meteorgrid/internal/commands"
	"meteorgrid/internal/executor"
	"meteorgrid/internal/invocation"
	"meteorgrid/internal/notify"
	"meteorgrid/internal/param"
)

// KeySource returns the keys EvalAll runs over.
type KeySource[K comparable] func(ctx context.Context) ([]K, error)

// FunctionalMap is the state shared by every ReadWriteMap of one cache.
type FunctionalMap[K comparable, V any] struct {
	chain     *chain.Chain[K, V]
	notifier  *notify.Registry[K, V]
	exec      *executor.Executor
	commands  *commands.Factory[K, V]
	contexts  *invocation.Factory[K, V]
	keySource KeySource[K]
}

func NewFunctionalMap[K comparable, V any](c *chain.Chain[K, V], notifier *notify.Registry[K, V], exec *executor.Executor, keys KeySource[K]) *FunctionalMap[K, V] {
	return &FunctionalMap[K, V]{
		chain:     c,
		notifier:  notifier,
		exec:      exec,
		commands:  commands.NewFactory(notifier),
		contexts:  invocation.NewFactory[K, V](),
		keySource: keys,
	}
}

func (fm *FunctionalMap[K, V]) invoke(ctx context.Context, cmd commands.Command[K, V]) (any, error) {
	ictx := fm.contexts.Create(invocation.LocalOrigin, len(commands.Keys(cmd)))
	return fm.chain.Invoke(ctx, ictx, cmd)
}

// ReadWriteMap is the read-write functional view of a cache. Instances are
// immutable; WithParams derives new ones.
type ReadWriteMap[K comparable, V any] struct {
	fmap       *FunctionalMap[K, V]
	params     param.Params
	completion completion
}

func NewReadWriteMap[K comparable, V any](fm *FunctionalMap[K, V], ps ...param.Param) *ReadWriteMap[K, V] {
	return newReadWriteMap(fm, param.From(ps...))
}

func newReadWriteMap[K comparable, V any](fm *FunctionalMap[K, V], params param.Params) *ReadWriteMap[K, V] {
	return &ReadWriteMap[K, V]{
		fmap:       fm,
		params:     params,
		completion: completionFor(params.WaitMode(), fm.exec),
	}
}

// WithParams returns m itself when ps adds nothing.
func (m *ReadWriteMap[K, V]) WithParams(ps ...param.Param) *ReadWriteMap[K, V] {
	if len(ps) == 0 || m.params.ContainsAll(ps...) {
		return m
	}
	return newReadWriteMap(m.fmap, m.params.AddAll(ps...))
}

func (m *ReadWriteMap[K, V]) Params() param.Params {
	return m.params
}

func (m *ReadWriteMap[K, V]) Listeners() *notify.Registry[K, V] {
	return m.fmap.notifier
}
