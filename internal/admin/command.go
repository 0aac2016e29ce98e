// Package admin implements the commands of the node's line protocol.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"meteorgrid/internal/cache"
	"meteorgrid/internal/parser"
)

// Document is the value type served over the line protocol: a JSON object.
// A "$type" member names its entity for queries.
type Document = map[string]any

type Node = cache.Node[string, Document]

// ArgSpec describes exactly one positional argument.
type ArgSpec struct {
	Name        string
	Required    bool
	Description string
}

type CommandSpec struct {
	Name    string
	Args    []ArgSpec
	Handler func(ctx context.Context, node *Node, cmd *parser.Command) ([]byte, error)
}

type CommandContext struct {
	ctx  context.Context
	node *Node
}

var registry = make(map[string]*CommandSpec)

// Register adds a command to the registry. ensureInputs validates the raw
// arguments, execute runs the command with them.
func Register[I any](
	name string,
	args []ArgSpec,
	ensureInputs func(*parser.Command) (I, error),
	execute func(*CommandContext, I) ([]byte, error),
) {
	if name == "" {
		panic("command name cannot be empty")
	}
	name = strings.ToUpper(name)
	if _, ok := registry[name]; ok {
		panic(fmt.Sprintf("command with name %q already registered", name))
	}
	if ensureInputs == nil || execute == nil {
		panic(fmt.Sprintf("command %q must supply ensureInputs and execute", name))
	}

	handler := func(ctx context.Context, node *Node, cmd *parser.Command) ([]byte, error) {
		in, err := ensureInputs(cmd)
		if err != nil {
			slog.Debug("[CMD] validation failed", "command", name, "error", err)
			return nil, err
		}

		t0 := time.Now()
		res, err := execute(&CommandContext{ctx: ctx, node: node}, in)
		dt := time.Since(t0)
		if err != nil {
			slog.Debug("[CMD] failed", "command", name, "elapsed", dt, "error", err)
		} else {
			slog.Debug("[CMD] done", "command", name, "elapsed", dt)
		}
		return res, err
	}

	registry[name] = &CommandSpec{Name: name, Args: args, Handler: handler}
}

// Get returns the CommandSpec registered under name, if any.
func Get(name string) (*CommandSpec, bool) {
	c, ok := registry[strings.ToUpper(name)]
	return c, ok
}

// Execute runs cmd against node.
func Execute(ctx context.Context, node *Node, cmd *parser.Command) ([]byte, error) {
	spec, ok := Get(cmd.Operation)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Operation)
	}
	return spec.Handler(ctx, node, cmd)
}

func checkArgs(cmd *parser.Command, minArgs, maxArgs int, usage string) error {
	if n := len(cmd.Args); n < minArgs || n > maxArgs {
		return fmt.Errorf("%w: %s", ErrUsage, usage)
	}
	return nil
}
