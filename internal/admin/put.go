package admin

import (
	"fmt"

	"github.com/goccy/go-json"

	"meteorgrid/internal/parser"
)

func init() {
	Register("PUT", []ArgSpec{
		{Name: "key", Required: true, Description: "The key to set"},
		{Name: "value", Required: true, Description: "A JSON object"},
	}, ensurePut, execPut)
}

type PutArgs struct {
	key   string
	value Document
}

func ensurePut(cmd *parser.Command) (*PutArgs, error) {
	if err := checkArgs(cmd, 2, 2, "PUT <key> <json>"); err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal([]byte(cmd.Args[1]), &doc); err != nil || doc == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidValue, cmd.Args[1])
	}
	return &PutArgs{key: cmd.Args[0], value: doc}, nil
}

func execPut(ctx *CommandContext, args *PutArgs) ([]byte, error) {
	prev, existed, err := ctx.node.Put(args.key, args.value)
	if err != nil {
		return nil, err
	}
	if !existed {
		return []byte("OK"), nil
	}
	return json.Marshal(prev)
}
