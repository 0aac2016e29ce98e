package admin

import (
	"github.com/goccy/go-json"

	"meteorgrid/internal/parser"
)

func init() {
	Register("GET", []ArgSpec{
		{Name: "key", Required: true, Description: "The key to get"},
	}, ensureKey("GET <key>"), execGet)
	Register("REMOVE", []ArgSpec{
		{Name: "key", Required: true, Description: "The key to remove"},
	}, ensureKey("REMOVE <key>"), execRemove)
}

// missing is the reply for an absent key.
var missing = []byte("-1")

func ensureKey(usage string) func(*parser.Command) (string, error) {
	return func(cmd *parser.Command) (string, error) {
		if err := checkArgs(cmd, 1, 1, usage); err != nil {
			return "", err
		}
		return cmd.Args[0], nil
	}
}

func execGet(ctx *CommandContext, key string) ([]byte, error) {
	v, ok, err := ctx.node.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return missing, nil
	}
	return json.Marshal(v)
}

func execRemove(ctx *CommandContext, key string) ([]byte, error) {
	_, ok, err := ctx.node.Remove(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return missing, nil
	}
	return []byte("OK"), nil
}
