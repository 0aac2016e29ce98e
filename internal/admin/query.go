package admin

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-json"

	"meteorgrid/internal/parser"
	"meteorgrid/internal/query/objectfilter"
)

func init() {
	Register("SIZE", []ArgSpec{}, ensureNoArgs, execSize)
	Register("COUNT", []ArgSpec{
		{Name: "query", Required: true, Description: "e.g. \"FROM Book b WHERE b.title:'go'\""},
	}, ensureQuery, execCount)
	Register("QUERY", []ArgSpec{
		{Name: "query", Required: true, Description: "The query to run"},
		{Name: "offset", Required: false, Description: "Results to skip"},
		{Name: "limit", Required: false, Description: "Maximum results to return"},
	}, ensureQuery, execQuery)
}

type QueryArgs struct {
	query  string
	offset int
	limit  int
}

func ensureNoArgs(cmd *parser.Command) (struct{}, error) {
	return struct{}{}, checkArgs(cmd, 0, 0, cmd.Operation)
}

func ensureQuery(cmd *parser.Command) (*QueryArgs, error) {
	if err := checkArgs(cmd, 1, 3, cmd.Operation+" <query> [offset] [limit]"); err != nil {
		return nil, err
	}
	args := &QueryArgs{query: cmd.Args[0], limit: -1}
	for i, dst := range []*int{&args.offset, &args.limit} {
		if len(cmd.Args) <= i+1 {
			break
		}
		n, err := strconv.Atoi(cmd.Args[i+1])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %q is not a non-negative number", ErrUsage, cmd.Args[i+1])
		}
		*dst = n
	}
	return args, nil
}

func execSize(ctx *CommandContext, _ struct{}) ([]byte, error) {
	size, err := ctx.node.Size(ctx.ctx)
	if err != nil {
		return nil, err
	}
	return []byte(strconv.Itoa(size)), nil
}

func execCount(ctx *CommandContext, args *QueryArgs) ([]byte, error) {
	res, err := ctx.node.Query(args.query).Execute(ctx.ctx)
	if err != nil {
		return nil, err
	}
	return []byte(strconv.Itoa(res.Count())), nil
}

// Row is one QUERY result: the value, or the projected properties when the
// query selects them.
type Row struct {
	Key        any      `json:"key"`
	Value      any      `json:"value,omitempty"`
	Projection []any    `json:"projection,omitempty"`
	Score      *float32 `json:"score,omitempty"`
}

func execQuery(ctx *CommandContext, args *QueryArgs) ([]byte, error) {
	res, err := ctx.node.Query(args.query).StartOffset(args.offset).MaxResults(args.limit).Execute(ctx.ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(res.List()))
	for _, r := range res.List() {
		rows = append(rows, toRow(r))
	}
	return json.Marshal(rows)
}

func toRow(r objectfilter.FilterResult) Row {
	row := Row{Key: r.Key}
	if r.Projection != nil {
		row.Projection = r.Projection
	} else {
		row.Value = r.Instance
	}
	if r.HasScore {
		s := r.Score
		row.Score = &s
	}
	return row
}
