package query

import (
	"slices"

	"meteorgrid/internal/config"
	"meteorgrid/internal/query/index"
	"meteorgrid/internal/query/objectfilter"
	"meteorgrid/internal/query/parser"
)

// indexClauses returns the top-level conjuncts of the filter the index can
// answer: full-text on text fields and string equality on keyword fields.
// The object filter still checks every candidate.
func indexClauses(f *objectfilter.ObjectFilter, e config.IndexedEntityConfig) []index.Clause {
	var clauses []index.Clause
	var walk func(parser.Expr)
	walk = func(expr parser.Expr) {
		switch expr := expr.(type) {
		case *parser.BinaryExpr:
			if expr.Op == parser.OpAnd {
				walk(expr.Left)
				walk(expr.Right)
			}
		case *parser.FullText:
			term, ok := operand(f, expr.Term).(string)
			if ok && slices.Contains(e.TextFields, expr.Path) {
				clauses = append(clauses, index.Match(expr.Path, term))
			}
		case *parser.Comparison:
			if expr.Op != parser.OpEqual || !slices.Contains(e.KeywordFields, expr.Path) {
				return
			}
			if v, ok := operand(f, expr.Value).(string); ok {
				clauses = append(clauses, index.Term(expr.Path, v))
			}
		}
	}
	if w := f.Where(); w != nil {
		walk(w)
	}
	return clauses
}

func operand(f *objectfilter.ObjectFilter, o parser.Operand) any {
	if o.IsParam() {
		return f.Param(o.Param)
	}
	return o.Literal
}
