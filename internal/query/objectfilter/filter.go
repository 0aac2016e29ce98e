// Package objectfilter evaluates a parsed query against cache values.
package objectfilter

import (
	"errors"
	"fmt"
	"regexp"

	"meteorgrid/internal/common"
	"meteorgrid/internal/query/index"
	"meteorgrid/internal/query/parser"
)

const (
	ScoreProperty   = parser.ScoreProperty
	VersionProperty = parser.VersionProperty
)

var ErrMissingParameter = errors.New("objectfilter: parameter not bound")

// FilterResult is a value that matched a filter. Projection is nil unless
// the statement selects properties.
type FilterResult struct {
	Key            any
	Instance       any
	Projection     []any
	SortProjection []any
	Score          float32
	HasScore       bool
}

// ObjectFilter is a statement compiled against a set of parameter values.
// It is read-only and safe for concurrent use.
type ObjectFilter struct {
	stmt   *parser.Statement
	params map[string]any
	likes  map[*parser.Comparison]*regexp.Regexp
}

// New binds params to stmt. Every parameter the statement references must
// be present.
func New(stmt *parser.Statement, params map[string]any) (*ObjectFilter, error) {
	for _, name := range stmt.Params {
		if _, ok := params[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingParameter, name)
		}
	}
	f := &ObjectFilter{
		stmt:   stmt,
		params: params,
		likes:  make(map[*parser.Comparison]*regexp.Regexp),
	}
	if err := f.compileLikes(stmt.Where); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *ObjectFilter) compileLikes(e parser.Expr) error {
	switch e := e.(type) {
	case *parser.BinaryExpr:
		if err := f.compileLikes(e.Left); err != nil {
			return err
		}
		return f.compileLikes(e.Right)
	case *parser.NotExpr:
		return f.compileLikes(e.Operand)
	case *parser.Comparison:
		if e.Op != parser.OpLike {
			return nil
		}
		re, err := likePattern(fmt.Sprint(f.operand(e.Value)))
		if err != nil {
			return fmt.Errorf("objectfilter: bad LIKE pattern %s: %w", e.Value, err)
		}
		f.likes[e] = re
	}
	return nil
}

func (f *ObjectFilter) Entity() string {
	return f.stmt.Entity
}

// Projection returns the selected paths, or nil when whole values are returned.
func (f *ObjectFilter) Projection() []string {
	return f.stmt.Projection
}

func (f *ObjectFilter) Where() parser.Expr {
	return f.stmt.Where
}

func (f *ObjectFilter) OrderBy() []parser.SortSpec {
	return f.stmt.OrderBy
}

// Param returns the bound value of a parameter.
func (f *ObjectFilter) Param(name string) any {
	return f.params[name]
}

// Filter returns the result for value, or nil if it does not match.
// Score positions of the projection are left nil.
func (f *ObjectFilter) Filter(key, value any, md common.Metadata) *FilterResult {
	if !matchesEntity(value, f.stmt.Entity) {
		return nil
	}
	if f.stmt.Where != nil && !f.eval(f.stmt.Where, value) {
		return nil
	}
	r := &FilterResult{Key: key, Instance: value}
	if f.stmt.Projection != nil {
		r.Projection = make([]any, len(f.stmt.Projection))
		for i, path := range f.stmt.Projection {
			r.Projection[i] = f.project(path, value, md)
		}
	}
	if len(f.stmt.OrderBy) > 0 {
		r.SortProjection = make([]any, len(f.stmt.OrderBy))
		for i, s := range f.stmt.OrderBy {
			r.SortProjection[i] = f.project(s.Path, value, md)
		}
	}
	return r
}

func (f *ObjectFilter) project(path string, value any, md common.Metadata) any {
	switch path {
	case ScoreProperty:
		return nil
	case VersionProperty:
		return md.Version
	}
	v, _ := Property(value, path)
	return v
}

func (f *ObjectFilter) operand(o parser.Operand) any {
	if o.IsParam() {
		return f.params[o.Param]
	}
	return o.Literal
}

func (f *ObjectFilter) eval(e parser.Expr, value any) bool {
	switch e := e.(type) {
	case *parser.BinaryExpr:
		if e.Op == parser.OpAnd {
			return f.eval(e.Left, value) && f.eval(e.Right, value)
		}
		return f.eval(e.Left, value) || f.eval(e.Right, value)
	case *parser.NotExpr:
		return !f.eval(e.Operand, value)
	case *parser.FullText:
		v, ok := Property(value, e.Path)
		if !ok || v == nil {
			return false
		}
		return index.Matches(fmt.Sprint(v), fmt.Sprint(f.operand(e.Term)))
	case *parser.Comparison:
		v, ok := Property(value, e.Path)
		if !ok || v == nil {
			return false
		}
		if e.Op == parser.OpLike {
			return f.likes[e].MatchString(fmt.Sprint(v))
		}
		c := Compare(v, f.operand(e.Value))
		switch e.Op {
		case parser.OpEqual:
			return c == 0
		case parser.OpNotEqual:
			return c != 0
		case parser.OpLess:
			return c < 0
		case parser.OpLessEqual:
			return c <= 0
		case parser.OpGreater:
			return c > 0
		case parser.OpGreaterEqual:
			return c >= 0
		}
	}
	return false
}
