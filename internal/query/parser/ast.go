package parser

import (
	"fmt"
	"strings"
)

// Reserved projection names for score(alias) and version(alias).
const (
	ScoreProperty   = "__score"
	VersionProperty = "__version"
)

// Statement is a parsed query.
type Statement struct {
	Entity string
	Alias  string
	// Projection lists the selected paths; nil when the whole entity is returned.
	Projection []string
	Where      Expr
	OrderBy    []SortSpec
	// Params are the named parameters referenced, in order of appearance.
	Params []string
}

type SortSpec struct {
	Path       string
	Descending bool
}

// Expr is one of *BinaryExpr, *NotExpr, *Comparison or *FullText.
type Expr interface {
	String() string
	expr()
}

type LogicalOp int

const (
	OpAnd LogicalOp = iota
	OpOr
)

type BinaryExpr struct {
	Op          LogicalOp
	Left, Right Expr
}

type NotExpr struct {
	Operand Expr
}

type CompareOp int

const (
	OpEqual CompareOp = iota
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
	OpLike
)

var compareOpNames = [...]string{"=", "!=", "<", "<=", ">", ">=", "LIKE"}

func (o CompareOp) String() string {
	return compareOpNames[o]
}

// Comparison compares a property path with an operand.
type Comparison struct {
	Path  string
	Op    CompareOp
	Value Operand
}

// FullText matches the analyzed tokens of Term against a text property.
type FullText struct {
	Path string
	Term Operand
}

// Operand is a literal or a named parameter. Literal holds a string,
// float64, int64 or bool.
type Operand struct {
	Literal any
	Param   string
}

func (o Operand) IsParam() bool {
	return o.Param != ""
}

func (o Operand) String() string {
	if o.IsParam() {
		return ":" + o.Param
	}
	if s, ok := o.Literal.(string); ok {
		return "'" + strings.ReplaceAll(s, "'", "''") + "'"
	}
	return fmt.Sprint(o.Literal)
}

func (*BinaryExpr) expr() {}
func (*NotExpr) expr()    {}
func (*Comparison) expr() {}
func (*FullText) expr()   {}

func (e *BinaryExpr) String() string {
	op := "AND"
	if e.Op == OpOr {
		op = "OR"
	}
	return fmt.Sprintf("(%s %s %s)", e.Left, op, e.Right)
}

func (e *NotExpr) String() string    { return fmt.Sprintf("NOT %s", e.Operand) }
func (e *Comparison) String() string { return fmt.Sprintf("%s %s %s", e.Path, e.Op, e.Value) }
func (e *FullText) String() string   { return fmt.Sprintf("%s:%s", e.Path, e.Term) }
