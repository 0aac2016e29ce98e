package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexer(t *testing.T) {
	l := NewLexer(`name:'it''s' AND age >= -3.5 OR x <> :p`)
	var types []TokenType
	for tok := l.NextToken(); tok.Type != TokenEOF; tok = l.NextToken() {
		types = append(types, tok.Type)
	}
	assert.Equal(t, []TokenType{
		TokenIdent, TokenColon, TokenString, TokenAnd,
		TokenIdent, TokenGreaterEqual, TokenNumber, TokenOr,
		TokenIdent, TokenNotEqual, TokenParam,
	}, types)

	str := NewLexer(`'it''s'`).NextToken()
	assert.Equal(t, "it's", str.Value)
}

func TestParseFrom(t *testing.T) {
	stmt, err := Parse("FROM Entity")
	require.NoError(t, err)
	assert.Equal(t, "Entity", stmt.Entity)
	assert.Nil(t, stmt.Projection)
	assert.Nil(t, stmt.Where)

	stmt, err = Parse("from sample.Book b where b.title:'go'")
	require.NoError(t, err)
	assert.Equal(t, "sample.Book", stmt.Entity)
	assert.Equal(t, "b", stmt.Alias)
	assert.Equal(t, &FullText{Path: "title", Term: Operand{Literal: "go"}}, stmt.Where)
}

func TestParseProjectionAndOrder(t *testing.T) {
	stmt, err := Parse("SELECT e.name, score(e), version(e), e FROM Entity e WHERE e.name:'name1' ORDER BY score(e) DESC, e.name")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", ScoreProperty, VersionProperty, ""}, stmt.Projection)
	assert.Equal(t, []SortSpec{{Path: ScoreProperty, Descending: true}, {Path: "name"}}, stmt.OrderBy)
}

func TestParseConditions(t *testing.T) {
	stmt, err := Parse("FROM P WHERE NOT (age < 18 OR name LIKE 'A%') AND active = true AND city = :city AND zip = :city")
	require.NoError(t, err)
	assert.Equal(t, "((NOT (age < 18 OR name LIKE 'A%') AND active = true) AND city = :city) AND zip = :city",
		trimOuter(stmt.Where.String()))
	assert.Equal(t, []string{"city"}, stmt.Params)

	cmp := stmt.Where.(*BinaryExpr).Right.(*Comparison)
	assert.Equal(t, OpEqual, cmp.Op)
	assert.True(t, cmp.Value.IsParam())

	stmt, err = Parse("FROM P WHERE n = 3 OR f = 1.5")
	require.NoError(t, err)
	or := stmt.Where.(*BinaryExpr)
	assert.Equal(t, int64(3), or.Left.(*Comparison).Value.Literal)
	assert.Equal(t, 1.5, or.Right.(*Comparison).Value.Literal)
}

func trimOuter(s string) string {
	if len(s) > 1 && s[0] == '(' && s[len(s)-1] == ')' {
		return s[1 : len(s)-1]
	}
	return s
}

func TestSyntaxErrors(t *testing.T) {
	tests := []struct {
		query string
		pos   int
	}{
		{"", 0},
		{"SELECT FROM E", 7},
		{"FROM E WHERE", 12},
		{"FROM E WHERE a ==", 17},
		{"FROM E WHERE a = 'open", 17},
		{"FROM E WHERE (a = 1", 19},
		{"FROM E WHERE a ! 1", 15},
		{"FROM E ORDER name", 13},
		{"FROM E extra junk", 13},
		{"SELECT avg(e) FROM E e", 7},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			_, err := Parse(tt.query)
			var se *SyntaxError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.pos, se.Pos)
		})
	}
}
