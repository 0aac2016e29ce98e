package parser

import (
	"strconv"
	"strings"
)

// Parser parses the query language:
//
//	[SELECT p1, p2, score(a), version(a)] FROM Entity [a]
//	[WHERE cond] [ORDER BY p [ASC|DESC], ...]
type Parser struct {
	lexer        *Lexer
	currentToken Token
	peekToken    Token
	stmt         *Statement
	seenParams   map[string]bool
}

// Parse parses query. Failures are *SyntaxError.
func Parse(query string) (*Statement, error) {
	p := &Parser{lexer: NewLexer(query), stmt: &Statement{}, seenParams: map[string]bool{}}
	p.nextToken()
	p.nextToken()
	if err := p.parseStatement(); err != nil {
		return nil, err
	}
	return p.stmt, nil
}

func (p *Parser) nextToken() {
	p.currentToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

func (p *Parser) expect(t TokenType, what string) (Token, error) {
	tok := p.currentToken
	if tok.Type != t {
		return tok, p.unexpected(what)
	}
	p.nextToken()
	return tok, nil
}

func (p *Parser) unexpected(what string) error {
	tok := p.currentToken
	switch tok.Type {
	case TokenEOF:
		return errorf(tok.Pos, "expected %s, got end of query", what)
	case TokenInvalid:
		return errorf(tok.Pos, "expected %s, got invalid input %q", what, tok.Value)
	default:
		return errorf(tok.Pos, "expected %s, got %q", what, tok.Value)
	}
}

func (p *Parser) parseStatement() error {
	var projection []string
	if p.currentToken.Type == TokenSelect {
		p.nextToken()
		for {
			path, err := p.parseProjectionItem()
			if err != nil {
				return err
			}
			projection = append(projection, path)
			if p.currentToken.Type != TokenComma {
				break
			}
			p.nextToken()
		}
	}

	if _, err := p.expect(TokenFrom, "FROM"); err != nil {
		return err
	}
	entity, err := p.parseDotted()
	if err != nil {
		return err
	}
	p.stmt.Entity = entity
	if p.currentToken.Type == TokenIdent {
		p.stmt.Alias = p.currentToken.Value
		p.nextToken()
	}
	// The alias is only known after FROM.
	for _, path := range projection {
		p.stmt.Projection = append(p.stmt.Projection, p.stripAlias(path))
	}

	if p.currentToken.Type == TokenWhere {
		p.nextToken()
		where, err := p.parseOrExpression()
		if err != nil {
			return err
		}
		p.stmt.Where = where
	}

	if p.currentToken.Type == TokenOrder {
		p.nextToken()
		if _, err := p.expect(TokenBy, "BY"); err != nil {
			return err
		}
		for {
			path, err := p.parseProjectionItem()
			if err != nil {
				return err
			}
			spec := SortSpec{Path: path}
			switch p.currentToken.Type {
			case TokenAsc:
				p.nextToken()
			case TokenDesc:
				spec.Descending = true
				p.nextToken()
			}
			p.stmt.OrderBy = append(p.stmt.OrderBy, spec)
			if p.currentToken.Type != TokenComma {
				break
			}
			p.nextToken()
		}
	}

	if p.currentToken.Type != TokenEOF {
		return p.unexpected("end of query")
	}
	return nil
}

// parseProjectionItem parses a path, score(alias) or version(alias).
func (p *Parser) parseProjectionItem() (string, error) {
	if p.currentToken.Type == TokenIdent && p.peekToken.Type == TokenLeftParen {
		fn := strings.ToLower(p.currentToken.Value)
		var name string
		switch fn {
		case "score":
			name = ScoreProperty
		case "version":
			name = VersionProperty
		default:
			return "", errorf(p.currentToken.Pos, "unknown function %q", p.currentToken.Value)
		}
		p.nextToken()
		p.nextToken()
		if _, err := p.expect(TokenIdent, "alias"); err != nil {
			return "", err
		}
		if _, err := p.expect(TokenRightParen, "')'"); err != nil {
			return "", err
		}
		return name, nil
	}
	return p.parsePath()
}

func (p *Parser) parseDotted() (string, error) {
	tok, err := p.expect(TokenIdent, "identifier")
	if err != nil {
		return "", err
	}
	parts := []string{tok.Value}
	for p.currentToken.Type == TokenDot {
		p.nextToken()
		tok, err := p.expect(TokenIdent, "identifier")
		if err != nil {
			return "", err
		}
		parts = append(parts, tok.Value)
	}
	return strings.Join(parts, "."), nil
}

// parsePath parses a property path, dropping a leading alias.
func (p *Parser) parsePath() (string, error) {
	path, err := p.parseDotted()
	if err != nil {
		return "", err
	}
	return p.stripAlias(path), nil
}

// stripAlias makes path relative to the entity. The alias alone becomes "",
// the entity itself.
func (p *Parser) stripAlias(path string) string {
	a := p.stmt.Alias
	switch {
	case a == "":
		return path
	case path == a:
		return ""
	case strings.HasPrefix(path, a+"."):
		return path[len(a)+1:]
	}
	return path
}

// parseOrExpression parses OR expressions (lowest precedence)
func (p *Parser) parseOrExpression() (Expr, error) {
	left, err := p.parseAndExpression()
	if err != nil {
		return nil, err
	}
	for p.currentToken.Type == TokenOr {
		p.nextToken()
		right, err := p.parseAndExpression()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

// parseAndExpression parses AND expressions
func (p *Parser) parseAndExpression() (Expr, error) {
	left, err := p.parseNotExpression()
	if err != nil {
		return nil, err
	}
	for p.currentToken.Type == TokenAnd {
		p.nextToken()
		right, err := p.parseNotExpression()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: OpAnd, Left: left, Right: right}
	}
	return left, nil
}

// parseNotExpression parses NOT expressions
func (p *Parser) parseNotExpression() (Expr, error) {
	if p.currentToken.Type == TokenNot {
		p.nextToken()
		operand, err := p.parseNotExpression()
		if err != nil {
			return nil, err
		}
		return &NotExpr{Operand: operand}, nil
	}
	return p.parsePrimary()
}

// parsePrimary parses a parenthesized expression, a comparison or a full-text match.
func (p *Parser) parsePrimary() (Expr, error) {
	if p.currentToken.Type == TokenLeftParen {
		p.nextToken()
		expr, err := p.parseOrExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRightParen, "')'"); err != nil {
			return nil, err
		}
		return expr, nil
	}

	path, err := p.parsePath()
	if err != nil {
		return nil, err
	}

	if p.currentToken.Type == TokenColon {
		p.nextToken()
		term, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return &FullText{Path: path, Term: term}, nil
	}

	op, ok := compareOps[p.currentToken.Type]
	if !ok {
		return nil, p.unexpected("comparison operator")
	}
	p.nextToken()
	value, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return &Comparison{Path: path, Op: op, Value: value}, nil
}

var compareOps = map[TokenType]CompareOp{
	TokenEqual:        OpEqual,
	TokenNotEqual:     OpNotEqual,
	TokenLess:         OpLess,
	TokenLessEqual:    OpLessEqual,
	TokenGreater:      OpGreater,
	TokenGreaterEqual: OpGreaterEqual,
	TokenLike:         OpLike,
}

func (p *Parser) parseOperand() (Operand, error) {
	tok := p.currentToken
	switch tok.Type {
	case TokenString:
		p.nextToken()
		return Operand{Literal: tok.Value}, nil
	case TokenNumber:
		p.nextToken()
		if i, err := strconv.ParseInt(tok.Value, 10, 64); err == nil {
			return Operand{Literal: i}, nil
		}
		f, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return Operand{}, errorf(tok.Pos, "invalid number %q", tok.Value)
		}
		return Operand{Literal: f}, nil
	case TokenTrue, TokenFalse:
		p.nextToken()
		return Operand{Literal: tok.Type == TokenTrue}, nil
	case TokenParam:
		p.nextToken()
		if !p.seenParams[tok.Value] {
			p.seenParams[tok.Value] = true
			p.stmt.Params = append(p.stmt.Params, tok.Value)
		}
		return Operand{Param: tok.Value}, nil
	default:
		return Operand{}, p.unexpected("literal or parameter")
	}
}
