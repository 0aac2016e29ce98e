package parser

import (
	"strings"
	"unicode"
)

// TokenType represents the type of a token in a query
type TokenType int

const (
	// Literals
	TokenIdent TokenType = iota
	TokenString
	TokenNumber
	TokenParam

	// Operators
	TokenEqual
	TokenNotEqual
	TokenLess
	TokenLessEqual
	TokenGreater
	TokenGreaterEqual
	TokenLike
	TokenColon

	// Logical operators
	TokenAnd
	TokenOr
	TokenNot

	// Keywords
	TokenSelect
	TokenFrom
	TokenWhere
	TokenOrder
	TokenBy
	TokenAsc
	TokenDesc
	TokenTrue
	TokenFalse

	// Delimiters
	TokenLeftParen
	TokenRightParen
	TokenComma
	TokenDot

	// Special
	TokenEOF
	TokenInvalid
)

var keywords = map[string]TokenType{
	"AND":    TokenAnd,
	"OR":     TokenOr,
	"NOT":    TokenNot,
	"LIKE":   TokenLike,
	"SELECT": TokenSelect,
	"FROM":   TokenFrom,
	"WHERE":  TokenWhere,
	"ORDER":  TokenOrder,
	"BY":     TokenBy,
	"ASC":    TokenAsc,
	"DESC":   TokenDesc,
	"TRUE":   TokenTrue,
	"FALSE":  TokenFalse,
}

// Token represents a token in a query
type Token struct {
	Type  TokenType
	Value string
	Pos   int
}

// Lexer tokenizes query strings
type Lexer struct {
	input string
	pos   int
	ch    rune
}

func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.pos >= len(l.input) {
		l.ch = 0 // EOF
	} else {
		l.ch = rune(l.input[l.pos])
	}
	l.pos++
}

func (l *Lexer) peekChar() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	return rune(l.input[l.pos])
}

func (l *Lexer) skipWhitespace() {
	for unicode.IsSpace(l.ch) {
		l.readChar()
	}
}

// readString reads a quoted string. A doubled quote stands for itself.
func (l *Lexer) readString(quote rune) (string, bool) {
	var sb strings.Builder
	l.readChar() // opening quote
	for l.ch != 0 {
		if l.ch == quote {
			if l.peekChar() == quote {
				sb.WriteRune(quote)
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar() // closing quote
			return sb.String(), true
		}
		sb.WriteRune(l.ch)
		l.readChar()
	}
	return sb.String(), false
}

func isIdentStart(ch rune) bool {
	return unicode.IsLetter(ch) || ch == '_' || ch == '$'
}

func (l *Lexer) readIdentifier() string {
	start := l.pos - 1
	for isIdentStart(l.ch) || unicode.IsDigit(l.ch) {
		l.readChar()
	}
	return l.input[start : l.pos-1]
}

func (l *Lexer) readNumber() string {
	start := l.pos - 1
	if l.ch == '-' {
		l.readChar()
	}
	for unicode.IsDigit(l.ch) || l.ch == '.' {
		l.readChar()
	}
	return l.input[start : l.pos-1]
}

// NextToken returns the next token from the input
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	pos := l.pos - 1

	switch l.ch {
	case 0:
		return Token{Type: TokenEOF, Pos: pos}
	case '(':
		l.readChar()
		return Token{Type: TokenLeftParen, Value: "(", Pos: pos}
	case ')':
		l.readChar()
		return Token{Type: TokenRightParen, Value: ")", Pos: pos}
	case ',':
		l.readChar()
		return Token{Type: TokenComma, Value: ",", Pos: pos}
	case '.':
		l.readChar()
		return Token{Type: TokenDot, Value: ".", Pos: pos}
	case ':':
		l.readChar()
		if isIdentStart(l.ch) {
			return Token{Type: TokenParam, Value: l.readIdentifier(), Pos: pos}
		}
		return Token{Type: TokenColon, Value: ":", Pos: pos}
	case '\'', '"':
		value, ok := l.readString(l.ch)
		if !ok {
			return Token{Type: TokenInvalid, Value: "unterminated string", Pos: pos}
		}
		return Token{Type: TokenString, Value: value, Pos: pos}
	case '=':
		if l.peekChar() == '=' {
			l.readChar()
		}
		l.readChar()
		return Token{Type: TokenEqual, Value: "=", Pos: pos}
	case '!':
		if l.peekChar() == '=' {
			l.readChar()
			l.readChar()
			return Token{Type: TokenNotEqual, Value: "!=", Pos: pos}
		}
		l.readChar()
		return Token{Type: TokenInvalid, Value: "!", Pos: pos}
	case '<':
		switch l.peekChar() {
		case '=':
			l.readChar()
			l.readChar()
			return Token{Type: TokenLessEqual, Value: "<=", Pos: pos}
		case '>':
			l.readChar()
			l.readChar()
			return Token{Type: TokenNotEqual, Value: "<>", Pos: pos}
		}
		l.readChar()
		return Token{Type: TokenLess, Value: "<", Pos: pos}
	case '>':
		if l.peekChar() == '=' {
			l.readChar()
			l.readChar()
			return Token{Type: TokenGreaterEqual, Value: ">=", Pos: pos}
		}
		l.readChar()
		return Token{Type: TokenGreater, Value: ">", Pos: pos}
	case '-':
		if unicode.IsDigit(l.peekChar()) {
			return Token{Type: TokenNumber, Value: l.readNumber(), Pos: pos}
		}
	default:
		if isIdentStart(l.ch) {
			identifier := l.readIdentifier()
			if kw, ok := keywords[strings.ToUpper(identifier)]; ok {
				return Token{Type: kw, Value: identifier, Pos: pos}
			}
			return Token{Type: TokenIdent, Value: identifier, Pos: pos}
		}
		if unicode.IsDigit(l.ch) {
			return Token{Type: TokenNumber, Value: l.readNumber(), Pos: pos}
		}
	}

	ch := l.ch
	l.readChar()
	return Token{Type: TokenInvalid, Value: string(ch), Pos: pos}
}
