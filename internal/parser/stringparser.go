package parser

import (
	"strings"
)

type StringParser struct{}

func NewStringParser() *StringParser {
	return &StringParser{}
}

func (p *StringParser) Parse(data []byte) (*Command, error) {
	parts, err := parseQuotedArgs(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, ErrEmptyCommand
	}
	return &Command{
		Operation: strings.ToUpper(parts[0]),
		Args:      parts[1:],
	}, nil
}

// parseQuotedArgs splits input on whitespace, keeping quoted runs together.
// A quote of the other kind inside a quoted run is literal, so queries keep
// their string literals:
//
//	a b c                          -> [a b c]
//	"a b" 'c d'                    -> [a b, c d]
//	"FROM E where name:'x y'"      -> [FROM E where name:'x y']
func parseQuotedArgs(input string) ([]string, error) {
	var args []string
	var current strings.Builder
	var inSingleQuote, inDoubleQuote, quoted bool

	flush := func() {
		if current.Len() > 0 || quoted {
			args = append(args, current.String())
			current.Reset()
		}
		quoted = false
	}

	for _, char := range input {
		switch {
		case char == '\'' && !inDoubleQuote:
			inSingleQuote = !inSingleQuote
			quoted = true
		case char == '"' && !inSingleQuote:
			inDoubleQuote = !inDoubleQuote
			quoted = true
		case isWhitespace(char) && !inSingleQuote && !inDoubleQuote:
			flush()
		default:
			current.WriteRune(char)
		}
	}
	if inSingleQuote || inDoubleQuote {
		return nil, ErrUnterminatedArg
	}
	flush()
	return args, nil
}

func isWhitespace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
