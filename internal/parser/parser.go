// Package parser tokenises the admin line protocol.
package parser

import "errors"

var (
	ErrEmptyCommand    = errors.New("invalid input")
	ErrUnterminatedArg = errors.New("unterminated quoted argument")
)

// Command is one parsed admin line: an operation and its arguments.
type Command struct {
	Operation string   `json:"operation"`
	Args      []string `json:"args"`
}

type Parser interface {
	Parse(data []byte) (*Command, error)
}
