package commands

import "errors"

var (
	ErrNilFunction = errors.New("command: nil function")
	ErrNilKey      = errors.New("command: nil key")
)
