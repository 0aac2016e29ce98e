package admin

import "errors"

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("usage")
	ErrInvalidValue   = errors.New("value must be a JSON object")
)
