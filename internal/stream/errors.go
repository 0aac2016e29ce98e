package stream

import "errors"

var (
	ErrClosed   = errors.New("stream: traversable is closed")
	ErrConsumed = errors.New("stream: traversable already consumed")
)
