package persistence

import "errors"

var (
	ErrStoreUnavailable = errors.New("persistence: store unavailable")
	ErrNotStarted       = errors.New("persistence: store not started")
)
