package query

import "errors"

var (
	ErrUnknownParameter = errors.New("query: unknown parameter")
	ErrUnindexedEntity  = errors.New("query: entity is not indexed")
)
