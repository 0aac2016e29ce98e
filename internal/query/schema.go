package query

import (
	"fmt"

	"meteorgrid/internal/config"
	"meteorgrid/internal/query/index"
	"meteorgrid/internal/query/objectfilter"
)

// Schema knows which entities are indexed and how to turn their values into
// index documents.
type Schema struct {
	entities []config.IndexedEntityConfig
}

func NewSchema(cfg config.IndexingConfig) *Schema {
	if !cfg.Enabled {
		return &Schema{}
	}
	return &Schema{entities: cfg.Entities}
}

func (s *Schema) Lookup(entity string) (config.IndexedEntityConfig, bool) {
	for _, e := range s.entities {
		if objectfilter.SameEntity(e.Name, entity) {
			return e, true
		}
	}
	return config.IndexedEntityConfig{}, false
}

// Document extracts the indexed fields of value. It returns false for values
// of entities that are not indexed.
func (s *Schema) Document(value any, segment int) (index.Document, bool) {
	e, ok := s.Lookup(objectfilter.EntityName(value))
	if !ok {
		return index.Document{}, false
	}
	doc := index.Document{
		Entity:  e.Name,
		Segment: segment,
		Text:    fields(value, e.TextFields),
		Keyword: fields(value, e.KeywordFields),
	}
	return doc, true
}

func fields(value any, paths []string) map[string]string {
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		if v, ok := objectfilter.Property(value, p); ok && v != nil {
			out[p] = fmt.Sprint(v)
		}
	}
	return out
}
