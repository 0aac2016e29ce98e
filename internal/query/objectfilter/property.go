package objectfilter

import (
	"reflect"
	"strings"
)

// Entity is implemented by values that name their own entity type.
type Entity interface {
	EntityName() string
}

// TypeField holds the entity name of map values.
const TypeField = "$type"

// EntityName returns the entity type of value: EntityName(), the "$type"
// field of a map, or the Go type name.
func EntityName(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case Entity:
		return v.EntityName()
	case map[string]any:
		name, _ := v[TypeField].(string)
		return name
	}
	t := reflect.TypeOf(value)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

func matchesEntity(value any, entity string) bool {
	return SameEntity(EntityName(value), entity)
}

// SameEntity reports whether two entity names denote the same type; a
// simple name matches a package qualified one.
func SameEntity(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.HasSuffix(a, "."+b) || strings.HasSuffix(b, "."+a)
}

// Property resolves a dotted path against maps and structs. Struct fields
// are found by their `cache` tag or, case-insensitively, by name. The empty
// path is the value itself.
func Property(value any, path string) (any, bool) {
	if path == "" {
		return value, value != nil
	}
	cur := value
	for _, part := range strings.Split(path, ".") {
		next, ok := field(cur, part)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func field(value any, name string) (any, bool) {
	if m, ok := value.(map[string]any); ok {
		v, ok := m[name]
		return v, ok
	}
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		t := rv.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			if tag := f.Tag.Get("cache"); tag == name || (tag == "" && strings.EqualFold(f.Name, name)) {
				return rv.Field(i).Interface(), true
			}
		}
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	}
	return nil, false
}
