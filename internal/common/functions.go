package common

import (
	"fmt"
	"hash/fnv"
)

// HashKey returns a stable 32 bit hash of a cache key.
func HashKey(key any) uint32 {
	h := fnv.New32a()
	switch k := key.(type) {
	case string:
		h.Write([]byte(k))
	case []byte:
		h.Write(k)
	default:
		fmt.Fprintf(h, "%T:%v", key, key)
	}
	return h.Sum32()
}

// KeyString renders a key for logs, lock tables and store object names.
func KeyString(key any) string {
	if s, ok := key.(string); ok {
		return s
	}
	return fmt.Sprint(key)
}
