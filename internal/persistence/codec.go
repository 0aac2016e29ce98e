package persistence

import (
	"time"

	"meteorgrid/internal/common"

	"github.com/goccy/go-json"
)

// Marshaller turns stored entries into bytes and back.
type Marshaller interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type JSONMarshaller struct{}

func (JSONMarshaller) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONMarshaller) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

type record[K comparable, V any] struct {
	Key          K             `json:"key"`
	Value        V             `json:"value"`
	Version      uint64        `json:"version"`
	Created      time.Time     `json:"created"`
	LastModified time.Time     `json:"lastModified"`
	Lifespan     time.Duration `json:"lifespan,omitempty"`
}

func EncodeEntry[K comparable, V any](m Marshaller, e MarshalledEntry[K, V]) ([]byte, error) {
	return m.Marshal(record[K, V]{
		Key:          e.Key,
		Value:        e.Value,
		Version:      e.Metadata.Version,
		Created:      e.Metadata.Created,
		LastModified: e.Metadata.LastModified,
		Lifespan:     e.Metadata.Lifespan,
	})
}

func DecodeEntry[K comparable, V any](m Marshaller, data []byte) (MarshalledEntry[K, V], error) {
	var r record[K, V]
	if err := m.Unmarshal(data, &r); err != nil {
		return MarshalledEntry[K, V]{}, err
	}
	return MarshalledEntry[K, V]{
		Key:   r.Key,
		Value: r.Value,
		Metadata: common.Metadata{
			Version:      r.Version,
			Created:      r.Created,
			LastModified: r.LastModified,
			Lifespan:     r.Lifespan,
		},
	}, nil
}

// EncodeKey renders a key for store indexes and object names.
func EncodeKey[K comparable](m Marshaller, key K) (string, error) {
	data, err := m.Marshal(key)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
