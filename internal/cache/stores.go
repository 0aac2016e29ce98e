package cache

import (
	"fmt"

	"meteorgrid/internal/config"
	"meteorgrid/internal/persistence"
	"meteorgrid/internal/persistence/filestore"
	"meteorgrid/internal/persistence/objectstore"
)

// NewStores builds the stores named by cfg. Type none yields no store.
func NewStores[K comparable, V any](cfg config.PersistenceConfig) ([]persistence.Lifecycle, error) {
	switch cfg.Type {
	case config.PersistenceNone, "":
		return nil, nil
	case config.PersistenceMemory:
		return []persistence.Lifecycle{persistence.NewMemoryStore[K, V]()}, nil
	case config.PersistenceFile:
		compression, err := filestore.ParseCompression(cfg.File.Compression)
		if err != nil {
			return nil, err
		}
		return []persistence.Lifecycle{filestore.New[K, V](cfg.File.Path, compression)}, nil
	case config.PersistenceObject:
		store, err := objectstore.New[K, V](objectstore.Options{
			Endpoint:  cfg.Object.Endpoint,
			Bucket:    cfg.Object.Bucket,
			Prefix:    cfg.Object.Prefix,
			AccessKey: cfg.Object.AccessKey,
			SecretKey: cfg.Object.SecretKey,
			UseSSL:    cfg.Object.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("object store %s: %w", cfg.Object.Endpoint, err)
		}
		return []persistence.Lifecycle{store}, nil
	}
	return nil, fmt.Errorf("unknown persistence type %q", cfg.Type)
}
