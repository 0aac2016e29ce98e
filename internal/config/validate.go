package config

import (
	"fmt"
	"slices"
)

const (
	ModeReplicated  = "replicated"
	ModeDistributed = "distributed"

	WaitModeBlocking    = "blocking"
	WaitModeNonBlocking = "non-blocking"

	PersistenceNone   = "none"
	PersistenceFile   = "file"
	PersistenceObject = "object"
	PersistenceMemory = "memory"
)

// Validate rejects configurations the cache cannot start with.
func (c *MeteorGridConfig) Validate() error {
	if !slices.Contains([]string{ModeReplicated, ModeDistributed}, c.Clustering.Mode) {
		return fmt.Errorf("invalid clustering mode %q", c.Clustering.Mode)
	}
	if c.Clustering.NumSegments <= 0 {
		return fmt.Errorf("numSegments must be positive, got %d", c.Clustering.NumSegments)
	}
	if c.Clustering.Mode == ModeDistributed && c.Clustering.NumOwners <= 0 {
		return fmt.Errorf("numOwners must be positive, got %d", c.Clustering.NumOwners)
	}
	if !slices.Contains([]string{WaitModeBlocking, WaitModeNonBlocking}, c.Functional.WaitMode) {
		return fmt.Errorf("invalid wait mode %q", c.Functional.WaitMode)
	}
	if c.Functional.AsyncWorkers <= 0 {
		return fmt.Errorf("asyncWorkers must be positive, got %d", c.Functional.AsyncWorkers)
	}
	if !slices.Contains([]string{PersistenceNone, PersistenceMemory, PersistenceFile, PersistenceObject}, c.Persistence.Type) {
		return fmt.Errorf("invalid persistence type %q", c.Persistence.Type)
	}
	if !slices.Contains([]string{"none", "zstd", "lz4"}, c.Persistence.File.Compression) {
		return fmt.Errorf("invalid file compression %q", c.Persistence.File.Compression)
	}
	for _, e := range c.Indexing.Entities {
		if e.Name == "" {
			return fmt.Errorf("indexed entity without a name")
		}
	}
	return nil
}

// IndexedEntity returns the indexing definition for an entity name, if any.
func (c *MeteorGridConfig) IndexedEntity(name string) (IndexedEntityConfig, bool) {
	if !c.Indexing.Enabled {
		return IndexedEntityConfig{}, false
	}
	for _, e := range c.Indexing.Entities {
		if e.Name == name {
			return e, true
		}
	}
	return IndexedEntityConfig{}, false
}
