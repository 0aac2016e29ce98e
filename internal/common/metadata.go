package common

import "time"

// Metadata travels with every stored entry.
type Metadata struct {
	Version      uint64
	Created      time.Time
	LastModified time.Time
	Lifespan     time.Duration
}

// IsExpired reports whether the entry outlived its lifespan at now.
func (m Metadata) IsExpired(now time.Time) bool {
	if m.Lifespan <= 0 || m.Created.IsZero() {
		return false
	}
	return now.After(m.Created.Add(m.Lifespan))
}

// WithVersion returns a copy stamped with version and modification time.
func (m Metadata) WithVersion(version uint64, now time.Time) Metadata {
	m.Version = version
	if m.Created.IsZero() {
		m.Created = now
	}
	m.LastModified = now
	return m
}
