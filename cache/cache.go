// Package cache defines the content-addressed store used to avoid re-reading
// archive content.
//
// Keys are the SHA-256 content digests already recorded in every file
// record, so identical files share one cache entry and a hit needs no
// further integrity check.
package cache

import "github.com/opencontainers/go-digest"

// Cache provides content-addressed storage for file contents.
//
// Implementations handle their own size limits and eviction policies and
// must be safe for concurrent use.
type Cache interface {
	// Get retrieves content by digest.
	// Returns nil, false if the content is not cached.
	Get(d digest.Digest) ([]byte, bool)

	// Put stores content under its digest.
	Put(d digest.Digest, content []byte) error

	// Delete removes cached content. Missing entries are a no-op.
	Delete(d digest.Digest) error

	// MaxBytes returns the configured cache size limit (0 = unlimited).
	MaxBytes() int64

	// SizeBytes returns the current cache size in bytes.
	SizeBytes() int64

	// Prune removes entries until the cache is at or below targetBytes.
	// Returns the number of bytes freed.
	Prune(targetBytes int64) (int64, error)
}
