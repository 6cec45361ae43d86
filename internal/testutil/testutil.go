// Package testutil provides archive builders and fakes shared by tests.
package testutil

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/opencontainers/go-digest"
)

// WriteArchive writes data to a fresh file under tb.TempDir and returns its path.
func WriteArchive(tb testing.TB, data []byte) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "Content.ggpk")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		tb.Fatalf("write archive: %v", err)
	}
	return path
}

// MockCache implements a basic concurrency-safe cache for tests.
type MockCache struct {
	mu   sync.RWMutex
	data map[digest.Digest][]byte
	gets int
}

// NewMockCache constructs an empty in-memory cache.
func NewMockCache() *MockCache {
	return &MockCache{data: make(map[digest.Digest][]byte)}
}

// Get returns cached content for d.
func (c *MockCache) Get(d digest.Digest) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	content, ok := c.data[d]
	return content, ok
}

// Put stores content under d.
func (c *MockCache) Put(d digest.Digest, content []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[d] = append([]byte(nil), content...)
	return nil
}

// Delete removes cached content for d.
func (c *MockCache) Delete(d digest.Digest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, d)
	return nil
}

// MaxBytes returns 0 (unlimited).
func (c *MockCache) MaxBytes() int64 {
	return 0
}

// SizeBytes returns the current cache size in bytes.
func (c *MockCache) SizeBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var total int64
	for _, content := range c.data {
		total += int64(len(content))
	}
	return total
}

// Prune drops everything when the cache exceeds targetBytes.
func (c *MockCache) Prune(targetBytes int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, content := range c.data {
		total += int64(len(content))
	}
	if total <= targetBytes {
		return 0, nil
	}
	clear(c.data)
	return total, nil
}

// Len returns the number of cached entries.
func (c *MockCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Gets returns how many Get calls were made.
func (c *MockCache) Gets() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gets
}
