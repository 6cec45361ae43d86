package ggpk

import (
	"errors"
	"fmt"
	"io"

	"github.com/meigma/ggpk/internal/record"
	"github.com/meigma/ggpk/internal/sizing"
)

// ReadRecord returns the content of f.
//
// With WithCache, content is served from the cache when present and
// concurrent misses for the same digest share one read. With
// WithVerifyDigest, content whose SHA-256 differs from f.Digest fails with
// ErrDigestMismatch.
func (c *Container) ReadRecord(f *File) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.readRecord(f)
}

func (c *Container) readRecord(f *File) ([]byte, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if c.maxFileSize > 0 && uint64(f.DataLength) > c.maxFileSize { //nolint:gosec // DataLength is non-negative
		return nil, fmt.Errorf("file %q: %d bytes exceeds limit: %w", f.Name, f.DataLength, ErrSizeOverflow)
	}
	if c.cache == nil {
		return c.readVerified(f)
	}

	key := f.Digest.OCI()
	if content, ok := c.cache.Get(key); ok {
		if record.Sum(content) == f.Digest {
			c.log().Debug("cache hit", "name", f.Name, "digest", key)
			return content, nil
		}
		_ = c.cache.Delete(key) //nolint:errcheck // best-effort cache cleanup on digest mismatch
	}

	c.log().Debug("cache miss", "name", f.Name, "digest", key)
	v, err, _ := c.fillGroup.Do(key.String(), func() (any, error) {
		content, err := c.readContent(f)
		if err != nil {
			return nil, err
		}
		if record.Sum(content) != f.Digest {
			if c.verify {
				return nil, digestError(f)
			}
			return content, nil
		}
		_ = c.cache.Put(key, content) //nolint:errcheck // caching is opportunistic
		return content, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil //nolint:errcheck // type assertion always succeeds when err is nil
}

func (c *Container) readVerified(f *File) ([]byte, error) {
	content, err := c.readContent(f)
	if err != nil {
		return nil, err
	}
	if c.verify && record.Sum(content) != f.Digest {
		return nil, digestError(f)
	}
	return content, nil
}

// readContent reads the raw bytes of f from the backing store.
func (c *Container) readContent(f *File) ([]byte, error) {
	n, err := sizing.ToInt(f.DataLength, ErrSizeOverflow)
	if err != nil {
		return nil, fmt.Errorf("file %q: %w", f.Name, err)
	}
	if end, ok := sizing.AddInt64(f.DataOffset, f.DataLength); !ok || end > c.size {
		return nil, &RecordError{Offset: f.Offset, Tag: record.TagFile, Err: ErrTruncated}
	}
	buf := make([]byte, n)
	read, err := c.src.ReadAt(buf, f.DataOffset)
	if read == n {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = ErrTruncated
	}
	return nil, fmt.Errorf("read file %q at offset %d: %w", f.Name, f.DataOffset, err)
}

func digestError(f *File) error {
	return fmt.Errorf("file %q at offset %d: %w", f.Name, f.Offset, ErrDigestMismatch)
}
