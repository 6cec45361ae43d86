package ggpk

import (
	"log/slog"

	"github.com/meigma/ggpk/cache"
)

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the logger for load, save and replace summaries.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) {
		c.logger = logger
	}
}

// WithProgress sets a sink for load and save progress.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Container) {
		c.progress = fn
	}
}

// WithReadOnly opens the archive without attempting write access.
func WithReadOnly(readOnly bool) Option {
	return func(c *Container) {
		c.forceReadOnly = readOnly
	}
}

// WithCache enables content-addressed caching.
//
// File content is cached after first read and served from cache on
// subsequent reads. Concurrent misses for the same content are deduplicated.
func WithCache(cc cache.Cache) Option {
	return func(c *Container) {
		c.cache = cc
	}
}

// WithVerifyDigest checks every read against the file's recorded SHA-256
// digest and fails with ErrDigestMismatch on a difference.
func WithVerifyDigest(enabled bool) Option {
	return func(c *Container) {
		c.verify = enabled
	}
}

// WithMaxFileSize limits the size of a single file read or replaced.
// Set limit to 0 to disable the limit.
func WithMaxFileSize(limit uint64) Option {
	return func(c *Container) {
		c.maxFileSize = limit
	}
}

// WithSplitOverhead sets how many bytes a larger free range must exceed a
// request by before it is split to satisfy it. Exact-length ranges are
// always reused. The default is the minimum free record size, so any
// remainder is itself a valid free record. Pass 46 to reproduce the slack
// older tooling leaves.
func WithSplitOverhead(n uint32) Option {
	return func(c *Container) {
		c.splitOverhead = n
		c.splitOverheadSet = true
	}
}

// ExtractOption configures Extract and ExtractFile.
type ExtractOption func(*extractConfig)

// defaultExtractWorkers is used when no ExtractWithWorkers option is set.
const defaultExtractWorkers = 4

type extractConfig struct {
	overwrite bool
	workers   int
	progress  ProgressFunc
}

// ExtractWithOverwrite allows overwriting existing files.
// By default, existing files are skipped.
func ExtractWithOverwrite(overwrite bool) ExtractOption {
	return func(c *extractConfig) {
		c.overwrite = overwrite
	}
}

// ExtractWithWorkers sets how many files are extracted concurrently.
// Values < 1 force serial extraction.
func ExtractWithWorkers(n int) ExtractOption {
	return func(c *extractConfig) {
		c.workers = max(n, 1)
	}
}

// ExtractWithProgress sets a sink for extraction progress.
func ExtractWithProgress(fn ProgressFunc) ExtractOption {
	return func(c *extractConfig) {
		c.progress = fn
	}
}
