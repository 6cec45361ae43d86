package ggpk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/ggpk/internal/tree"
)

type extractJob struct {
	path string
	file *File
}

// Extract writes every file under the directory prefix to destDir,
// recreating the directory structure. If prefix is "" or ".", the whole
// archive is extracted; a prefix naming a file extracts just that file.
//
// Files are written atomically using temp files and renames. Existing
// files are skipped unless ExtractWithOverwrite is set. Extraction stops at
// the first error.
func (c *Container) Extract(destDir, prefix string, opts ...ExtractOption) error {
	cfg := extractConfig{workers: defaultExtractWorkers}
	for _, opt := range opts {
		opt(&cfg)
	}
	if destDir == "" {
		return errors.New("extract: destDir is empty")
	}
	if prefix == "" {
		prefix = "."
	}
	if !fs.ValidPath(prefix) {
		return &fs.PathError{Op: "extract", Path: prefix, Err: fs.ErrInvalid}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.checkOpen(); err != nil {
		return err
	}

	var jobs []extractJob
	if n, ok := c.tree.LookupDir(prefix); ok {
		jobs = c.collect(n, jobs)
	} else if f, ok := c.tree.Lookup(prefix); ok {
		jobs = append(jobs, extractJob{path: prefix, file: f})
	} else {
		return &fs.PathError{Op: "extract", Path: prefix, Err: fs.ErrNotExist}
	}

	prog := newReporter(cfg.progress, StageExtracting, int64(len(jobs)), 1)
	var done atomic.Int64
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(cfg.workers)
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := c.extractOne(destDir, job, &cfg); err != nil {
				return err
			}
			prog.report(done.Add(1), job.path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	c.log().Info("extracted files", "dest", destDir, "prefix", prefix, "files", done.Load())
	return nil
}

func (c *Container) collect(n *tree.Node, jobs []extractJob) []extractJob {
	for _, f := range n.Files {
		jobs = append(jobs, extractJob{path: c.tree.Path(f), file: f})
	}
	for _, id := range n.Children {
		jobs = c.collect(c.tree.Node(id), jobs)
	}
	return jobs
}

func (c *Container) extractOne(destDir string, job extractJob, cfg *extractConfig) error {
	if !fs.ValidPath(job.path) {
		return &fs.PathError{Op: "extract", Path: job.path, Err: fs.ErrInvalid}
	}
	target := filepath.Join(destDir, filepath.FromSlash(job.path))
	if !cfg.overwrite {
		if _, err := os.Lstat(target); err == nil {
			return nil
		}
	}
	content, err := c.readRecord(job.file)
	if err != nil {
		return &fs.PathError{Op: "extract", Path: job.path, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("create directory for %s: %w", job.path, err)
	}
	return writeFileAtomic(target, content, cfg.overwrite)
}

// ExtractFile writes a single file to destPath. The destination's parent
// directory must exist. Unlike Extract, an existing destination fails with
// fs.ErrExist unless ExtractWithOverwrite is set.
func (c *Container) ExtractFile(path, destPath string, opts ...ExtractOption) error {
	var cfg extractConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if !fs.ValidPath(path) {
		return &fs.PathError{Op: "extractfile", Path: path, Err: fs.ErrInvalid}
	}
	if !cfg.overwrite {
		if _, err := os.Stat(destPath); err == nil {
			return &fs.PathError{Op: "extractfile", Path: destPath, Err: fs.ErrExist}
		}
	}

	content, err := c.ReadFile(path)
	if err != nil {
		return err
	}
	return writeFileAtomic(destPath, content, cfg.overwrite)
}

// writeFileAtomic writes data to a temp file then renames it to target.
func writeFileAtomic(target string, data []byte, overwrite bool) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".ggpk-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	// os.Rename fails on Windows if the destination exists.
	if overwrite {
		if info, err := os.Stat(target); err == nil && info.IsDir() {
			return &fs.PathError{Op: "extract", Path: target, Err: errors.New("is a directory")}
		}
		_ = os.Remove(target)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("rename to destination: %w", err)
	}
	success = true
	return nil
}
