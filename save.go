package ggpk

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/meigma/ggpk/internal/record"
	"github.com/meigma/ggpk/internal/tree"
)

// saveBufferSize is the write buffer used while copying records.
const saveBufferSize = 1 << 20

// Save writes a defragmented copy of the archive to dest.
//
// Records are written in post-order, so every directory follows all of its
// children and each entry can be remapped to its child's new offset. The
// copy ends with the root directory and a single minimal free record, and
// the root record is written last. Entries that did not resolve at load
// time and anything removed with RemoveFile or RemoveDir are dropped. The
// source is never modified and dest is replaced atomically.
func (c *Container) Save(dest string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := c.checkDest(dest); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".ggpk-*")
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

	size, err := c.rewrite(tmp)
	if err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("rename to destination: %w", err)
	}
	success = true

	c.log().Info("archive saved",
		"path", dest,
		"size", humanize.IBytes(uint64(size)), //nolint:gosec // non-negative
		"files", len(c.tree.Files()),
		"reclaimed", humanize.IBytes(uint64(max(c.size-size, 0)))) //nolint:gosec // clamped
	return nil
}

// checkDest rejects a destination that names the source archive.
func (c *Container) checkDest(dest string) error {
	if c.file == nil {
		return nil
	}
	src, err := c.file.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	dst, err := os.Stat(dest)
	if err != nil {
		return nil //nolint:nilerr // a missing destination cannot be the source
	}
	if os.SameFile(src, dst) {
		return &os.PathError{Op: "save", Path: dest, Err: ErrSameFile}
	}
	return nil
}

// offsetWriter tracks the absolute position of buffered writes.
type offsetWriter struct {
	w   *bufio.Writer
	off int64
}

func (w *offsetWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.off += int64(n)
	return n, err
}

// rewriteTarget is written sequentially, then patched at offset 0.
type rewriteTarget interface {
	io.Writer
	io.WriterAt
}

// rewrite writes the full archive to out and returns its size.
func (c *Container) rewrite(out rewriteTarget) (int64, error) {
	w := &offsetWriter{w: bufio.NewWriterSize(out, saveBufferSize)}
	prog := newReporter(c.progress, StageWriting, c.liveBytes(), 5)

	root := &record.Root{Version: c.root.Version, Versioned: c.root.Versioned}
	if _, err := w.Write(root.Encode()); err != nil {
		return 0, fmt.Errorf("reserve root record: %w", err)
	}

	remap := make(map[int64]int64, len(c.tree.Files())+len(c.tree.Directories())+1)
	writeDir := func(n *tree.Node) error {
		off, err := c.writeDirectory(w, n.Record, remap)
		if err != nil {
			return err
		}
		remap[n.Record.Offset] = off
		prog.report(w.off, "")
		return nil
	}
	writeFile := func(f *record.File) error {
		remap[f.Offset] = w.off
		if _, err := w.Write(f.EncodeHeader()); err != nil {
			return fmt.Errorf("write file %q: %w", f.Name, err)
		}
		if _, err := io.CopyN(w, io.NewSectionReader(c.src, f.DataOffset, f.DataLength), f.DataLength); err != nil {
			return fmt.Errorf("copy file %q: %w", f.Name, err)
		}
		prog.report(w.off, f.Name)
		return nil
	}
	if err := c.tree.PostOrder(writeDir, writeFile); err != nil {
		return 0, err
	}

	rootDir, err := c.writeDirectory(w, c.tree.Root().Record, remap)
	if err != nil {
		return 0, err
	}
	free := &record.Free{Header: record.Header{Offset: w.off, Length: record.FreeMinLength}}
	if _, err := w.Write(free.Encode()); err != nil {
		return 0, fmt.Errorf("write free record: %w", err)
	}
	size := w.off
	if err := w.w.Flush(); err != nil {
		return 0, fmt.Errorf("flush: %w", err)
	}

	root.DirectoryOffset = rootDir
	root.FreeOffset = free.Offset
	if _, err := out.WriteAt(root.Encode(), 0); err != nil {
		return 0, fmt.Errorf("write root record: %w", err)
	}
	prog.report(size, "")
	return size, nil
}

// writeDirectory writes a copy of dir whose entries point at the remapped
// offsets of its children, dropping entries that were never written.
func (c *Container) writeDirectory(w *offsetWriter, dir *record.Directory, remap map[int64]int64) (int64, error) {
	out := &record.Directory{Name: dir.Name, Digest: dir.Digest, Entries: make([]record.Entry, 0, len(dir.Entries))}
	for _, e := range dir.Entries {
		if off, ok := remap[e.Offset]; ok {
			out.Entries = append(out.Entries, record.Entry{Hash: e.Hash, Offset: off})
		}
	}
	data, err := out.Encode()
	if err != nil {
		return 0, fmt.Errorf("encode directory %q: %w", dir.Name, err)
	}
	off := w.off
	if _, err := w.Write(data); err != nil {
		return 0, fmt.Errorf("write directory %q: %w", dir.Name, err)
	}
	return off, nil
}

// liveBytes estimates the size of a rewrite.
func (c *Container) liveBytes() int64 {
	n := int64(len(c.root.Encode())) + record.FreeMinLength
	for _, f := range c.tree.Files() {
		n += int64(f.Length)
	}
	for _, d := range c.tree.Directories() {
		n += int64(d.EncodedLength())
	}
	return n + int64(c.tree.Root().Record.EncodedLength())
}
