package ggpk

import (
	"bytes"
	"io"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/meigma/ggpk/internal/tree"
)

// Open implements fs.FS.
//
// Files are read completely on Open, subject to WithCache and
// WithVerifyDigest. Directories support ReadDir.
func (c *Container) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	if f, ok := c.tree.Lookup(name); ok {
		content, err := c.readRecord(f)
		if err != nil {
			return nil, &fs.PathError{Op: "open", Path: name, Err: err}
		}
		return &openFile{Reader: bytes.NewReader(content), info: fileInfoOf(f)}, nil
	}
	if n, ok := c.tree.LookupDir(name); ok {
		return &openDir{name: name, info: dirInfoOf(n), entries: c.dirEntries(n)}, nil
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// Stat implements fs.StatFS.
func (c *Container) Stat(name string) (fs.FileInfo, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrInvalid}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	if f, ok := c.tree.Lookup(name); ok {
		return fileInfoOf(f), nil
	}
	if n, ok := c.tree.LookupDir(name); ok {
		return dirInfoOf(n), nil
	}
	return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
}

// ReadFile implements fs.ReadFileFS.
func (c *Container) ReadFile(name string) ([]byte, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: fs.ErrInvalid}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, ok := c.tree.Lookup(name)
	if !ok {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: fs.ErrNotExist}
	}
	content, err := c.readRecord(f)
	if err != nil {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: err}
	}
	return content, nil
}

// ReadDir implements fs.ReadDirFS. Entries are sorted by name.
func (c *Container) ReadDir(name string) ([]fs.DirEntry, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	n, ok := c.tree.LookupDir(name)
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}
	return c.dirEntries(n), nil
}

func (c *Container) dirEntries(n *tree.Node) []fs.DirEntry {
	entries := make([]fs.DirEntry, 0, len(n.Children)+len(n.Files))
	for _, id := range n.Children {
		entries = append(entries, fs.FileInfoToDirEntry(dirInfoOf(c.tree.Node(id))))
	}
	for _, f := range n.Files {
		entries = append(entries, fs.FileInfoToDirEntry(fileInfoOf(f)))
	}
	slices.SortFunc(entries, func(a, b fs.DirEntry) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return entries
}

// fileInfo describes a file or directory record. Archives carry no
// permissions or timestamps, so modes are fixed and ModTime is zero.
type fileInfo struct {
	name string
	size int64
	dir  bool
	sys  any
}

func fileInfoOf(f *File) *fileInfo {
	return &fileInfo{name: f.Name, size: f.DataLength, sys: f}
}

func dirInfoOf(n *tree.Node) *fileInfo {
	name := n.Name
	if n.Parent == tree.NoNode {
		name = "."
	}
	return &fileInfo{name: name, dir: true, sys: n.Record}
}

func (i *fileInfo) Name() string { return path.Base(i.name) }
func (i *fileInfo) Size() int64  { return i.size }
func (i *fileInfo) IsDir() bool  { return i.dir }

func (i *fileInfo) Mode() fs.FileMode {
	if i.dir {
		return fs.ModeDir | 0o555
	}
	return 0o444
}

func (i *fileInfo) ModTime() time.Time { return time.Time{} }

// Sys returns the underlying *File or *Directory record.
func (i *fileInfo) Sys() any { return i.sys }

// openFile is an fs.File over fully read content.
type openFile struct {
	*bytes.Reader
	info *fileInfo
}

func (f *openFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *openFile) Close() error               { return nil }

// openDir implements fs.ReadDirFile over a snapshot of a directory.
type openDir struct {
	name    string
	info    *fileInfo
	entries []fs.DirEntry
	pos     int
}

func (d *openDir) Read(_ []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: fs.ErrInvalid}
}

func (d *openDir) Stat() (fs.FileInfo, error) { return d.info, nil }
func (d *openDir) Close() error               { return nil }

func (d *openDir) ReadDir(n int) ([]fs.DirEntry, error) {
	rest := d.entries[d.pos:]
	if n <= 0 {
		d.pos = len(d.entries)
		return rest, nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	rest = rest[:min(n, len(rest))]
	d.pos += len(rest)
	return rest, nil
}
