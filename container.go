package ggpk

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/ggpk/cache"
	"github.com/meigma/ggpk/internal/freelist"
	"github.com/meigma/ggpk/internal/index"
	"github.com/meigma/ggpk/internal/platform"
	"github.com/meigma/ggpk/internal/record"
	"github.com/meigma/ggpk/internal/tree"
)

// Re-exported record and tree types.
type (
	// File is a file record. Its content lives at DataOffset for DataLength bytes.
	File = record.File

	// Directory is a directory record.
	Directory = record.Directory

	// FreeRecord is one reclaimable byte range.
	FreeRecord = record.Free

	// Record is one of *File, *Directory, *FreeRecord or the root record.
	Record = record.Record

	// Digest is a raw SHA-256 content digest.
	Digest = record.Digest

	// Node is one directory in the in-memory tree.
	Node = tree.Node

	// NodeID identifies a directory node.
	NodeID = tree.NodeID
)

// Interface compliance.
var (
	_ fs.FS         = (*Container)(nil)
	_ fs.StatFS     = (*Container)(nil)
	_ fs.ReadFileFS = (*Container)(nil)
	_ fs.ReadDirFS  = (*Container)(nil)
)

// Container is a loaded GGPK archive.
//
// Reads may run concurrently with each other. Replace, RemoveFile and
// RemoveDir serialize against reads, but only one process may write an
// archive at a time.
type Container struct {
	mu       sync.RWMutex
	path     string
	file     *os.File    // nil when built over a caller's source
	src      io.ReaderAt // nil once closed
	store    io.WriterAt // nil when read-only
	size     int64
	readOnly bool

	idx  *index.Index
	tree *tree.Tree
	free *freelist.Manager
	root *record.Root

	forceReadOnly    bool
	maxFileSize      uint64
	verify           bool
	splitOverhead    uint32
	splitOverheadSet bool
	cache            cache.Cache        // nil = no caching
	fillGroup        singleflight.Group // zero value is valid
	progress         ProgressFunc
	logger           *slog.Logger
}

// log returns the logger, falling back to a discard logger if nil.
func (c *Container) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// Open loads the archive at path.
//
// The file is opened for reading and writing when the host allows it and
// read-only otherwise; check ReadOnly before mutating. Any decode error or
// inconsistency in the offset graph fails the load.
func Open(path string, opts ...Option) (*Container, error) {
	c := newContainer(opts)
	f, readOnly, err := platform.OpenArchive(path, c.forceReadOnly)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat archive: %w", err)
	}

	c.path = path
	c.file = f
	c.src = f
	c.size = info.Size()
	c.readOnly = readOnly
	if !readOnly {
		c.store = f
	}
	if err := c.load(); err != nil {
		f.Close()
		return nil, err
	}
	return c, nil
}

// New loads an archive from src, which holds size bytes.
//
// The container is writable only if src also implements io.WriterAt and
// WithReadOnly is not set. Close does not close src.
func New(src io.ReaderAt, size int64, opts ...Option) (*Container, error) {
	c := newContainer(opts)
	c.src = src
	c.size = size
	c.readOnly = true
	if w, ok := src.(io.WriterAt); ok && !c.forceReadOnly {
		c.store = w
		c.readOnly = false
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

func newContainer(opts []Option) *Container {
	c := &Container{splitOverhead: freelist.DefaultSplitOverhead}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Container) load() error {
	scan := newReporter(c.progress, StageScanning, c.size, 10)
	idx, err := index.Scan(record.NewDecoder(c.src, c.size), func(done, _ int64) {
		scan.report(done, "")
	})
	if err != nil {
		return err
	}
	root, err := idx.Root()
	if err != nil {
		return &index.CorruptError{Offset: 0, Reason: "missing root record", Err: err}
	}
	t, err := tree.Build(idx)
	if err != nil {
		return err
	}
	c.idx, c.tree, c.root = idx, t, root

	if err := c.linkFreeChain(); err != nil {
		return err
	}

	if t.Skipped() > 0 {
		c.log().Debug("skipped directory entries with unknown offsets", "count", t.Skipped())
	}
	c.log().Info("archive loaded",
		"path", c.path,
		"size", humanize.IBytes(uint64(c.size)), //nolint:gosec // size is non-negative
		"files", len(t.Files()),
		"directories", len(t.Directories()),
		"free_records", c.free.Len(),
		"free_bytes", humanize.IBytes(uint64(c.free.TotalBytes())), //nolint:gosec // non-negative
		"read_only", c.readOnly)
	return nil
}

// linkFreeChain threads the on-disk free chain into the allocator. Every
// link must resolve to a free record and the chain must end at 0.
func (c *Container) linkFreeChain() error {
	opts := []freelist.Option{
		freelist.WithHeadFunc(c.setFreeHead),
		freelist.WithLogger(c.logger),
	}
	if c.splitOverheadSet {
		opts = append(opts, freelist.WithSplitOverhead(c.splitOverhead))
	}
	c.free = freelist.New(c.store, opts...)

	visited := make(map[int64]bool)
	for off := c.root.FreeOffset; off != 0; {
		if visited[off] {
			return &index.CorruptError{Offset: off, Reason: "free chain revisits record"}
		}
		visited[off] = true
		rec, err := c.idx.Free(off)
		if err != nil {
			return &index.CorruptError{Offset: off, Reason: "free chain link", Err: err}
		}
		if err := c.free.Link(rec); err != nil {
			return &index.CorruptError{Offset: off, Reason: "free chain link", Err: err}
		}
		off = rec.Next
	}
	n := int64(len(visited))
	newReporter(c.progress, StageLinking, n, 100).report(n, "")
	return nil
}

// setFreeHead persists a new free-chain head into the root record.
func (c *Container) setFreeHead(off int64) error {
	if c.store == nil {
		return ErrReadOnly
	}
	if _, err := c.store.WriteAt(record.EncodeOffset(off), c.root.FreeOffsetField()); err != nil {
		return err
	}
	c.root.FreeOffset = off
	return nil
}

// Close releases the backing file. A source passed to New is left open,
// but the container stops using it.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.src == nil {
		return nil
	}
	c.src, c.store = nil, nil
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	return err
}

// ReadOnly reports whether mutating operations are unavailable.
func (c *Container) ReadOnly() bool {
	return c.readOnly
}

// Path returns the archive path, or "" for containers built with New.
func (c *Container) Path() string {
	return c.path
}

// Size returns the current archive size in bytes.
func (c *Container) Size() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.size
}

// Files returns every file in the tree.
func (c *Container) Files() []*File {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*File(nil), c.tree.Files()...)
}

// Directories returns every directory except the root.
func (c *Container) Directories() []*Directory {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Directory(nil), c.tree.Directories()...)
}

// Root returns the root directory node.
func (c *Container) Root() *Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tree.Root()
}

// Node returns the directory node with the given id, or nil.
func (c *Container) Node(id NodeID) *Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tree.Node(id)
}

// Lookup resolves a slash-separated file path.
func (c *Container) Lookup(path string) (*File, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tree.Lookup(path)
}

// LookupDir resolves a slash-separated directory path. "." is the root.
func (c *Container) LookupDir(path string) (*Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tree.LookupDir(path)
}

// PathOf returns the slash-separated path of f, or "" if f is not in the tree.
func (c *Container) PathOf(f *File) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tree.Path(f)
}

// Record returns the record that starts at off.
func (c *Container) Record(off int64) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idx.Get(off)
}

// FreeRecords returns the free chain in order.
func (c *Container) FreeRecords() []*FreeRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.free.Nodes()
}

// Check verifies that the allocator mirrors the free chain exactly.
func (c *Container) Check() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.free.Check(); err != nil {
		return err
	}
	if c.root.FreeOffset != c.free.Head() {
		return fmt.Errorf("%w: root points at %d, chain starts at %d",
			ErrFreeListInconsistent, c.root.FreeOffset, c.free.Head())
	}
	return nil
}

// Stats summarizes an archive.
type Stats struct {
	Size         int64
	Files        int
	Directories  int
	ContentBytes int64
	FreeRecords  int
	FreeBytes    int64

	// Skipped counts directory entries whose offsets did not resolve.
	Skipped int
}

func (s Stats) String() string {
	return fmt.Sprintf("%s archive: %s files (%s), %s directories, %s free in %s records",
		humanize.IBytes(uint64(s.Size)), //nolint:gosec // non-negative
		humanize.Comma(int64(s.Files)),
		humanize.IBytes(uint64(s.ContentBytes)), //nolint:gosec // non-negative
		humanize.Comma(int64(s.Directories)),
		humanize.IBytes(uint64(s.FreeBytes)), //nolint:gosec // non-negative
		humanize.Comma(int64(s.FreeRecords)))
}

// Stats returns counts and sizes for the archive.
func (c *Container) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Stats{
		Size:        c.size,
		Files:       len(c.tree.Files()),
		Directories: len(c.tree.Directories()),
		FreeRecords: c.free.Len(),
		FreeBytes:   c.free.TotalBytes(),
		Skipped:     c.tree.Skipped(),
	}
	for _, f := range c.tree.Files() {
		s.ContentBytes += f.DataLength
	}
	return s
}

func (c *Container) checkOpen() error {
	if c.src == nil {
		return ErrClosed
	}
	return nil
}

func (c *Container) checkWritable() error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if c.readOnly || c.store == nil {
		return ErrReadOnly
	}
	return nil
}
