package testutil

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/meigma/ggpk/internal/record"
)

// Builder assembles a well-formed archive in memory.
//
// Records are laid out as: root record, every directory's children in
// post-order, the root directory, then the free records in chain order.
type Builder struct {
	root      *dirSpec
	frees     []uint32
	versioned bool
}

type dirSpec struct {
	name  string
	dirs  []*dirSpec
	files []fileSpec
}

type fileSpec struct {
	name    string
	content []byte
}

// Layout records where the builder placed each record.
type Layout struct {
	// Files maps slash-separated paths to file record offsets.
	Files map[string]int64

	// Dirs maps slash-separated paths to directory record offsets.
	// The root directory is stored under ".".
	Dirs map[string]int64

	// Frees lists free record offsets in chain order.
	Frees []int64

	// Size is the total archive size.
	Size int64
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{root: &dirSpec{}}
}

// Versioned makes the root record carry the optional version word.
func (b *Builder) Versioned() *Builder {
	b.versioned = true
	return b
}

// Dir adds an empty directory (and its parents).
func (b *Builder) Dir(path string) *Builder {
	b.dir(strings.Split(path, "/"))
	return b
}

// File adds a file, creating parent directories as needed.
func (b *Builder) File(path string, content []byte) *Builder {
	parts := strings.Split(path, "/")
	d := b.dir(parts[:len(parts)-1])
	d.files = append(d.files, fileSpec{name: parts[len(parts)-1], content: content})
	return b
}

// Free appends free records of the given lengths to the chain.
func (b *Builder) Free(lengths ...uint32) *Builder {
	b.frees = append(b.frees, lengths...)
	return b
}

func (b *Builder) dir(parts []string) *dirSpec {
	d := b.root
	for _, part := range parts {
		var next *dirSpec
		for _, child := range d.dirs {
			if child.name == part {
				next = child
				break
			}
		}
		if next == nil {
			next = &dirSpec{name: part}
			d.dirs = append(d.dirs, next)
		}
		d = next
	}
	return d
}

// Build serializes the archive, failing tb on error.
func (b *Builder) Build(tb testing.TB) ([]byte, Layout) {
	tb.Helper()
	data, layout, err := b.Encode()
	if err != nil {
		tb.Fatalf("build archive: %v", err)
	}
	return data, layout
}

// Encode serializes the archive.
func (b *Builder) Encode() ([]byte, Layout, error) {
	layout := Layout{Files: make(map[string]int64), Dirs: make(map[string]int64)}
	root := &record.Root{Versioned: b.versioned, Version: 2}
	var buf bytes.Buffer
	buf.Write(root.Encode())

	rootDir, err := writeDir(&buf, b.root, ".", &layout)
	if err != nil {
		return nil, Layout{}, err
	}
	root.DirectoryOffset = rootDir

	for i, length := range b.frees {
		if length < record.FreeMinLength {
			return nil, Layout{}, fmt.Errorf("free record length %d below minimum", length)
		}
		off := int64(buf.Len())
		layout.Frees = append(layout.Frees, off)
		free := &record.Free{Header: record.Header{Offset: off, Length: length}}
		if i+1 < len(b.frees) {
			free.Next = off + int64(length)
		}
		buf.Write(free.Encode())
		buf.Write(make([]byte, int(length)-record.FreeMinLength))
	}
	if len(layout.Frees) > 0 {
		root.FreeOffset = layout.Frees[0]
	}

	data := buf.Bytes()
	copy(data, root.Encode())
	layout.Size = int64(len(data))
	return data, layout, nil
}

// Write builds the archive and writes it under tb.TempDir.
func (b *Builder) Write(tb testing.TB) (string, Layout) {
	tb.Helper()
	data, layout := b.Build(tb)
	return WriteArchive(tb, data), layout
}

func writeDir(buf *bytes.Buffer, d *dirSpec, path string, layout *Layout) (int64, error) {
	dir := &record.Directory{Name: d.name, Digest: record.Sum([]byte(d.name))}

	for _, child := range d.dirs {
		off, err := writeDir(buf, child, join(path, child.name), layout)
		if err != nil {
			return 0, err
		}
		dir.Entries = append(dir.Entries, record.Entry{Hash: record.NameHash(child.name), Offset: off})
	}
	for _, fs := range d.files {
		f, err := record.NewFile(fs.name, fs.content)
		if err != nil {
			return 0, fmt.Errorf("new file %s: %w", fs.name, err)
		}
		f.MoveTo(int64(buf.Len()))
		buf.Write(f.EncodeHeader())
		buf.Write(fs.content)
		layout.Files[join(path, fs.name)] = f.Offset
		dir.Entries = append(dir.Entries, record.Entry{Hash: record.NameHash(fs.name), Offset: f.Offset})
	}

	off := int64(buf.Len())
	data, err := dir.Encode()
	if err != nil {
		return 0, fmt.Errorf("encode directory %s: %w", path, err)
	}
	buf.Write(data)
	layout.Dirs[path] = off
	return off, nil
}

func join(dir, name string) string {
	if dir == "." {
		return name
	}
	return dir + "/" + name
}
