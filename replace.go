package ggpk

import (
	"fmt"
	"io"
	"io/fs"
	"math"

	"github.com/dustin/go-humanize"

	"github.com/meigma/ggpk/internal/record"
	"github.com/meigma/ggpk/internal/sizing"
)

// Replace swaps the content of the file at path. See ReplaceRecord.
func (c *Container) Replace(path string, content []byte) error {
	f, ok := c.Lookup(path)
	if !ok {
		return &fs.PathError{Op: "replace", Path: path, Err: fs.ErrNotExist}
	}
	return c.ReplaceRecord(f, content)
}

// ReplaceFrom reads the new content for the file at path from r, up to the
// WithMaxFileSize limit.
func (c *Container) ReplaceFrom(path string, r io.Reader) error {
	limit := c.maxFileSize
	if limit == 0 {
		limit = math.MaxUint32
	}
	content, err := sizing.ReadAllWithLimit(r, limit, ErrSizeOverflow)
	if err != nil {
		return &fs.PathError{Op: "replace", Path: path, Err: err}
	}
	return c.Replace(path, content)
}

// ReplaceRecord writes new content for f in place.
//
// The old footprint joins the free chain, the new record goes into the
// best reusable range or the end of the archive, and the parent
// directory's entry is patched to the new offset. No other record moves.
// f is updated to describe the new record. The new digest is computed
// from content.
//
// A failed allocation puts the old record back. Later steps are not
// atomic: a failure after the new content is written but before the parent
// entry is patched leaves the parent pointing at the old, now free, range.
func (c *Container) ReplaceRecord(f *File, content []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkWritable(); err != nil {
		return err
	}
	if c.maxFileSize > 0 && uint64(len(content)) > c.maxFileSize {
		return fmt.Errorf("replace %q: %d bytes exceeds limit: %w", f.Name, len(content), ErrSizeOverflow)
	}

	parentID, ok := c.tree.Parent(f)
	if !ok {
		return &EntryError{Name: f.Name, Offset: f.Offset, Err: ErrEntryNotFound}
	}
	parent := c.tree.Node(parentID).Record
	entry := parent.EntryIndex(record.NameHash(f.Name), f.Offset)
	if entry < 0 {
		return &EntryError{Name: f.Name, Offset: f.Offset, Err: ErrEntryNotFound}
	}

	next := *f
	if err := next.SetContent(content); err != nil {
		return fmt.Errorf("replace %q: %w", f.Name, err)
	}
	oldOffset, oldLength := f.Offset, f.Length

	c.idx.Delete(f.Offset)
	freed, err := c.free.AddFromFile(f)
	if err != nil {
		return fmt.Errorf("replace %q: free old record: %w", f.Name, err)
	}
	c.idx.Put(freed)

	alloc, err := c.free.Allocate(next.Length, c.size)
	if err != nil {
		c.restoreFreed(f, freed)
		return fmt.Errorf("replace %q: allocate: %w", f.Name, err)
	}
	if alloc.Taken != nil {
		c.idx.Delete(alloc.Taken.Offset)
	}
	if alloc.Remainder != nil {
		c.idx.Put(alloc.Remainder)
	}

	next.MoveTo(alloc.Offset)
	buf := make([]byte, 0, next.Length)
	buf = append(buf, next.EncodeHeader()...)
	buf = append(buf, content...)
	if _, err := c.store.WriteAt(buf, next.Offset); err != nil {
		return fmt.Errorf("replace %q: write record: %w", f.Name, err)
	}
	c.size = max(c.size, next.End())

	if _, err := c.store.WriteAt(record.EncodeOffset(next.Offset), parent.EntryOffsetField(entry)); err != nil {
		return fmt.Errorf("replace %q: patch directory %q: %w", f.Name, parent.Name, err)
	}
	parent.Entries[entry].Offset = next.Offset

	*f = next
	c.idx.Put(f)

	c.log().Debug("file replaced",
		"name", f.Name,
		"old_offset", oldOffset,
		"old_size", humanize.IBytes(uint64(oldLength)),
		"offset", f.Offset,
		"size", humanize.IBytes(uint64(f.Length)),
		"grown", alloc.Grown)
	return nil
}

// restoreFreed takes f's old footprint back out of the free chain and
// rewrites the file header that the free record overwrote.
func (c *Container) restoreFreed(f *File, freed *FreeRecord) {
	if _, err := c.free.Remove(freed.Offset); err != nil {
		c.log().Warn("could not restore replaced file", "name", f.Name, "offset", f.Offset, "error", err)
		return
	}
	c.idx.Delete(freed.Offset)
	if _, err := c.store.WriteAt(f.EncodeHeader(), f.Offset); err != nil {
		c.log().Warn("could not restore replaced file", "name", f.Name, "offset", f.Offset, "error", err)
		return
	}
	c.idx.Put(f)
}
