package index

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/meigma/ggpk/internal/record"
)

// estimatedRecords sizes the initial map for a typical game archive.
const estimatedRecords = 175_000

// ErrNotFound is returned by typed lookups when no record of the requested
// kind lives at an offset.
var ErrNotFound = errors.New("ggpk: no record at offset")

// Index maps absolute archive offsets to decoded records.
//
// Index is the arena every relationship in the archive resolves through:
// root pointers, directory entries and free-chain links are all offsets.
type Index struct {
	records map[int64]record.Record
}

// New returns an empty index.
func New() *Index {
	return &Index{records: make(map[int64]record.Record)}
}

// Progress receives the number of bytes scanned so far and the total.
type Progress func(done, total int64)

// Scan decodes every record from offset 0 to the end of the source in one
// forward pass. Each record's length determines where the next begins, so
// any decode error aborts the whole scan.
func Scan(dec *record.Decoder, progress Progress) (*Index, error) {
	size := dec.Size()
	idx := &Index{records: make(map[int64]record.Record, min(estimatedRecords, size/record.FreeMinLength+1))}

	for off := int64(0); off < size; {
		rec, next, err := dec.Decode(off)
		if err != nil {
			return nil, err
		}
		idx.records[off] = rec
		off = next
		if progress != nil {
			progress(off, size)
		}
	}
	return idx, nil
}

// Put registers rec at its own offset, replacing any previous record there.
func (idx *Index) Put(rec record.Record) {
	idx.records[rec.Head().Offset] = rec
}

// Get returns the record at off.
func (idx *Index) Get(off int64) (record.Record, bool) {
	rec, ok := idx.records[off]
	return rec, ok
}

// Delete removes the record at off.
func (idx *Index) Delete(off int64) {
	delete(idx.records, off)
}

// Len returns the number of registered records.
func (idx *Index) Len() int {
	return len(idx.records)
}

// Offsets returns all registered offsets in ascending order.
func (idx *Index) Offsets() []int64 {
	return slices.Sorted(maps.Keys(idx.records))
}

// Root returns the root record, which must live at offset 0.
func (idx *Index) Root() (*record.Root, error) {
	return lookup[*record.Root](idx, 0, "root")
}

// Directory returns the directory record at off.
func (idx *Index) Directory(off int64) (*record.Directory, error) {
	return lookup[*record.Directory](idx, off, "directory")
}

// File returns the file record at off.
func (idx *Index) File(off int64) (*record.File, error) {
	return lookup[*record.File](idx, off, "file")
}

// Free returns the free record at off.
func (idx *Index) Free(off int64) (*record.Free, error) {
	return lookup[*record.Free](idx, off, "free")
}

func lookup[T record.Record](idx *Index, off int64, kind string) (T, error) {
	var zero T
	rec, ok := idx.records[off]
	if !ok {
		return zero, fmt.Errorf("%s record at offset %d: %w", kind, off, ErrNotFound)
	}
	typed, ok := rec.(T)
	if !ok {
		return zero, fmt.Errorf("%s record at offset %d: found %q: %w", kind, off, rec.Tag().String(), ErrNotFound)
	}
	return typed, nil
}

// ErrCorrupt is returned when the offset graph is inconsistent.
var ErrCorrupt = errors.New("ggpk: corrupt archive")

// CorruptError names the offset at which the offset graph broke.
type CorruptError struct {
	Offset int64
	Reason string
	Err    error
}

func (e *CorruptError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("corrupt archive at offset %d: %s", e.Offset, e.Reason)
	}
	return fmt.Sprintf("corrupt archive at offset %d: %s: %v", e.Offset, e.Reason, e.Err)
}

// Unwrap reports both ErrCorrupt and the underlying cause.
func (e *CorruptError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCorrupt}
	}
	return []error{ErrCorrupt, e.Err}
}
