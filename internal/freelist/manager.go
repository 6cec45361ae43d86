// Package freelist manages the reclaimable byte ranges of a GGPK archive.
//
// Free records form a singly linked chain on disk, threaded from the root
// record's free offset through each record's next field. Manager mirrors
// that chain in memory and indexes every node by its exact length so that
// allocations can reuse holes left by replaced files.
package freelist

import (
	"container/list"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/meigma/ggpk/internal/record"
)

// DefaultSplitOverhead is the slack a non-exact range must have beyond the
// requested length before it is split. A smaller remainder could not hold
// a free record header and next pointer.
const DefaultSplitOverhead = record.FreeMinLength

// LegacySplitOverhead is the larger slack left by older archive tooling.
const LegacySplitOverhead = 46

// ErrInconsistent is returned by Check when the chain and the size index
// disagree.
var ErrInconsistent = errors.New("ggpk: free list inconsistent")

// Option configures a Manager.
type Option func(*Manager)

// WithSplitOverhead sets the slack required before a larger range is split.
// Values below DefaultSplitOverhead are raised to it.
func WithSplitOverhead(n uint32) Option {
	return func(m *Manager) {
		m.overhead = max(n, DefaultSplitOverhead)
	}
}

// WithHeadFunc registers fn to persist the chain head whenever it changes.
// fn receives 0 when the chain becomes empty.
func WithHeadFunc(fn func(off int64) error) Option {
	return func(m *Manager) {
		m.setHead = fn
	}
}

// WithLogger sets the logger for allocation decisions.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// Allocation is the result of one Allocate call.
type Allocation struct {
	// Offset is where the caller may write the requested bytes.
	Offset int64

	// Grown reports that no free range matched and Offset is end of file.
	Grown bool

	// Taken is the free record consumed by this allocation, if any. It is
	// no longer part of the chain and the caller owns it.
	Taken *record.Free

	// Remainder is the free record carved from the unused tail of Taken,
	// if any. It has already been written and linked.
	Remainder *record.Free
}

// Manager is the in-memory mirror of the on-disk free chain.
//
// Manager is not safe for concurrent use.
type Manager struct {
	store    io.WriterAt
	chain    *list.List // of *record.Free
	elems    map[int64]*list.Element
	buckets  map[uint32][]*list.Element
	sizes    []uint32 // sorted keys of non-empty buckets
	overhead uint32
	setHead  func(off int64) error
	logger   *slog.Logger
}

// New returns an empty manager that persists chain changes to store.
func New(store io.WriterAt, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		chain:    list.New(),
		elems:    make(map[int64]*list.Element),
		buckets:  make(map[uint32][]*list.Element),
		overhead: DefaultSplitOverhead,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) log() *slog.Logger {
	if m.logger != nil {
		return m.logger
	}
	return slog.New(slog.DiscardHandler)
}

// Link appends a record that is already on disk in chain order. It performs
// no writes and is used while loading an archive.
func (m *Manager) Link(rec *record.Free) error {
	if _, dup := m.elems[rec.Offset]; dup {
		return fmt.Errorf("free record at offset %d linked twice", rec.Offset)
	}
	if tail := m.chain.Back(); tail != nil {
		prev := tail.Value.(*record.Free)
		if prev.Next != rec.Offset {
			return fmt.Errorf("free record at offset %d does not follow %d", rec.Offset, prev.Offset)
		}
	}
	m.index(m.chain.PushBack(rec))
	return nil
}

// Add appends rec at the chain tail, writes it, and points the previous
// tail (or the chain head) at it.
func (m *Manager) Add(rec *record.Free) error {
	if rec.Length < record.FreeMinLength {
		return fmt.Errorf("free record at offset %d: length %d below minimum", rec.Offset, rec.Length)
	}
	if _, dup := m.elems[rec.Offset]; dup {
		return fmt.Errorf("free record at offset %d already in chain", rec.Offset)
	}
	rec.Next = 0
	if err := m.write(rec); err != nil {
		return err
	}
	if err := m.relink(m.chain.Back(), rec.Offset); err != nil {
		return err
	}
	m.index(m.chain.PushBack(rec))
	return nil
}

// AddFromFile turns the footprint of a file record into a free record and
// appends it. Adjacent free ranges are never merged.
func (m *Manager) AddFromFile(f *record.File) (*record.Free, error) {
	rec := &record.Free{Header: record.Header{Offset: f.Offset, Length: f.Length}}
	if err := m.Add(rec); err != nil {
		return nil, err
	}
	m.log().Debug("freed file footprint", "name", f.Name, "offset", f.Offset, "length", f.Length)
	return rec, nil
}

// Allocate reserves length bytes. An exact-length range is preferred;
// otherwise the smallest range of at least length plus the split overhead is
// carved from the front. When nothing fits, the allocation grows the archive
// at eof.
func (m *Manager) Allocate(length uint32, eof int64) (Allocation, error) {
	e := m.find(length)
	if e == nil {
		m.log().Debug("allocating at end of file", "length", length, "offset", eof)
		return Allocation{Offset: eof, Grown: true}, nil
	}

	taken := e.Value.(*record.Free)
	alloc := Allocation{Offset: taken.Offset, Taken: taken}
	successor := taken.Next

	// The remainder lies inside the taken range, so writing it first leaves
	// the chain intact if the relink fails.
	var rem *record.Free
	if taken.Length > length {
		rem = &record.Free{
			Header: record.Header{Offset: taken.Offset + int64(length), Length: taken.Length - length},
			Next:   taken.Next,
		}
		if err := m.write(rem); err != nil {
			return Allocation{}, err
		}
		successor = rem.Offset
	}

	if err := m.relink(e.Prev(), successor); err != nil {
		return Allocation{}, err
	}
	if rem != nil {
		m.index(m.chain.InsertAfter(rem, e))
		alloc.Remainder = rem
	}
	m.unlink(e)

	m.log().Debug("reused free range",
		"length", length,
		"offset", taken.Offset,
		"range", taken.Length,
		"remainder", alloc.Remainder != nil)
	return alloc, nil
}

// Remove splices the free record at off out of the chain and returns it.
func (m *Manager) Remove(off int64) (*record.Free, error) {
	e, ok := m.elems[off]
	if !ok {
		return nil, fmt.Errorf("no free record at offset %d", off)
	}
	rec := e.Value.(*record.Free)
	if err := m.relink(e.Prev(), rec.Next); err != nil {
		return nil, err
	}
	m.unlink(e)
	return rec, nil
}

func (m *Manager) find(length uint32) *list.Element {
	if b := m.buckets[length]; len(b) > 0 {
		return b[0]
	}
	want := uint64(length) + uint64(m.overhead)
	i, _ := slices.BinarySearch(m.sizes, uint32(min(want, uint64(^uint32(0)))))
	if i == len(m.sizes) || uint64(m.sizes[i]) < want {
		return nil
	}
	return m.buckets[m.sizes[i]][0]
}

func (m *Manager) index(e *list.Element) {
	rec := e.Value.(*record.Free)
	m.elems[rec.Offset] = e
	if len(m.buckets[rec.Length]) == 0 {
		i, _ := slices.BinarySearch(m.sizes, rec.Length)
		m.sizes = slices.Insert(m.sizes, i, rec.Length)
	}
	m.buckets[rec.Length] = append(m.buckets[rec.Length], e)
}

func (m *Manager) unlink(e *list.Element) {
	rec := e.Value.(*record.Free)
	b := slices.DeleteFunc(m.buckets[rec.Length], func(x *list.Element) bool { return x == e })
	if len(b) == 0 {
		delete(m.buckets, rec.Length)
		if i, ok := slices.BinarySearch(m.sizes, rec.Length); ok {
			m.sizes = slices.Delete(m.sizes, i, i+1)
		}
	} else {
		m.buckets[rec.Length] = b
	}
	delete(m.elems, rec.Offset)
	m.chain.Remove(e)
}

// relink points prev (or the chain head when prev is nil) at next. Memory
// changes only after the disk write succeeds.
func (m *Manager) relink(prev *list.Element, next int64) error {
	if prev == nil {
		if m.setHead == nil {
			return nil
		}
		if err := m.setHead(next); err != nil {
			return fmt.Errorf("update free chain head: %w", err)
		}
		return nil
	}
	rec := prev.Value.(*record.Free)
	if _, err := m.store.WriteAt(record.EncodeOffset(next), rec.Offset+record.FreeNextField); err != nil {
		return fmt.Errorf("patch free record at offset %d: %w", rec.Offset, err)
	}
	rec.Next = next
	return nil
}

func (m *Manager) write(rec *record.Free) error {
	if _, err := m.store.WriteAt(rec.Encode(), rec.Offset); err != nil {
		return fmt.Errorf("write free record at offset %d: %w", rec.Offset, err)
	}
	return nil
}

// Head returns the offset of the first free record, or 0 when empty.
func (m *Manager) Head() int64 {
	if e := m.chain.Front(); e != nil {
		return e.Value.(*record.Free).Offset
	}
	return 0
}

// Nodes returns the free records in chain order.
func (m *Manager) Nodes() []*record.Free {
	out := make([]*record.Free, 0, m.chain.Len())
	for e := m.chain.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*record.Free))
	}
	return out
}

// Len returns the number of free records.
func (m *Manager) Len() int {
	return m.chain.Len()
}

// TotalBytes returns the combined length of all free records.
func (m *Manager) TotalBytes() int64 {
	var n int64
	for e := m.chain.Front(); e != nil; e = e.Next() {
		n += int64(e.Value.(*record.Free).Length)
	}
	return n
}

// Check verifies that every chain node's next pointer names its successor
// and that the size index holds exactly the chain's nodes.
func (m *Manager) Check() error {
	seen := 0
	for e := m.chain.Front(); e != nil; e = e.Next() {
		rec := e.Value.(*record.Free)
		var want int64
		if n := e.Next(); n != nil {
			want = n.Value.(*record.Free).Offset
		}
		if rec.Next != want {
			return fmt.Errorf("%w: record at %d points at %d, successor is %d", ErrInconsistent, rec.Offset, rec.Next, want)
		}
		if !slices.Contains(m.buckets[rec.Length], e) {
			return fmt.Errorf("%w: record at %d missing from bucket %d", ErrInconsistent, rec.Offset, rec.Length)
		}
		if m.elems[rec.Offset] != e {
			return fmt.Errorf("%w: record at %d missing from offset map", ErrInconsistent, rec.Offset)
		}
		seen++
	}

	indexed := 0
	for length, b := range m.buckets {
		if len(b) == 0 {
			return fmt.Errorf("%w: empty bucket %d retained", ErrInconsistent, length)
		}
		if _, ok := slices.BinarySearch(m.sizes, length); !ok {
			return fmt.Errorf("%w: bucket %d missing from size list", ErrInconsistent, length)
		}
		indexed += len(b)
	}
	if indexed != seen || len(m.elems) != seen || len(m.sizes) != len(m.buckets) {
		return fmt.Errorf("%w: %d chained, %d indexed", ErrInconsistent, seen, indexed)
	}
	return nil
}
