// Package record defines the tagged, length-prefixed records that make up a
// GGPK archive and the single tag-keyed decoder that produces them.
//
// Every record starts with a common header:
//
//	uint32 length   total record size, header included
//	[4]byte tag     "GGPK", "PDIR", "FILE" or "FREE"
//
// All integers are little-endian. Records refer to each other only by
// absolute byte offset.
package record

import (
	"errors"
	"fmt"
)

// Tag identifies the record kind.
type Tag [4]byte

// Record tags.
var (
	TagRoot      = Tag{'G', 'G', 'P', 'K'}
	TagDirectory = Tag{'P', 'D', 'I', 'R'}
	TagFile      = Tag{'F', 'I', 'L', 'E'}
	TagFree      = Tag{'F', 'R', 'E', 'E'}
)

func (t Tag) String() string {
	return string(t[:])
}

// Fixed sizes of the binary layout.
const (
	// HeaderSize is the size of the common length+tag header.
	HeaderSize = 8

	// DigestSize is the size of the 256-bit name and content digests.
	DigestSize = 32

	// RootLength is the length of a root record with two offsets.
	RootLength = HeaderSize + 16

	// FileHeaderSize is the fixed part of a file record, excluding the
	// UTF-16 name and the content.
	FileHeaderSize = HeaderSize + 4 + DigestSize

	// DirectoryHeaderSize is the fixed part of a directory record, excluding
	// the UTF-16 name and the entries.
	DirectoryHeaderSize = HeaderSize + 4 + DigestSize + 4

	// EntrySize is the size of one directory entry.
	EntrySize = 4 + 8

	// FreeMinLength is the smallest valid free record.
	FreeMinLength = HeaderSize + 8

	// FreeNextField is the position of the next pointer inside a free record.
	FreeNextField = HeaderSize
)

// Sentinel errors.
var (
	// ErrUnknownTag is returned when a record header carries an unknown tag.
	ErrUnknownTag = errors.New("ggpk: unknown record tag")

	// ErrTruncated is returned when a record extends past the available bytes.
	ErrTruncated = errors.New("ggpk: truncated record")

	// ErrMalformed is returned when a record body is internally inconsistent.
	ErrMalformed = errors.New("ggpk: malformed record")

	// ErrSizeOverflow is returned when a record would exceed the 32-bit length field.
	ErrSizeOverflow = errors.New("ggpk: size overflow")
)

// RecordError describes a decode failure at a specific offset.
type RecordError struct {
	Offset int64
	Tag    Tag
	Err    error
}

func (e *RecordError) Error() string {
	if e.Tag == (Tag{}) {
		return fmt.Sprintf("record at offset %d: %v", e.Offset, e.Err)
	}
	return fmt.Sprintf("record %q at offset %d: %v", e.Tag.String(), e.Offset, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Header is the position and size shared by all records.
type Header struct {
	// Offset is the absolute position of the record in the archive.
	// It is stable within a session and changes on rewrite.
	Offset int64

	// Length is the total record size including the header.
	Length uint32
}

// Head returns the header.
func (h Header) Head() Header {
	return h
}

// End returns the offset just past the record.
func (h Header) End() int64 {
	return h.Offset + int64(h.Length)
}

// Record is one of *Root, *Directory, *File or *Free.
type Record interface {
	Head() Header
	Tag() Tag
	isRecord()
}

// Root is the singleton record at offset 0.
type Root struct {
	Header

	// Version is the optional leading version word. It is only present
	// on disk when Versioned is set.
	Version   uint32
	Versioned bool

	// DirectoryOffset points at the root directory.
	DirectoryOffset int64

	// FreeOffset points at the head of the free chain, or 0 for none.
	FreeOffset int64
}

// Entry is one child reference inside a directory.
type Entry struct {
	Hash   uint32
	Offset int64
}

// Directory lists the children of one directory.
type Directory struct {
	Header
	Name    string
	Digest  Digest
	Entries []Entry
}

// File describes one stored file. Content is not held in memory; it lives
// at DataOffset for DataLength bytes.
type File struct {
	Header
	Name       string
	Digest     Digest
	DataOffset int64
	DataLength int64
}

// Free is one reclaimable byte range in the free chain.
type Free struct {
	Header

	// Next is the offset of the following free record, or 0 at chain end.
	Next int64
}

func (*Root) Tag() Tag      { return TagRoot }
func (*Directory) Tag() Tag { return TagDirectory }
func (*File) Tag() Tag      { return TagFile }
func (*Free) Tag() Tag      { return TagFree }

func (*Root) isRecord()      {}
func (*Directory) isRecord() {}
func (*File) isRecord()      {}
func (*Free) isRecord()      {}
