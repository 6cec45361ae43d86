package record

import (
	"encoding/binary"

	"github.com/meigma/ggpk/internal/sizing"
)

func putHeader(b []byte, length uint32, tag Tag) {
	binary.LittleEndian.PutUint32(b, length)
	copy(b[4:], tag[:])
}

// Encode returns the on-disk form of the root record.
func (r *Root) Encode() []byte {
	n := RootLength
	if r.Versioned {
		n += 4
	}
	b := make([]byte, n)
	putHeader(b, uint32(n), TagRoot) //nolint:gosec // fixed size
	p := b[HeaderSize:]
	if r.Versioned {
		binary.LittleEndian.PutUint32(p, r.Version)
		p = p[4:]
	}
	binary.LittleEndian.PutUint64(p, uint64(r.DirectoryOffset)) //nolint:gosec // on-disk int64
	binary.LittleEndian.PutUint64(p[8:], uint64(r.FreeOffset))  //nolint:gosec // on-disk int64
	return b
}

// FreeOffsetField returns the absolute position of the free-chain head
// offset inside the root record, for in-place patching.
func (r *Root) FreeOffsetField() int64 {
	off := r.Offset + HeaderSize + 8
	if r.Versioned {
		off += 4
	}
	return off
}

// EncodedLength returns the record length implied by the name and entries.
func (d *Directory) EncodedLength() int {
	return DirectoryHeaderSize + 2*NameUnits(d.Name) + EntrySize*len(d.Entries)
}

// Encode returns the on-disk form of the directory. The length prefix is
// derived from the current name and entries, not from d.Length.
func (d *Directory) Encode() ([]byte, error) {
	n := d.EncodedLength()
	length, err := sizing.ToUint32(int64(n), ErrSizeOverflow)
	if err != nil {
		return nil, err
	}
	name := encodeName(d.Name)
	b := make([]byte, n)
	putHeader(b, length, TagDirectory)
	p := b[HeaderSize:]
	binary.LittleEndian.PutUint32(p, uint32(len(name)/2)) //nolint:gosec // bounded by n
	p = p[4:]
	copy(p, d.Digest[:])
	p = p[DigestSize:]
	copy(p, name)
	p = p[len(name):]
	binary.LittleEndian.PutUint32(p, uint32(len(d.Entries))) //nolint:gosec // bounded by n
	p = p[4:]
	for _, e := range d.Entries {
		binary.LittleEndian.PutUint32(p, e.Hash)
		binary.LittleEndian.PutUint64(p[4:], uint64(e.Offset)) //nolint:gosec // on-disk int64
		p = p[EntrySize:]
	}
	return b, nil
}

// EntryIndex returns the index of the entry with the given hash and offset,
// or -1.
func (d *Directory) EntryIndex(hash uint32, offset int64) int {
	for i, e := range d.Entries {
		if e.Hash == hash && e.Offset == offset {
			return i
		}
	}
	return -1
}

// EntryOffsetField returns the absolute archive position of the offset
// field of entry i, for in-place patching.
func (d *Directory) EntryOffsetField(i int) int64 {
	return d.Offset + DirectoryHeaderSize + 2*int64(NameUnits(d.Name)) + int64(i)*EntrySize + 4
}

// NewFile returns a detached file record holding the digest and size of data.
func NewFile(name string, data []byte) (*File, error) {
	f := &File{Name: name}
	if err := f.SetContent(data); err != nil {
		return nil, err
	}
	return f, nil
}

// HeaderLength returns the size of the record before the content.
func (f *File) HeaderLength() int64 {
	return FileHeaderSize + 2*int64(NameUnits(f.Name))
}

// SetContent recomputes Length, DataLength and Digest from data. The
// record's position is left unchanged.
func (f *File) SetContent(data []byte) error {
	length, err := sizing.ToUint32(f.HeaderLength()+int64(len(data)), ErrSizeOverflow)
	if err != nil {
		return err
	}
	f.Length = length
	f.DataLength = int64(len(data))
	f.DataOffset = f.Offset + f.HeaderLength()
	f.Digest = Sum(data)
	return nil
}

// MoveTo repositions the record at off.
func (f *File) MoveTo(off int64) {
	f.Offset = off
	f.DataOffset = off + f.HeaderLength()
}

// EncodeHeader returns the record bytes that precede the content.
func (f *File) EncodeHeader() []byte {
	name := encodeName(f.Name)
	b := make([]byte, FileHeaderSize+len(name))
	putHeader(b, f.Length, TagFile)
	binary.LittleEndian.PutUint32(b[HeaderSize:], uint32(len(name)/2)) //nolint:gosec // bounded by Length
	copy(b[HeaderSize+4:], f.Digest[:])
	copy(b[FileHeaderSize:], name)
	return b
}

// Encode returns the header and next pointer of the free record. Bytes past
// FreeMinLength are padding and are not produced.
func (f *Free) Encode() []byte {
	b := make([]byte, FreeMinLength)
	putHeader(b, f.Length, TagFree)
	binary.LittleEndian.PutUint64(b[FreeNextField:], uint64(f.Next)) //nolint:gosec // on-disk int64
	return b
}

// EncodeOffset returns the little-endian form of an offset field.
func EncodeOffset(off int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(off)) //nolint:gosec // on-disk int64
	return b
}
