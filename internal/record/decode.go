package record

import (
	"encoding/binary"
	"io"
)

// Decoder reads records from a random-access byte source.
type Decoder struct {
	src  io.ReaderAt
	size int64
}

// NewDecoder returns a Decoder over the first size bytes of src.
func NewDecoder(src io.ReaderAt, size int64) *Decoder {
	return &Decoder{src: src, size: size}
}

// Size returns the number of bytes visible to the decoder.
func (d *Decoder) Size() int64 {
	return d.size
}

// Decode reads the record starting at off and returns it together with the
// offset of the following record. File content is not read.
//
// Errors are *RecordError values wrapping ErrUnknownTag, ErrTruncated or
// ErrMalformed.
func (d *Decoder) Decode(off int64) (Record, int64, error) {
	var hdr [HeaderSize]byte
	if err := d.readAt(hdr[:], off); err != nil {
		return nil, 0, &RecordError{Offset: off, Err: err}
	}
	var tag Tag
	copy(tag[:], hdr[4:])
	h := Header{Offset: off, Length: binary.LittleEndian.Uint32(hdr[:4])}

	var decode func(Header) (Record, error)
	switch tag {
	case TagRoot:
		decode = d.decodeRoot
	case TagDirectory:
		decode = d.decodeDirectory
	case TagFile:
		decode = d.decodeFile
	case TagFree:
		decode = d.decodeFree
	default:
		return nil, 0, &RecordError{Offset: off, Tag: tag, Err: ErrUnknownTag}
	}

	if h.Length < HeaderSize || h.End() > d.size {
		return nil, 0, &RecordError{Offset: off, Tag: tag, Err: ErrTruncated}
	}
	rec, err := decode(h)
	if err != nil {
		return nil, 0, &RecordError{Offset: off, Tag: tag, Err: err}
	}
	return rec, h.End(), nil
}

func (d *Decoder) readAt(p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > d.size {
		return ErrTruncated
	}
	n, err := d.src.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || err == io.EOF {
		return ErrTruncated
	}
	return err
}

// body reads n bytes following the header.
func (d *Decoder) body(h Header, n int) ([]byte, error) {
	if int64(n) > int64(h.Length)-HeaderSize {
		return nil, ErrTruncated
	}
	b := make([]byte, n)
	if err := d.readAt(b, h.Offset+HeaderSize); err != nil {
		return nil, err
	}
	return b, nil
}

func (d *Decoder) decodeRoot(h Header) (Record, error) {
	n := int(h.Length) - HeaderSize
	switch {
	case n < 16:
		return nil, ErrTruncated
	case n != 16 && n != 20:
		return nil, ErrMalformed
	}
	b, err := d.body(h, n)
	if err != nil {
		return nil, err
	}
	root := &Root{Header: h}
	if n == 20 {
		root.Version = binary.LittleEndian.Uint32(b)
		root.Versioned = true
		b = b[4:]
	}
	root.DirectoryOffset = int64(binary.LittleEndian.Uint64(b[0:])) //nolint:gosec // on-disk int64
	root.FreeOffset = int64(binary.LittleEndian.Uint64(b[8:]))      //nolint:gosec // on-disk int64
	return root, nil
}

func (d *Decoder) decodeDirectory(h Header) (Record, error) {
	b, err := d.body(h, int(h.Length)-HeaderSize)
	if err != nil {
		return nil, err
	}
	if len(b) < 4+DigestSize {
		return nil, ErrTruncated
	}
	units := int32(binary.LittleEndian.Uint32(b)) //nolint:gosec // on-disk int32
	if units < 1 {
		return nil, ErrMalformed
	}
	dir := &Directory{Header: h}
	copy(dir.Digest[:], b[4:4+DigestSize])
	b = b[4+DigestSize:]

	nameLen := 2 * int(units)
	if len(b) < nameLen+4 {
		return nil, ErrTruncated
	}
	dir.Name = decodeName(b[:nameLen])
	b = b[nameLen:]

	count := int32(binary.LittleEndian.Uint32(b)) //nolint:gosec // on-disk int32
	b = b[4:]
	if count < 0 {
		return nil, ErrMalformed
	}
	if len(b) < int(count)*EntrySize {
		return nil, ErrTruncated
	}
	dir.Entries = make([]Entry, count)
	for i := range dir.Entries {
		e := b[i*EntrySize:]
		dir.Entries[i] = Entry{
			Hash:   binary.LittleEndian.Uint32(e),
			Offset: int64(binary.LittleEndian.Uint64(e[4:])), //nolint:gosec // on-disk int64
		}
	}
	return dir, nil
}

func (d *Decoder) decodeFile(h Header) (Record, error) {
	fixed, err := d.body(h, 4+DigestSize)
	if err != nil {
		return nil, err
	}
	units := int32(binary.LittleEndian.Uint32(fixed)) //nolint:gosec // on-disk int32
	if units < 1 {
		return nil, ErrMalformed
	}
	nameLen := 2 * int64(units)
	dataLen := int64(h.Length) - FileHeaderSize - nameLen
	if dataLen < 0 {
		return nil, ErrTruncated
	}
	name := make([]byte, nameLen)
	if err := d.readAt(name, h.Offset+FileHeaderSize); err != nil {
		return nil, err
	}

	f := &File{
		Header:     h,
		Name:       decodeName(name),
		DataOffset: h.Offset + FileHeaderSize + nameLen,
		DataLength: dataLen,
	}
	copy(f.Digest[:], fixed[4:])
	return f, nil
}

func (d *Decoder) decodeFree(h Header) (Record, error) {
	b, err := d.body(h, 8)
	if err != nil {
		return nil, err
	}
	return &Free{
		Header: h,
		Next:   int64(binary.LittleEndian.Uint64(b)), //nolint:gosec // on-disk int64
	}, nil
}
