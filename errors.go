package ggpk

import (
	"errors"
	"fmt"

	"github.com/meigma/ggpk/internal/freelist"
	"github.com/meigma/ggpk/internal/index"
	"github.com/meigma/ggpk/internal/record"
	"github.com/meigma/ggpk/internal/tree"
)

// Errors re-exported from the record decoder.
var (
	// ErrUnknownTag is returned when a record header carries an unknown tag.
	ErrUnknownTag = record.ErrUnknownTag

	// ErrTruncated is returned when a record extends past the end of the archive.
	ErrTruncated = record.ErrTruncated

	// ErrMalformed is returned when a record body is internally inconsistent.
	ErrMalformed = record.ErrMalformed

	// ErrSizeOverflow is returned when a size exceeds what the format or the
	// configured limits allow.
	ErrSizeOverflow = record.ErrSizeOverflow

	// ErrCorrupt is returned when the offset graph is inconsistent.
	ErrCorrupt = index.ErrCorrupt

	// ErrFreeListInconsistent is returned by Check when the allocator's
	// chain and size index disagree.
	ErrFreeListInconsistent = freelist.ErrInconsistent

	// ErrRootRemoval is returned by RemoveDir for the root directory.
	ErrRootRemoval = tree.ErrRootRemoval
)

// Sentinel errors specific to the container.
var (
	// ErrReadOnly is returned by mutating operations on a container whose
	// backing store could not be opened for writing.
	ErrReadOnly = errors.New("ggpk: archive is read-only")

	// ErrEntryNotFound is returned when a parent directory has no entry for
	// a file being replaced.
	ErrEntryNotFound = errors.New("ggpk: directory entry not found")

	// ErrDigestMismatch is returned when content does not match its recorded digest.
	ErrDigestMismatch = errors.New("ggpk: digest mismatch")

	// ErrSameFile is returned when Save is asked to overwrite its own source.
	ErrSameFile = errors.New("ggpk: destination is the source archive")

	// ErrClosed is returned by operations on a closed container.
	ErrClosed = errors.New("ggpk: container closed")
)

type (
	// RecordError describes a decode failure at a specific offset.
	RecordError = record.RecordError

	// CorruptError names the offset at which the offset graph broke.
	CorruptError = index.CorruptError
)

// EntryError reports a file whose parent directory does not reference it.
type EntryError struct {
	Name   string
	Offset int64
	Err    error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("file %q at offset %d: %v", e.Name, e.Offset, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}
