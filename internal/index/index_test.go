package index

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/ggpk/internal/record"
	"github.com/meigma/ggpk/internal/testutil"
)

func scan(t *testing.T, data []byte, progress Progress) (*Index, error) {
	t.Helper()
	return Scan(record.NewDecoder(bytes.NewReader(data), int64(len(data))), progress)
}

func TestScanRegistersEveryRecord(t *testing.T) {
	t.Parallel()

	data, layout := testutil.NewBuilder().
		File("data/a.dat", []byte("abcd")).
		File("data/b.txt", []byte("hello")).
		Free(64, 32).
		Build(t)

	idx, err := scan(t, data, nil)
	require.NoError(t, err)

	// root + 2 files + data dir + root dir + 2 frees
	assert.Equal(t, 7, idx.Len())

	root, err := idx.Root()
	require.NoError(t, err)
	assert.Equal(t, layout.Dirs["."], root.DirectoryOffset)
	assert.Equal(t, layout.Frees[0], root.FreeOffset)

	f, err := idx.File(layout.Files["data/a.dat"])
	require.NoError(t, err)
	assert.Equal(t, "a.dat", f.Name)

	dir, err := idx.Directory(layout.Dirs["data"])
	require.NoError(t, err)
	assert.Len(t, dir.Entries, 2)

	free, err := idx.Free(layout.Frees[0])
	require.NoError(t, err)
	assert.Equal(t, layout.Frees[1], free.Next)

	offsets := idx.Offsets()
	assert.Equal(t, int64(0), offsets[0])
	assert.IsIncreasing(t, offsets)
}

func TestScanProgressReachesTotal(t *testing.T) {
	t.Parallel()

	data, _ := testutil.NewBuilder().File("a", []byte("x")).Free(16).Build(t)

	var last, total int64
	_, err := scan(t, data, func(done, size int64) {
		assert.GreaterOrEqual(t, done, last)
		last, total = done, size
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), last)
	assert.Equal(t, int64(len(data)), total)
}

func TestScanFailsOnCorruptLength(t *testing.T) {
	t.Parallel()

	data, layout := testutil.NewBuilder().File("a", []byte("xyz")).Build(t)
	// Grow the file record's declared length past the end of the archive.
	off := layout.Files["a"]
	data[off] = 0xff
	data[off+1] = 0xff

	_, err := scan(t, data, nil)
	require.ErrorIs(t, err, record.ErrTruncated)

	var recErr *record.RecordError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, off, recErr.Offset)
}

func TestTypedLookupMismatch(t *testing.T) {
	t.Parallel()

	data, layout := testutil.NewBuilder().File("a", []byte("x")).Build(t)
	idx, err := scan(t, data, nil)
	require.NoError(t, err)

	_, err = idx.Free(layout.Files["a"])
	require.ErrorIs(t, err, ErrNotFound)

	_, err = idx.Directory(12345)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPutDelete(t *testing.T) {
	t.Parallel()

	idx := New()
	free := &record.Free{Header: record.Header{Offset: 100, Length: 16}}
	idx.Put(free)

	got, ok := idx.Get(100)
	require.True(t, ok)
	assert.Same(t, free, got)

	idx.Delete(100)
	_, ok = idx.Get(100)
	assert.False(t, ok)
	assert.Equal(t, 0, idx.Len())
}
