package ggpk

import (
	"bytes"
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/ggpk/internal/record"
	"github.com/meigma/ggpk/internal/testutil"
)

func freeOffsets(frees []*FreeRecord) []int64 {
	offs := make([]int64, len(frees))
	for i, f := range frees {
		offs[i] = f.Offset
	}
	return offs
}

func TestReplaceSameSizeInPlace(t *testing.T) {
	t.Parallel()

	data, layout := sampleBuilder().Build(t)
	c, store := openStore(t, data)

	require.NoError(t, c.Replace("data/a.dat", []byte("wxyz")))

	f, ok := c.Lookup("data/a.dat")
	require.True(t, ok)
	assert.Equal(t, layout.Files["data/a.dat"], f.Offset)
	assert.Equal(t, layout.Size, c.Size())
	assert.Empty(t, c.FreeRecords())
	assert.Equal(t, record.Sum([]byte("wxyz")), f.Digest)

	got, err := c.ReadFile("data/a.dat")
	require.NoError(t, err)
	assert.Equal(t, []byte("wxyz"), got)
	require.NoError(t, c.Check())

	reopened, err := New(bytes.NewReader(store.Bytes()), store.Size())
	require.NoError(t, err)
	got, err = reopened.ReadFile("data/a.dat")
	require.NoError(t, err)
	assert.Equal(t, []byte("wxyz"), got)
}

func TestReplaceSplitsFreeRange(t *testing.T) {
	t.Parallel()

	data, layout := sampleBuilder().Free(200).Build(t)
	c, store := openStore(t, data)
	x := layout.Frees[0]
	old := layout.Files["readme.txt"]

	content := bytes.Repeat([]byte("n"), 20)
	require.NoError(t, c.Replace("readme.txt", content))

	f, ok := c.Lookup("readme.txt")
	require.True(t, ok)
	assert.Equal(t, x, f.Offset)
	assert.Equal(t, layout.Size, c.Size())

	// The remainder takes the consumed range's place in the chain and
	// the old footprint sits at the tail.
	frees := c.FreeRecords()
	require.Len(t, frees, 2)
	assert.Equal(t, []int64{x + int64(f.Length), old}, freeOffsets(frees))
	assert.Equal(t, 200-f.Length, frees[0].Length)
	require.NoError(t, c.Check())

	rec, ok := c.Record(frees[0].Offset)
	require.True(t, ok)
	assert.IsType(t, &FreeRecord{}, rec)

	reopened, err := New(bytes.NewReader(store.Bytes()), store.Size())
	require.NoError(t, err)
	assert.Equal(t, freeOffsets(frees), freeOffsets(reopened.FreeRecords()))
	got, err := reopened.ReadFile("readme.txt")
	require.NoError(t, err)
	assert.Equal(t, content, got)
	require.NoError(t, reopened.Check())
}

func TestReplaceTwiceReusesVacatedSpace(t *testing.T) {
	t.Parallel()

	data, layout := sampleBuilder().Build(t)
	c, store := openStore(t, data)
	a := layout.Files["data/a.dat"]

	x := []byte("0123456789")
	require.NoError(t, c.Replace("data/a.dat", x))
	f, ok := c.Lookup("data/a.dat")
	require.True(t, ok)
	xOffset, xLength := f.Offset, f.Length
	assert.Equal(t, layout.Size, xOffset, "no free range fits, so the archive grows")

	y := bytes.Repeat([]byte("y"), 200)
	require.NoError(t, c.Replace("data/a.dat", y))

	got, err := c.ReadFile("data/a.dat")
	require.NoError(t, err)
	assert.Equal(t, y, got)
	assert.Equal(t, []int64{a, xOffset}, freeOffsets(c.FreeRecords()))
	require.NoError(t, c.Check())

	reopened, err := New(bytes.NewReader(store.Bytes()), store.Size())
	require.NoError(t, err)
	got, err = reopened.ReadFile("data/a.dat")
	require.NoError(t, err)
	assert.Equal(t, y, got)

	alloc, err := c.free.Allocate(xLength, c.Size())
	require.NoError(t, err)
	assert.Equal(t, xOffset, alloc.Offset)
	assert.False(t, alloc.Grown)
}

func TestReplaceOnDisk(t *testing.T) {
	t.Parallel()

	path, _ := sampleBuilder().Free(64).Write(t)
	c := openPath(t, path)
	require.NoError(t, c.Replace("data/b.txt", []byte("goodbye, world")))
	require.NoError(t, c.Close())

	reopened := openPath(t, path)
	got, err := reopened.ReadFile("data/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "goodbye, world", string(got))
	require.NoError(t, reopened.Check())
}

func TestReplaceFrom(t *testing.T) {
	t.Parallel()

	data, _ := sampleBuilder().Build(t)
	c, _ := openStore(t, data)
	require.NoError(t, c.ReplaceFrom("data/b.txt", strings.NewReader("streamed")))
	got, err := c.ReadFile("data/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "streamed", string(got))

	limited, _ := openStore(t, data, WithMaxFileSize(4))
	require.ErrorIs(t, limited.ReplaceFrom("data/b.txt", strings.NewReader("12345")), ErrSizeOverflow)
	require.ErrorIs(t, limited.Replace("data/b.txt", []byte("12345")), ErrSizeOverflow)
}

func TestReplaceErrors(t *testing.T) {
	t.Parallel()

	data, _ := sampleBuilder().Build(t)

	t.Run("missing path", func(t *testing.T) {
		t.Parallel()
		c, _ := openStore(t, data)
		require.ErrorIs(t, c.Replace("data/missing.dat", []byte("x")), fs.ErrNotExist)
	})

	t.Run("detached file", func(t *testing.T) {
		t.Parallel()
		c, store := openStore(t, data)
		f, ok := c.Lookup("data/a.dat")
		require.True(t, ok)
		require.NoError(t, c.RemoveFile("data/a.dat"))

		writes := store.Writes()
		err := c.ReplaceRecord(f, []byte("x"))
		var entryErr *EntryError
		require.ErrorAs(t, err, &entryErr)
		require.ErrorIs(t, err, ErrEntryNotFound)
		assert.Equal(t, writes, store.Writes(), "nothing is written when the entry is missing")
	})

	t.Run("foreign record", func(t *testing.T) {
		t.Parallel()
		c, _ := openStore(t, data)
		f, err := record.NewFile("stray.dat", []byte("x"))
		require.NoError(t, err)
		require.ErrorIs(t, c.ReplaceRecord(f, []byte("y")), ErrEntryNotFound)
	})
}

func TestReplaceLegacySplitOverhead(t *testing.T) {
	t.Parallel()

	// a.dat grows from 60 to 70 bytes. The 100-byte range leaves a
	// remainder of 30: enough for a free record, too small for the
	// legacy overhead.
	tests := []struct {
		name      string
		opts      []Option
		wantSplit bool
	}{
		{name: "default", wantSplit: true},
		{name: "legacy", opts: []Option{WithSplitOverhead(46)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data, layout := sampleBuilder().Free(100).Build(t)
			c, _ := openStore(t, data, tt.opts...)
			require.NoError(t, c.Replace("data/a.dat", []byte("0123456789abcd")))

			f, ok := c.Lookup("data/a.dat")
			require.True(t, ok)
			if tt.wantSplit {
				assert.Equal(t, layout.Frees[0], f.Offset)
				assert.Equal(t, layout.Size, c.Size())
			} else {
				assert.Equal(t, layout.Size, f.Offset)
				assert.Equal(t, layout.Size+int64(f.Length), c.Size())
			}
			require.NoError(t, c.Check())
		})
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()

	data, _ := sampleBuilder().Build(t)
	c, store := openStore(t, data)
	writes := store.Writes()

	require.NoError(t, c.RemoveFile("readme.txt"))
	require.NoError(t, c.RemoveDir("Art"))
	assert.Equal(t, writes, store.Writes(), "removal does not touch the archive")

	_, ok := c.Lookup("readme.txt")
	assert.False(t, ok)
	_, ok = c.LookupDir("Art/2DArt")
	assert.False(t, ok)
	assert.Len(t, c.Files(), 2)

	require.ErrorIs(t, c.RemoveFile("readme.txt"), fs.ErrNotExist)
	require.ErrorIs(t, c.RemoveDir("."), ErrRootRemoval)

	// The remaining entries still patch correctly.
	require.NoError(t, c.Replace("data/a.dat", []byte("after removal")))
	reopened, err := New(testutil.NewStore(store.Bytes()), store.Size())
	require.NoError(t, err)
	got, err := reopened.ReadFile("data/a.dat")
	require.NoError(t, err)
	assert.Equal(t, "after removal", string(got))
	assert.Len(t, reopened.Files(), 4)
}

// failingStore refuses writes at one offset.
type failingStore struct {
	*testutil.Store
	failAt int64
}

func (s *failingStore) WriteAt(p []byte, off int64) (int, error) {
	if off == s.failAt {
		return 0, errors.New("disk full")
	}
	return s.Store.WriteAt(p, off)
}

func TestReplaceRestoresOnAllocationFailure(t *testing.T) {
	t.Parallel()

	data, layout := sampleBuilder().Free(200).Build(t)
	x := layout.Frees[0]
	f, err := record.NewFile("readme.txt", bytes.Repeat([]byte("n"), 20))
	require.NoError(t, err)

	// The split remainder lands right after the new record.
	store := &failingStore{Store: testutil.NewStore(data), failAt: x + int64(f.Length)}
	c, err := New(store, store.Size())
	require.NoError(t, err)

	err = c.Replace("readme.txt", bytes.Repeat([]byte("n"), 20))
	require.Error(t, err)

	got, err := c.ReadFile("readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "read me", string(got))
	assert.Equal(t, []int64{x}, freeOffsets(c.FreeRecords()))
	require.NoError(t, c.Check())

	reopened, err := New(bytes.NewReader(store.Bytes()), store.Size())
	require.NoError(t, err)
	got, err = reopened.ReadFile("readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "read me", string(got))
	assert.Equal(t, []int64{x}, freeOffsets(reopened.FreeRecords()))
}
