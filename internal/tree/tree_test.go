package tree

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/ggpk/internal/index"
	"github.com/meigma/ggpk/internal/record"
	"github.com/meigma/ggpk/internal/testutil"
)

func build(t *testing.T, data []byte) (*Tree, *index.Index) {
	t.Helper()
	idx, err := index.Scan(record.NewDecoder(bytes.NewReader(data), int64(len(data))), nil)
	require.NoError(t, err)
	tr, err := Build(idx)
	require.NoError(t, err)
	return tr, idx
}

func sampleArchive(t *testing.T) ([]byte, testutil.Layout) {
	t.Helper()
	return testutil.NewBuilder().
		File("data/a.dat", []byte("abcd")).
		File("data/sub/b.dat", []byte("bb")).
		File("Art/2DArt/c.dds", []byte("ccc")).
		File("readme.txt", []byte("r")).
		Dir("empty").
		Free(16).
		Build(t)
}

func TestBuild(t *testing.T) {
	t.Parallel()

	data, _ := sampleArchive(t)
	tr, _ := build(t, data)

	assert.Len(t, tr.Files(), 4)
	assert.Len(t, tr.Directories(), 5) // data, sub, Art, 2DArt, empty
	assert.Equal(t, 0, tr.Skipped())
	assert.Equal(t, NoNode, tr.Root().Parent)

	var paths []string
	for _, f := range tr.Files() {
		paths = append(paths, tr.Path(f))
	}
	assert.ElementsMatch(t, []string{"data/a.dat", "data/sub/b.dat", "Art/2DArt/c.dds", "readme.txt"}, paths)

	f, ok := tr.Lookup("Art/2DArt/c.dds")
	require.True(t, ok)
	assert.Equal(t, "c.dds", f.Name)

	_, ok = tr.Lookup("Art/missing.dds")
	assert.False(t, ok)

	n, ok := tr.LookupDir("data/sub")
	require.True(t, ok)
	assert.Equal(t, "data/sub", tr.DirPath(n.ID))
	assert.Equal(t, ".", tr.DirPath(tr.Root().ID))
}

func TestEveryFileReachableByNameHash(t *testing.T) {
	t.Parallel()

	data, _ := sampleArchive(t)
	tr, _ := build(t, data)

	for _, f := range tr.Files() {
		id, ok := tr.Parent(f)
		require.True(t, ok)

		// Resolve the file within its parent, then each directory within
		// its own parent, all the way up.
		childHash, childOffset := record.NameHash(f.Name), f.Offset
		for n := tr.Node(id); n != nil; n = tr.Node(n.Parent) {
			i := n.Record.EntryIndex(childHash, childOffset)
			require.GreaterOrEqual(t, i, 0, "entry for offset %d in %q", childOffset, n.Name)
			childHash, childOffset = record.NameHash(n.Name), n.Record.Offset
		}
	}
}

func TestBuildSkipsUnknownOffsets(t *testing.T) {
	t.Parallel()

	data, layout := testutil.NewBuilder().
		File("data/a.dat", []byte("abcd")).
		File("data/b.dat", []byte("bbbb")).
		Build(t)

	// Point the first entry of "data" somewhere no record starts.
	dirOff := layout.Dirs["data"]
	field := dirOff + record.DirectoryHeaderSize + 2*int64(record.NameUnits("data")) + 4
	binary.LittleEndian.PutUint64(data[field:], 7)

	tr, _ := build(t, data)
	assert.Equal(t, 1, tr.Skipped())
	require.Len(t, tr.Files(), 1)
	assert.Equal(t, "b.dat", tr.Files()[0].Name)
}

func TestBuildRejectsEntryToFreeRecord(t *testing.T) {
	t.Parallel()

	data, layout := testutil.NewBuilder().File("a.dat", []byte("a")).Free(16).Build(t)
	field := layout.Dirs["."] + record.DirectoryHeaderSize + 2*int64(record.NameUnits("")) + 4
	binary.LittleEndian.PutUint64(data[field:], uint64(layout.Frees[0])) //nolint:gosec // test offset

	idx, err := index.Scan(record.NewDecoder(bytes.NewReader(data), int64(len(data))), nil)
	require.NoError(t, err)
	_, err = Build(idx)
	require.ErrorIs(t, err, index.ErrCorrupt)

	var corrupt *index.CorruptError
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, layout.Frees[0], corrupt.Offset)
}

func TestBuildMissingRootDirectory(t *testing.T) {
	t.Parallel()

	idx := index.New()
	idx.Put(&record.Root{Header: record.Header{Offset: 0, Length: record.RootLength}, DirectoryOffset: 500})
	_, err := Build(idx)
	require.ErrorIs(t, err, index.ErrCorrupt)
	require.ErrorIs(t, err, index.ErrNotFound)

	_, err = Build(index.New())
	require.ErrorIs(t, err, index.ErrCorrupt)
}

func TestPostOrderVisitsChildrenFirst(t *testing.T) {
	t.Parallel()

	data, _ := sampleArchive(t)
	tr, _ := build(t, data)

	seen := make(map[string]bool)
	var dirs int
	err := tr.PostOrder(
		func(n *Node) error {
			dirs++
			for _, c := range n.Children {
				assert.True(t, seen["dir:"+tr.DirPath(c)], "subdirectory of %s visited late", n.Name)
			}
			for _, f := range n.Files {
				assert.True(t, seen["file:"+tr.Path(f)], "file of %s visited late", n.Name)
			}
			seen["dir:"+tr.DirPath(n.ID)] = true
			return nil
		},
		func(f *record.File) error {
			seen["file:"+tr.Path(f)] = true
			return nil
		},
	)
	require.NoError(t, err)
	assert.Equal(t, len(tr.Directories()), dirs)
}

func TestRemoveFileAndDir(t *testing.T) {
	t.Parallel()

	data, _ := sampleArchive(t)
	tr, _ := build(t, data)

	f, ok := tr.Lookup("data/a.dat")
	require.True(t, ok)
	parent, _ := tr.Parent(f)
	entries := len(tr.Node(parent).Record.Entries)

	require.NoError(t, tr.RemoveFile(f))
	_, ok = tr.Lookup("data/a.dat")
	assert.False(t, ok)
	assert.Len(t, tr.Node(parent).Record.Entries, entries, "records still match the archive")
	assert.Len(t, tr.Node(parent).Files, 0)
	assert.Len(t, tr.Files(), 3)
	assert.Error(t, tr.RemoveFile(f))

	art, ok := tr.LookupDir("Art")
	require.True(t, ok)
	require.NoError(t, tr.RemoveDir(art.ID))
	_, ok = tr.Lookup("Art/2DArt/c.dds")
	assert.False(t, ok)
	assert.Len(t, tr.Files(), 2)
	assert.Len(t, tr.Directories(), 3)
	assert.Nil(t, tr.Node(art.ID))

	require.ErrorIs(t, tr.RemoveDir(tr.Root().ID), ErrRootRemoval)
}

func TestRemoveDirLargeSubtree(t *testing.T) {
	t.Parallel()

	b := testutil.NewBuilder()
	for i := range 2000 {
		b.File(fmt.Sprintf("Art/%02d/%d.dds", i%40, i), []byte{byte(i)})
		b.File(fmt.Sprintf("data/%d.dat", i), []byte{byte(i)})
	}
	data, _ := b.Build(t)
	tr, _ := build(t, data)

	var kept []*record.File
	for _, f := range tr.Files() {
		if strings.HasPrefix(tr.Path(f), "data/") {
			kept = append(kept, f)
		}
	}
	dataDir, ok := tr.LookupDir("data")
	require.True(t, ok)

	art, ok := tr.LookupDir("Art")
	require.True(t, ok)
	require.NoError(t, tr.RemoveDir(art.ID))

	assert.Equal(t, kept, tr.Files())
	assert.Equal(t, []*record.Directory{dataDir.Record}, tr.Directories())
	_, ok = tr.LookupDir("Art/07")
	assert.False(t, ok)
	for _, f := range kept {
		_, ok := tr.Parent(f)
		assert.True(t, ok)
	}
}
