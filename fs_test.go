package ggpk

import (
	"io"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFS(t *testing.T) {
	t.Parallel()

	path, _ := sampleBuilder().Dir("empty").Write(t)
	c := openPath(t, path)
	require.NoError(t, fstest.TestFS(c, "data/a.dat", "data/b.txt", "Art/2DArt/icon.dds", "readme.txt", "empty"))
}

func TestWalkDir(t *testing.T) {
	t.Parallel()

	path, _ := sampleBuilder().Write(t)
	c := openPath(t, path)

	var visited []string
	err := fs.WalkDir(c, ".", func(p string, d fs.DirEntry, err error) error {
		require.NoError(t, err)
		if !d.IsDir() {
			visited = append(visited, p)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Art/2DArt/icon.dds", "data/a.dat", "data/b.txt", "readme.txt"}, visited)
}

func TestReadDirSorted(t *testing.T) {
	t.Parallel()

	path, _ := sampleBuilder().Write(t)
	c := openPath(t, path)

	entries, err := c.ReadDir(".")
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	assert.Equal(t, []string{"Art", "data", "readme.txt"}, names)
	assert.True(t, entries[0].IsDir())
	assert.False(t, entries[2].IsDir())

	d, err := c.Open("data")
	require.NoError(t, err)
	defer d.Close()
	rd, ok := d.(fs.ReadDirFile)
	require.True(t, ok)
	first, err := rd.ReadDir(1)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "a.dat", first[0].Name())
	rest, err := rd.ReadDir(5)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	_, err = rd.ReadDir(1)
	require.ErrorIs(t, err, io.EOF)
}

func TestStat(t *testing.T) {
	t.Parallel()

	path, _ := sampleBuilder().Write(t)
	c := openPath(t, path)

	info, err := c.Stat("Art/2DArt/icon.dds")
	require.NoError(t, err)
	assert.Equal(t, "icon.dds", info.Name())
	assert.Equal(t, int64(len(iconContent)), info.Size())
	assert.False(t, info.IsDir())
	f, ok := info.Sys().(*File)
	require.True(t, ok)
	assert.Equal(t, "icon.dds", f.Name)

	info, err = c.Stat("Art")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, fs.ModeDir, info.Mode().Type())
}

func TestFSErrors(t *testing.T) {
	t.Parallel()

	path, _ := sampleBuilder().Write(t)
	c := openPath(t, path)

	tests := []struct {
		name string
		path string
		want error
	}{
		{name: "missing", path: "data/missing.dat", want: fs.ErrNotExist},
		{name: "leading slash", path: "/data/a.dat", want: fs.ErrInvalid},
		{name: "dot dot", path: "data/../readme.txt", want: fs.ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := c.Open(tt.path)
			require.ErrorIs(t, err, tt.want)
			_, err = c.Stat(tt.path)
			require.ErrorIs(t, err, tt.want)
			_, err = c.ReadFile(tt.path)
			require.ErrorIs(t, err, tt.want)
		})
	}

	_, err := c.ReadDir("readme.txt")
	require.ErrorIs(t, err, fs.ErrNotExist)

	d, err := c.Open("data")
	require.NoError(t, err)
	_, err = d.Read(make([]byte, 1))
	require.ErrorIs(t, err, fs.ErrInvalid)
}
