package ggpk

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readDest(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
	require.NoError(t, err)
	return string(data)
}

func TestExtractAll(t *testing.T) {
	t.Parallel()

	path, _ := sampleBuilder().Write(t)
	c := openPath(t, path)
	dest := t.TempDir()

	var events []ProgressEvent
	require.NoError(t, c.Extract(dest, "", ExtractWithWorkers(2), ExtractWithProgress(func(e ProgressEvent) {
		events = append(events, e)
	})))

	assert.Equal(t, "abcd", readDest(t, dest, "data/a.dat"))
	assert.Equal(t, "hello world", readDest(t, dest, "data/b.txt"))
	assert.Equal(t, string(iconContent), readDest(t, dest, "Art/2DArt/icon.dds"))
	assert.Equal(t, "read me", readDest(t, dest, "readme.txt"))

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, StageExtracting, last.Stage)
	assert.Equal(t, int64(4), last.Done)
	assert.Equal(t, int64(4), last.Total)
}

func TestExtractPrefix(t *testing.T) {
	t.Parallel()

	path, _ := sampleBuilder().Write(t)
	c := openPath(t, path)

	t.Run("directory", func(t *testing.T) {
		t.Parallel()
		dest := t.TempDir()
		require.NoError(t, c.Extract(dest, "data"))
		assert.Equal(t, "abcd", readDest(t, dest, "data/a.dat"))
		assert.NoFileExists(t, filepath.Join(dest, "readme.txt"))
		assert.NoDirExists(t, filepath.Join(dest, "Art"))
	})

	t.Run("file", func(t *testing.T) {
		t.Parallel()
		dest := t.TempDir()
		require.NoError(t, c.Extract(dest, "Art/2DArt/icon.dds"))
		assert.Equal(t, string(iconContent), readDest(t, dest, "Art/2DArt/icon.dds"))
	})

	t.Run("missing", func(t *testing.T) {
		t.Parallel()
		require.ErrorIs(t, c.Extract(t.TempDir(), "nope"), fs.ErrNotExist)
	})

	t.Run("invalid", func(t *testing.T) {
		t.Parallel()
		require.ErrorIs(t, c.Extract(t.TempDir(), "../data"), fs.ErrInvalid)
	})
}

func TestExtractOverwrite(t *testing.T) {
	t.Parallel()

	path, _ := sampleBuilder().Write(t)
	c := openPath(t, path)
	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, "readme.txt"), []byte("local"), 0o600))

	require.NoError(t, c.Extract(dest, "."))
	assert.Equal(t, "local", readDest(t, dest, "readme.txt"))
	assert.Equal(t, "abcd", readDest(t, dest, "data/a.dat"))

	require.NoError(t, c.Extract(dest, ".", ExtractWithOverwrite(true)))
	assert.Equal(t, "read me", readDest(t, dest, "readme.txt"))
}

func TestExtractFile(t *testing.T) {
	t.Parallel()

	path, _ := sampleBuilder().Write(t)
	c := openPath(t, path)
	target := filepath.Join(t.TempDir(), "b.txt")

	require.NoError(t, c.ExtractFile("data/b.txt", target))
	assert.Equal(t, "hello world", readDest(t, filepath.Dir(target), "b.txt"))

	require.ErrorIs(t, c.ExtractFile("data/b.txt", target), fs.ErrExist)
	require.NoError(t, c.ExtractFile("readme.txt", target, ExtractWithOverwrite(true)))
	assert.Equal(t, "read me", readDest(t, filepath.Dir(target), "b.txt"))

	require.ErrorIs(t, c.ExtractFile("data/missing", filepath.Join(t.TempDir(), "x")), fs.ErrNotExist)
}
