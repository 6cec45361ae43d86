package platform

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenArchive(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "Content.ggpk")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o600))

	f, ro, err := OpenArchive(path, false)
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, ro)

	g, ro, err := OpenArchive(path, true)
	require.NoError(t, err)
	defer g.Close()
	assert.True(t, ro)
	_, err = g.WriteAt([]byte("x"), 0)
	assert.Error(t, err)
}

func TestOpenArchiveMissing(t *testing.T) {
	t.Parallel()

	_, _, err := OpenArchive(filepath.Join(t.TempDir(), "missing.ggpk"), false)
	require.ErrorIs(t, err, fs.ErrNotExist)
}
