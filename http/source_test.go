package http_test

import (
	"bytes"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/ggpk"
	ggpkhttp "github.com/meigma/ggpk/http"
	"github.com/meigma/ggpk/internal/testutil"
)

func serve(t *testing.T, data []byte, etag *atomic.Value) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if etag != nil {
			w.Header().Set("ETag", etag.Load().(string))
		}
		nethttp.ServeContent(w, r, "Content.ggpk", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSourceReadAt(t *testing.T) {
	t.Parallel()

	data := []byte("hello world")
	src, err := ggpkhttp.NewSource(serve(t, data, nil).URL)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), src.Size())

	buf := make([]byte, 5)
	n, err := src.ReadAt(buf, 6)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "world", string(buf))

	edge := make([]byte, 10)
	n, err = src.ReadAt(edge, int64(len(data)-3))
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "rld", string(edge[:n]))

	_, err = src.ReadAt(buf, int64(len(data)))
	require.ErrorIs(t, err, io.EOF)
}

func TestSourceBacksContainer(t *testing.T) {
	t.Parallel()

	data, _ := testutil.NewBuilder().
		File("Data/Mods.dat", []byte("mods")).
		File("Art/icon.dds", bytes.Repeat([]byte{1}, 64)).
		Free(32).
		Build(t)
	src, err := ggpkhttp.NewSource(serve(t, data, nil).URL)
	require.NoError(t, err)

	c, err := ggpk.New(src, src.Size())
	require.NoError(t, err)
	assert.True(t, c.ReadOnly())
	assert.Len(t, c.Files(), 2)

	got, err := c.ReadFile("Data/Mods.dat")
	require.NoError(t, err)
	assert.Equal(t, "mods", string(got))
	require.ErrorIs(t, c.Replace("Data/Mods.dat", []byte("x")), ggpk.ErrReadOnly)
}

func TestSourceDetectsChange(t *testing.T) {
	t.Parallel()

	var etag atomic.Value
	etag.Store(`"v1"`)
	src, err := ggpkhttp.NewSource(serve(t, []byte("version one"), &etag).URL)
	require.NoError(t, err)

	buf := make([]byte, 3)
	_, err = src.ReadAt(buf, 0)
	require.NoError(t, err)

	etag.Store(`"v2"`)
	_, err = src.ReadAt(buf, 0)
	require.ErrorIs(t, err, ggpkhttp.ErrChanged)
}

func TestSourceRangeUnsupported(t *testing.T) {
	t.Parallel()

	data := []byte("range unsupported")
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		if r.Method == nethttp.MethodHead {
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(server.Close)

	_, err := ggpkhttp.NewSource(server.URL)
	require.ErrorIs(t, err, ggpkhttp.ErrRangeUnsupported)
}

func TestSourceSendsHeaders(t *testing.T) {
	t.Parallel()

	data := []byte("secret archive")
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			w.WriteHeader(nethttp.StatusUnauthorized)
			return
		}
		nethttp.ServeContent(w, r, "Content.ggpk", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)

	_, err := ggpkhttp.NewSource(server.URL)
	require.Error(t, err)

	src, err := ggpkhttp.NewSource(server.URL, ggpkhttp.WithHeader("Authorization", "Bearer token"))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), src.Size())
}
