package sizing

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errOverflow = errors.New("overflow")

func TestToUint32(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   int64
		want uint32
		err  bool
	}{
		{in: 0, want: 0},
		{in: 44, want: 44},
		{in: math.MaxUint32, want: math.MaxUint32},
		{in: math.MaxUint32 + 1, err: true},
		{in: -1, err: true},
	}
	for _, tt := range tests {
		got, err := ToUint32(tt.in, errOverflow)
		if tt.err {
			require.ErrorIs(t, err, errOverflow, "input %d", tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestToInt(t *testing.T) {
	t.Parallel()

	n, err := ToInt(1<<20, errOverflow)
	require.NoError(t, err)
	assert.Equal(t, 1<<20, n)

	_, err = ToInt(-5, errOverflow)
	require.ErrorIs(t, err, errOverflow)
}

func TestAddInt64(t *testing.T) {
	t.Parallel()

	sum, ok := AddInt64(40, 2)
	assert.True(t, ok)
	assert.Equal(t, int64(42), sum)

	_, ok = AddInt64(math.MaxInt64, 1)
	assert.False(t, ok)
}

func TestReadAllWithLimit(t *testing.T) {
	t.Parallel()

	data, err := ReadAllWithLimit(bytes.NewReader([]byte("abcd")), 4, errOverflow)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), data)

	_, err = ReadAllWithLimit(bytes.NewReader([]byte("abcde")), 4, errOverflow)
	require.ErrorIs(t, err, errOverflow)
}
