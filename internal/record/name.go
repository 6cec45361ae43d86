package record

import (
	"encoding/binary"
	"strings"
	"unicode/utf16"
)

// NameUnits returns the number of UTF-16 code units used to store name,
// including the terminator.
func NameUnits(name string) int {
	return len(utf16.Encode([]rune(name))) + 1
}

// encodeName returns name as UTF-16LE followed by a NUL unit.
func encodeName(name string) []byte {
	units := utf16.Encode([]rune(name))
	b := make([]byte, 2*(len(units)+1))
	for i, u := range units {
		binary.LittleEndian.PutUint16(b[2*i:], u)
	}
	return b
}

// decodeName decodes UTF-16LE bytes, dropping the terminator.
func decodeName(b []byte) string {
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	for len(units) > 0 && units[len(units)-1] == 0 {
		units = units[:len(units)-1]
	}
	return string(utf16.Decode(units))
}

// NameHash returns the directory entry hash for name: MurmurHash2 with a
// zero seed over the lower-cased UTF-16LE name, terminator excluded.
func NameHash(name string) uint32 {
	b := encodeName(strings.ToLower(name))
	return murmur2(b[:len(b)-2], 0)
}

func murmur2(data []byte, seed uint32) uint32 {
	const (
		m = 0x5bd1e995
		r = 24
	)
	h := seed ^ uint32(len(data)) //nolint:gosec // names are far below 4GiB

	for len(data) >= 4 {
		k := binary.LittleEndian.Uint32(data)
		k *= m
		k ^= k >> r
		k *= m
		h *= m
		h ^= k
		data = data[4:]
	}

	switch len(data) {
	case 3:
		h ^= uint32(data[2]) << 16
		fallthrough
	case 2:
		h ^= uint32(data[1]) << 8
		fallthrough
	case 1:
		h ^= uint32(data[0])
		h *= m
	}

	h ^= h >> 13
	h *= m
	h ^= h >> 15
	return h
}
