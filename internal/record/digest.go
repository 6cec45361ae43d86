package record

import (
	_ "crypto/sha256" // registers the hash used by digest.SHA256

	"github.com/opencontainers/go-digest"
)

// Digest is a raw 256-bit SHA-256 sum as stored in directory and file records.
type Digest [DigestSize]byte

// Sum computes the content digest of data.
func Sum(data []byte) Digest {
	h := digest.SHA256.Hash()
	h.Write(data)
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// OCI returns d in the algorithm-prefixed form used by go-digest.
func (d Digest) OCI() digest.Digest {
	return digest.NewDigestFromBytes(digest.SHA256, d[:])
}

func (d Digest) String() string {
	return d.OCI().String()
}
