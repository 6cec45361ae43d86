//go:build !unix

package platform

import (
	"errors"
	"io/fs"
)

// writeRefused reports whether err means the file exists but cannot be
// opened for writing.
func writeRefused(err error) bool {
	return errors.Is(err, fs.ErrPermission)
}
