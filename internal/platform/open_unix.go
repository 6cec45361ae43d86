//go:build unix

package platform

import (
	"errors"
	"io/fs"
	"syscall"
)

// writeRefused reports whether err means the file exists but cannot be
// opened for writing.
func writeRefused(err error) bool {
	return errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, syscall.EROFS) ||
		errors.Is(err, syscall.ETXTBSY)
}
