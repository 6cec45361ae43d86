// Package platform opens archive files with the best access the host allows.
package platform

import (
	"fmt"
	"os"
)

// OpenArchive opens path for reading and writing, falling back to read-only
// when the file or its filesystem refuses writes. When readOnly is set no
// write access is attempted. The returned bool reports whether the handle
// is read-only.
func OpenArchive(path string, readOnly bool) (*os.File, bool, error) {
	if !readOnly {
		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err == nil {
			return f, false, nil
		}
		if !writeRefused(err) {
			return nil, false, fmt.Errorf("open archive: %w", err)
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, true, fmt.Errorf("open archive: %w", err)
	}
	return f, true, nil
}
