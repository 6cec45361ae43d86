package ggpk

import (
	"io/fs"
)

// RemoveFile detaches the file at path from its directory. The archive on
// disk is unchanged; the removal takes effect in copies written by Save.
func (c *Container) RemoveFile(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.tree.Lookup(path)
	if !ok {
		return &fs.PathError{Op: "remove", Path: path, Err: fs.ErrNotExist}
	}
	if err := c.tree.RemoveFile(f); err != nil {
		return &fs.PathError{Op: "remove", Path: path, Err: err}
	}
	c.log().Debug("file removed", "path", path)
	return nil
}

// RemoveDir detaches the directory at path and everything below it. The
// archive on disk is unchanged; the removal takes effect in copies written
// by Save.
func (c *Container) RemoveDir(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.tree.LookupDir(path)
	if !ok {
		return &fs.PathError{Op: "remove", Path: path, Err: fs.ErrNotExist}
	}
	if err := c.tree.RemoveDir(n.ID); err != nil {
		return &fs.PathError{Op: "remove", Path: path, Err: err}
	}
	c.log().Debug("directory removed", "path", path)
	return nil
}
