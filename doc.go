// Package ggpk reads, edits and rewrites GGPK pack archives.
//
// A GGPK archive is one large file holding a tree of directories and files
// as tagged, length-prefixed records that refer to each other by absolute
// byte offset. Loading performs a single forward scan that indexes every
// record by offset, then resolves the root record's directory pointer into
// a navigable tree and threads the free-space chain into an allocator.
//
// # Reading
//
// Container implements fs.FS, fs.StatFS, fs.ReadFileFS and fs.ReadDirFS, so
// archive contents work with fs.WalkDir, fs.Glob and friends:
//
//	c, err := ggpk.Open("Content.ggpk")
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//	data, err := c.ReadFile("Data/Mods.dat")
//
// # Editing
//
// Replace swaps one file's content in place. The old footprint is returned
// to the free chain, the new content is written into reused or appended
// space, and only the parent directory's entry is patched:
//
//	err = c.Replace("Metadata/UI/UISettings.xml", content)
//
// Replace is not atomic across its steps; a crash mid-write can leave the
// parent entry pointing at stale data.
//
// Save writes a defragmented copy of the archive to a new file. Removals made
// with RemoveFile and RemoveDir only take effect in saved copies.
//
// # Caching
//
// WithCache serves repeated reads of identical content from a
// content-addressed cache keyed by each file's SHA-256 digest. See
// package cache/disk for a filesystem implementation.
//
// # Remote archives
//
// New accepts any io.ReaderAt. Package http provides one backed by HTTP
// range requests, which yields a read-only container over a hosted archive.
package ggpk
