package ggpk

import (
	"io/fs"
	"slices"
	"strings"

	"github.com/disiqueira/gotree/v3"
	"github.com/dustin/go-humanize"

	"github.com/meigma/ggpk/internal/tree"
)

// RenderTree draws the directory at path and everything below it, with
// file sizes, as indented text.
func (c *Container) RenderTree(path string) (string, error) {
	if path == "" {
		path = "."
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	n, ok := c.tree.LookupDir(path)
	if !ok {
		return "", &fs.PathError{Op: "render", Path: path, Err: fs.ErrNotExist}
	}
	out := gotree.New(path)
	c.renderNode(out, n)
	return out.Print(), nil
}

func (c *Container) renderNode(out gotree.Tree, n *tree.Node) {
	children := make([]*tree.Node, 0, len(n.Children))
	for _, id := range n.Children {
		children = append(children, c.tree.Node(id))
	}
	slices.SortFunc(children, func(a, b *tree.Node) int { return strings.Compare(a.Name, b.Name) })
	for _, child := range children {
		c.renderNode(out.Add(child.Name+"/"), child)
	}

	files := slices.Clone(n.Files)
	slices.SortFunc(files, func(a, b *File) int { return strings.Compare(a.Name, b.Name) })
	for _, f := range files {
		out.Add(f.Name + " (" + humanize.IBytes(uint64(f.DataLength)) + ")") //nolint:gosec // non-negative
	}
}
