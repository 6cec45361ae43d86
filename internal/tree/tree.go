// Package tree builds the in-memory directory hierarchy of a GGPK archive by
// resolving directory entries through the offset index.
package tree

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/meigma/ggpk/internal/index"
	"github.com/meigma/ggpk/internal/record"
)

// NodeID identifies a directory node within one Tree.
type NodeID int32

// NoNode is the parent of the root node.
const NoNode NodeID = -1

// ErrRootRemoval is returned when asked to remove the root directory.
var ErrRootRemoval = errors.New("ggpk: cannot remove root directory")

// Node is one directory in the tree. Parent is a lookup key into the owning
// Tree, not an owning reference.
type Node struct {
	ID       NodeID
	Name     string
	Parent   NodeID
	Children []NodeID
	Files    []*record.File
	Record   *record.Directory
}

// Tree is an arena of directory nodes plus flat lists of everything found.
type Tree struct {
	nodes   []*Node
	parents map[*record.File]NodeID
	files   []*record.File
	dirs    []*record.Directory
	skipped int
}

// Build resolves the root record's directory offset into a tree.
//
// Entry offsets missing from the index are skipped; Skipped reports how
// many. An entry that resolves to something other than a directory or file,
// or a directory reached twice, is reported as corruption.
func Build(idx *index.Index) (*Tree, error) {
	root, err := idx.Root()
	if err != nil {
		return nil, &index.CorruptError{Offset: 0, Reason: "missing root record", Err: err}
	}
	dir, err := idx.Directory(root.DirectoryOffset)
	if err != nil {
		return nil, &index.CorruptError{Offset: root.DirectoryOffset, Reason: "missing root directory", Err: err}
	}

	t := &Tree{parents: make(map[*record.File]NodeID)}
	id := t.newNode(dir, NoNode)
	visited := map[int64]bool{dir.Offset: true}
	if err := t.attach(idx, id, visited); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) newNode(dir *record.Directory, parent NodeID) NodeID {
	id := NodeID(len(t.nodes)) //nolint:gosec // directory count fits in int32
	t.nodes = append(t.nodes, &Node{ID: id, Name: dir.Name, Parent: parent, Record: dir})
	return id
}

func (t *Tree) attach(idx *index.Index, id NodeID, visited map[int64]bool) error {
	node := t.nodes[id]
	for _, e := range node.Record.Entries {
		rec, ok := idx.Get(e.Offset)
		if !ok {
			t.skipped++
			continue
		}
		switch r := rec.(type) {
		case *record.Directory:
			if visited[r.Offset] {
				return &index.CorruptError{Offset: r.Offset, Reason: "directory reachable twice"}
			}
			visited[r.Offset] = true
			t.dirs = append(t.dirs, r)
			child := t.newNode(r, id)
			node.Children = append(node.Children, child)
			if err := t.attach(idx, child, visited); err != nil {
				return err
			}
		case *record.File:
			t.files = append(t.files, r)
			t.parents[r] = id
			node.Files = append(node.Files, r)
		default:
			return &index.CorruptError{
				Offset: e.Offset,
				Reason: fmt.Sprintf("directory %q entry points at %q record", node.Name, rec.Tag().String()),
			}
		}
	}
	return nil
}

// Root returns the root node.
func (t *Tree) Root() *Node {
	return t.nodes[0]
}

// Node returns the node with the given id, or nil if it was removed.
func (t *Tree) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

// Files returns every file in discovery order.
func (t *Tree) Files() []*record.File {
	return t.files
}

// Directories returns every directory except the root, in discovery order.
func (t *Tree) Directories() []*record.Directory {
	return t.dirs
}

// Skipped returns how many entries were dropped because their offsets were
// not in the index.
func (t *Tree) Skipped() int {
	return t.skipped
}

// Parent returns the directory containing f.
func (t *Tree) Parent(f *record.File) (NodeID, bool) {
	id, ok := t.parents[f]
	return id, ok
}

// DirPath returns the slash-separated path of a directory. The root is ".".
func (t *Tree) DirPath(id NodeID) string {
	var parts []string
	for n := t.Node(id); n != nil && n.Parent != NoNode; n = t.Node(n.Parent) {
		parts = append(parts, n.Name)
	}
	if len(parts) == 0 {
		return "."
	}
	slices.Reverse(parts)
	return strings.Join(parts, "/")
}

// Path returns the slash-separated path of f, or "" if f is not in the tree.
func (t *Tree) Path(f *record.File) string {
	id, ok := t.parents[f]
	if !ok {
		return ""
	}
	dir := t.DirPath(id)
	if dir == "." {
		return f.Name
	}
	return dir + "/" + f.Name
}

// Child returns the subdirectory of id with the given name.
func (t *Tree) Child(id NodeID, name string) (*Node, bool) {
	n := t.Node(id)
	if n == nil {
		return nil, false
	}
	for _, c := range n.Children {
		if child := t.nodes[c]; child.Name == name {
			return child, true
		}
	}
	return nil, false
}

// LookupDir resolves a slash-separated directory path. "." and "" are the root.
func (t *Tree) LookupDir(path string) (*Node, bool) {
	n := t.Root()
	if path == "." || path == "" {
		return n, true
	}
	for part := range strings.SplitSeq(path, "/") {
		child, ok := t.Child(n.ID, part)
		if !ok {
			return nil, false
		}
		n = child
	}
	return n, true
}

// Lookup resolves a slash-separated file path.
func (t *Tree) Lookup(path string) (*record.File, bool) {
	dir, name := ".", path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		dir, name = path[:i], path[i+1:]
	}
	n, ok := t.LookupDir(dir)
	if !ok {
		return nil, false
	}
	for _, f := range n.Files {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// PostOrder visits every file and every non-root directory such that a
// directory is visited only after all of its subdirectories and files.
func (t *Tree) PostOrder(dirFn func(*Node) error, fileFn func(*record.File) error) error {
	return t.postOrder(t.Root(), dirFn, fileFn)
}

func (t *Tree) postOrder(n *Node, dirFn func(*Node) error, fileFn func(*record.File) error) error {
	for _, c := range n.Children {
		child := t.nodes[c]
		if err := t.postOrder(child, dirFn, fileFn); err != nil {
			return err
		}
		if err := dirFn(child); err != nil {
			return err
		}
	}
	for _, f := range n.Files {
		if err := fileFn(f); err != nil {
			return err
		}
	}
	return nil
}

// RemoveFile detaches f from its directory.
//
// Directory records keep their entries so they continue to match the
// archive on disk; a rewrite omits whatever is no longer in the tree.
func (t *Tree) RemoveFile(f *record.File) error {
	id, ok := t.parents[f]
	if !ok {
		return fmt.Errorf("file %q is not in the tree", f.Name)
	}
	n := t.nodes[id]
	n.Files = slices.DeleteFunc(n.Files, func(x *record.File) bool { return x == f })
	t.forgetFile(f)
	return nil
}

// RemoveDir detaches the directory and everything below it. As with
// RemoveFile, directory records are left unchanged.
func (t *Tree) RemoveDir(id NodeID) error {
	n := t.Node(id)
	if n == nil {
		return fmt.Errorf("directory %d is not in the tree", id)
	}
	if n.Parent == NoNode {
		return ErrRootRemoval
	}
	parent := t.nodes[n.Parent]
	parent.Children = slices.DeleteFunc(parent.Children, func(c NodeID) bool { return c == id })
	files := make(map[*record.File]struct{})
	dirs := make(map[*record.Directory]struct{})
	t.forgetDir(n, files, dirs)
	t.files = slices.DeleteFunc(t.files, func(f *record.File) bool {
		_, ok := files[f]
		return ok
	})
	t.dirs = slices.DeleteFunc(t.dirs, func(d *record.Directory) bool {
		_, ok := dirs[d]
		return ok
	})
	return nil
}

// forgetDir clears n and its descendants from the arena and collects their
// records for a single pass over the flat lists.
func (t *Tree) forgetDir(n *Node, files map[*record.File]struct{}, dirs map[*record.Directory]struct{}) {
	for _, c := range n.Children {
		t.forgetDir(t.nodes[c], files, dirs)
	}
	for _, f := range n.Files {
		delete(t.parents, f)
		files[f] = struct{}{}
	}
	dirs[n.Record] = struct{}{}
	t.nodes[n.ID] = nil
}

func (t *Tree) forgetFile(f *record.File) {
	delete(t.parents, f)
	t.files = slices.DeleteFunc(t.files, func(x *record.File) bool { return x == f })
}
