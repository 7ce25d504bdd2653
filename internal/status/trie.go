package status

import (
	"path"
	"strings"
)

// leafTrie indexes every ancestor directory of every tracked path, so
// an untracked-file scan can walk only the directories the user has
// already opted a file into, instead of the whole home directory.
type leafTrie struct {
	children map[string]*leafTrie
	isLeaf   bool
}

func newLeafTrie() *leafTrie {
	return &leafTrie{children: make(map[string]*leafTrie)}
}

// insert records the ancestor-directory chain of trackedPath,
// marking its immediate parent directory as a leaf.
func (t *leafTrie) insert(trackedPath string) {
	dir := path.Dir(trackedPath)
	if dir == "." {
		t.isLeaf = true
		return
	}
	segments := strings.Split(dir, "/")
	node := t
	for _, seg := range segments {
		child, ok := node.children[seg]
		if !ok {
			child = newLeafTrie()
			node.children[seg] = child
		}
		node = child
	}
	node.isLeaf = true
}

// leafDirs returns every directory (repo-relative, slash-separated,
// "" for the repo root) marked as a leaf.
func (t *leafTrie) leafDirs() []string {
	var out []string
	var walk func(node *leafTrie, prefix string)
	walk = func(node *leafTrie, prefix string) {
		if node.isLeaf {
			out = append(out, prefix)
		}
		for name, child := range node.children {
			next := name
			if prefix != "" {
				next = prefix + "/" + name
			}
			walk(child, next)
		}
	}
	walk(t, "")
	return out
}

// buildLeafTrie constructs a leafTrie from the given tracked paths
// (committed ∪ staged).
func buildLeafTrie(trackedPaths []string) *leafTrie {
	t := newLeafTrie()
	for _, p := range trackedPaths {
		t.insert(p)
	}
	return t
}
