package tree

import (
	"fmt"
	"iter"
	"strings"
)

// Lookup returns the node with the given id.
func (s *Snapshot) Lookup(id string) (Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// Len returns the number of nodes.
func (s *Snapshot) Len() int {
	return len(s.nodes)
}

// Separator returns the path separator used by PathOf and Files.
func (s *Snapshot) Separator() string {
	return s.sep
}

// ChildrenOf returns the direct children of id (or of the root), sorted by
// name. Files have no children.
func (s *Snapshot) ChildrenOf(id string) ([]Node, error) {
	if id != Root {
		if _, ok := s.nodes[id]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
	}
	kids := s.children[id]
	out := make([]Node, 0, len(kids))
	for _, cid := range kids {
		out = append(out, s.nodes[cid])
	}
	return out, nil
}

// PathOf joins the names from the top-level ancestor down to id.
func (s *Snapshot) PathOf(id string) (string, error) {
	n, ok := s.nodes[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	names := []string{n.Name}
	for steps := 0; n.ParentID != Root; steps++ {
		if steps > len(s.nodes) {
			return "", fmt.Errorf("%w: parent cycle above %s", ErrConsistency, id)
		}
		parent, ok := s.nodes[n.ParentID]
		if !ok {
			return "", fmt.Errorf("%w: %s references missing parent %s", ErrConsistency, n.ID, n.ParentID)
		}
		names = append(names, parent.Name)
		n = parent
	}

	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, s.sep), nil
}

// FindByPath resolves a separator-joined path. Leading and trailing
// separators are ignored.
func (s *Snapshot) FindByPath(path string) (Node, error) {
	parts := s.splitPath(path)
	if len(parts) == 0 {
		return Node{}, fmt.Errorf("%w: empty path", ErrNotFound)
	}

	parentID := Root
	var n Node
	for i, name := range parts {
		child, ok := s.childNamed(parentID, name)
		if !ok {
			return Node{}, fmt.Errorf("%w: %s", ErrNotFound, strings.Join(parts[:i+1], s.sep))
		}
		n, parentID = child, child.ID
	}
	return n, nil
}

// Walk yields every node depth-first, parents before their children,
// siblings in name order.
func (s *Snapshot) Walk() iter.Seq[Node] {
	return func(yield func(Node) bool) {
		s.walk(Root, "", func(n Node, _ string) bool {
			return yield(n)
		})
	}
}

// Files yields (path, content) for every file. The sequence is computed
// from the snapshot on each iteration; nothing is cached.
func (s *Snapshot) Files() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		s.walk(Root, "", func(n Node, path string) bool {
			if n.Kind != KindFile {
				return true
			}
			return yield(path, n.Content)
		})
	}
}

// Nodes returns every node in Walk order.
func (s *Snapshot) Nodes() []Node {
	out := make([]Node, 0, len(s.nodes))
	for n := range s.Walk() {
		out = append(out, n)
	}
	return out
}

// walk visits the subtree below parentID. It returns false once fn asks
// to stop.
func (s *Snapshot) walk(parentID, prefix string, fn func(Node, string) bool) bool {
	for _, id := range s.children[parentID] {
		n := s.nodes[id]
		path := n.Name
		if prefix != "" {
			path = prefix + s.sep + n.Name
		}
		if !fn(n, path) {
			return false
		}
		if n.Kind == KindFolder && !s.walk(id, path, fn) {
			return false
		}
	}
	return true
}
