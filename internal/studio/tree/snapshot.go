package tree

import (
	"fmt"
	"slices"
	"strings"
)

// Snapshot is an immutable view of a project's node collection.
//
// The zero value is not usable; start from New or FromNodes.
type Snapshot struct {
	nodes    map[string]Node
	children map[string][]string // parent id -> child ids, sorted by name
	sep      string
}

// Option configures a new snapshot.
type Option func(*Snapshot)

// WithSeparator sets the separator used when deriving paths.
// An empty separator keeps the default.
func WithSeparator(sep string) Option {
	return func(s *Snapshot) {
		if sep != "" {
			s.sep = sep
		}
	}
}

// New returns an empty snapshot.
func New(opts ...Option) *Snapshot {
	s := &Snapshot{
		nodes:    make(map[string]Node),
		children: make(map[string][]string),
		sep:      DefaultSeparator,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FromNodes rebuilds a snapshot from a flat node collection, such as the
// records loaded from persistence. Order of nodes does not matter.
//
// Every invariant is checked; violations are reported as ErrConsistency.
// Folder content is dropped.
func FromNodes(nodes []Node, opts ...Option) (*Snapshot, error) {
	s := New(opts...)

	for _, n := range nodes {
		if n.ID == Root {
			return nil, fmt.Errorf("%w: node %q has an empty id", ErrConsistency, n.Name)
		}
		if _, dup := s.nodes[n.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrConsistency, n.ID)
		}
		if !n.Kind.IsValid() {
			return nil, fmt.Errorf("%w: node %s has unknown kind %q", ErrConsistency, n.ID, n.Kind)
		}
		if err := s.validateName(n.Name); err != nil {
			return nil, fmt.Errorf("%w: node %s: %v", ErrConsistency, n.ID, err)
		}
		if n.Kind == KindFolder {
			n.Content = ""
		}
		s.nodes[n.ID] = n
	}

	for id, n := range s.nodes {
		if n.ParentID != Root {
			parent, ok := s.nodes[n.ParentID]
			if !ok {
				return nil, fmt.Errorf("%w: node %s references missing parent %s", ErrConsistency, id, n.ParentID)
			}
			if parent.Kind != KindFolder {
				return nil, fmt.Errorf("%w: node %s is a child of file %s", ErrConsistency, id, n.ParentID)
			}
		}
		s.children[n.ParentID] = append(s.children[n.ParentID], id)
	}

	for parentID, ids := range s.children {
		s.sortChildren(ids)
		for i := 1; i < len(ids); i++ {
			if s.nodes[ids[i-1]].Name == s.nodes[ids[i]].Name {
				return nil, fmt.Errorf("%w: duplicate name %q under %s", ErrConsistency, s.nodes[ids[i]].Name, describeParent(parentID))
			}
		}
	}

	// Every node has exactly one existing parent, so anything the root
	// cannot reach sits on or below a cycle.
	if reached := s.countReachable(); reached != len(s.nodes) {
		return nil, fmt.Errorf("%w: %d node(s) unreachable from root (parent cycle)", ErrConsistency, len(s.nodes)-reached)
	}

	return s, nil
}

// Equal reports whether a and b hold the same nodes, ignoring order.
func Equal(a, b *Snapshot) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || len(a.nodes) != len(b.nodes) {
		return false
	}
	for id, n := range a.nodes {
		if other, ok := b.nodes[id]; !ok || other != n {
			return false
		}
	}
	return true
}

// clone copies the maps. Child slices are shared and must be replaced,
// never modified in place.
func (s *Snapshot) clone() *Snapshot {
	next := &Snapshot{
		nodes:    make(map[string]Node, len(s.nodes)+1),
		children: make(map[string][]string, len(s.children)+1),
		sep:      s.sep,
	}
	for id, n := range s.nodes {
		next.nodes[id] = n
	}
	for id, kids := range s.children {
		next.children[id] = kids
	}
	return next
}

// withChild returns a new sorted slice holding ids plus id.
// s.nodes must already contain id.
func (s *Snapshot) withChild(ids []string, id string) []string {
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids...)
	out = append(out, id)
	s.sortChildren(out)
	return out
}

// withoutChild returns a new slice holding ids minus id.
func withoutChild(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, other := range ids {
		if other != id {
			out = append(out, other)
		}
	}
	return out
}

func (s *Snapshot) sortChildren(ids []string) {
	slices.SortFunc(ids, func(a, b string) int {
		if c := strings.Compare(s.nodes[a].Name, s.nodes[b].Name); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
}

func (s *Snapshot) countReachable() int {
	count := 0
	frontier := []string{Root}
	for len(frontier) > 0 {
		var next []string
		for _, id := range frontier {
			kids := s.children[id]
			count += len(kids)
			next = append(next, kids...)
		}
		frontier = next
	}
	return count
}

// reservedChars may not appear in a name under any separator, so that
// names stay single path elements on disk and in preview keys.
const reservedChars = "/\\\x00"

func (s *Snapshot) validateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q is reserved", ErrInvalidName, name)
	case strings.Contains(name, s.sep):
		return fmt.Errorf("%w: %q contains separator %q", ErrInvalidName, name, s.sep)
	case strings.ContainsAny(name, reservedChars):
		return fmt.Errorf("%w: %q contains a path or NUL character", ErrInvalidName, name)
	}
	return nil
}

func describeParent(id string) string {
	if id == Root {
		return "root"
	}
	return id
}
