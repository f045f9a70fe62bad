package tree

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Create adds a node under parentID and returns the new snapshot and the
// node's freshly generated id. Files start with empty content.
//
// parentID must be Root or an existing folder.
func (s *Snapshot) Create(parentID, name string, kind Kind) (*Snapshot, string, error) {
	id := uuid.NewString()
	next, err := s.CreateWithID(parentID, id, name, kind)
	if err != nil {
		return nil, "", err
	}
	return next, id, nil
}

// CreateWithID is Create with a caller-chosen id.
func (s *Snapshot) CreateWithID(parentID, id, name string, kind Kind) (*Snapshot, error) {
	if id == Root {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidID)
	}
	if _, exists := s.nodes[id]; exists {
		return nil, fmt.Errorf("%w: %s already exists", ErrInvalidID, id)
	}
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrWrongKind, kind)
	}
	if err := s.checkParent(parentID); err != nil {
		return nil, err
	}
	if err := s.validateName(name); err != nil {
		return nil, err
	}
	if s.siblingNamed(parentID, name, "") {
		return nil, fmt.Errorf("%w: %q under %s", ErrNameConflict, name, describeParent(parentID))
	}

	next := s.clone()
	next.nodes[id] = Node{
		ID:       id,
		Name:     name,
		Kind:     kind,
		ParentID: parentID,
	}
	next.children[parentID] = next.withChild(s.children[parentID], id)
	return next, nil
}

// Rename changes a node's name. Renaming to the current name returns a
// snapshot equal to the receiver.
func (s *Snapshot) Rename(id, newName string) (*Snapshot, error) {
	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if n.Name == newName {
		return s, nil
	}
	if err := s.validateName(newName); err != nil {
		return nil, err
	}
	if s.siblingNamed(n.ParentID, newName, id) {
		return nil, fmt.Errorf("%w: %q under %s", ErrNameConflict, newName, describeParent(n.ParentID))
	}

	next := s.clone()
	n.Name = newName
	next.nodes[id] = n
	next.children[n.ParentID] = next.withChild(withoutChild(s.children[n.ParentID], id), id)
	return next, nil
}

// Delete removes a node together with every transitive descendant.
//
// The closure is collected breadth-first from the children index. Reaching
// a node twice means the parent graph has a cycle; that is reported as
// ErrConsistency rather than looping.
func (s *Snapshot) Delete(id string) (*Snapshot, error) {
	target, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	closure, err := s.descendants(id)
	if err != nil {
		return nil, err
	}

	next := &Snapshot{
		nodes:    make(map[string]Node, len(s.nodes)-len(closure)),
		children: make(map[string][]string, len(s.children)),
		sep:      s.sep,
	}
	for nid, n := range s.nodes {
		if _, gone := closure[nid]; !gone {
			next.nodes[nid] = n
		}
	}
	for pid, kids := range s.children {
		if _, gone := closure[pid]; gone {
			continue
		}
		if pid == target.ParentID {
			kids = withoutChild(kids, id)
		}
		if len(kids) > 0 {
			next.children[pid] = kids
		}
	}
	return next, nil
}

// UpdateContent replaces a file's content.
func (s *Snapshot) UpdateContent(id, content string) (*Snapshot, error) {
	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if n.Kind != KindFile {
		return nil, fmt.Errorf("%w: %s is a folder", ErrWrongKind, n.Name)
	}
	if n.Content == content {
		return s, nil
	}

	next := s.clone()
	n.Content = content
	next.nodes[id] = n
	return next, nil
}

// MkdirAll makes sure every folder along path exists and returns the id of
// the last one. An empty path resolves to Root.
func (s *Snapshot) MkdirAll(path string) (*Snapshot, string, error) {
	cur := s
	parentID := Root
	for _, name := range s.splitPath(path) {
		child, found := cur.childNamed(parentID, name)
		if found {
			if child.Kind != KindFolder {
				return nil, "", fmt.Errorf("%w: %s is a file", ErrWrongKind, name)
			}
			parentID = child.ID
			continue
		}
		next, id, err := cur.Create(parentID, name, KindFolder)
		if err != nil {
			return nil, "", err
		}
		cur, parentID = next, id
	}
	return cur, parentID, nil
}

// descendants returns id plus the ids of everything below it.
func (s *Snapshot) descendants(id string) (map[string]struct{}, error) {
	closure := map[string]struct{}{id: {}}
	frontier := []string{id}
	for len(frontier) > 0 {
		var next []string
		for _, fid := range frontier {
			for _, cid := range s.children[fid] {
				if _, seen := closure[cid]; seen {
					return nil, fmt.Errorf("%w: %s reached twice below %s", ErrConsistency, cid, id)
				}
				closure[cid] = struct{}{}
				next = append(next, cid)
			}
		}
		frontier = next
	}
	return closure, nil
}

func (s *Snapshot) checkParent(parentID string) error {
	if parentID == Root {
		return nil
	}
	parent, ok := s.nodes[parentID]
	if !ok {
		return fmt.Errorf("%w: parent %s", ErrNotFound, parentID)
	}
	if parent.Kind != KindFolder {
		return fmt.Errorf("%w: %s is a file and cannot have children", ErrWrongKind, parent.Name)
	}
	return nil
}

// siblingNamed reports whether a child of parentID other than except is
// called name.
func (s *Snapshot) siblingNamed(parentID, name, except string) bool {
	for _, cid := range s.children[parentID] {
		if cid != except && s.nodes[cid].Name == name {
			return true
		}
	}
	return false
}

func (s *Snapshot) childNamed(parentID, name string) (Node, bool) {
	for _, cid := range s.children[parentID] {
		if n := s.nodes[cid]; n.Name == name {
			return n, true
		}
	}
	return Node{}, false
}

func (s *Snapshot) splitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, s.sep) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
