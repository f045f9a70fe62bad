package tree

import "fmt"

// Root is the parent id of top-level nodes. It never names a node.
const Root = ""

// DefaultSeparator joins names in derived paths.
const DefaultSeparator = "/"

// Kind distinguishes files from folders.
type Kind string

const (
	// KindFile is a leaf with content.
	KindFile Kind = "file"
	// KindFolder may contain other nodes.
	KindFolder Kind = "folder"
)

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	return k == KindFile || k == KindFolder
}

// ParseKind converts the persisted "file"/"folder" strings.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.IsValid() {
		return "", fmt.Errorf("unknown node kind %q", s)
	}
	return k, nil
}

// Node is one file or folder entry.
type Node struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     Kind   `json:"type"`
	ParentID string `json:"parent_id,omitempty"` // Root for top-level nodes
	Content  string `json:"content,omitempty"`   // files only
}

// IsFolder reports whether the node can hold children.
func (n Node) IsFolder() bool {
	return n.Kind == KindFolder
}

// IsTopLevel reports whether the node hangs directly off the root.
func (n Node) IsTopLevel() bool {
	return n.ParentID == Root
}
