package schema

import (
	"fmt"

	"github.com/cipherstudio/cipherstudio/internal/studio/tree"
)

// FileRecord is the stored row of one node.
type FileRecord struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"project_id"`
	Name      string  `json:"name"`
	Type      string  `json:"type"` // file or folder
	ParentID  *string `json:"parent_id"`
	Content   *string `json:"content"`
}

// Validate checks if the FileRecord has valid field values.
func (r *FileRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if r.ProjectID == "" {
		return fmt.Errorf("project_id is required")
	}
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if _, err := tree.ParseKind(r.Type); err != nil {
		return err
	}
	if r.ParentID != nil && *r.ParentID == "" {
		return fmt.Errorf("parent_id must be null or non-empty")
	}
	if r.ParentID != nil && *r.ParentID == r.ID {
		return fmt.Errorf("node %s cannot be its own parent", r.ID)
	}
	return nil
}

// FromNode converts a node of projectID into its record.
func FromNode(projectID string, n tree.Node) FileRecord {
	rec := FileRecord{
		ID:        n.ID,
		ProjectID: projectID,
		Name:      n.Name,
		Type:      string(n.Kind),
		ParentID:  nullable(n.ParentID),
	}
	if n.Kind == tree.KindFile {
		rec.Content = nullable(n.Content)
	}
	return rec
}

// ToNode converts the record back into a node.
func (r *FileRecord) ToNode() (tree.Node, error) {
	kind, err := tree.ParseKind(r.Type)
	if err != nil {
		return tree.Node{}, fmt.Errorf("record %s: %w", r.ID, err)
	}
	return tree.Node{
		ID:       r.ID,
		Name:     r.Name,
		Kind:     kind,
		ParentID: deref(r.ParentID),
		Content:  deref(r.Content),
	}, nil
}

// FromSnapshot flattens s into records for projectID, in walk order.
func FromSnapshot(projectID string, s *tree.Snapshot) []FileRecord {
	nodes := s.Nodes()
	out := make([]FileRecord, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, FromNode(projectID, n))
	}
	return out
}

// ToSnapshot rebuilds a snapshot from records, checking every tree invariant.
func ToSnapshot(records []FileRecord, opts ...tree.Option) (*tree.Snapshot, error) {
	nodes := make([]tree.Node, 0, len(records))
	for i := range records {
		n, err := records[i].ToNode()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return tree.FromNodes(nodes, opts...)
}
