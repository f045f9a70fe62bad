package schema

import (
	"fmt"
	"time"

	"github.com/cipherstudio/cipherstudio/internal/studio/project"
	"github.com/cipherstudio/cipherstudio/internal/studio/tree"
)

// ProjectRecord is the stored metadata row of a project.
type ProjectRecord struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Separator   string    `json:"separator,omitempty"` // tree path separator; empty means "/"
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks if the ProjectRecord has valid field values.
func (r *ProjectRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if r.OwnerID == "" {
		return fmt.Errorf("owner_id is required")
	}
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(r.Name) > 200 {
		return fmt.Errorf("name must be 200 characters or less (got %d)", len(r.Name))
	}
	return nil
}

// FromProject builds the metadata row for p owned by ownerID.
// An empty description is stored as NULL.
func FromProject(p *project.Project, ownerID string) *ProjectRecord {
	rec := &ProjectRecord{
		ID:          p.ID,
		OwnerID:     ownerID,
		Name:        p.Name,
		Description: nullable(p.Description),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if p.Tree != nil {
		rec.Separator = p.Tree.Separator()
	}
	return rec
}

// TreeOptions returns the options that rebuild the project's tree with the
// separator it was saved with. They follow any defaults in base.
func (r *ProjectRecord) TreeOptions(base ...tree.Option) []tree.Option {
	opts := make([]tree.Option, 0, len(base)+1)
	opts = append(opts, base...)
	return append(opts, tree.WithSeparator(r.Separator))
}

// ApplyTo copies the metadata onto a project value. Zero timestamps are
// replaced by now.
func (r *ProjectRecord) ApplyTo(p *project.Project, now time.Time) *project.Project {
	cp := *p
	cp.ID = r.ID
	cp.Name = r.Name
	cp.Description = deref(r.Description)
	cp.CreatedAt = orNow(r.CreatedAt, now)
	cp.UpdatedAt = orNow(r.UpdatedAt, now)
	return &cp
}

func orNow(t, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}
	return t
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
