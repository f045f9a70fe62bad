package sync

import (
	"context"

	"github.com/cipherstudio/cipherstudio/internal/studio/project"
	"github.com/cipherstudio/cipherstudio/internal/studio/schema"
)

// Service is the persistence boundary. Every method is scoped to ownerID.
//
// Implementations report rows that are absent, or that belong to another
// owner, with an error wrapping sql.ErrNoRows.
type Service interface {
	UpsertProject(ctx context.Context, rec *schema.ProjectRecord) error
	DeleteFilesByProject(ctx context.Context, ownerID, projectID string) error
	InsertFiles(ctx context.Context, ownerID string, files []schema.FileRecord) error
	QueryProjectsByOwner(ctx context.Context, ownerID string) ([]*schema.ProjectRecord, error)
	QueryProject(ctx context.Context, ownerID, projectID string) (*schema.ProjectRecord, error)
	QueryFilesByProject(ctx context.Context, ownerID, projectID string) ([]schema.FileRecord, error)

	// DeleteProject removes the project together with its file records.
	DeleteProject(ctx context.Context, ownerID, projectID string) error
}

// Engine saves and loads whole projects.
type Engine interface {
	// Save persists p and returns it with the stored timestamps.
	//
	// A failure while upserting the project row leaves storage untouched.
	// A failure after that point can leave the row ahead of its files;
	// saving again converges.
	Save(ctx context.Context, p *project.Project) (*project.Project, error)

	// LoadAll returns the owner's projects, most recently updated first.
	// Projects whose records cannot be turned back into a tree are
	// skipped and logged. A failed service call fails the whole call with
	// a *SyncError.
	LoadAll(ctx context.Context) ([]*project.Project, error)

	// LoadOne returns a single project, or ErrNotFound.
	LoadOne(ctx context.Context, id string) (*project.Project, error)

	// Delete removes a project and its files, or returns ErrNotFound.
	Delete(ctx context.Context, id string) error
}
