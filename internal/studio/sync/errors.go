package sync

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a project does not exist or belongs to
// another owner.
var ErrNotFound = errors.New("project not found")

// SyncError wraps a persistence failure with the step that failed.
type SyncError struct {
	Op        string // upsert_project, delete_files, insert_files, query_projects, query_project, query_files, delete_project
	ProjectID string
	Err       error
}

func (e *SyncError) Error() string {
	if e.ProjectID == "" {
		return fmt.Sprintf("sync %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("sync %s %s: %v", e.Op, e.ProjectID, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}
