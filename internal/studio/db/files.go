package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cipherstudio/cipherstudio/internal/studio/schema"
)

// DeleteFilesByProject removes every file record of the owner's project.
// Deleting from a project with no files is not an error.
func (db *DB) DeleteFilesByProject(ctx context.Context, ownerID, projectID string) error {
	defer observe("delete_files", time.Now())

	query := `
	DELETE FROM files
	WHERE project_id IN (SELECT id FROM projects WHERE id = ? AND owner_id = ?)
	`
	if _, err := db.conn.ExecContext(ctx, db.rebind(query), projectID, ownerID); err != nil {
		return fmt.Errorf("failed to delete files of project %s: %w", projectID, err)
	}
	return nil
}

// InsertFiles stores a batch of file records in one transaction. Every
// record must belong to the same project, and that project must be owned
// by ownerID.
func (db *DB) InsertFiles(ctx context.Context, ownerID string, files []schema.FileRecord) error {
	if len(files) == 0 {
		return nil
	}
	defer observe("insert_files", time.Now())

	projectID := files[0].ProjectID
	for i := range files {
		if err := files[i].Validate(); err != nil {
			return fmt.Errorf("invalid file record %s: %w", files[i].ID, err)
		}
		if files[i].ProjectID != projectID {
			return fmt.Errorf("file record %s belongs to project %s, batch is for %s", files[i].ID, files[i].ProjectID, projectID)
		}
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var owned int
	err = tx.QueryRowContext(ctx, db.rebind(`SELECT COUNT(*) FROM projects WHERE id = ? AND owner_id = ?`), projectID, ownerID).Scan(&owned)
	if err != nil {
		return fmt.Errorf("failed to check project %s: %w", projectID, err)
	}
	if owned == 0 {
		return fmt.Errorf("project %s: %w", projectID, sql.ErrNoRows)
	}

	stmt, err := tx.PrepareContext(ctx, db.rebind(`
	INSERT INTO files (id, project_id, name, type, parent_id, content)
	VALUES (?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range files {
		f := &files[i]
		if _, err := stmt.ExecContext(ctx, f.ID, f.ProjectID, f.Name, f.Type, nullString(f.ParentID), nullString(f.Content)); err != nil {
			return fmt.Errorf("failed to insert file %s: %w", f.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// QueryFilesByProject returns every file record of the owner's project in
// no particular order. A project without files yields an empty slice.
func (db *DB) QueryFilesByProject(ctx context.Context, ownerID, projectID string) ([]schema.FileRecord, error) {
	defer observe("query_files", time.Now())

	query := `
	SELECT f.id, f.project_id, f.name, f.type, f.parent_id, f.content
	FROM files f
	JOIN projects p ON p.id = f.project_id
	WHERE f.project_id = ? AND p.owner_id = ?
	`

	rows, err := db.conn.QueryContext(ctx, db.rebind(query), projectID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	out := []schema.FileRecord{}
	for rows.Next() {
		var (
			rec               schema.FileRecord
			parentID, content sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.ProjectID, &rec.Name, &rec.Type, &parentID, &content); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		rec.ParentID = stringPtr(parentID)
		rec.Content = stringPtr(content)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating files: %w", err)
	}
	return out, nil
}

// CountFiles returns the number of file records across the owner's projects.
func (db *DB) CountFiles(ctx context.Context, ownerID string) (int, error) {
	query := `
	SELECT COUNT(*)
	FROM files f
	JOIN projects p ON p.id = f.project_id
	WHERE p.owner_id = ?
	`
	var count int
	if err := db.conn.QueryRowContext(ctx, db.rebind(query), ownerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return count, nil
}
