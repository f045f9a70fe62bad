package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cipherstudio/cipherstudio/internal/studio/schema"
)

// UpsertProject inserts a project row or updates name, description,
// separator and updated_at of an existing one. A row owned by someone else
// is left untouched and reported as sql.ErrNoRows.
func (db *DB) UpsertProject(ctx context.Context, rec *schema.ProjectRecord) error {
	defer observe("upsert_project", time.Now())

	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid project: %w", err)
	}

	query := `
	INSERT INTO projects (id, owner_id, name, description, separator, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		description = excluded.description,
		separator = excluded.separator,
		updated_at = excluded.updated_at
	WHERE projects.owner_id = excluded.owner_id
	`

	res, err := db.conn.ExecContext(ctx, db.rebind(query),
		rec.ID,
		rec.OwnerID,
		rec.Name,
		nullString(rec.Description),
		separatorOrDefault(rec.Separator),
		formatTime(rec.CreatedAt),
		formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert project %s: %w", rec.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to upsert project %s: %w", rec.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("project %s: %w", rec.ID, sql.ErrNoRows)
	}
	return nil
}

// QueryProjectsByOwner lists the owner's projects, most recently updated
// first.
func (db *DB) QueryProjectsByOwner(ctx context.Context, ownerID string) ([]*schema.ProjectRecord, error) {
	defer observe("query_projects", time.Now())

	query := `
	SELECT id, owner_id, name, description, separator, created_at, updated_at
	FROM projects
	WHERE owner_id = ?
	ORDER BY updated_at DESC, id ASC
	`

	rows, err := db.conn.QueryContext(ctx, db.rebind(query), ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var out []*schema.ProjectRecord
	for rows.Next() {
		rec, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}
	return out, nil
}

// QueryProject returns one project of the owner.
// Returns a wrapped sql.ErrNoRows if it is absent or owned by someone else.
func (db *DB) QueryProject(ctx context.Context, ownerID, projectID string) (*schema.ProjectRecord, error) {
	defer observe("query_project", time.Now())

	query := `
	SELECT id, owner_id, name, description, separator, created_at, updated_at
	FROM projects
	WHERE id = ? AND owner_id = ?
	`

	rec, err := scanProject(db.conn.QueryRowContext(ctx, db.rebind(query), projectID, ownerID))
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", projectID, err)
	}
	return rec, nil
}

// DeleteProject removes the project row and its file records in one
// transaction. Returns a wrapped sql.ErrNoRows if nothing was deleted.
func (db *DB) DeleteProject(ctx context.Context, ownerID, projectID string) error {
	defer observe("delete_project", time.Now())

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	filesQuery := `
	DELETE FROM files
	WHERE project_id IN (SELECT id FROM projects WHERE id = ? AND owner_id = ?)
	`
	if _, err := tx.ExecContext(ctx, db.rebind(filesQuery), projectID, ownerID); err != nil {
		return fmt.Errorf("failed to delete files of project %s: %w", projectID, err)
	}

	res, err := tx.ExecContext(ctx, db.rebind(`DELETE FROM projects WHERE id = ? AND owner_id = ?`), projectID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete project %s: %w", projectID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete project %s: %w", projectID, err)
	}
	if n == 0 {
		return fmt.Errorf("project %s: %w", projectID, sql.ErrNoRows)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CountProjects returns the number of projects stored for the owner.
func (db *DB) CountProjects(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, db.rebind(`SELECT COUNT(*) FROM projects WHERE owner_id = ?`), ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count projects: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*schema.ProjectRecord, error) {
	var (
		rec                  schema.ProjectRecord
		description          sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&rec.ID, &rec.OwnerID, &rec.Name, &description, &rec.Separator, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.Description = stringPtr(description)
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return &rec, nil
}

func separatorOrDefault(sep string) string {
	if sep == "" {
		return "/"
	}
	return sep
}
