package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/cipherstudio/cipherstudio/internal/studio/schema"
)

// testDB opens a fresh sqlite database with the schema applied.
func testDB(t *testing.T) *DB {
	t.Helper()

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return db
}

func strPtr(s string) *string { return &s }

func testProject(id, owner string, updated time.Time) *schema.ProjectRecord {
	return &schema.ProjectRecord{
		ID:        id,
		OwnerID:   owner,
		Name:      "project " + id,
		CreatedAt: updated.Add(-time.Hour),
		UpdatedAt: updated,
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open("oracle", "x"); err == nil {
		t.Error("Open() accepted an unsupported driver")
	}
}

func TestInitSchema(t *testing.T) {
	db := testDB(t)

	for _, table := range []string{"projects", "files"} {
		var count int
		query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
		if err := db.conn.QueryRow(query, table).Scan(&count); err != nil {
			t.Fatalf("Failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s does not exist", table)
		}
	}

	if err := db.InitSchema(); err != nil {
		t.Errorf("Second InitSchema() failed: %v", err)
	}
}

func TestInitSchema_AddsSeparatorColumn(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "old.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	oldProjects := `CREATE TABLE projects (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`
	if _, err := db.conn.Exec(oldProjects); err != nil {
		t.Fatalf("failed to create old table: %v", err)
	}
	if _, err := db.conn.Exec(`INSERT INTO projects VALUES ('p1', 'alice', 'old', NULL, '', '')`); err != nil {
		t.Fatalf("failed to insert old row: %v", err)
	}

	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	rec, err := db.QueryProject(context.Background(), "alice", "p1")
	if err != nil {
		t.Fatalf("QueryProject() failed: %v", err)
	}
	if rec.Separator != "/" {
		t.Errorf("Separator of migrated row = %q, want /", rec.Separator)
	}
}

func TestUpsertProject_Separator(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	rec := testProject("p1", "alice", time.Now().UTC())
	if err := db.UpsertProject(ctx, rec); err != nil {
		t.Fatalf("UpsertProject() failed: %v", err)
	}
	got, err := db.QueryProject(ctx, "alice", "p1")
	if err != nil {
		t.Fatalf("QueryProject() failed: %v", err)
	}
	if got.Separator != "/" {
		t.Errorf("default Separator = %q, want /", got.Separator)
	}

	rec.Separator = ":"
	if err := db.UpsertProject(ctx, rec); err != nil {
		t.Fatalf("UpsertProject() failed: %v", err)
	}
	got, err = db.QueryProject(ctx, "alice", "p1")
	if err != nil {
		t.Fatalf("QueryProject() failed: %v", err)
	}
	if got.Separator != ":" {
		t.Errorf("Separator = %q, want :", got.Separator)
	}
}

func TestUpsertProject(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec := testProject("p1", "alice", now)
	if err := db.UpsertProject(ctx, rec); err != nil {
		t.Fatalf("UpsertProject() failed: %v", err)
	}

	rec.Name = "renamed"
	rec.Description = strPtr("about")
	rec.UpdatedAt = now.Add(time.Minute)
	rec.CreatedAt = now.Add(time.Hour) // must not overwrite the original
	if err := db.UpsertProject(ctx, rec); err != nil {
		t.Fatalf("second UpsertProject() failed: %v", err)
	}

	got, err := db.QueryProject(ctx, "alice", "p1")
	if err != nil {
		t.Fatalf("QueryProject() failed: %v", err)
	}
	if got.Name != "renamed" || got.Description == nil || *got.Description != "about" {
		t.Errorf("QueryProject() = %+v", got)
	}
	if !got.UpdatedAt.Equal(now.Add(time.Minute)) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, now.Add(time.Minute))
	}
	if !got.CreatedAt.Equal(now.Add(-time.Hour)) {
		t.Errorf("CreatedAt = %v, want original %v", got.CreatedAt, now.Add(-time.Hour))
	}
}

func TestUpsertProject_OtherOwner(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.UpsertProject(ctx, testProject("p1", "alice", time.Now())); err != nil {
		t.Fatalf("UpsertProject() failed: %v", err)
	}

	stolen := testProject("p1", "mallory", time.Now())
	stolen.Name = "mine now"
	if err := db.UpsertProject(ctx, stolen); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("UpsertProject() error = %v, want sql.ErrNoRows", err)
	}

	got, err := db.QueryProject(ctx, "alice", "p1")
	if err != nil {
		t.Fatalf("QueryProject() failed: %v", err)
	}
	if got.Name == "mine now" {
		t.Error("another owner overwrote the project")
	}
}

func TestUpsertProject_Invalid(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertProject(context.Background(), &schema.ProjectRecord{ID: "p1"}); err == nil {
		t.Error("UpsertProject() accepted a record without owner and name")
	}
}

func TestQueryProjectsByOwner_Order(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, id := range []string{"old", "new", "mid"} {
		updated := map[string]time.Time{
			"old": base.Add(-2 * time.Hour),
			"mid": base.Add(-time.Hour),
			"new": base,
		}[id]
		if err := db.UpsertProject(ctx, testProject(id, "alice", updated)); err != nil {
			t.Fatalf("UpsertProject(%d) failed: %v", i, err)
		}
	}
	if err := db.UpsertProject(ctx, testProject("foreign", "bob", base.Add(time.Hour))); err != nil {
		t.Fatalf("UpsertProject() failed: %v", err)
	}

	recs, err := db.QueryProjectsByOwner(ctx, "alice")
	if err != nil {
		t.Fatalf("QueryProjectsByOwner() failed: %v", err)
	}
	var got []string
	for _, r := range recs {
		got = append(got, r.ID)
	}
	if diff := cmp.Diff([]string{"new", "mid", "old"}, got); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}

	none, err := db.QueryProjectsByOwner(ctx, "nobody")
	if err != nil {
		t.Fatalf("QueryProjectsByOwner() failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("got %d projects for unknown owner", len(none))
	}
}

func TestQueryProject_NotFound(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.UpsertProject(ctx, testProject("p1", "alice", time.Now())); err != nil {
		t.Fatalf("UpsertProject() failed: %v", err)
	}

	tests := []struct {
		name, owner, id string
	}{
		{"missing", "alice", "nope"},
		{"wrong owner", "bob", "p1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := db.QueryProject(ctx, tt.owner, tt.id); !errors.Is(err, sql.ErrNoRows) {
				t.Errorf("QueryProject() error = %v, want sql.ErrNoRows", err)
			}
		})
	}
}

func TestFiles_ReplaceCycle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.UpsertProject(ctx, testProject("p1", "alice", time.Now())); err != nil {
		t.Fatalf("UpsertProject() failed: %v", err)
	}

	files := []schema.FileRecord{
		{ID: "src", ProjectID: "p1", Name: "src", Type: "folder"},
		{ID: "app", ProjectID: "p1", Name: "App.jsx", Type: "file", ParentID: strPtr("src"), Content: strPtr("<App/>")},
		{ID: "empty", ProjectID: "p1", Name: "empty.txt", Type: "file", ParentID: strPtr("src")},
	}
	if err := db.InsertFiles(ctx, "alice", files); err != nil {
		t.Fatalf("InsertFiles() failed: %v", err)
	}

	got, err := db.QueryFilesByProject(ctx, "alice", "p1")
	if err != nil {
		t.Fatalf("QueryFilesByProject() failed: %v", err)
	}
	byID := cmpopts.SortSlices(func(a, b schema.FileRecord) bool { return a.ID < b.ID })
	if diff := cmp.Diff(files, got, byID); diff != "" {
		t.Errorf("files (-want +got):\n%s", diff)
	}

	if other, err := db.QueryFilesByProject(ctx, "bob", "p1"); err != nil || len(other) != 0 {
		t.Errorf("QueryFilesByProject(bob) = %d records, %v; want none", len(other), err)
	}

	// Another owner cannot wipe the files.
	if err := db.DeleteFilesByProject(ctx, "bob", "p1"); err != nil {
		t.Fatalf("DeleteFilesByProject(bob) failed: %v", err)
	}
	if n, _ := db.CountFiles(ctx, "alice"); n != 3 {
		t.Errorf("CountFiles() = %d after foreign delete, want 3", n)
	}

	if err := db.DeleteFilesByProject(ctx, "alice", "p1"); err != nil {
		t.Fatalf("DeleteFilesByProject() failed: %v", err)
	}
	got, err = db.QueryFilesByProject(ctx, "alice", "p1")
	if err != nil {
		t.Fatalf("QueryFilesByProject() failed: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("QueryFilesByProject() = %v, want empty non-nil slice", got)
	}

	// Re-inserting the same ids after the wipe succeeds.
	if err := db.InsertFiles(ctx, "alice", files); err != nil {
		t.Fatalf("InsertFiles() after delete failed: %v", err)
	}
}

func TestInsertFiles_Rejects(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.UpsertProject(ctx, testProject("p1", "alice", time.Now())); err != nil {
		t.Fatalf("UpsertProject() failed: %v", err)
	}

	tests := []struct {
		name    string
		owner   string
		files   []schema.FileRecord
		wantErr error
	}{
		{
			name:    "foreign project",
			owner:   "bob",
			files:   []schema.FileRecord{{ID: "a", ProjectID: "p1", Name: "a", Type: "file"}},
			wantErr: sql.ErrNoRows,
		},
		{
			name:  "invalid type",
			owner: "alice",
			files: []schema.FileRecord{{ID: "a", ProjectID: "p1", Name: "a", Type: "link"}},
		},
		{
			name:  "mixed projects",
			owner: "alice",
			files: []schema.FileRecord{
				{ID: "a", ProjectID: "p1", Name: "a", Type: "file"},
				{ID: "b", ProjectID: "p2", Name: "b", Type: "file"},
			},
		},
		{
			name:  "duplicate id rolls back",
			owner: "alice",
			files: []schema.FileRecord{
				{ID: "a", ProjectID: "p1", Name: "a", Type: "file"},
				{ID: "a", ProjectID: "p1", Name: "b", Type: "file"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := db.InsertFiles(ctx, tt.owner, tt.files)
			if err == nil {
				t.Fatal("InsertFiles() succeeded, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("InsertFiles() error = %v, want %v", err, tt.wantErr)
			}
			if n, _ := db.CountFiles(ctx, "alice"); n != 0 {
				t.Errorf("CountFiles() = %d, want 0", n)
			}
		})
	}

	if err := db.InsertFiles(ctx, "alice", nil); err != nil {
		t.Errorf("InsertFiles(nil) failed: %v", err)
	}
}

func TestDeleteProject_CascadesFiles(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for _, id := range []string{"p1", "p2"} {
		if err := db.UpsertProject(ctx, testProject(id, "alice", time.Now())); err != nil {
			t.Fatalf("UpsertProject() failed: %v", err)
		}
		files := []schema.FileRecord{{ID: "f", ProjectID: id, Name: "f.txt", Type: "file"}}
		if err := db.InsertFiles(ctx, "alice", files); err != nil {
			t.Fatalf("InsertFiles() failed: %v", err)
		}
	}

	if err := db.DeleteProject(ctx, "bob", "p1"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("DeleteProject(bob) error = %v, want sql.ErrNoRows", err)
	}

	if err := db.DeleteProject(ctx, "alice", "p1"); err != nil {
		t.Fatalf("DeleteProject() failed: %v", err)
	}
	if _, err := db.QueryProject(ctx, "alice", "p1"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("QueryProject() after delete error = %v, want sql.ErrNoRows", err)
	}

	var orphans int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM files WHERE project_id = 'p1'`).Scan(&orphans); err != nil {
		t.Fatalf("count orphans failed: %v", err)
	}
	if orphans != 0 {
		t.Errorf("%d file records left behind", orphans)
	}
	if n, _ := db.CountFiles(ctx, "alice"); n != 1 {
		t.Errorf("CountFiles() = %d, want 1 (p2 untouched)", n)
	}

	if err := db.DeleteProject(ctx, "alice", "p1"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("second DeleteProject() error = %v, want sql.ErrNoRows", err)
	}
}

func TestRebind(t *testing.T) {
	pg := &DB{driver: DriverPostgres}
	got := pg.rebind(`SELECT a FROM t WHERE x = ? AND y = ?`)
	if want := `SELECT a FROM t WHERE x = $1 AND y = $2`; got != want {
		t.Errorf("rebind() = %q, want %q", got, want)
	}

	lite := &DB{driver: DriverSQLite}
	if got := lite.rebind(`x = ?`); got != `x = ?` {
		t.Errorf("sqlite rebind() = %q, want unchanged", got)
	}
}

func TestTimeFormat_SortsAsText(t *testing.T) {
	a := time.Date(2025, 1, 1, 0, 0, 0, 5, time.UTC)
	b := time.Date(2025, 1, 1, 0, 0, 0, 40, time.UTC)
	if !(formatTime(a) < formatTime(b)) {
		t.Errorf("%s should sort before %s", formatTime(a), formatTime(b))
	}
	if !parseTime(formatTime(a)).Equal(a) {
		t.Errorf("parseTime(formatTime()) = %v, want %v", parseTime(formatTime(a)), a)
	}
	if !parseTime("").IsZero() || !parseTime("garbage").IsZero() {
		t.Error("parseTime() should return zero for empty or bad input")
	}
}
