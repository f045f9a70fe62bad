package sync

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/cipherstudio/cipherstudio/internal/studio/auth"
	"github.com/cipherstudio/cipherstudio/internal/studio/db"
	"github.com/cipherstudio/cipherstudio/internal/studio/project"
	"github.com/cipherstudio/cipherstudio/internal/studio/schema"
	"github.com/cipherstudio/cipherstudio/internal/studio/tree"
)

func testDB(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	if err := database.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return database
}

func ownerCtx(owner string) context.Context {
	return auth.WithOwner(context.Background(), owner)
}

var byID = cmpopts.SortSlices(func(a, b tree.Node) bool { return a.ID < b.ID })

func TestSaveLoad_RoundTrip(t *testing.T) {
	engine := New(testDB(t), nil)
	ctx := ownerCtx("alice")

	p, err := project.NewDefault(time.Now())
	if err != nil {
		t.Fatalf("NewDefault() failed: %v", err)
	}
	s, _, err := p.Tree.Create(tree.Root, "empty.txt", tree.KindFile)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	p = p.WithTree(s)
	p.Description = "starter"

	saved, err := engine.Save(ctx, p)
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	loaded, err := engine.LoadOne(ctx, saved.ID)
	if err != nil {
		t.Fatalf("LoadOne() failed: %v", err)
	}
	if diff := cmp.Diff(p.Tree.Nodes(), loaded.Tree.Nodes(), byID); diff != "" {
		t.Errorf("nodes after round trip (-want +got):\n%s", diff)
	}
	if loaded.Name != p.Name || loaded.Description != "starter" {
		t.Errorf("metadata = %q/%q, want %q/starter", loaded.Name, loaded.Description, p.Name)
	}
	if !loaded.UpdatedAt.Equal(saved.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", loaded.UpdatedAt, saved.UpdatedAt)
	}
}

func TestSaveLoad_EmptyProject(t *testing.T) {
	engine := New(testDB(t), nil)
	ctx := ownerCtx("alice")

	p := project.New("blank", time.Now())
	if _, err := engine.Save(ctx, p); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	loaded, err := engine.LoadOne(ctx, p.ID)
	if err != nil {
		t.Fatalf("LoadOne() failed: %v", err)
	}
	if loaded.Tree.Len() != 0 {
		t.Errorf("loaded %d nodes, want 0", loaded.Tree.Len())
	}
}

func TestSaveLoad_KeepsSeparator(t *testing.T) {
	store := testDB(t)
	ctx := ownerCtx("alice")

	colons := project.New("colons", time.Now(), tree.WithSeparator(":"))
	s, _, err := colons.Tree.MkdirAll("src:lib")
	if err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	colons = colons.WithTree(s)

	slashes := project.New("slashes", time.Now())
	s, _, err = slashes.Tree.Create(tree.Root, "a:b.txt", tree.KindFile)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	slashes = slashes.WithTree(s)

	saver := New(store, nil)
	for _, p := range []*project.Project{colons, slashes} {
		if _, err := saver.Save(ctx, p); err != nil {
			t.Fatalf("Save(%s) failed: %v", p.Name, err)
		}
	}

	tests := []struct {
		name   string
		engine Engine
	}{
		{name: "default engine", engine: New(store, nil)},
		{name: "colon engine", engine: New(store, nil, WithTreeOptions(tree.WithSeparator(":")))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, want := range []*project.Project{colons, slashes} {
				loaded, err := tt.engine.LoadOne(ctx, want.ID)
				if err != nil {
					t.Fatalf("LoadOne(%s) failed: %v", want.Name, err)
				}
				if got := loaded.Tree.Separator(); got != want.Tree.Separator() {
					t.Errorf("%s: Separator() = %q, want %q", want.Name, got, want.Tree.Separator())
				}
				if diff := cmp.Diff(want.Tree.Nodes(), loaded.Tree.Nodes(), byID); diff != "" {
					t.Errorf("%s: nodes (-want +got):\n%s", want.Name, diff)
				}
			}

			all, err := tt.engine.LoadAll(ctx)
			if err != nil {
				t.Fatalf("LoadAll() failed: %v", err)
			}
			if len(all) != 2 {
				t.Errorf("LoadAll() returned %d projects, want 2", len(all))
			}
		})
	}

	loaded, err := New(store, nil).LoadOne(ctx, colons.ID)
	if err != nil {
		t.Fatalf("LoadOne() failed: %v", err)
	}
	paths := make([]string, 0, 2)
	for n := range loaded.Tree.Walk() {
		path, err := loaded.Tree.PathOf(n.ID)
		if err != nil {
			t.Fatalf("PathOf() failed: %v", err)
		}
		paths = append(paths, path)
	}
	if diff := cmp.Diff([]string{"src", "src:lib"}, paths); diff != "" {
		t.Errorf("paths (-want +got):\n%s", diff)
	}
}

func TestSave_ReplacesFiles(t *testing.T) {
	engine := New(testDB(t), nil)
	ctx := ownerCtx("alice")

	p, err := project.NewDefault(time.Now())
	if err != nil {
		t.Fatalf("NewDefault() failed: %v", err)
	}
	if _, err := engine.Save(ctx, p); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	src, err := p.Tree.FindByPath("src")
	if err != nil {
		t.Fatalf("FindByPath() failed: %v", err)
	}
	s, err := p.Tree.Delete(src.ID)
	if err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	s, _, err = s.Create(tree.Root, "index.html", tree.KindFile)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	p = p.WithTree(s)

	if _, err := engine.Save(ctx, p); err != nil {
		t.Fatalf("second Save() failed: %v", err)
	}

	loaded, err := engine.LoadOne(ctx, p.ID)
	if err != nil {
		t.Fatalf("LoadOne() failed: %v", err)
	}
	if diff := cmp.Diff(p.Tree.Nodes(), loaded.Tree.Nodes(), byID); diff != "" {
		t.Errorf("nodes (-want +got):\n%s", diff)
	}
}

func TestSave_RefreshesUpdatedAt(t *testing.T) {
	clock := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	engine := New(testDB(t), nil, WithClock(func() time.Time { return clock }))
	ctx := ownerCtx("alice")

	created := clock.Add(-24 * time.Hour)
	p := project.New("demo", created)

	saved, err := engine.Save(ctx, p)
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if !saved.UpdatedAt.Equal(clock) {
		t.Errorf("UpdatedAt = %v, want %v", saved.UpdatedAt, clock)
	}
	if !saved.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", saved.CreatedAt, created)
	}
	if !p.UpdatedAt.Equal(created) {
		t.Error("Save() modified the input project")
	}
}

func TestLoadAll_OrderAndOwnership(t *testing.T) {
	clock := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	engine := New(testDB(t), nil, WithClock(func() time.Time { return clock }))

	var ids []string
	for _, name := range []string{"first", "second", "third"} {
		clock = clock.Add(time.Minute)
		p := project.New(name, clock)
		if _, err := engine.Save(ownerCtx("alice"), p); err != nil {
			t.Fatalf("Save(%s) failed: %v", name, err)
		}
		ids = append([]string{p.ID}, ids...)
	}
	if _, err := engine.Save(ownerCtx("bob"), project.New("bobs", clock)); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	loaded, err := engine.LoadAll(ownerCtx("alice"))
	if err != nil {
		t.Fatalf("LoadAll() failed: %v", err)
	}
	var got []string
	for _, p := range loaded {
		got = append(got, p.ID)
	}
	if diff := cmp.Diff(ids, got); diff != "" {
		t.Errorf("LoadAll() order (-want +got):\n%s", diff)
	}
}

func TestLoadOne_NotFound(t *testing.T) {
	engine := New(testDB(t), nil)

	p := project.New("mine", time.Now())
	if _, err := engine.Save(ownerCtx("alice"), p); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	for _, tt := range []struct{ name, owner, id string }{
		{"missing", "alice", "nope"},
		{"other owner", "bob", p.ID},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.LoadOne(ownerCtx(tt.owner), tt.id)
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("LoadOne() error = %v, want ErrNotFound", err)
			}
			var syncErr *SyncError
			if !errors.As(err, &syncErr) || syncErr.Op != "query_project" {
				t.Errorf("LoadOne() error = %#v, want SyncError{Op: query_project}", err)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	engine := New(testDB(t), nil)
	ctx := ownerCtx("alice")

	p, err := project.NewDefault(time.Now())
	if err != nil {
		t.Fatalf("NewDefault() failed: %v", err)
	}
	if _, err := engine.Save(ctx, p); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	if err := engine.Delete(ownerCtx("bob"), p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() by other owner error = %v, want ErrNotFound", err)
	}
	if err := engine.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := engine.LoadOne(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadOne() after delete error = %v, want ErrNotFound", err)
	}
}

func TestUnauthenticated(t *testing.T) {
	svc := &fakeService{}
	engine := New(svc, nil)
	ctx := context.Background()
	p := project.New("x", time.Now())

	calls := []struct {
		name string
		fn   func() error
	}{
		{"Save", func() error { _, err := engine.Save(ctx, p); return err }},
		{"LoadAll", func() error { _, err := engine.LoadAll(ctx); return err }},
		{"LoadOne", func() error { _, err := engine.LoadOne(ctx, p.ID); return err }},
		{"Delete", func() error { return engine.Delete(ctx, p.ID) }},
	}
	for _, c := range calls {
		t.Run(c.name, func(t *testing.T) {
			if err := c.fn(); !errors.Is(err, auth.ErrUnauthenticated) {
				t.Errorf("%s() error = %v, want ErrUnauthenticated", c.name, err)
			}
		})
	}
	if len(svc.calls) != 0 {
		t.Errorf("service called %v without an identity", svc.calls)
	}
}

func TestSave_FailFast(t *testing.T) {
	boom := errors.New("connection reset")
	p, err := project.NewDefault(time.Now())
	if err != nil {
		t.Fatalf("NewDefault() failed: %v", err)
	}

	tests := []struct {
		name      string
		failOn    string
		wantOp    string
		wantCalls []string
	}{
		{
			name:      "upsert fails before any delete",
			failOn:    "UpsertProject",
			wantOp:    "upsert_project",
			wantCalls: []string{"UpsertProject"},
		},
		{
			name:      "delete fails before insert",
			failOn:    "DeleteFilesByProject",
			wantOp:    "delete_files",
			wantCalls: []string{"UpsertProject", "DeleteFilesByProject"},
		},
		{
			name:      "insert fails",
			failOn:    "InsertFiles",
			wantOp:    "insert_files",
			wantCalls: []string{"UpsertProject", "DeleteFilesByProject", "InsertFiles"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{failOn: tt.failOn, err: boom}
			_, err := New(svc, nil).Save(ownerCtx("alice"), p)

			var syncErr *SyncError
			if !errors.As(err, &syncErr) {
				t.Fatalf("Save() error = %v, want *SyncError", err)
			}
			if syncErr.Op != tt.wantOp || syncErr.ProjectID != p.ID {
				t.Errorf("SyncError = %+v, want op %s", syncErr, tt.wantOp)
			}
			if !errors.Is(err, boom) {
				t.Errorf("Save() error does not wrap the transport fault: %v", err)
			}
			if diff := cmp.Diff(tt.wantCalls, svc.calls); diff != "" {
				t.Errorf("service calls (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSave_EmptyTreeSkipsInsert(t *testing.T) {
	svc := &fakeService{}
	if _, err := New(svc, nil).Save(ownerCtx("alice"), project.New("blank", time.Now())); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if diff := cmp.Diff([]string{"UpsertProject", "DeleteFilesByProject"}, svc.calls); diff != "" {
		t.Errorf("service calls (-want +got):\n%s", diff)
	}
}

func TestLoadAll_SkipsMalformed(t *testing.T) {
	now := time.Now().UTC()
	parent := "ghost"
	svc := &fakeService{
		projects: []*schema.ProjectRecord{
			{ID: "good", OwnerID: "alice", Name: "good", UpdatedAt: now},
			{ID: "dangling", OwnerID: "alice", Name: "dangling", UpdatedAt: now},
			{ID: "nameless", OwnerID: "alice", UpdatedAt: now},
			{ID: "empty", OwnerID: "alice", Name: "empty"},
		},
		files: map[string][]schema.FileRecord{
			"good":     {{ID: "a", ProjectID: "good", Name: "a.txt", Type: "file"}},
			"dangling": {{ID: "b", ProjectID: "dangling", Name: "b.txt", Type: "file", ParentID: &parent}},
		},
	}

	loadTime := now.Add(time.Hour)
	loaded, err := New(svc, nil, WithClock(func() time.Time { return loadTime })).LoadAll(ownerCtx("alice"))
	if err != nil {
		t.Fatalf("LoadAll() failed: %v", err)
	}

	var got []string
	for _, p := range loaded {
		got = append(got, p.ID)
	}
	if diff := cmp.Diff([]string{"good", "empty"}, got); diff != "" {
		t.Errorf("loaded projects (-want +got):\n%s", diff)
	}

	empty := loaded[1]
	if empty.Tree.Len() != 0 {
		t.Errorf("empty project has %d nodes", empty.Tree.Len())
	}
	if !empty.CreatedAt.Equal(loadTime) || !empty.UpdatedAt.Equal(loadTime) {
		t.Errorf("missing timestamps = %v/%v, want load time %v", empty.CreatedAt, empty.UpdatedAt, loadTime)
	}
}

func TestLoadAll_ServiceFailure(t *testing.T) {
	now := time.Now().UTC()
	timeout := errors.New("timeout")
	svc := &fakeService{
		projects: []*schema.ProjectRecord{
			{ID: "good", OwnerID: "alice", Name: "good", UpdatedAt: now},
			{ID: "unreachable", OwnerID: "alice", Name: "unreachable", UpdatedAt: now},
		},
		files: map[string][]schema.FileRecord{
			"good": {{ID: "a", ProjectID: "good", Name: "a.txt", Type: "file"}},
		},
		filesErr: map[string]error{"unreachable": timeout},
	}

	loaded, err := New(svc, nil).LoadAll(ownerCtx("alice"))
	if loaded != nil {
		t.Errorf("LoadAll() returned %d projects alongside a service failure", len(loaded))
	}
	var serr *SyncError
	if !errors.As(err, &serr) {
		t.Fatalf("LoadAll() error = %v, want *SyncError", err)
	}
	if serr.Op != "query_files" || serr.ProjectID != "unreachable" || !errors.Is(err, timeout) {
		t.Errorf("SyncError = %+v", serr)
	}
}

func TestLoadOne_Inconsistent(t *testing.T) {
	parent := "ghost"
	svc := &fakeService{
		projects: []*schema.ProjectRecord{{ID: "p", OwnerID: "alice", Name: "p"}},
		files: map[string][]schema.FileRecord{
			"p": {{ID: "x", ProjectID: "p", Name: "x", Type: "file", ParentID: &parent}},
		},
	}
	_, err := New(svc, nil).LoadOne(ownerCtx("alice"), "p")
	if !errors.Is(err, tree.ErrConsistency) {
		t.Errorf("LoadOne() error = %v, want ErrConsistency", err)
	}
}

// fakeService records calls and fails on demand.
type fakeService struct {
	calls    []string
	failOn   string
	err      error
	projects []*schema.ProjectRecord
	files    map[string][]schema.FileRecord
	filesErr map[string]error
}

func (f *fakeService) call(name string) error {
	f.calls = append(f.calls, name)
	if name == f.failOn {
		return f.err
	}
	return nil
}

func (f *fakeService) UpsertProject(context.Context, *schema.ProjectRecord) error {
	return f.call("UpsertProject")
}

func (f *fakeService) DeleteFilesByProject(context.Context, string, string) error {
	return f.call("DeleteFilesByProject")
}

func (f *fakeService) InsertFiles(context.Context, string, []schema.FileRecord) error {
	return f.call("InsertFiles")
}

func (f *fakeService) QueryProjectsByOwner(context.Context, string) ([]*schema.ProjectRecord, error) {
	if err := f.call("QueryProjectsByOwner"); err != nil {
		return nil, err
	}
	return f.projects, nil
}

func (f *fakeService) QueryProject(_ context.Context, _ string, id string) (*schema.ProjectRecord, error) {
	if err := f.call("QueryProject"); err != nil {
		return nil, err
	}
	for _, p := range f.projects {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeService) QueryFilesByProject(_ context.Context, _ string, id string) ([]schema.FileRecord, error) {
	if err := f.call("QueryFilesByProject"); err != nil {
		return nil, err
	}
	if err := f.filesErr[id]; err != nil {
		return nil, err
	}
	return f.files[id], nil
}

func (f *fakeService) DeleteProject(context.Context, string, string) error {
	return f.call("DeleteProject")
}
