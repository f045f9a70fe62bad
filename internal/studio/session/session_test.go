package session

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	stdsync "sync"
	"testing"
	"time"

	"github.com/cipherstudio/cipherstudio/internal/studio/project"
	"github.com/cipherstudio/cipherstudio/internal/studio/tree"
)

// stubEngine lets tests control when and how Save finishes.
type stubEngine struct {
	release chan struct{}
	started chan struct{}
	err     error
	saves   int
	stored  *project.Project
}

func (e *stubEngine) Save(_ context.Context, p *project.Project) (*project.Project, error) {
	e.saves++
	if e.started != nil {
		e.started <- struct{}{}
	}
	if e.release != nil {
		<-e.release
	}
	if e.err != nil {
		return nil, e.err
	}
	saved := p.WithTimestamps(p.CreatedAt, p.UpdatedAt.Add(time.Second))
	e.stored = saved
	return saved, nil
}

func (e *stubEngine) LoadAll(context.Context) ([]*project.Project, error) {
	return []*project.Project{e.stored}, nil
}

func (e *stubEngine) LoadOne(context.Context, string) (*project.Project, error) {
	return e.stored, nil
}

func (e *stubEngine) Delete(context.Context, string) error { return nil }

func TestEditsMarkDirty(t *testing.T) {
	s := New(&stubEngine{}, project.New("demo", time.Now()), nil)
	if s.Dirty() {
		t.Fatal("new session is dirty")
	}

	dir, err := s.Create(tree.Root, "src", tree.KindFolder)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	file, err := s.Create(dir, "main.js", tree.KindFile)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if err := s.UpdateContent(file, "console.log(1)"); err != nil {
		t.Fatalf("UpdateContent() failed: %v", err)
	}
	if err := s.Rename(file, "index.js"); err != nil {
		t.Fatalf("Rename() failed: %v", err)
	}

	if !s.Dirty() {
		t.Error("session not dirty after edits")
	}
	path, _ := s.Current().Tree.PathOf(file)
	if path != "src/index.js" {
		t.Errorf("PathOf() = %q, want src/index.js", path)
	}

	if err := s.Delete(dir); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if s.Current().Tree.Len() != 0 {
		t.Errorf("Len() = %d after cascade delete, want 0", s.Current().Tree.Len())
	}
}

func TestFailedEditLeavesSessionClean(t *testing.T) {
	p := project.New("demo", time.Now())
	s := New(&stubEngine{}, p, nil)

	if _, err := s.Create("missing", "x", tree.KindFile); !errors.Is(err, tree.ErrNotFound) {
		t.Fatalf("Create() error = %v, want ErrNotFound", err)
	}
	if s.Dirty() || s.Current() != p {
		t.Error("failed edit changed the session")
	}
}

func TestNoOpEditStaysClean(t *testing.T) {
	s := New(&stubEngine{}, project.New("demo", time.Now()), nil)
	id, err := s.Create(tree.Root, "a.txt", tree.KindFile)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if _, err := s.Save(context.Background()); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	if err := s.Rename(id, "a.txt"); err != nil {
		t.Fatalf("Rename() failed: %v", err)
	}
	if s.Dirty() {
		t.Error("renaming to the same name marked the session dirty")
	}
}

func TestSubscribe(t *testing.T) {
	s := New(&stubEngine{}, project.New("demo", time.Now()), nil)

	var seen []int
	s.Subscribe(func(p *project.Project) { seen = append(seen, p.Tree.Len()) })

	if _, err := s.Create(tree.Root, "a", tree.KindFile); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if _, err := s.Create(tree.Root, "b", tree.KindFile); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("listener saw %v, want [1 2]", seen)
	}
}

func TestSubscribe_ConcurrentEditsInOrder(t *testing.T) {
	s := New(&stubEngine{}, project.New("demo", time.Now()), nil)

	var seen []int
	s.Subscribe(func(p *project.Project) {
		runtime.Gosched()
		seen = append(seen, p.Tree.Len())
	})

	const editors, perEditor = 8, 25
	var wg stdsync.WaitGroup
	for i := range editors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range perEditor {
				if _, err := s.Create(tree.Root, fmt.Sprintf("f%d-%d", i, j), tree.KindFile); err != nil {
					t.Errorf("Create() failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if len(seen) != editors*perEditor {
		t.Fatalf("listener called %d times, want %d", len(seen), editors*perEditor)
	}
	for i, n := range seen {
		if n != i+1 {
			t.Fatalf("notification %d carried %d nodes, want %d", i, n, i+1)
		}
	}
	if last := seen[len(seen)-1]; last != s.Current().Tree.Len() {
		t.Errorf("last notification = %d nodes, current = %d", last, s.Current().Tree.Len())
	}
}

func TestSave_ClearsDirty(t *testing.T) {
	engine := &stubEngine{}
	s := New(engine, project.New("demo", time.Now()), nil)
	if _, err := s.Create(tree.Root, "a", tree.KindFile); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	saved, err := s.Save(context.Background())
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if s.Dirty() {
		t.Error("session dirty after save")
	}
	if s.Current() != saved {
		t.Error("Current() is not the saved project")
	}
}

func TestSave_FailureKeepsDirty(t *testing.T) {
	engine := &stubEngine{err: errors.New("offline")}
	s := New(engine, project.New("demo", time.Now()), nil)
	if _, err := s.Create(tree.Root, "a", tree.KindFile); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	if _, err := s.Save(context.Background()); err == nil {
		t.Fatal("Save() succeeded, want error")
	}
	if !s.Dirty() {
		t.Error("failed save cleared dirty flag")
	}

	engine.err = nil
	if _, err := s.Save(context.Background()); err != nil {
		t.Fatalf("retry Save() failed: %v", err)
	}
	if s.Dirty() {
		t.Error("successful retry left session dirty")
	}
}

func TestSave_RejectsOverlap(t *testing.T) {
	engine := &stubEngine{
		release: make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	s := New(engine, project.New("demo", time.Now()), nil)

	done := make(chan error, 1)
	go func() {
		_, err := s.Save(context.Background())
		done <- err
	}()
	<-engine.started

	if _, err := s.Save(context.Background()); !errors.Is(err, ErrSaveInProgress) {
		t.Errorf("overlapping Save() error = %v, want ErrSaveInProgress", err)
	}

	// An edit while saving survives the save.
	if _, err := s.Create(tree.Root, "late.txt", tree.KindFile); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	close(engine.release)
	if err := <-done; err != nil {
		t.Fatalf("first Save() failed: %v", err)
	}
	if !s.Dirty() {
		t.Error("edit made during save was marked clean")
	}
	if _, err := s.Current().Tree.FindByPath("late.txt"); err != nil {
		t.Errorf("edit made during save was lost: %v", err)
	}
	if engine.saves != 1 {
		t.Errorf("engine saw %d saves, want 1", engine.saves)
	}
}

func TestReload(t *testing.T) {
	engine := &stubEngine{}
	s := New(engine, project.New("demo", time.Now()), nil)
	if _, err := s.Save(context.Background()); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if _, err := s.Create(tree.Root, "scratch", tree.KindFile); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	p, err := s.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload() failed: %v", err)
	}
	if p.Tree.Len() != 0 || s.Dirty() {
		t.Errorf("Reload() kept unsaved edits: len=%d dirty=%v", p.Tree.Len(), s.Dirty())
	}
}
