// Package session holds the one active project of an editor and applies
// edits to it in order.
//
// Tree snapshots are immutable, so the session is the only place where "the
// current project" changes: every edit builds a new snapshot from the
// current one and swaps it in under a mutex. Saves run outside the lock but
// at most one at a time.
package session

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"

	"go.uber.org/zap"

	"github.com/cipherstudio/cipherstudio/internal/logging"
	"github.com/cipherstudio/cipherstudio/internal/metrics"
	"github.com/cipherstudio/cipherstudio/internal/studio/project"
	"github.com/cipherstudio/cipherstudio/internal/studio/sync"
	"github.com/cipherstudio/cipherstudio/internal/studio/tree"
)

// ErrSaveInProgress is returned when Save is called while another save of
// the session is still running.
var ErrSaveInProgress = errors.New("save already in progress")

// Listener is called with every new project value, in the order the values
// were installed. Listeners run synchronously on the goroutine that made
// the change and must not edit the session.
type Listener func(*project.Project)

// Session is the editing state of one project.
type Session struct {
	engine sync.Engine
	logger *zap.Logger

	mu        stdsync.Mutex
	notifyMu  stdsync.Mutex // taken before mu is released, so listeners see changes in order
	current   *project.Project
	dirty     bool
	saving    bool
	listeners []Listener
}

// New starts a session on p. The session begins clean.
func New(engine sync.Engine, p *project.Project, logger *zap.Logger) *Session {
	metrics.SetTreeSize(p.Tree.Len())
	return &Session{
		engine:  engine,
		logger:  logging.OrNop(logger).Named("session"),
		current: p,
	}
}

// Current returns the latest project value.
func (s *Session) Current() *project.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Dirty reports whether there are edits not yet saved.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Subscribe registers fn for future changes.
func (s *Session) Subscribe(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Apply runs edit against the current tree and installs the result. A
// failing edit leaves the session untouched.
func (s *Session) Apply(edit func(*tree.Snapshot) (*tree.Snapshot, error)) (*project.Project, error) {
	s.mu.Lock()
	next, err := edit(s.current.Tree)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if next == s.current.Tree {
		p := s.current
		s.mu.Unlock()
		return p, nil
	}
	p := s.current.WithTree(next)
	s.current = p
	s.dirty = true
	s.publish(p)
	return p, nil
}

// publish notifies listeners of p. It must be called with s.mu held and
// releases it.
func (s *Session) publish(p *project.Project) {
	listeners := append([]Listener(nil), s.listeners...)
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	metrics.SetTreeSize(p.Tree.Len())
	for _, fn := range listeners {
		fn(p)
	}
}

// Create adds a node and returns its id.
func (s *Session) Create(parentID, name string, kind tree.Kind) (string, error) {
	var id string
	_, err := s.Apply(func(t *tree.Snapshot) (*tree.Snapshot, error) {
		next, newID, err := t.Create(parentID, name, kind)
		id = newID
		return next, err
	})
	return id, err
}

// Rename renames a node.
func (s *Session) Rename(id, name string) error {
	_, err := s.Apply(func(t *tree.Snapshot) (*tree.Snapshot, error) {
		return t.Rename(id, name)
	})
	return err
}

// Delete removes a node and everything below it.
func (s *Session) Delete(id string) error {
	_, err := s.Apply(func(t *tree.Snapshot) (*tree.Snapshot, error) {
		return t.Delete(id)
	})
	return err
}

// UpdateContent replaces a file's content.
func (s *Session) UpdateContent(id, content string) error {
	_, err := s.Apply(func(t *tree.Snapshot) (*tree.Snapshot, error) {
		return t.UpdateContent(id, content)
	})
	return err
}

// Save persists the current project. Edits made while the save runs keep
// the session dirty. A failed save also leaves it dirty; calling Save
// again converges because every save replaces the stored files.
func (s *Session) Save(ctx context.Context) (*project.Project, error) {
	s.mu.Lock()
	if s.saving {
		s.mu.Unlock()
		return nil, ErrSaveInProgress
	}
	s.saving = true
	snapshot := s.current
	s.mu.Unlock()

	saved, err := s.engine.Save(ctx, snapshot)

	s.mu.Lock()
	s.saving = false
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn("save failed", zap.String("project_id", snapshot.ID), zap.Error(err))
		return nil, fmt.Errorf("failed to save project %s: %w", snapshot.ID, err)
	}
	if s.current == snapshot {
		s.current = saved
		s.dirty = false
	} else {
		// Keep newer edits; only adopt the stored timestamps.
		s.current = s.current.WithTimestamps(saved.CreatedAt, saved.UpdatedAt)
	}
	current := s.current
	s.mu.Unlock()

	return current, nil
}

// Reload replaces the current project with the stored copy, discarding
// unsaved edits.
func (s *Session) Reload(ctx context.Context) (*project.Project, error) {
	id := s.Current().ID
	p, err := s.engine.LoadOne(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.current = p
	s.dirty = false
	s.publish(p)
	return p, nil
}
