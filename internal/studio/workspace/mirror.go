package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/cipherstudio/cipherstudio/internal/logging"
	"github.com/cipherstudio/cipherstudio/internal/metrics"
	"github.com/cipherstudio/cipherstudio/internal/studio/session"
	"github.com/cipherstudio/cipherstudio/internal/studio/tree"
)

// Config holds configuration for a Mirror.
type Config struct {
	// Debounce is how long a path must stay quiet before it is applied.
	// Rapid writes from editors are collapsed into one edit.
	Debounce time.Duration

	// Autosave saves the session after every batch of applied changes.
	Autosave bool

	Logger *zap.Logger
}

// DefaultConfig returns the defaults used by the workspace command.
func DefaultConfig() *Config {
	return &Config{
		Debounce: 300 * time.Millisecond,
		Autosave: true,
	}
}

// Mirror applies filesystem changes below a directory to a session.
type Mirror struct {
	session *session.Session
	root    string
	config  *Config
	logger  *zap.Logger

	watcher       *Watcher
	changeQueue   map[string]time.Time // absolute path -> last event
	changeQueueMu sync.Mutex

	// saveCtx carries the owner for autosaves; set by Start.
	saveCtx context.Context

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMirror creates a Mirror for the workspace in dir. The manifest in dir
// must name the session's project.
func NewMirror(sess *session.Session, dir string, config *Config) (*Mirror, error) {
	if sess == nil {
		return nil, fmt.Errorf("session cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultConfig().Debounce
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	m, err := ReadManifest(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace manifest in %s: %w", root, err)
	}
	if id := sess.Current().ID; m.ProjectID != id {
		return nil, fmt.Errorf("%w: %s holds %s, session has %s", ErrForeignWorkspace, root, m.ProjectID, id)
	}

	watcher, err := NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Mirror{
		session:     sess,
		root:        root,
		config:      config,
		logger:      logging.OrNop(config.Logger).Named("workspace"),
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		saveCtx:     context.Background(),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Root returns the absolute workspace directory.
func (m *Mirror) Root() string {
	return m.root
}

// Start watches the workspace and applies changes until ctx is cancelled
// or Stop is called. Autosaves run with ctx, so it must carry the owner.
func (m *Mirror) Start(ctx context.Context) error {
	m.saveCtx = ctx
	if err := m.watcher.Start(m.root); err != nil {
		return err
	}
	m.logger.Info("watching workspace", zap.String("dir", m.root), zap.Duration("debounce", m.config.Debounce))

	m.wg.Add(2)
	go m.watchFileEvents()
	go m.processChangeQueue()

	select {
	case <-ctx.Done():
		m.logger.Debug("shutdown signal received")
		return m.Stop()
	case <-m.ctx.Done():
		return nil
	}
}

// Stop shuts the mirror down. Queued changes are applied first, without
// an autosave.
func (m *Mirror) Stop() error {
	m.cancel()
	err := m.watcher.Stop()
	m.wg.Wait()

	m.changeQueueMu.Lock()
	paths := m.drain(time.Time{})
	m.changeQueueMu.Unlock()
	m.applyAll(paths)

	m.logger.Debug("workspace mirror stopped")
	return err
}

// Flush applies every queued change now, ignoring the debounce interval.
func (m *Mirror) Flush() int {
	m.changeQueueMu.Lock()
	paths := m.drain(time.Time{})
	m.changeQueueMu.Unlock()
	return m.applyAll(paths)
}

func (m *Mirror) watchFileEvents() {
	defer m.wg.Done()

	events, errs := m.watcher.Events(), m.watcher.Errors()
	for {
		select {
		case <-m.ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			m.logger.Debug("file event", zap.Stringer("op", ev.Op), zap.String("path", ev.Path))
			m.queueChange(ev.Path)

		case err, ok := <-errs:
			if !ok {
				return
			}
			m.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (m *Mirror) queueChange(path string) {
	m.changeQueueMu.Lock()
	defer m.changeQueueMu.Unlock()

	m.changeQueue[path] = time.Now()
}

func (m *Mirror) processChangeQueue() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.Debounce)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return

		case <-ticker.C:
			m.processPendingChanges()
		}
	}
}

// processPendingChanges applies paths that have been quiet for at least
// the debounce interval.
func (m *Mirror) processPendingChanges() {
	m.changeQueueMu.Lock()
	paths := m.drain(time.Now().Add(-m.config.Debounce))
	m.changeQueueMu.Unlock()

	if m.applyAll(paths) == 0 || !m.config.Autosave {
		return
	}
	if _, err := m.session.Save(m.saveCtx); err != nil {
		if errors.Is(err, session.ErrSaveInProgress) {
			m.logger.Debug("autosave skipped, save in progress")
			return
		}
		m.logger.Warn("autosave failed", zap.Error(err))
		return
	}
	m.logger.Info("autosaved", zap.String("project_id", m.session.Current().ID))
}

// drain removes and returns queued paths last touched before cutoff, or
// all of them for a zero cutoff. Parents sort before their children.
// Callers hold changeQueueMu.
func (m *Mirror) drain(cutoff time.Time) []string {
	var paths []string
	for path, queuedAt := range m.changeQueue {
		if !cutoff.IsZero() && queuedAt.After(cutoff) {
			continue
		}
		paths = append(paths, path)
		delete(m.changeQueue, path)
	}
	slices.Sort(paths)
	return paths
}

// applyAll applies paths in order and returns how many changed the tree.
func (m *Mirror) applyAll(paths []string) int {
	changed := 0
	for _, path := range paths {
		op, err := m.applyPath(path)
		if err != nil {
			m.logger.Warn("failed to apply change", zap.String("path", path), zap.Error(err))
			continue
		}
		if op == "" {
			continue
		}
		changed++
		metrics.RecordWorkspaceEvent(op)
		m.logger.Debug("applied change", zap.String("op", op), zap.String("path", path))
	}
	return changed
}

// applyPath brings the tree node at path in line with the disk and
// reports what it did: "create", "modify", "mkdir", "delete", or "" when
// the tree already matched.
func (m *Mirror) applyPath(path string) (string, error) {
	parts, ok := relParts(m.root, path)
	if !ok {
		return "", nil
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return m.apply(func(t *tree.Snapshot) (*tree.Snapshot, string, error) {
			return removePath(t, parts)
		})
	case err != nil:
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	case info.IsDir():
		return m.apply(func(t *tree.Snapshot) (*tree.Snapshot, string, error) {
			next, _, err := t.MkdirAll(strings.Join(parts, t.Separator()))
			return next, "mkdir", err
		})
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s is not UTF-8 text", path)
	}
	return m.apply(func(t *tree.Snapshot) (*tree.Snapshot, string, error) {
		return writePath(t, parts, string(data))
	})
}

// apply runs edit through the session and drops the op when nothing
// changed.
func (m *Mirror) apply(edit func(*tree.Snapshot) (*tree.Snapshot, string, error)) (string, error) {
	var op string
	var unchanged bool
	_, err := m.session.Apply(func(t *tree.Snapshot) (*tree.Snapshot, error) {
		next, o, err := edit(t)
		op, unchanged = o, next == t
		return next, err
	})
	if err != nil || unchanged {
		return "", err
	}
	return op, nil
}

// writePath creates or updates the file at parts, creating missing
// folders on the way.
func writePath(t *tree.Snapshot, parts []string, content string) (*tree.Snapshot, string, error) {
	sep := t.Separator()
	if n, err := t.FindByPath(strings.Join(parts, sep)); err == nil {
		next, err := t.UpdateContent(n.ID, content)
		return next, "modify", err
	}

	next, parentID, err := t.MkdirAll(strings.Join(parts[:len(parts)-1], sep))
	if err != nil {
		return nil, "", err
	}
	next, id, err := next.Create(parentID, parts[len(parts)-1], tree.KindFile)
	if err != nil {
		return nil, "", err
	}
	next, err = next.UpdateContent(id, content)
	return next, "create", err
}

// removePath deletes the node at parts and everything below it. A path
// the tree does not know is not an error.
func removePath(t *tree.Snapshot, parts []string) (*tree.Snapshot, string, error) {
	n, err := t.FindByPath(strings.Join(parts, t.Separator()))
	if errors.Is(err, tree.ErrNotFound) {
		return t, "delete", nil
	}
	if err != nil {
		return nil, "", err
	}
	next, err := t.Delete(n.ID)
	return next, "delete", err
}
