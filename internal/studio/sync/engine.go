package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cipherstudio/cipherstudio/internal/logging"
	"github.com/cipherstudio/cipherstudio/internal/metrics"
	"github.com/cipherstudio/cipherstudio/internal/studio/auth"
	"github.com/cipherstudio/cipherstudio/internal/studio/project"
	"github.com/cipherstudio/cipherstudio/internal/studio/schema"
	"github.com/cipherstudio/cipherstudio/internal/studio/tree"
)

// engine implements the Engine interface.
type engine struct {
	svc      Service
	logger   *zap.Logger
	now      func() time.Time
	treeOpts []tree.Option
}

// Option configures an engine.
type Option func(*engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *engine) { e.now = now }
}

// WithTreeOptions sets the options used when rebuilding loaded trees. A
// separator stored with the project takes precedence.
func WithTreeOptions(opts ...tree.Option) Option {
	return func(e *engine) { e.treeOpts = opts }
}

// New creates an Engine over svc. A nil logger discards output.
func New(svc Service, logger *zap.Logger, opts ...Option) Engine {
	e := &engine{
		svc:    svc,
		logger: logging.OrNop(logger).Named("sync"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Save implements Engine.Save.
func (e *engine) Save(ctx context.Context, p *project.Project) (saved *project.Project, err error) {
	owner, err := auth.OwnerFrom(ctx)
	if err != nil {
		return nil, err
	}
	defer e.observe("save", time.Now(), &err)

	now := e.now().UTC()
	created := p.CreatedAt
	if created.IsZero() {
		created = now
	}
	saved = p.WithTimestamps(created, now)

	if err := e.svc.UpsertProject(ctx, schema.FromProject(saved, owner)); err != nil {
		return nil, e.fail("upsert_project", p.ID, err)
	}

	if err := e.svc.DeleteFilesByProject(ctx, owner, p.ID); err != nil {
		return nil, e.fail("delete_files", p.ID, err)
	}

	if p.Tree.Len() > 0 {
		if err := e.svc.InsertFiles(ctx, owner, schema.FromSnapshot(p.ID, p.Tree)); err != nil {
			return nil, e.fail("insert_files", p.ID, err)
		}
	}

	e.logger.Info("saved project",
		zap.String("project_id", p.ID),
		zap.Int("nodes", p.Tree.Len()),
	)
	return saved, nil
}

// LoadAll implements Engine.LoadAll.
func (e *engine) LoadAll(ctx context.Context) (_ []*project.Project, err error) {
	owner, err := auth.OwnerFrom(ctx)
	if err != nil {
		return nil, err
	}
	defer e.observe("load_all", time.Now(), &err)

	recs, err := e.svc.QueryProjectsByOwner(ctx, owner)
	if err != nil {
		return nil, e.fail("query_projects", "", err)
	}

	out := make([]*project.Project, 0, len(recs))
	skipped := 0
	for _, rec := range recs {
		p, err := e.assemble(ctx, owner, rec)
		if err != nil {
			var serr *SyncError
			if errors.As(err, &serr) {
				// Service failures fail the listing; only bad data is skipped.
				return nil, err
			}
			skipped++
			metrics.RecordSkippedProject()
			e.logger.Warn("skipping project",
				zap.String("project_id", rec.ID),
				zap.Error(err),
			)
			continue
		}
		out = append(out, p)
	}

	e.logger.Debug("loaded projects",
		zap.Int("loaded", len(out)),
		zap.Int("skipped", skipped),
	)
	return out, nil
}

// LoadOne implements Engine.LoadOne.
func (e *engine) LoadOne(ctx context.Context, id string) (_ *project.Project, err error) {
	owner, err := auth.OwnerFrom(ctx)
	if err != nil {
		return nil, err
	}
	defer e.observe("load_one", time.Now(), &err)

	rec, err := e.svc.QueryProject(ctx, owner, id)
	if err != nil {
		return nil, e.fail("query_project", id, err)
	}
	return e.assemble(ctx, owner, rec)
}

// Delete implements Engine.Delete.
func (e *engine) Delete(ctx context.Context, id string) (err error) {
	owner, err := auth.OwnerFrom(ctx)
	if err != nil {
		return err
	}
	defer e.observe("delete", time.Now(), &err)

	if err := e.svc.DeleteProject(ctx, owner, id); err != nil {
		return e.fail("delete_project", id, err)
	}

	e.logger.Info("deleted project", zap.String("project_id", id))
	return nil
}

// assemble fetches the files of rec and rebuilds the project.
func (e *engine) assemble(ctx context.Context, owner string, rec *schema.ProjectRecord) (*project.Project, error) {
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("project %s: malformed metadata: %w", rec.ID, err)
	}

	files, err := e.svc.QueryFilesByProject(ctx, owner, rec.ID)
	if err != nil {
		return nil, e.fail("query_files", rec.ID, err)
	}

	snap, err := schema.ToSnapshot(files, rec.TreeOptions(e.treeOpts...)...)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", rec.ID, err)
	}

	base := &project.Project{Tree: snap}
	return rec.ApplyTo(base, e.now().UTC()), nil
}

// fail wraps a service error. Missing rows become ErrNotFound.
func (e *engine) fail(op, projectID string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		err = fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	e.logger.Debug("service call failed",
		zap.String("op", op),
		zap.String("project_id", projectID),
		zap.Error(err),
	)
	return &SyncError{Op: op, ProjectID: projectID, Err: err}
}

func (e *engine) observe(op string, start time.Time, errp *error) {
	metrics.RecordSyncOp(op, time.Since(start), *errp)
}
