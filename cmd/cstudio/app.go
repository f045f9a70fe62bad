package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/cipherstudio/cipherstudio/internal/config"
	"github.com/cipherstudio/cipherstudio/internal/studio/auth"
	"github.com/cipherstudio/cipherstudio/internal/studio/db"
	"github.com/cipherstudio/cipherstudio/internal/studio/project"
	"github.com/cipherstudio/cipherstudio/internal/studio/session"
	studiosync "github.com/cipherstudio/cipherstudio/internal/studio/sync"
	"github.com/cipherstudio/cipherstudio/internal/studio/tree"
)

// app holds what PersistentPreRunE resolved for the running command.
type app struct {
	cfg     *config.Config
	cfgUsed string
	logger  *zap.Logger
	store   *db.DB
}

var state = &app{}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil && a.logger != nil {
			a.logger.Warn("failed to close database", zap.Error(err))
		}
		a.store = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func (a *app) treeOptions() []tree.Option {
	return []tree.Option{tree.WithSeparator(a.cfg.Tree.Separator)}
}

// open connects to the configured database once per process.
func (a *app) open(ctx context.Context) (*db.DB, error) {
	if a.store != nil {
		return a.store, nil
	}
	store, err := db.Open(a.cfg.Database.Driver, a.cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := store.InitSchemaContext(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	a.store = store
	return store, nil
}

func (a *app) issuer() (*auth.Issuer, error) {
	secret, err := a.cfg.Secret()
	if err != nil {
		return nil, err
	}
	return auth.NewIssuer(secret, a.cfg.Auth.TokenTTL)
}

// connect returns an owner-scoped context and a sync engine.
func (a *app) connect(ctx context.Context) (context.Context, studiosync.Engine, error) {
	issuer, err := a.issuer()
	if err != nil {
		return nil, nil, err
	}
	tok, err := auth.LoadToken(a.cfg.Auth.TokenFile)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			return nil, nil, fmt.Errorf("%w: run 'cstudio login' first", err)
		}
		return nil, nil, err
	}
	ctx, err = issuer.Authenticate(ctx, tok)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: run 'cstudio login' again", err)
	}

	store, err := a.open(ctx)
	if err != nil {
		return nil, nil, err
	}
	return ctx, studiosync.New(store, a.logger, studiosync.WithTreeOptions(a.treeOptions()...)), nil
}

// resolve loads the project named by ref. An empty ref is allowed when
// the owner has exactly one project.
func (a *app) resolve(ctx context.Context, engine studiosync.Engine, ref string) (*project.Project, error) {
	if ref != "" {
		p, err := engine.LoadOne(ctx, ref)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, studiosync.ErrNotFound) {
			return nil, err
		}
	}

	all, err := engine.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	return matchProject(all, ref)
}

// matchProject picks the project whose id starts with ref or whose name
// equals ref.
func matchProject(projects []*project.Project, ref string) (*project.Project, error) {
	if ref == "" {
		switch len(projects) {
		case 0:
			return nil, fmt.Errorf("no projects yet: run 'cstudio project new'")
		case 1:
			return projects[0], nil
		default:
			return nil, fmt.Errorf("%d projects found: choose one with --project", len(projects))
		}
	}

	var matches []*project.Project
	for _, p := range projects {
		if p.ID == ref {
			return p, nil
		}
		if strings.HasPrefix(p.ID, ref) || p.Name == ref {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: no project matches %q", studiosync.ErrNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%q is ambiguous: %d projects match", ref, len(matches))
	}
}

// load connects and resolves the project selected with --project.
func (a *app) load(ctx context.Context) (context.Context, studiosync.Engine, *project.Project, error) {
	ctx, engine, err := a.connect(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	p, err := a.resolve(ctx, engine, projectRef)
	if err != nil {
		return nil, nil, nil, err
	}
	return ctx, engine, p, nil
}

// edit loads the selected project into a session, runs fn and saves the
// result when it changed anything.
func (a *app) edit(ctx context.Context, fn func(*session.Session) error) (*project.Project, error) {
	ctx, engine, p, err := a.load(ctx)
	if err != nil {
		return nil, err
	}

	sess := session.New(engine, p, a.logger)
	if err := fn(sess); err != nil {
		return nil, err
	}
	if !sess.Dirty() {
		return sess.Current(), nil
	}
	return sess.Save(ctx)
}

func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
