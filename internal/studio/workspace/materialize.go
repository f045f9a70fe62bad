package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cipherstudio/cipherstudio/internal/studio/project"
	"github.com/cipherstudio/cipherstudio/internal/studio/tree"
)

// ErrOutsideWorkspace is returned when a node path would resolve outside
// the workspace directory.
var ErrOutsideWorkspace = errors.New("path escapes workspace")

// Materialize writes p under dir. Existing files with the same paths are
// overwritten; other files are left alone. A directory whose manifest
// names another project is refused with ErrForeignWorkspace.
func Materialize(p *project.Project, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}

	existing, err := ReadManifest(dir)
	switch {
	case err == nil && existing.ProjectID != p.ID:
		return fmt.Errorf("%w: %s holds %s (%s)", ErrForeignWorkspace, dir, existing.Name, existing.ProjectID)
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return err
	}

	sep := p.Tree.Separator()
	for n := range p.Tree.Walk() {
		rel, err := p.Tree.PathOf(n.ID)
		if err != nil {
			return err
		}
		target := filepath.Join(dir, filepath.FromSlash(toSlash(rel, sep)))
		if !within(dir, target) {
			return fmt.Errorf("%w: %s", ErrOutsideWorkspace, rel)
		}

		if n.Kind == tree.KindFolder {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to create folder %s: %w", rel, err)
			}
			continue
		}
		if err := os.WriteFile(target, []byte(n.Content), 0644); err != nil {
			return fmt.Errorf("failed to write file %s: %w", rel, err)
		}
	}

	return WriteManifest(dir, &Manifest{
		ProjectID:      p.ID,
		Name:           p.Name,
		Separator:      sep,
		MaterializedAt: time.Now().UTC(),
	})
}

// toSlash converts a tree path to a slash-separated one.
func toSlash(path, sep string) string {
	if sep == "/" {
		return path
	}
	return strings.ReplaceAll(path, sep, "/")
}

// within reports whether target lies strictly below dir.
func within(dir, target string) bool {
	rel, err := filepath.Rel(dir, target)
	if err != nil || rel == "." || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// relParts splits a path relative to root into its names.
func relParts(root, path string) ([]string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return nil, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for _, p := range parts {
		if strings.HasPrefix(p, ".") {
			return nil, false
		}
	}
	return parts, true
}
