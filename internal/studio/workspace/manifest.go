package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// ManifestName is the manifest file written at the workspace root.
const ManifestName = ".cstudio.toml"

// ErrForeignWorkspace is returned when a directory already holds a
// different project.
var ErrForeignWorkspace = errors.New("directory belongs to another project")

// Manifest identifies the project materialized in a directory.
type Manifest struct {
	ProjectID      string    `toml:"project_id"`
	Name           string    `toml:"name"`
	Separator      string    `toml:"separator"`
	MaterializedAt time.Time `toml:"materialized_at"`
}

// ReadManifest loads the manifest in dir. A missing manifest returns
// os.ErrNotExist.
func ReadManifest(dir string) (*Manifest, error) {
	var m Manifest
	if _, err := toml.DecodeFile(filepath.Join(dir, ManifestName), &m); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if m.ProjectID == "" {
		return nil, fmt.Errorf("manifest has no project_id")
	}
	return &m, nil
}

// WriteManifest stores m in dir.
func WriteManifest(dir string, m *Manifest) error {
	f, err := os.Create(filepath.Join(dir, ManifestName))
	if err != nil {
		return fmt.Errorf("failed to create manifest: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(m); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return f.Close()
}
