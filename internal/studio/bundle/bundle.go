// Package bundle exports a project to a portable JSONL file and imports it
// back.
//
// A bundle is a header line followed by one file record per line:
//
//	{"format":"cstudio.bundle","version":"v1.0.0","project_id":"…","name":"…",…,"files":2}
//	{"id":"…","project_id":"…","name":"src","type":"folder","parent_id":null,"content":null}
//	{"id":"…","project_id":"…","name":"App.jsx","type":"file","parent_id":"…","content":"…"}
//
// The owner is not part of a bundle. Whoever imports it owns the result.
package bundle

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/mod/semver"

	"github.com/cipherstudio/cipherstudio/internal/studio/project"
	"github.com/cipherstudio/cipherstudio/internal/studio/schema"
	"github.com/cipherstudio/cipherstudio/internal/studio/tree"
)

const (
	// Format identifies bundle headers.
	Format = "cstudio.bundle"

	// FormatVersion is written to new bundles. Bundles with the same major
	// version can be read.
	FormatVersion = "v1.0.0"
)

var (
	// ErrNotBundle is returned when the first line is not a bundle header.
	ErrNotBundle = errors.New("not a cstudio bundle")

	// ErrUnsupportedVersion is returned for bundles from another major
	// format version.
	ErrUnsupportedVersion = errors.New("unsupported bundle version")
)

// Header is the first line of a bundle.
type Header struct {
	Format      string    `json:"format"`
	Version     string    `json:"version"`
	ExportedAt  time.Time `json:"exported_at"`
	ProjectID   string    `json:"project_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Separator   string    `json:"separator"`
	Files       int       `json:"files"`
}

// Check verifies the header identifies a readable bundle.
func (h *Header) Check() error {
	if h.Format != Format {
		return fmt.Errorf("%w: format %q", ErrNotBundle, h.Format)
	}
	if !semver.IsValid(h.Version) {
		return fmt.Errorf("%w: invalid version %q", ErrUnsupportedVersion, h.Version)
	}
	if semver.Major(h.Version) != semver.Major(FormatVersion) {
		return fmt.Errorf("%w: %s (this build reads %s.x)", ErrUnsupportedVersion, h.Version, semver.Major(FormatVersion))
	}
	if h.ProjectID == "" {
		return fmt.Errorf("%w: header has no project_id", ErrNotBundle)
	}
	if h.Files < 0 {
		return fmt.Errorf("%w: negative file count", ErrNotBundle)
	}
	return nil
}

// Export writes p to w and returns the number of file records written.
func Export(w io.Writer, p *project.Project) (int, error) {
	records := schema.FromSnapshot(p.ID, p.Tree)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	header := Header{
		Format:      Format,
		Version:     FormatVersion,
		ExportedAt:  time.Now().UTC(),
		ProjectID:   p.ID,
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
		Separator:   p.Tree.Separator(),
		Files:       len(records),
	}
	if err := enc.Encode(header); err != nil {
		return 0, fmt.Errorf("failed to write header: %w", err)
	}
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return i, fmt.Errorf("failed to write record %s: %w", records[i].ID, err)
		}
	}
	return len(records), nil
}

// ExportFile writes p to path atomically via a temp file.
func ExportFile(path string, p *project.Project) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create bundle directory: %w", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	n, err := Export(f, p)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return 0, err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to rename temp file: %w", err)
	}
	return n, nil
}

// ImportOptions controls how a bundle becomes a project.
type ImportOptions struct {
	// NewID gives the imported project a fresh id so it can live next to
	// the original.
	NewID bool

	// Name overrides the project name from the header.
	Name string
}

// Import reads a bundle from r and rebuilds the project. The tree is
// validated as a whole; a bundle that would break any tree invariant is
// rejected with tree.ErrConsistency.
func Import(r io.Reader, opts ImportOptions) (*project.Project, error) {
	dec := json.NewDecoder(r)

	var header Header
	if err := dec.Decode(&header); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty input", ErrNotBundle)
		}
		return nil, fmt.Errorf("%w: invalid header: %v", ErrNotBundle, err)
	}
	if err := header.Check(); err != nil {
		return nil, err
	}

	records := make([]schema.FileRecord, 0, header.Files)
	for line := 2; ; line++ {
		var rec schema.FileRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid JSON at line %d: %w", line, err)
		}
		if rec.ProjectID != header.ProjectID {
			return nil, fmt.Errorf("line %d: record %s belongs to project %s, not %s", line, rec.ID, rec.ProjectID, header.ProjectID)
		}
		records = append(records, rec)
	}
	if len(records) != header.Files {
		return nil, fmt.Errorf("bundle is truncated: header lists %d files, found %d", header.Files, len(records))
	}

	snapshot, err := schema.ToSnapshot(records, tree.WithSeparator(header.Separator))
	if err != nil {
		return nil, err
	}

	name := header.Name
	if opts.Name != "" {
		name = opts.Name
	}
	now := time.Now().UTC()
	rec := &schema.ProjectRecord{
		ID:        header.ProjectID,
		Name:      name,
		CreatedAt: header.CreatedAt,
		UpdatedAt: header.UpdatedAt,
	}
	if header.Description != "" {
		rec.Description = &header.Description
	}
	if opts.NewID {
		rec.ID = uuid.NewString()
		rec.CreatedAt = now
	}

	p := project.New(name, now, tree.WithSeparator(header.Separator)).WithTree(snapshot)
	return rec.ApplyTo(p, now), nil
}

// ImportFile reads the bundle at path.
func ImportFile(path string, opts ImportOptions) (*project.Project, error) {
	// #nosec G304 - controlled path from CLI
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}
	defer f.Close()

	return Import(f, opts)
}
