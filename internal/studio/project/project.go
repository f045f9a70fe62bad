// Package project pairs a file-tree snapshot with the metadata persisted
// alongside it.
package project

import (
	"time"

	"github.com/google/uuid"

	"github.com/cipherstudio/cipherstudio/internal/studio/tree"
)

// DefaultName is the name given to the seeded starter project.
const DefaultName = "My First Project"

// EntryPoint is the file the preview renders first when present.
const EntryPoint = "App.jsx"

// Project is an immutable value: With* methods return modified copies.
type Project struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Tree        *tree.Snapshot
}

// New returns an empty project with a fresh id.
func New(name string, now time.Time, opts ...tree.Option) *Project {
	return &Project{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
		Tree:      tree.New(opts...),
	}
}

// NewDefault returns the starter project: a src folder holding App.jsx and
// styles.css.
func NewDefault(now time.Time, opts ...tree.Option) (*Project, error) {
	p := New(DefaultName, now, opts...)

	s, srcID, err := p.Tree.Create(tree.Root, "src", tree.KindFolder)
	if err != nil {
		return nil, err
	}
	for _, f := range []struct{ name, content string }{
		{"App.jsx", defaultApp},
		{"styles.css", defaultStyles},
	} {
		var id string
		s, id, err = s.Create(srcID, f.name, tree.KindFile)
		if err != nil {
			return nil, err
		}
		if s, err = s.UpdateContent(id, f.content); err != nil {
			return nil, err
		}
	}
	return p.WithTree(s), nil
}

// WithTree returns a copy of p holding s.
func (p *Project) WithTree(s *tree.Snapshot) *Project {
	cp := *p
	cp.Tree = s
	return &cp
}

// WithTimestamps returns a copy of p with the given times.
func (p *Project) WithTimestamps(created, updated time.Time) *Project {
	cp := *p
	cp.CreatedAt = created
	cp.UpdatedAt = updated
	return &cp
}

// FirstFile returns the first file in walk order, if any.
func (p *Project) FirstFile() (tree.Node, bool) {
	for n := range p.Tree.Walk() {
		if n.Kind == tree.KindFile {
			return n, true
		}
	}
	return tree.Node{}, false
}

// Entry picks the file a preview should open: EntryPoint at the root,
// then the first file named EntryPoint in walk order, then FirstFile.
func (p *Project) Entry() (tree.Node, bool) {
	top, _ := p.Tree.ChildrenOf(tree.Root)
	for _, n := range top {
		if n.Kind == tree.KindFile && n.Name == EntryPoint {
			return n, true
		}
	}
	for n := range p.Tree.Walk() {
		if n.Kind == tree.KindFile && n.Name == EntryPoint {
			return n, true
		}
	}
	return p.FirstFile()
}

const defaultApp = `export default function App() {
  return (
    <div className="app">
      <h1>Welcome to CipherStudio</h1>
      <p>Start coding your React app here!</p>
    </div>
  );
}`

const defaultStyles = `.app {
  font-family: sans-serif;
  text-align: center;
  padding: 2rem;
}

h1 {
  color: #3b82f6;
}
`
