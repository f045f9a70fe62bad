// Package tree implements the in-memory project file tree.
//
// # Overview
//
// A project's hierarchy is stored as a flat collection of nodes, each pointing
// at its parent by id. The root of the hierarchy is not a node; top-level
// entries carry the [Root] sentinel as their parent id. Children are found
// through an index keyed by parent id, so there are no parent/child pointers
// and no reference cycles between nodes.
//
//	Snapshot
//	  nodes:    id -> Node{ID, Name, Kind, ParentID, Content}
//	  children: parent id -> []child id (sorted by name)
//
// # Snapshots
//
// A [Snapshot] is immutable. Every mutation returns a new snapshot and leaves
// the receiver untouched, so older snapshots stay valid for readers that still
// hold them:
//
//	s := tree.New()
//	s, srcID, err := s.Create(tree.Root, "src", tree.KindFolder)
//	if err != nil {
//	    return err
//	}
//	s, appID, err := s.Create(srcID, "App.jsx", tree.KindFile)
//	if err != nil {
//	    return err
//	}
//	s, err = s.UpdateContent(appID, "export default function App() {}")
//
// Whoever holds the "current" snapshot owns its replacement. The package does
// no locking.
//
// # Invariants
//
// After every mutation:
//
//   - the parent graph is acyclic and rooted at [Root]
//   - every non-root parent id names an existing folder
//   - sibling names are unique
//   - ids are unique
//   - files have no children
//
// [FromNodes] checks all of them when a snapshot is rebuilt from persisted
// records and reports violations as [ErrConsistency].
//
// # Paths
//
// Paths are never stored. [Snapshot.PathOf] joins ancestor names with the
// snapshot separator ("/" unless [WithSeparator] says otherwise), and
// [Snapshot.Files] yields every file as a (path, content) pair in depth-first
// order. Renaming a folder therefore changes the paths of everything below it
// without touching those nodes.
//
// A name is always a single path element: it never contains the separator,
// "/", "\\" or NUL, and is never "." or "..". Paths derived under any
// separator can therefore be written to disk or used as preview keys
// without escaping.
package tree
