package tree

import "errors"

// Errors returned by tree operations. Match them with errors.Is:
//
//	if errors.Is(err, tree.ErrWrongKind) {
//	    // content update on a folder, or a child under a file
//	}
var (
	// ErrNotFound is returned when a referenced node id does not exist.
	ErrNotFound = errors.New("node not found")

	// ErrWrongKind is returned when an operation is invalid for the node's
	// kind, such as updating a folder's content or creating under a file.
	ErrWrongKind = errors.New("operation not valid for node kind")

	// ErrInvalidName is returned for empty names, names containing the
	// path separator, and the reserved names "." and "..".
	ErrInvalidName = errors.New("invalid node name")

	// ErrInvalidID is returned when a caller-supplied id is empty or
	// already in use.
	ErrInvalidID = errors.New("invalid node id")

	// ErrNameConflict is returned when a sibling with the same name exists.
	ErrNameConflict = errors.New("name already exists in folder")

	// ErrConsistency reports a malformed graph: a cycle, a dangling parent,
	// a file with children, or duplicate ids. It indicates a bug upstream,
	// not a condition callers are expected to recover from.
	ErrConsistency = errors.New("tree consistency violation")
)
