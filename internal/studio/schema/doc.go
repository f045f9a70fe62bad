// Package schema defines the flat records exchanged with the persistence
// service: one ProjectRecord per project and one FileRecord per node.
//
// Records mirror the stored rows exactly. A top-level node has a nil
// ParentID and a folder (or an empty file) has a nil Content. Conversions
// to and from the in-memory tree live here so every backend agrees on them.
package schema
