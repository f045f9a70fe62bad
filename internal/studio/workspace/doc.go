// Package workspace mirrors the active project to a directory on disk so it
// can be edited with ordinary tools.
//
// Materialize writes every folder and file of a project under a root
// directory, together with a .cstudio.toml manifest naming the project.
// A Mirror then watches that directory and feeds changes back into the
// editing session:
//
//	editor writes src/App.jsx  ─▶ fsnotify ─▶ Watcher ─▶ debounce queue
//	                                                         │
//	session.Apply(MkdirAll + Create / UpdateContent / Delete) ◀┘
//
// Rapid writes to the same path are collapsed by the debounce interval.
// Hidden entries (names starting with ".") are never mirrored.
//
// Usage:
//
//	if err := workspace.Materialize(sess.Current(), dir); err != nil {
//	    return err
//	}
//	m, err := workspace.NewMirror(sess, dir, workspace.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	err = m.Start(ctx) // blocks until ctx is cancelled
package workspace
