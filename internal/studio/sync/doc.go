// Package sync moves projects between the in-memory tree and the
// persistence service.
//
// Overview
//
// Saving is full-replace: the engine upserts the project row, deletes every
// stored file record of the project and inserts the current node collection.
// It never diffs. Loading reverses the mapping and rebuilds a tree snapshot
// from the flat records, checking every tree invariant on the way.
//
//	project.Project ──Save──▶ Service: UpsertProject
//	                                   DeleteFilesByProject
//	                                   InsertFiles
//	project.Project ◀──Load── Service: QueryProject(s) + QueryFilesByProject
//
// Usage
//
//	database, err := db.OpenSQLite(".cstudio/studio.db")
//	if err != nil {
//	    return err
//	}
//	defer database.Close()
//
//	engine := sync.New(database, logger)
//	ctx = auth.WithOwner(ctx, ownerID)
//	saved, err := engine.Save(ctx, proj)
//
// Every call needs an owner in ctx; without one it fails with
// auth.ErrUnauthenticated before the service is touched. The engine holds no
// locks: callers must not run two saves of the same project at once.
package sync
