// Package watcher keeps the persistent index in step with the catalog
// directory. It watches the directory's top-level item files with
// fsnotify, falling back to polling where fsnotify is unavailable
// (network mounts, some container volumes), debounces bursts of events and
// hands each changed source to a CatalogSync, which replaces or removes it
// through the indexer.
//
// Usage:
//
//	w, err := watcher.NewHybridWatcher(watcher.Options{Filter: catalog.IsItemFile})
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//	go w.Start(ctx, catalogDir)
//
//	syncer := watcher.NewCatalogSync(catalogDir, indexer, logger)
//	for batch := range w.Events() {
//	    syncer.Apply(ctx, batch)
//	}
package watcher
