// Package importer loads taxonomy definitions from YAML files into catalog
// storage.
//
// Each file holds one taxonomy version. An import upserts the taxonomy
// header and every valid entry, then builds the stored hierarchy and
// reports the entries the tree rejects (malformed paths, URN conflicts).
// Reference entries are stored but are not hierarchy members.
//
// Watcher keeps a directory in sync by re-importing files as they are
// written:
//
//	imp := importer.New(store, logger)
//	w, err := importer.NewWatcher(imp, "/etc/catalog/taxonomies", time.Second)
//	if err != nil {
//		return err
//	}
//	go w.Run(ctx)
package importer
