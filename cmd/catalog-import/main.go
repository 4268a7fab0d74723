package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/catalog/pkg/importer"
	"github.com/platinummonkey/catalog/pkg/observability"
	"github.com/platinummonkey/catalog/pkg/storage"
	"github.com/platinummonkey/catalog/pkg/storage/sqlstore"
)

var (
	file        = flag.String("file", "", "Taxonomy YAML file to import")
	dir         = flag.String("dir", "", "Directory of taxonomy YAML files to import")
	watch       = flag.Bool("watch", false, "Keep watching -dir and re-import files as they change")
	workers     = flag.Int("workers", 4, "Concurrent imports for -dir")
	debounce    = flag.Duration("debounce", time.Second, "Quiet period before a changed file is re-imported")
	storageType = flag.String("storage-type", "filesystem", "Storage backend: filesystem, postgres or sqlite")
	storageDir  = flag.String("storage-dir", "/tmp/catalog", "Root directory for filesystem storage")
	postgresURL = flag.String("postgres-url", os.Getenv("CATALOG_POSTGRES_URL"), "PostgreSQL connection URL")
	sqlitePath  = flag.String("sqlite-path", "/tmp/catalog.db", "SQLite database file")
	verbose     = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if *file == "" && *dir == "" {
		log.Fatal("one of -file or -dir is required")
	}
	if *watch && *dir == "" {
		log.Fatal("-watch requires -dir")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	level := observability.InfoLevel
	if *verbose {
		level = observability.DebugLevel
	}
	logger := observability.NewLogger(level, os.Stderr)

	store, err := openStorage(ctx, logger)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	imp := importer.New(store, logger)
	failed := false

	if *file != "" {
		res, err := imp.Import(ctx, *file)
		if err != nil {
			log.Errorf("Import failed: %v", err)
			failed = true
		} else {
			report(log, res)
		}
	}

	if *dir != "" {
		results, errs := imp.ImportDir(ctx, *dir, *workers)
		for _, res := range results {
			report(log, res)
		}
		for _, err := range errs {
			log.Errorf("Import failed: %v", err)
			failed = true
		}
	}

	if *watch {
		w, err := importer.NewWatcher(imp, *dir, *debounce)
		if err != nil {
			log.Fatalf("Failed to watch %s: %v", *dir, err)
		}
		log.Infof("Watching %s for changes (Ctrl+C to stop)", *dir)
		if err := w.Run(ctx); err != nil {
			log.Errorf("Watcher stopped: %v", err)
		}
		return
	}

	if failed {
		store.Close()
		os.Exit(1)
	}
}

func report(log *logrus.Logger, res *importer.Result) {
	entry := log.WithFields(logrus.Fields{
		"nid":     res.NID,
		"version": res.Version,
		"stored":  res.Stored,
	})
	if res.Path != "" {
		entry = entry.WithField("path", res.Path)
	}
	if len(res.Rejected) == 0 {
		entry.Info("Imported")
		return
	}
	entry.WithField("rejected", len(res.Rejected)).Warn("Imported with rejected entries")
	for _, r := range res.Rejected {
		log.Warnf("  %s", r)
	}
}

func openStorage(ctx context.Context, logger *observability.Logger) (storage.Storage, error) {
	cfg := storage.DefaultConfig()
	cfg.Type = *storageType
	cfg.FilesystemRoot = *storageDir
	cfg.PostgresURL = *postgresURL
	cfg.SQLitePath = *sqlitePath

	if cfg.Type == "filesystem" {
		return storage.NewFileSystemStorage(cfg.FilesystemRoot)
	}
	return sqlstore.Open(ctx, cfg, logger)
}
