package main

import (
	"context"
	"fmt"

	"github.com/platinummonkey/catalog/pkg/config"
	"github.com/platinummonkey/catalog/pkg/observability"
	"github.com/platinummonkey/catalog/pkg/storage"
	"github.com/platinummonkey/catalog/pkg/storage/cache"
	"github.com/platinummonkey/catalog/pkg/storage/sqlstore"
)

// backend is the storage stack selected by configuration. sql and cache
// are nil when the corresponding layer is not in use.
type backend struct {
	// base is the persistent store, store what callers read through
	base  storage.Storage
	store storage.Storage
	sql   *sqlstore.Store
	cache *cache.Storage
}

func openStorage(ctx context.Context, cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) (*backend, error) {
	b := &backend{}

	switch cfg.Storage.Type {
	case "postgres", "sqlite":
		s, err := sqlstore.Open(ctx, cfg.Storage, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Type, err)
		}
		b.sql = s
		b.store = s
	default:
		s, err := storage.NewFileSystemStorage(cfg.Storage.FilesystemRoot)
		if err != nil {
			return nil, fmt.Errorf("failed to open filesystem storage: %w", err)
		}
		b.store = s
	}
	b.base = b.store
	logger.WithField("type", cfg.Storage.Type).Info("storage initialized")

	if cfg.Storage.CacheEnabled {
		rc, err := cache.NewRedisClient(cfg.Storage)
		if err != nil {
			b.store.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		b.cache = cache.New(b.store, rc, logger)
		b.cache.SetRecorder(metrics)
		b.store = b.cache
		logger.Info("taxonomy cache enabled")
	}
	return b, nil
}

// warm refreshes the cached copy of one taxonomy version; a no-op without
// a cache
func (b *backend) warm(ctx context.Context, nid, version string) error {
	if b.cache == nil {
		return nil
	}
	if err := b.cache.Invalidate(ctx, nid); err != nil {
		return err
	}
	_, err := b.cache.Warm(ctx, nid, version)
	return err
}

// warmAll warms the latest version of every known taxonomy
func (b *backend) warmAll(ctx context.Context) (int, error) {
	if b.cache == nil {
		return 0, nil
	}
	taxonomies, err := b.store.ListTaxonomies(ctx)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{})
	total := 0
	for _, t := range taxonomies {
		if _, ok := seen[t.NID]; ok {
			continue
		}
		seen[t.NID] = struct{}{}
		n, err := b.cache.Warm(ctx, t.NID, "")
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (b *backend) close() error {
	return b.store.Close()
}
