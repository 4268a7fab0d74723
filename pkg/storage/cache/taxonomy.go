package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/platinummonkey/catalog/pkg/catalog"
	"github.com/platinummonkey/catalog/pkg/observability"
	"github.com/platinummonkey/catalog/pkg/storage"
)

const keyPrefix = "catalog:taxonomy:"

// TTL kinds, matching the keys of storage.Config.CacheTTL
const (
	kindEntry   = "entry"
	kindEntries = "entries"
	kindLatest  = "latest"
)

// Recorder receives cache hit and miss events
type Recorder interface {
	RecordCacheHit(layer string)
	RecordCacheMiss(layer string)
}

type nopRecorder struct{}

func (nopRecorder) RecordCacheHit(string)  {}
func (nopRecorder) RecordCacheMiss(string) {}

// Storage wraps a storage.Storage and serves taxonomy reads from Redis.
// Every other operation passes straight through.
type Storage struct {
	storage.Storage
	redis    *RedisClient
	logger   *observability.Logger
	recorder Recorder

	// mu orders cache fills against Invalidate; gen counts invalidations
	mu  sync.RWMutex
	gen atomic.Uint64
}

// New wraps backend with a Redis cache
func New(backend storage.Storage, rc *RedisClient, logger *observability.Logger) *Storage {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Storage{
		Storage:  backend,
		redis:    rc,
		logger:   logger.WithField("component", "taxonomy-cache"),
		recorder: nopRecorder{},
	}
}

// SetRecorder installs a hit/miss recorder
func (s *Storage) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	s.recorder = r
}

func entryKey(urn, version string) string {
	if version == "" {
		version = "@latest"
	}
	return fmt.Sprintf("%sentry:%s:%s", keyPrefix, version, urn)
}

func nidEntryKey(nid, urn, version string) string {
	if version == "" {
		version = "@latest"
	}
	return fmt.Sprintf("%snidentry:%s:%s:%s", keyPrefix, nid, version, urn)
}

func belowKey(nid, version, url string) string {
	return fmt.Sprintf("%sbelow:%s:%s:%s", keyPrefix, nid, version, url)
}

func entriesKey(nid, version string) string {
	return fmt.Sprintf("%sentries:%s:%s", keyPrefix, nid, version)
}

func latestKey(nid string) string {
	return keyPrefix + "latest:" + nid
}

// load reads key into v, reporting whether it was a usable hit
func (s *Storage) load(ctx context.Context, key string, v interface{}) bool {
	data, err := s.redis.get(ctx, key)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("cache read failed")
		s.recorder.RecordCacheMiss("redis")
		return false
	}
	if data == nil {
		s.recorder.RecordCacheMiss("redis")
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("dropping corrupt cache value")
		s.redis.del(ctx, key)
		s.recorder.RecordCacheMiss("redis")
		return false
	}
	s.recorder.RecordCacheHit("redis")
	return true
}

// store writes v under key unless an Invalidate ran since gen was read
func (s *Storage) store(ctx context.Context, gen uint64, key, kind string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.gen.Load() != gen {
		return
	}
	if err := s.redis.set(ctx, key, data, kind); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("cache write failed")
	}
}

// GetEntry implements taxonomy.EntryStore
func (s *Storage) GetEntry(ctx context.Context, urn, version string) (*catalog.TaxonomyURNEntry, error) {
	key := entryKey(urn, version)
	var cached catalog.TaxonomyURNEntry
	if s.load(ctx, key, &cached) {
		return &cached, nil
	}

	gen := s.gen.Load()
	e, err := s.Storage.GetEntry(ctx, urn, version)
	if err != nil {
		return nil, err
	}
	kind := kindEntry
	if version == "" {
		kind = kindLatest
	}
	s.store(ctx, gen, key, kind, e)
	return e, nil
}

// GetEntryInTaxonomy implements taxonomy.EntryStore
func (s *Storage) GetEntryInTaxonomy(ctx context.Context, nid, urn, version string) (*catalog.TaxonomyURNEntry, error) {
	if nid == "" {
		return s.GetEntry(ctx, urn, version)
	}
	key := nidEntryKey(nid, urn, version)
	var cached catalog.TaxonomyURNEntry
	if s.load(ctx, key, &cached) {
		return &cached, nil
	}

	gen := s.gen.Load()
	e, err := s.Storage.GetEntryInTaxonomy(ctx, nid, urn, version)
	if err != nil {
		return nil, err
	}
	kind := kindEntry
	if version == "" {
		kind = kindLatest
	}
	s.store(ctx, gen, key, kind, e)
	return e, nil
}

// ListEntriesBelowURL implements taxonomy.EntryStore
func (s *Storage) ListEntriesBelowURL(ctx context.Context, nid, version, url string) ([]*catalog.TaxonomyURNEntry, error) {
	key := belowKey(nid, version, url)
	var cached []*catalog.TaxonomyURNEntry
	if s.load(ctx, key, &cached) {
		return cached, nil
	}

	gen := s.gen.Load()
	entries, err := s.Storage.ListEntriesBelowURL(ctx, nid, version, url)
	if err != nil {
		return nil, err
	}
	s.store(ctx, gen, key, kindEntries, entries)
	return entries, nil
}

// ListAllEntries implements taxonomy.EntryStore
func (s *Storage) ListAllEntries(ctx context.Context, nid, version string) ([]*catalog.TaxonomyURNEntry, error) {
	key := entriesKey(nid, version)
	var cached []*catalog.TaxonomyURNEntry
	if s.load(ctx, key, &cached) {
		return cached, nil
	}

	gen := s.gen.Load()
	entries, err := s.Storage.ListAllEntries(ctx, nid, version)
	if err != nil {
		return nil, err
	}
	s.store(ctx, gen, key, kindEntries, entries)
	return entries, nil
}

// LatestTaxonomyVersion implements storage.TaxonomyRepository
func (s *Storage) LatestTaxonomyVersion(ctx context.Context, nid string) (string, error) {
	key := latestKey(nid)
	var cached string
	if s.load(ctx, key, &cached) {
		return cached, nil
	}

	gen := s.gen.Load()
	version, err := s.Storage.LatestTaxonomyVersion(ctx, nid)
	if err != nil {
		return "", err
	}
	s.store(ctx, gen, key, kindLatest, version)
	return version, nil
}

// PutTaxonomy implements storage.TaxonomyWriter and drops cached reads for nid
func (s *Storage) PutTaxonomy(ctx context.Context, t *catalog.Taxonomy) error {
	if err := s.Storage.PutTaxonomy(ctx, t); err != nil {
		return err
	}
	return s.Invalidate(ctx, t.NID)
}

// PutEntry implements storage.TaxonomyWriter and drops cached reads for its taxonomy
func (s *Storage) PutEntry(ctx context.Context, e *catalog.TaxonomyURNEntry) error {
	if err := s.Storage.PutEntry(ctx, e); err != nil {
		return err
	}
	return s.Invalidate(ctx, e.NID)
}

// Invalidate drops every cached read touching nid. Entry lookups are keyed
// by URN alone, so all of them go. Reads of the backing store that began
// before the call do not repopulate the cache.
func (s *Storage) Invalidate(ctx context.Context, nid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen.Add(1)

	err := s.redis.InvalidatePatterns(ctx,
		keyPrefix+"entry:*",
		keyPrefix+"nidentry:"+nid+":*",
		keyPrefix+"below:"+nid+":*",
		keyPrefix+"below::*",
		keyPrefix+"entries:"+nid+":*",
	)
	if err != nil {
		return fmt.Errorf("failed to invalidate taxonomy %s: %w", nid, err)
	}
	return s.redis.del(ctx, latestKey(nid))
}

// Warm loads one taxonomy version into the cache: the full entry list and
// every entry by URN. An empty version warms the latest. It returns the
// number of entries cached.
func (s *Storage) Warm(ctx context.Context, nid, version string) (int, error) {
	if version == "" {
		v, err := s.Storage.LatestTaxonomyVersion(ctx, nid)
		if err != nil {
			return 0, err
		}
		version = v
	}

	gen := s.gen.Load()
	entries, err := s.Storage.ListAllEntries(ctx, nid, version)
	if err != nil {
		return 0, fmt.Errorf("failed to load taxonomy %s@%s: %w", nid, version, err)
	}
	s.store(ctx, gen, entriesKey(nid, version), kindEntries, entries)
	for _, e := range entries {
		s.store(ctx, gen, entryKey(e.URN, e.Version), kindEntry, e)
		s.store(ctx, gen, nidEntryKey(e.NID, e.URN, e.Version), kindEntry, e)
	}

	s.logger.WithFields(map[string]interface{}{
		"nid":     nid,
		"version": version,
		"entries": len(entries),
	}).Debug("taxonomy cache warmed")
	return len(entries), nil
}

// HealthCheck checks both the wrapped storage and Redis
func (s *Storage) HealthCheck(ctx context.Context) error {
	if err := s.Storage.HealthCheck(ctx); err != nil {
		return err
	}
	if err := s.redis.Ping(ctx); err != nil {
		return fmt.Errorf("redis unhealthy: %w", err)
	}
	return nil
}

// Ping checks Redis alone
func (s *Storage) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx)
}

// Close closes the wrapped storage and the Redis connection
func (s *Storage) Close() error {
	err := s.Storage.Close()
	if rerr := s.redis.Close(); err == nil {
		err = rerr
	}
	return err
}

var _ storage.Storage = (*Storage)(nil)
