package storage

import (
	"context"
	"time"

	"github.com/platinummonkey/catalog/pkg/catalog"
	"github.com/platinummonkey/catalog/pkg/filter"
	"github.com/platinummonkey/catalog/pkg/taxonomy"
)

// TaxonomyRepository reads taxonomy collections and their entries.
// Missing records are reported with an error wrapping catalog.ErrNotFound.
type TaxonomyRepository interface {
	taxonomy.EntryStore

	GetTaxonomy(ctx context.Context, nid, version string) (*catalog.Taxonomy, error)
	ListTaxonomies(ctx context.Context) ([]*catalog.Taxonomy, error)
	// LatestTaxonomyVersion returns the most recently created version of nid
	LatestTaxonomyVersion(ctx context.Context, nid string) (string, error)
}

// TaxonomyWriter stores taxonomy collections and entries
type TaxonomyWriter interface {
	PutTaxonomy(ctx context.Context, t *catalog.Taxonomy) error
	// PutEntry upserts an entry keyed by (nid, version, urn)
	PutEntry(ctx context.Context, e *catalog.TaxonomyURNEntry) error
}

// ClassificationRepository reads classification links
type ClassificationRepository interface {
	ListLinksForApi(ctx context.Context, apiID string) ([]*catalog.ClassificationLink, error)
	// ListLinksMatching returns links satisfying pred. Predicate fields are
	// the names accepted by catalog.ClassificationLink.Field.
	ListLinksMatching(ctx context.Context, pred filter.Predicate) ([]*catalog.ClassificationLink, error)
}

// ClassificationWriter stores classification links
type ClassificationWriter interface {
	// PutLink is idempotent on (apiId, apiVersion, taxonomyUrn)
	PutLink(ctx context.Context, l *catalog.ClassificationLink) error
	DeleteLink(ctx context.Context, apiID, apiVersion, urn string) error
}

// MetadataRepository reads API version metadata
type MetadataRepository interface {
	GetMetadata(ctx context.Context, apiID, apiVersion string) (*catalog.Metadata, error)
	// ListMetadataMatching returns metadata satisfying pred. Predicate fields
	// are the names accepted by catalog.Metadata.Field.
	ListMetadataMatching(ctx context.Context, pred filter.Predicate) ([]*catalog.Metadata, error)
}

// MetadataWriter stores API version metadata
type MetadataWriter interface {
	PutMetadata(ctx context.Context, m *catalog.Metadata) error
}

// ApiRepository reads APIs and their versions
type ApiRepository interface {
	GetApi(ctx context.Context, id string) (*catalog.Api, error)
	ListApis(ctx context.Context) ([]*catalog.Api, error)
	GetVersion(ctx context.Context, apiID, version string) (*catalog.ApiVersion, error)
	ListVersions(ctx context.Context, apiID string) ([]*catalog.ApiVersion, error)
}

// ApiWriter stores APIs and their versions
type ApiWriter interface {
	// CreateApi fails with catalog.ErrConflict when the id is taken
	CreateApi(ctx context.Context, a *catalog.Api) error
	// CreateVersion fails with catalog.ErrNotFound for an unknown API and
	// catalog.ErrConflict for an existing version
	CreateVersion(ctx context.Context, v *catalog.ApiVersion) error
	UpdateVersion(ctx context.Context, v *catalog.ApiVersion) error
}

// HealthChecker reports backend health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Storage is the full catalog persistence surface
type Storage interface {
	TaxonomyRepository
	TaxonomyWriter
	ClassificationRepository
	ClassificationWriter
	MetadataRepository
	MetadataWriter
	ApiRepository
	ApiWriter
	HealthChecker
	Close() error
}

// Config for storage backend
type Config struct {
	Type string // "filesystem", "postgres", "sqlite"

	// Filesystem config
	FilesystemRoot string

	// PostgreSQL config
	PostgresURL         string
	PostgresReplicaURLs []string
	PostgresMaxConns    int
	PostgresMinConns    int
	PostgresTimeout     time.Duration

	// SQLite config
	SQLitePath string

	// Specification blob config
	BlobType         string // "filesystem", "s3"
	BlobRoot         string
	S3Endpoint       string
	S3Region         string
	S3Bucket         string
	S3AccessKey      string
	S3SecretKey      string
	S3ForcePathStyle bool

	// Redis config
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int

	// Cache config
	CacheEnabled bool
	CacheTTL     map[string]time.Duration
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:             "filesystem",
		FilesystemRoot:   "/tmp/catalog",
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		SQLitePath:       "/tmp/catalog.db",
		BlobType:         "filesystem",
		BlobRoot:         "/tmp/catalog-blobs",
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
		CacheEnabled:     false,
		CacheTTL: map[string]time.Duration{
			"entry":   1 * time.Hour,
			"entries": 15 * time.Minute,
			"latest":  1 * time.Minute,
		},
	}
}
