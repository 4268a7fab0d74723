package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/catalog/pkg/catalog"
	"github.com/platinummonkey/catalog/pkg/filter"
	"github.com/platinummonkey/catalog/pkg/observability"
	"github.com/platinummonkey/catalog/pkg/storage"
	"github.com/platinummonkey/catalog/pkg/taxonomy"
)

var tracer = otel.Tracer("catalog/storage/sqlstore")

// Store implements storage.Storage on PostgreSQL or SQLite
type Store struct {
	conns      *ConnectionManager
	dialect    Dialect
	migrations *MigrationManager
}

// Open connects to the database selected by config.Type and runs pending
// migrations.
func Open(ctx context.Context, config storage.Config, logger *observability.Logger) (*Store, error) {
	dialect, ok := DialectFor(config.Type)
	if !ok {
		return nil, fmt.Errorf("unsupported sql storage type %q", config.Type)
	}

	cc := ConnectionConfig{
		Dialect:     dialect,
		PrimaryURL:  config.PostgresURL,
		ReplicaURLs: config.PostgresReplicaURLs,
		MaxConns:    config.PostgresMaxConns,
		MinConns:    config.PostgresMinConns,
		Timeout:     config.PostgresTimeout,
		MaxLifetime: time.Hour,
		MaxIdleTime: 10 * time.Minute,
	}
	if dialect == SQLite {
		cc.PrimaryURL = config.SQLitePath + "?_foreign_keys=1&_timeout=30000"
		cc.ReplicaURLs = nil
	}

	conns, err := NewConnectionManager(cc, logger)
	if err != nil {
		return nil, err
	}
	s := New(conns, dialect)
	if err := s.Migrate(ctx); err != nil {
		conns.Close()
		return nil, err
	}
	return s, nil
}

// New wraps existing connections. The schema is not touched; call Migrate.
func New(conns *ConnectionManager, dialect Dialect) *Store {
	return &Store{
		conns:      conns,
		dialect:    dialect,
		migrations: NewMigrationManager(conns.Primary(), dialect),
	}
}

// Migrate applies pending schema migrations
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.migrations.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Connections exposes the connection manager for health and pool upkeep
func (s *Store) Connections() *ConnectionManager {
	return s.conns
}

// HealthCheck implements storage.HealthChecker
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.conns.HealthCheck(ctx)
}

// Close closes all connections
func (s *Store) Close() error {
	return s.conns.Close()
}

func (s *Store) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.conns.Primary().ExecContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.conns.Replica().QueryRowContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.conns.Replica().QueryContext(ctx, s.dialect.Rebind(query), args...)
}

// Apis

// CreateApi implements storage.ApiWriter
func (s *Store) CreateApi(ctx context.Context, a *catalog.Api) error {
	if err := a.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	_, err := s.exec(ctx, `
		INSERT INTO apis (id, name, owner, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Owner, a.CreatedAt, a.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: api %s already exists", catalog.ErrConflict, a.ID)
	} else if err != nil {
		return fmt.Errorf("failed to create api: %w", err)
	}
	return nil
}

// GetApi implements storage.ApiRepository
func (s *Store) GetApi(ctx context.Context, id string) (*catalog.Api, error) {
	var a catalog.Api
	err := s.queryRow(ctx, `
		SELECT id, name, owner, created_at, updated_at
		FROM apis
		WHERE id = ?`, id).Scan(&a.ID, &a.Name, &a.Owner, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: api %s", catalog.ErrNotFound, id)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get api: %w", err)
	}
	return &a, nil
}

// ListApis implements storage.ApiRepository
func (s *Store) ListApis(ctx context.Context) ([]*catalog.Api, error) {
	rows, err := s.query(ctx, `
		SELECT id, name, owner, created_at, updated_at
		FROM apis
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list apis: %w", err)
	}
	defer rows.Close()

	var apis []*catalog.Api
	for rows.Next() {
		var a catalog.Api
		if err := rows.Scan(&a.ID, &a.Name, &a.Owner, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan api: %w", err)
		}
		apis = append(apis, &a)
	}
	return apis, rows.Err()
}

func (s *Store) apiExists(ctx context.Context, id string) error {
	var one int
	err := s.queryRow(ctx, "SELECT 1 FROM apis WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: api %s", catalog.ErrNotFound, id)
	} else if err != nil {
		return fmt.Errorf("failed to get api: %w", err)
	}
	return nil
}

// CreateVersion implements storage.ApiWriter
func (s *Store) CreateVersion(ctx context.Context, v *catalog.ApiVersion) error {
	if err := v.Validate(); err != nil {
		return err
	}
	if err := s.apiExists(ctx, v.ApiID); err != nil {
		return err
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	_, err := s.exec(ctx, `
		INSERT INTO api_versions (api_id, version, specification_hash, specification_type, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		v.ApiID, v.Version, v.SpecificationHash, v.SpecificationType, v.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: version %s of api %s already exists", catalog.ErrConflict, v.Version, v.ApiID)
	} else if err != nil {
		return fmt.Errorf("failed to create version: %w", err)
	}
	return nil
}

// UpdateVersion implements storage.ApiWriter
func (s *Store) UpdateVersion(ctx context.Context, v *catalog.ApiVersion) error {
	if err := v.Validate(); err != nil {
		return err
	}
	res, err := s.exec(ctx, `
		UPDATE api_versions
		SET specification_hash = ?, specification_type = ?
		WHERE api_id = ? AND version = ?`,
		v.SpecificationHash, v.SpecificationType, v.ApiID, v.Version)
	if err != nil {
		return fmt.Errorf("failed to update version: %w", err)
	}
	return expectRow(res, fmt.Sprintf("version %s of api %s", v.Version, v.ApiID))
}

// GetVersion implements storage.ApiRepository
func (s *Store) GetVersion(ctx context.Context, apiID, version string) (*catalog.ApiVersion, error) {
	var v catalog.ApiVersion
	err := s.queryRow(ctx, `
		SELECT api_id, version, specification_hash, specification_type, created_at
		FROM api_versions
		WHERE api_id = ? AND version = ?`, apiID, version).
		Scan(&v.ApiID, &v.Version, &v.SpecificationHash, &v.SpecificationType, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: version %s of api %s", catalog.ErrNotFound, version, apiID)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get version: %w", err)
	}
	return &v, nil
}

// ListVersions implements storage.ApiRepository
func (s *Store) ListVersions(ctx context.Context, apiID string) ([]*catalog.ApiVersion, error) {
	if err := s.apiExists(ctx, apiID); err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, `
		SELECT api_id, version, specification_hash, specification_type, created_at
		FROM api_versions
		WHERE api_id = ?
		ORDER BY version`, apiID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []*catalog.ApiVersion
	for rows.Next() {
		var v catalog.ApiVersion
		if err := rows.Scan(&v.ApiID, &v.Version, &v.SpecificationHash, &v.SpecificationType, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, &v)
	}
	return versions, rows.Err()
}

// Metadata

const metadataSelect = `
	SELECT api_id, api_version, name, system_identifier, description, visibility,
		status, business_unit, api_type, lifecycle, owner_team, created_at, updated_at
	FROM api_metadata`

func scanMetadata(row interface{ Scan(...interface{}) error }) (*catalog.Metadata, error) {
	var m catalog.Metadata
	err := row.Scan(&m.ApiID, &m.ApiVersion, &m.Name, &m.SystemIdentifier, &m.Description, &m.Visibility,
		&m.Status, &m.BusinessUnit, &m.ApiType, &m.Lifecycle, &m.OwnerTeam, &m.CreatedAt, &m.UpdatedAt)
	return &m, err
}

// PutMetadata implements storage.MetadataWriter
func (s *Store) PutMetadata(ctx context.Context, m *catalog.Metadata) error {
	if err := m.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	_, err := s.exec(ctx, `
		INSERT INTO api_metadata (api_id, api_version, name, system_identifier, description, visibility,
			status, business_unit, api_type, lifecycle, owner_team, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (api_id, api_version) DO UPDATE SET
			name = excluded.name,
			system_identifier = excluded.system_identifier,
			description = excluded.description,
			visibility = excluded.visibility,
			status = excluded.status,
			business_unit = excluded.business_unit,
			api_type = excluded.api_type,
			lifecycle = excluded.lifecycle,
			owner_team = excluded.owner_team,
			updated_at = excluded.updated_at`,
		m.ApiID, m.ApiVersion, m.Name, m.SystemIdentifier, m.Description, m.Visibility,
		m.Status, m.BusinessUnit, m.ApiType, m.Lifecycle, m.OwnerTeam, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to put metadata: %w", err)
	}
	return nil
}

// GetMetadata implements storage.MetadataRepository
func (s *Store) GetMetadata(ctx context.Context, apiID, apiVersion string) (*catalog.Metadata, error) {
	m, err := scanMetadata(s.queryRow(ctx, metadataSelect+" WHERE api_id = ? AND api_version = ?", apiID, apiVersion))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: metadata of %s@%s", catalog.ErrNotFound, apiID, apiVersion)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get metadata: %w", err)
	}
	return m, nil
}

// ListMetadataMatching implements storage.MetadataRepository
func (s *Store) ListMetadataMatching(ctx context.Context, pred filter.Predicate) ([]*catalog.Metadata, error) {
	if pred.Op == filter.OpFalse {
		return nil, nil
	}
	cond, args := s.dialect.where(pred, metadataColumns)

	ctx, span := tracer.Start(ctx, "ListMetadataMatching", trace.WithAttributes(attribute.String("where", cond)))
	defer span.End()

	rows, err := s.query(ctx, metadataSelect+" WHERE "+cond+" ORDER BY api_id, api_version", args...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}
	defer rows.Close()

	var out []*catalog.Metadata
	for rows.Next() {
		m, err := scanMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Classification links

const linkSelect = `
	SELECT api_id, api_version, taxonomy_urn, taxonomy_nid, taxonomy_version, created_at
	FROM classification_links`

func (s *Store) scanLinks(rows *sql.Rows) ([]*catalog.ClassificationLink, error) {
	defer rows.Close()
	var out []*catalog.ClassificationLink
	for rows.Next() {
		var l catalog.ClassificationLink
		if err := rows.Scan(&l.ApiID, &l.ApiVersion, &l.TaxonomyURN, &l.TaxonomyNID, &l.TaxonomyVersion, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

// PutLink implements storage.ClassificationWriter
func (s *Store) PutLink(ctx context.Context, l *catalog.ClassificationLink) error {
	if err := l.Validate(); err != nil {
		return err
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, `
		INSERT INTO classification_links (api_id, api_version, taxonomy_urn, taxonomy_nid, taxonomy_version, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (api_id, api_version, taxonomy_urn) DO UPDATE SET
			taxonomy_nid = excluded.taxonomy_nid,
			taxonomy_version = excluded.taxonomy_version`,
		l.ApiID, l.ApiVersion, l.TaxonomyURN, l.TaxonomyNID, l.TaxonomyVersion, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to put link: %w", err)
	}
	return nil
}

// DeleteLink implements storage.ClassificationWriter
func (s *Store) DeleteLink(ctx context.Context, apiID, apiVersion, urn string) error {
	res, err := s.exec(ctx, `
		DELETE FROM classification_links
		WHERE api_id = ? AND api_version = ? AND taxonomy_urn = ?`, apiID, apiVersion, urn)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	return expectRow(res, fmt.Sprintf("link %s|%s|%s", apiID, apiVersion, urn))
}

// ListLinksForApi implements storage.ClassificationRepository
func (s *Store) ListLinksForApi(ctx context.Context, apiID string) ([]*catalog.ClassificationLink, error) {
	rows, err := s.query(ctx, linkSelect+" WHERE api_id = ? ORDER BY api_version, taxonomy_urn", apiID)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	return s.scanLinks(rows)
}

// ListLinksMatching implements storage.ClassificationRepository
func (s *Store) ListLinksMatching(ctx context.Context, pred filter.Predicate) ([]*catalog.ClassificationLink, error) {
	if pred.Op == filter.OpFalse {
		return nil, nil
	}
	cond, args := s.dialect.where(pred, linkColumns)

	ctx, span := tracer.Start(ctx, "ListLinksMatching", trace.WithAttributes(attribute.String("where", cond)))
	defer span.End()

	rows, err := s.query(ctx, linkSelect+" WHERE "+cond+" ORDER BY api_id, api_version, taxonomy_urn", args...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	return s.scanLinks(rows)
}

// Taxonomies

// PutTaxonomy implements storage.TaxonomyWriter
func (s *Store) PutTaxonomy(ctx context.Context, t *catalog.Taxonomy) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, `
		INSERT INTO taxonomies (nid, version, title, description, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (nid, version) DO UPDATE SET
			title = excluded.title,
			description = excluded.description`,
		t.NID, t.Version, t.Title, t.Description, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to put taxonomy: %w", err)
	}
	return nil
}

// GetTaxonomy implements storage.TaxonomyRepository
func (s *Store) GetTaxonomy(ctx context.Context, nid, version string) (*catalog.Taxonomy, error) {
	var t catalog.Taxonomy
	err := s.queryRow(ctx, `
		SELECT nid, version, title, description, created_at
		FROM taxonomies
		WHERE nid = ? AND version = ?`, nid, version).
		Scan(&t.NID, &t.Version, &t.Title, &t.Description, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: taxonomy %s@%s", catalog.ErrNotFound, nid, version)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get taxonomy: %w", err)
	}
	return &t, nil
}

// ListTaxonomies implements storage.TaxonomyRepository
func (s *Store) ListTaxonomies(ctx context.Context) ([]*catalog.Taxonomy, error) {
	rows, err := s.query(ctx, `
		SELECT nid, version, title, description, created_at
		FROM taxonomies
		ORDER BY nid, version`)
	if err != nil {
		return nil, fmt.Errorf("failed to list taxonomies: %w", err)
	}
	defer rows.Close()

	var out []*catalog.Taxonomy
	for rows.Next() {
		var t catalog.Taxonomy
		if err := rows.Scan(&t.NID, &t.Version, &t.Title, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan taxonomy: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// LatestTaxonomyVersion implements storage.TaxonomyRepository
func (s *Store) LatestTaxonomyVersion(ctx context.Context, nid string) (string, error) {
	var version string
	err := s.queryRow(ctx, `
		SELECT version FROM taxonomies
		WHERE nid = ?
		ORDER BY created_at DESC, version DESC
		LIMIT 1`, nid).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: taxonomy %s", catalog.ErrNotFound, nid)
	} else if err != nil {
		return "", fmt.Errorf("failed to get latest taxonomy version: %w", err)
	}
	return version, nil
}

const entrySelect = `
	SELECT urn, url, title, description, nid, version, entry_type, created_at
	FROM taxonomy_entries`

func scanEntry(row interface{ Scan(...interface{}) error }) (*catalog.TaxonomyURNEntry, error) {
	var e catalog.TaxonomyURNEntry
	var entryType string
	if err := row.Scan(&e.URN, &e.URL, &e.Title, &e.Description, &e.NID, &e.Version, &entryType, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Type = catalog.EntryType(entryType)
	return &e, nil
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...interface{}) ([]*catalog.TaxonomyURNEntry, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list taxonomy entries: %w", err)
	}
	defer rows.Close()

	var out []*catalog.TaxonomyURNEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan taxonomy entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PutEntry implements storage.TaxonomyWriter. The canonical form of the URL
// is stored alongside it for prefix queries; entries with malformed URLs
// are kept with an empty canonical URL and never match a prefix.
func (s *Store) PutEntry(ctx context.Context, e *catalog.TaxonomyURNEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	canonical, err := taxonomy.Canonical(e.URL)
	if err != nil {
		canonical = ""
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err = s.exec(ctx, `
		INSERT INTO taxonomy_entries (nid, version, urn, url, canonical_url, title, description, entry_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (nid, version, urn) DO UPDATE SET
			url = excluded.url,
			canonical_url = excluded.canonical_url,
			title = excluded.title,
			description = excluded.description,
			entry_type = excluded.entry_type`,
		e.NID, e.Version, e.URN, e.URL, canonical, e.Title, e.Description, string(e.Type), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to put taxonomy entry: %w", err)
	}
	return nil
}

// GetEntry implements taxonomy.EntryStore
func (s *Store) GetEntry(ctx context.Context, urn, version string) (*catalog.TaxonomyURNEntry, error) {
	return s.GetEntryInTaxonomy(ctx, "", urn, version)
}

// GetEntryInTaxonomy implements taxonomy.EntryStore. An empty nid matches
// any taxonomy.
func (s *Store) GetEntryInTaxonomy(ctx context.Context, nid, urn, version string) (*catalog.TaxonomyURNEntry, error) {
	query := entrySelect + " WHERE urn = ?"
	args := []interface{}{urn}
	if nid != "" {
		query += " AND nid = ?"
		args = append(args, nid)
	}
	if version != "" {
		query += " AND version = ?"
		args = append(args, version)
	}
	query += " ORDER BY created_at DESC, version DESC LIMIT 1"

	e, err := scanEntry(s.queryRow(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: taxonomy entry %s", catalog.ErrNotFound, urn)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get taxonomy entry: %w", err)
	}
	return e, nil
}

// ListEntriesBelowURL implements taxonomy.EntryStore. Matching is a raw
// prefix on the canonical URL; empty nid or version match any.
func (s *Store) ListEntriesBelowURL(ctx context.Context, nid, version, url string) ([]*catalog.TaxonomyURNEntry, error) {
	conds := []string{`canonical_url LIKE ? ESCAPE '\'`}
	args := []interface{}{filter.LikePrefix(strings.ToLower(url))}
	if nid != "" {
		conds = append(conds, "nid = ?")
		args = append(args, nid)
	}
	if version != "" {
		conds = append(conds, "version = ?")
		args = append(args, version)
	}
	return s.queryEntries(ctx, entrySelect+" WHERE "+strings.Join(conds, " AND ")+" ORDER BY canonical_url, urn", args...)
}

// ListAllEntries implements taxonomy.EntryStore
func (s *Store) ListAllEntries(ctx context.Context, nid, version string) ([]*catalog.TaxonomyURNEntry, error) {
	return s.queryEntries(ctx, entrySelect+" WHERE nid = ? AND version = ? ORDER BY canonical_url, urn", nid, version)
}

func expectRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", catalog.ErrNotFound, what)
	}
	return nil
}

var _ storage.Storage = (*Store)(nil)
