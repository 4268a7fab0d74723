package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Migration is one schema step. Statements are separated by semicolons and
// must run unchanged on every dialect.
type Migration struct {
	Version     int
	Name        string
	Description string
	Up          string
	Down        string
}

// MigrationManager applies schema migrations and records them in
// schema_migrations.
type MigrationManager struct {
	db      *sql.DB
	dialect Dialect
}

// NewMigrationManager creates a new migration manager
func NewMigrationManager(db *sql.DB, dialect Dialect) *MigrationManager {
	return &MigrationManager{db: db, dialect: dialect}
}

// Migrations returns all schema migrations in order
func (m *MigrationManager) Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Name:        "initial_schema",
			Description: "Create catalog and taxonomy tables",
			Up: `
				CREATE TABLE IF NOT EXISTS apis (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					owner TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE TABLE IF NOT EXISTS api_versions (
					api_id TEXT NOT NULL,
					version TEXT NOT NULL,
					specification_hash TEXT NOT NULL DEFAULT '',
					specification_type TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL,
					PRIMARY KEY (api_id, version)
				);

				CREATE TABLE IF NOT EXISTS api_metadata (
					api_id TEXT NOT NULL,
					api_version TEXT NOT NULL,
					name TEXT NOT NULL,
					system_identifier TEXT NOT NULL DEFAULT '',
					description TEXT NOT NULL DEFAULT '',
					visibility TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL DEFAULT '',
					business_unit TEXT NOT NULL DEFAULT '',
					api_type TEXT NOT NULL DEFAULT '',
					lifecycle TEXT NOT NULL DEFAULT '',
					owner_team TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					PRIMARY KEY (api_id, api_version)
				);

				CREATE TABLE IF NOT EXISTS taxonomies (
					nid TEXT NOT NULL,
					version TEXT NOT NULL,
					title TEXT NOT NULL DEFAULT '',
					description TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL,
					PRIMARY KEY (nid, version)
				);

				CREATE TABLE IF NOT EXISTS taxonomy_entries (
					nid TEXT NOT NULL,
					version TEXT NOT NULL,
					urn TEXT NOT NULL,
					url TEXT NOT NULL,
					canonical_url TEXT NOT NULL DEFAULT '',
					title TEXT NOT NULL DEFAULT '',
					description TEXT NOT NULL DEFAULT '',
					entry_type TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL,
					PRIMARY KEY (nid, version, urn)
				);

				CREATE TABLE IF NOT EXISTS classification_links (
					api_id TEXT NOT NULL,
					api_version TEXT NOT NULL,
					taxonomy_urn TEXT NOT NULL,
					taxonomy_nid TEXT NOT NULL,
					taxonomy_version TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL,
					PRIMARY KEY (api_id, api_version, taxonomy_urn)
				);
			`,
			Down: `
				DROP TABLE IF EXISTS classification_links;
				DROP TABLE IF EXISTS taxonomy_entries;
				DROP TABLE IF EXISTS taxonomies;
				DROP TABLE IF EXISTS api_metadata;
				DROP TABLE IF EXISTS api_versions;
				DROP TABLE IF EXISTS apis;
			`,
		},
		{
			Version:     2,
			Name:        "add_indexes",
			Description: "Add lookup indexes for search and subtree resolution",
			Up: `
				CREATE INDEX IF NOT EXISTS idx_taxonomy_entries_urn ON taxonomy_entries(urn);
				CREATE INDEX IF NOT EXISTS idx_taxonomy_entries_canonical_url ON taxonomy_entries(nid, version, canonical_url);
				CREATE INDEX IF NOT EXISTS idx_classification_links_taxonomy ON classification_links(taxonomy_nid, taxonomy_urn);
				CREATE INDEX IF NOT EXISTS idx_api_metadata_visibility ON api_metadata(visibility);
			`,
			Down: `
				DROP INDEX IF EXISTS idx_api_metadata_visibility;
				DROP INDEX IF EXISTS idx_classification_links_taxonomy;
				DROP INDEX IF EXISTS idx_taxonomy_entries_canonical_url;
				DROP INDEX IF EXISTS idx_taxonomy_entries_urn;
			`,
		},
	}
}

// Migrate runs all pending migrations
func (m *MigrationManager) Migrate(ctx context.Context) error {
	if err := m.ensureMigrationsTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, migration := range m.Migrations() {
		if migration.Version <= current {
			continue
		}
		if err := m.apply(ctx, migration.Version, migration.Name, migration.Up, true); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", migration.Version, migration.Name, err)
		}
	}
	return nil
}

// Rollback reverts migrations above targetVersion
func (m *MigrationManager) Rollback(ctx context.Context, targetVersion int) error {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	if targetVersion >= current {
		return fmt.Errorf("target version %d is not less than current version %d", targetVersion, current)
	}

	migrations := m.Migrations()
	for i := len(migrations) - 1; i >= 0; i-- {
		migration := migrations[i]
		if migration.Version <= targetVersion {
			break
		}
		if migration.Version > current {
			continue
		}
		if err := m.apply(ctx, migration.Version, migration.Name, migration.Down, false); err != nil {
			return fmt.Errorf("failed to rollback migration %d (%s): %w", migration.Version, migration.Name, err)
		}
	}
	return nil
}

// CurrentVersion returns the highest applied migration version
func (m *MigrationManager) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

func (m *MigrationManager) ensureMigrationsTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (m *MigrationManager) apply(ctx context.Context, version int, name, script string, up bool) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range splitSQL(script) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute statement: %s: %w", stmt, err)
		}
	}

	if up {
		_, err = tx.ExecContext(ctx, m.dialect.Rebind("INSERT INTO schema_migrations (version, name) VALUES (?, ?)"), version, name)
	} else {
		_, err = tx.ExecContext(ctx, m.dialect.Rebind("DELETE FROM schema_migrations WHERE version = ?"), version)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

// splitSQL splits a script on semicolons, dropping blank statements
func splitSQL(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}
