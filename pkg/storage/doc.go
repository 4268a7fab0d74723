// Package storage defines the persistence surface of the API catalog and
// ships the document-store backend.
//
// # Interfaces
//
// Reads and writes are split per concern so that each consumer asks for no
// more than it uses:
//
//   - TaxonomyRepository: taxonomy headers and entries (embeds taxonomy.EntryStore)
//   - ClassificationRepository: links between API versions and taxonomy entries
//   - MetadataRepository: per-version metadata, including predicate queries
//   - ApiRepository: APIs and their versions
//   - TaxonomyWriter, ClassificationWriter, MetadataWriter, ApiWriter: the write side
//   - HealthChecker: backend health
//
// Storage composes all of them. Predicate queries take a filter.Predicate
// and must return exactly the records for which Predicate.Match is true;
// the SQL backend renders the predicate as a WHERE clause, the document
// store evaluates it in memory.
//
// # Backends
//
// FileSystemStorage keeps one JSON document per record under a root
// directory:
//
//	apis/<id>/api.json
//	apis/<id>/versions/<version>/{version,metadata,links}.json
//	taxonomies/<nid>/<version>/{taxonomy,entries}.json
//
// The sqlstore subpackage stores the same model in PostgreSQL or SQLite,
// the cache subpackage wraps any Storage with a Redis read-through cache
// for taxonomy lookups, and the blob subpackage keeps specification
// documents on disk or in S3.
//
// # Errors
//
// Missing records are reported as catalog.ErrNotFound, duplicate creates as
// catalog.ErrConflict and invalid input as catalog.ErrInvalidArgument, each
// wrapped with context. Callers test them with errors.Is.
package storage
