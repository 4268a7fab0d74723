// Package config loads catalog server configuration from CATALOG_*
// environment variables, applies defaults, and validates the result.
//
// Server settings:
//
//	CATALOG_HOST="0.0.0.0"
//	CATALOG_PORT="8080"
//	CATALOG_HEALTH_PORT="9090"       # /health and /metrics
//	CATALOG_API_TOKENS="tok1,tok2"   # bearer tokens for write routes
//
// Storage settings:
//
//	CATALOG_STORAGE_TYPE="postgres"  # filesystem, postgres, sqlite
//	CATALOG_FILESYSTEM_ROOT="/var/lib/catalog"
//	CATALOG_POSTGRES_URL="postgres://localhost/catalog?sslmode=disable"
//	CATALOG_POSTGRES_REPLICA_URLS="postgres://replica1/catalog,postgres://replica2/catalog"
//	CATALOG_SQLITE_PATH="/var/lib/catalog/catalog.db"
//	CATALOG_BLOB_TYPE="s3"           # filesystem, s3
//	CATALOG_S3_BUCKET="api-specifications"
//
// Taxonomy cache:
//
//	CATALOG_CACHE_ENABLED="true"
//	CATALOG_REDIS_URL="redis://localhost:6379/0"
//	CATALOG_CACHE_WARMUP_SCHEDULE="@every 15m"
//	CATALOG_RESOLVER_CACHE_SIZE="1024"
//
// Observability:
//
//	CATALOG_LOG_LEVEL="info"         # debug, info, warn, error
//	CATALOG_OTEL_ENABLED="true"
//	CATALOG_OTEL_ENDPOINT="otel-collector:4317"
//	CATALOG_OTEL_SAMPLE_RATIO="0.1"
//
// Usage:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
package config
