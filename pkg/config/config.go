package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/catalog/pkg/observability"
	"github.com/platinummonkey/catalog/pkg/search"
	"github.com/platinummonkey/catalog/pkg/storage"
	"github.com/platinummonkey/catalog/pkg/storage/sqlstore"
	"github.com/platinummonkey/catalog/pkg/taxonomy"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	Taxonomy      TaxonomyConfig
	Search        search.Config
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// APITokens guard write routes; empty disables the check
	APITokens []string
}

// TaxonomyConfig holds resolver caching and background taxonomy jobs
type TaxonomyConfig struct {
	Resolver taxonomy.ResolverConfig

	// WarmupSchedule is a cron spec for refreshing the Redis taxonomy cache
	WarmupSchedule string

	// ImportDir, when set, is imported at startup and watched for changes
	ImportDir string

	// ReplicaCheckInterval controls how often unhealthy read replicas are pruned
	ReplicaCheckInterval time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Taxonomy:      loadTaxonomyConfig(),
		Search:        loadSearchConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("CATALOG_HOST", "0.0.0.0"),
		Port:            getEnv("CATALOG_PORT", "8080"),
		ReadTimeout:     getEnvDuration("CATALOG_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("CATALOG_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("CATALOG_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("CATALOG_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("CATALOG_HEALTH_PORT", "9090"),
		APITokens:       splitList(getEnv("CATALOG_API_TOKENS", "")),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if storageType := getEnv("CATALOG_STORAGE_TYPE", ""); storageType != "" {
		cfg.Type = strings.ToLower(storageType)
	}
	if fsRoot := getEnv("CATALOG_FILESYSTEM_ROOT", ""); fsRoot != "" {
		cfg.FilesystemRoot = fsRoot
	}

	// PostgreSQL
	if pgURL := getEnv("CATALOG_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	cfg.PostgresReplicaURLs = sqlstore.ParseReplicaURLs(getEnv("CATALOG_POSTGRES_REPLICA_URLS", ""))
	if maxConns := getEnvInt("CATALOG_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("CATALOG_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("CATALOG_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	// SQLite
	if sqlitePath := getEnv("CATALOG_SQLITE_PATH", ""); sqlitePath != "" {
		cfg.SQLitePath = sqlitePath
	}

	// Specification blobs
	if blobType := getEnv("CATALOG_BLOB_TYPE", ""); blobType != "" {
		cfg.BlobType = strings.ToLower(blobType)
	}
	if blobRoot := getEnv("CATALOG_BLOB_ROOT", ""); blobRoot != "" {
		cfg.BlobRoot = blobRoot
	}
	if s3Endpoint := getEnv("CATALOG_S3_ENDPOINT", ""); s3Endpoint != "" {
		cfg.S3Endpoint = s3Endpoint
	}
	if s3Region := getEnv("CATALOG_S3_REGION", ""); s3Region != "" {
		cfg.S3Region = s3Region
	}
	if s3Bucket := getEnv("CATALOG_S3_BUCKET", ""); s3Bucket != "" {
		cfg.S3Bucket = s3Bucket
	}
	if s3AccessKey := getEnv("CATALOG_S3_ACCESS_KEY", ""); s3AccessKey != "" {
		cfg.S3AccessKey = s3AccessKey
	}
	if s3SecretKey := getEnv("CATALOG_S3_SECRET_KEY", ""); s3SecretKey != "" {
		cfg.S3SecretKey = s3SecretKey
	}
	cfg.S3ForcePathStyle = getEnvBool("CATALOG_S3_FORCE_PATH_STYLE", cfg.S3ForcePathStyle)

	// Redis
	if redisURL := getEnv("CATALOG_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("CATALOG_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("CATALOG_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("CATALOG_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("CATALOG_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	// Cache
	cfg.CacheEnabled = getEnvBool("CATALOG_CACHE_ENABLED", cfg.CacheEnabled)
	for _, kind := range []string{"entry", "entries", "latest"} {
		key := "CATALOG_CACHE_TTL_" + strings.ToUpper(kind)
		if ttl := getEnvDuration(key, 0); ttl > 0 {
			cfg.CacheTTL[kind] = ttl
		}
	}

	return cfg
}

func loadTaxonomyConfig() TaxonomyConfig {
	resolver := taxonomy.DefaultResolverConfig()
	if size := getEnvInt("CATALOG_RESOLVER_CACHE_SIZE", -1); size >= 0 {
		resolver.CacheSize = size
	}
	resolver.CacheTTL = getEnvDuration("CATALOG_RESOLVER_CACHE_TTL", resolver.CacheTTL)

	return TaxonomyConfig{
		Resolver:             resolver,
		WarmupSchedule:       getEnv("CATALOG_CACHE_WARMUP_SCHEDULE", "@every 15m"),
		ImportDir:            getEnv("CATALOG_TAXONOMY_DIR", ""),
		ReplicaCheckInterval: getEnvDuration("CATALOG_REPLICA_CHECK_INTERVAL", 30*time.Second),
	}
}

func loadSearchConfig() search.Config {
	cfg := search.DefaultConfig()
	if n := getEnvInt("CATALOG_SEARCH_GROUP_CONCURRENCY", 0); n > 0 {
		cfg.GroupConcurrency = n
	}
	return cfg
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLevel(getEnv("CATALOG_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("CATALOG_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("CATALOG_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("CATALOG_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("CATALOG_OTEL_SERVICE_NAME", "api-catalog"),
		OTelServiceVersion: getEnv("CATALOG_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("CATALOG_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("CATALOG_OTEL_SAMPLE_RATIO", 1.0),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	for _, token := range c.Server.APITokens {
		if len(token) < 16 {
			return fmt.Errorf("api tokens must be at least 16 characters")
		}
	}

	switch c.Storage.Type {
	case "filesystem":
		if c.Storage.FilesystemRoot == "" {
			return fmt.Errorf("filesystem root is required for filesystem storage")
		}
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be filesystem, postgres, or sqlite)", c.Storage.Type)
	}

	switch c.Storage.BlobType {
	case "", "filesystem":
		if c.Storage.BlobRoot == "" {
			return fmt.Errorf("blob root is required for filesystem blob storage")
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required for s3 blob storage")
		}
	default:
		return fmt.Errorf("invalid blob type: %s (must be filesystem or s3)", c.Storage.BlobType)
	}

	if c.Storage.CacheEnabled {
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("redis URL is required when the cache is enabled")
		}
		if c.Taxonomy.WarmupSchedule != "" {
			if _, err := cron.ParseStandard(c.Taxonomy.WarmupSchedule); err != nil {
				return fmt.Errorf("invalid cache warmup schedule %q: %w", c.Taxonomy.WarmupSchedule, err)
			}
		}
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// splitList splits a comma-separated value, dropping blanks
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
