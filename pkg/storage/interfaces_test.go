package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Storage = (*FileSystemStorage)(nil)

// TestDefaultConfig tests the DefaultConfig function
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "filesystem", cfg.Type)
	assert.Equal(t, "/tmp/catalog", cfg.FilesystemRoot)
	assert.Equal(t, 20, cfg.PostgresMaxConns)
	assert.Equal(t, 2, cfg.PostgresMinConns)
	assert.Equal(t, 10*time.Second, cfg.PostgresTimeout)
	assert.Equal(t, "/tmp/catalog.db", cfg.SQLitePath)
	assert.Equal(t, "filesystem", cfg.BlobType)
	assert.Equal(t, 3, cfg.RedisMaxRetries)
	assert.Equal(t, 10, cfg.RedisPoolSize)
	assert.False(t, cfg.CacheEnabled)

	require.NotNil(t, cfg.CacheTTL)
	assert.Equal(t, 1*time.Hour, cfg.CacheTTL["entry"])
	assert.Equal(t, 15*time.Minute, cfg.CacheTTL["entries"])
	assert.Equal(t, 1*time.Minute, cfg.CacheTTL["latest"])
}

// TestConfig_CacheTTL_Modification checks each DefaultConfig call is independent
func TestConfig_CacheTTL_Modification(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CacheTTL["entry"] = time.Second

	assert.Equal(t, 1*time.Hour, DefaultConfig().CacheTTL["entry"])
}
