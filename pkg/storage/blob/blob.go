// Package blob stores API specification documents by content hash.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/platinummonkey/catalog/pkg/catalog"
	"github.com/platinummonkey/catalog/pkg/storage"
)

// Store is content-addressed: Put returns the SHA-256 of the content,
// which is then the only way to read it back.
type Store interface {
	Put(ctx context.Context, content []byte, contentType string) (string, error)
	Get(ctx context.Context, hash string) ([]byte, error)
	Exists(ctx context.Context, hash string) (bool, error)
	HealthCheck(ctx context.Context) error
}

// New returns the store selected by config.BlobType
func New(ctx context.Context, config storage.Config) (Store, error) {
	switch config.BlobType {
	case "", "filesystem":
		return NewFileStore(config.BlobRoot)
	case "s3":
		return NewS3Store(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported blob type %q", config.BlobType)
	}
}

var hashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Hash returns the hex SHA-256 of content
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// objectPath spreads objects over 256 prefixes: sha256/ab/cdef...
func objectPath(hash string) (string, error) {
	if !hashPattern.MatchString(hash) {
		return "", fmt.Errorf("%w: malformed specification hash %q", catalog.ErrInvalidArgument, hash)
	}
	return "sha256/" + hash[:2] + "/" + hash[2:], nil
}
