package taxonomy

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/catalog/pkg/catalog"
	"github.com/platinummonkey/catalog/pkg/observability"
)

// VersionStore resolves the current version of a taxonomy
type VersionStore interface {
	LatestTaxonomyVersion(ctx context.Context, nid string) (string, error)
}

// TreeService builds hierarchy trees from stored taxonomy entries
type TreeService struct {
	entries  EntryStore
	versions VersionStore
	logger   *observability.Logger
}

// NewTreeService creates a tree service
func NewTreeService(entries EntryStore, versions VersionStore, logger *observability.Logger) *TreeService {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &TreeService{
		entries:  entries,
		versions: versions,
		logger:   logger,
	}
}

// TreeResult is a freshly built tree plus the entries it refused.
// Reference entries are left out silently.
type TreeResult struct {
	NID      string
	Version  string
	Tree     *Tree
	Rejected []error
}

// Tree loads every entry of (nid, version) and builds the hierarchy.
// An empty version selects the latest one.
func (s *TreeService) Tree(ctx context.Context, nid, version string) (*TreeResult, error) {
	if nid == "" {
		return nil, fmt.Errorf("%w: taxonomy nid is required", catalog.ErrInvalidArgument)
	}
	if version == "" {
		latest, err := s.versions.LatestTaxonomyVersion(ctx, nid)
		if err != nil {
			return nil, err
		}
		version = latest
	}

	entries, err := s.entries.ListAllEntries(ctx, nid, version)
	if err != nil {
		return nil, fmt.Errorf("failed to list taxonomy entries: %w", err)
	}

	tree := NewTree()
	var rejected []error
	for _, entry := range entries {
		err := tree.Insert(entry)
		if err != nil && !errors.Is(err, ErrReferenceEntry) {
			rejected = append(rejected, err)
		}
	}
	if len(rejected) > 0 {
		s.logger.WithFields(map[string]interface{}{
			"nid":      nid,
			"version":  version,
			"rejected": len(rejected),
		}).Debug("taxonomy entries left out of tree")
	}

	return &TreeResult{
		NID:      nid,
		Version:  version,
		Tree:     tree,
		Rejected: rejected,
	}, nil
}
