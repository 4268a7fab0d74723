package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/catalog/pkg/catalog"
)

// EntryStore is the read side of taxonomy persistence used by this package
type EntryStore interface {
	// GetEntry returns the entry for urn in the given taxonomy version.
	// An empty version selects the most recently created version holding urn.
	GetEntry(ctx context.Context, urn, version string) (*catalog.TaxonomyURNEntry, error)

	// GetEntryInTaxonomy is GetEntry restricted to taxonomy nid. An empty
	// nid matches any taxonomy.
	GetEntryInTaxonomy(ctx context.Context, nid, urn, version string) (*catalog.TaxonomyURNEntry, error)

	// ListEntriesBelowURL returns candidate entries whose URL starts with url.
	// Implementations may over-match on raw string prefix; callers refine.
	ListEntriesBelowURL(ctx context.Context, nid, version, url string) ([]*catalog.TaxonomyURNEntry, error)

	// ListAllEntries returns every entry of one taxonomy version
	ListAllEntries(ctx context.Context, nid, version string) ([]*catalog.TaxonomyURNEntry, error)
}

// URNSet is a set of taxonomy URNs
type URNSet map[string]struct{}

// NewURNSet returns a set holding urns
func NewURNSet(urns ...string) URNSet {
	s := make(URNSet, len(urns))
	for _, urn := range urns {
		s[urn] = struct{}{}
	}
	return s
}

// Contains reports membership
func (s URNSet) Contains(urn string) bool {
	_, ok := s[urn]
	return ok
}

// Sorted returns the members in lexical order
func (s URNSet) Sorted() []string {
	urns := make([]string, 0, len(s))
	for urn := range s {
		urns = append(urns, urn)
	}
	sort.Strings(urns)
	return urns
}

// ResolverConfig controls the resolved-subtree cache
type ResolverConfig struct {
	CacheSize int
	CacheTTL  time.Duration
}

// DefaultResolverConfig returns the defaults used by the server
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		CacheSize: 1024,
		CacheTTL:  5 * time.Minute,
	}
}

// Resolver expands a classification URN into the URNs of its subtree
type Resolver struct {
	store  EntryStore
	cache  *lru.LRU[string, URNSet]
	hits   atomic.Int64
	misses atomic.Int64

	// gen is bumped by Invalidate under mu; sets resolved under an older
	// generation are not cached
	mu  sync.Mutex
	gen atomic.Uint64
}

// NewResolver creates a resolver. A zero CacheSize disables caching.
func NewResolver(store EntryStore, cfg ResolverConfig) *Resolver {
	r := &Resolver{store: store}
	if cfg.CacheSize > 0 {
		r.cache = lru.NewLRU[string, URNSet](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return r
}

// Resolve returns urn together with the URN of every entry at or below its
// URL in the same taxonomy version. When nid is set the entry must belong to
// that taxonomy. Unknown URNs, foreign taxonomies and malformed URLs resolve
// to an empty set without error; only storage failures are returned.
// Returned sets may be shared through the cache and must not be modified.
func (r *Resolver) Resolve(ctx context.Context, nid, urn string) (URNSet, error) {
	key := nid + "|" + urn
	if r.cache != nil {
		if set, ok := r.cache.Get(key); ok {
			r.hits.Add(1)
			return set, nil
		}
		r.misses.Add(1)
	}

	gen := r.gen.Load()
	set, err := r.resolve(ctx, nid, urn)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.mu.Lock()
		if r.gen.Load() == gen {
			r.cache.Add(key, set)
		}
		r.mu.Unlock()
	}
	return set, nil
}

func (r *Resolver) resolve(ctx context.Context, nid, urn string) (URNSet, error) {
	entry, err := r.store.GetEntryInTaxonomy(ctx, nid, urn, "")
	if errors.Is(err, catalog.ErrNotFound) {
		return URNSet{}, nil
	} else if err != nil {
		return nil, err
	}

	root, err := Canonical(entry.URL)
	if err != nil {
		return URNSet{}, nil
	}

	candidates, err := r.store.ListEntriesBelowURL(ctx, entry.NID, entry.Version, root)
	if err != nil {
		return nil, err
	}

	set := NewURNSet(entry.URN)
	for _, c := range candidates {
		if c.NID != entry.NID || c.Version != entry.Version {
			continue
		}
		if Within(c.URL, root) {
			set[c.URN] = struct{}{}
		}
	}
	return set, nil
}

// SubtreeRoot is the anchor of a browse subtree. NID is set when the root
// was given as an entry URN and confines the subtree to that taxonomy.
type SubtreeRoot struct {
	NID string
	URL string
}

// Contains reports whether e lies at or below the root
func (s SubtreeRoot) Contains(e *catalog.TaxonomyURNEntry) bool {
	if s.NID != "" && e.NID != s.NID {
		return false
	}
	return Within(e.URL, s.URL)
}

// Subtree returns the root that ref designates. A ref carrying the
// taxonomy:// scheme is a URL and need not belong to any entry; it spans
// every taxonomy. Anything else is looked up as a URN and scopes the root to
// that entry's taxonomy. Unresolvable refs return catalog.ErrNotFound.
func (r *Resolver) Subtree(ctx context.Context, ref string) (SubtreeRoot, error) {
	if hasScheme(ref) {
		canonical, err := Canonical(ref)
		if err != nil {
			return SubtreeRoot{}, fmt.Errorf("%w: %v", catalog.ErrNotFound, err)
		}
		return SubtreeRoot{URL: canonical}, nil
	}

	entry, err := r.store.GetEntry(ctx, ref, "")
	if err != nil {
		return SubtreeRoot{}, err
	}
	canonical, err := Canonical(entry.URL)
	if err != nil {
		return SubtreeRoot{}, fmt.Errorf("%w: %v", catalog.ErrNotFound, err)
	}
	return SubtreeRoot{NID: entry.NID, URL: canonical}, nil
}

// Invalidate drops every cached subtree
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen.Add(1)
	if r.cache != nil {
		r.cache.Purge()
	}
}

// CacheStats returns cache hit and miss counts
func (r *Resolver) CacheStats() (hits, misses int64) {
	return r.hits.Load(), r.misses.Load()
}

func hasScheme(ref string) bool {
	n := len(catalog.TaxonomyScheme)
	return len(ref) >= n && strings.EqualFold(ref[:n], catalog.TaxonomyScheme)
}
