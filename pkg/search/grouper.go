package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/catalog/pkg/catalog"
	"github.com/platinummonkey/catalog/pkg/filter"
	"github.com/platinummonkey/catalog/pkg/taxonomy"
)

// Group is one taxonomy entry with the metadata classified under it
type Group struct {
	Entry    *catalog.TaxonomyURNEntry `json:"entry"`
	Metadata []*catalog.Metadata       `json:"metadata"`
}

// Group buckets results by the taxonomy entries their API versions are
// classified under. Buckets are keyed by (nid, version, urn) so one URN in two
// taxonomy versions yields two buckets. When subtree is set, as a taxonomy://
// URL or an entry URN, only entries at or below it are kept; a subtree that
// cannot be resolved keeps nothing. A URN subtree is confined to the
// taxonomy of that entry. Groups are ordered by entry URL.
func (s *Service) Group(ctx context.Context, results []*Result, subtree string) ([]*Group, error) {
	ctx, span := searchTracer.Start(ctx, "Group",
		trace.WithAttributes(
			attribute.Int("results", len(results)),
			attribute.String("subtree", subtree),
		),
	)
	defer span.End()

	var root taxonomy.SubtreeRoot
	if subtree != "" {
		var err error
		root, err = s.resolver.Subtree(ctx, subtree)
		if errors.Is(err, catalog.ErrNotFound) {
			return []*Group{}, nil
		} else if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to resolve subtree %s: %w", subtree, err)
		}
	}

	links, err := s.linksByApi(ctx, results)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	entries := make(map[string]*catalog.TaxonomyURNEntry)
	buckets := make(map[string]*Group)
	for _, r := range results {
		for _, l := range links[r.Metadata.ApiID] {
			if l.ApiVersion != r.Metadata.ApiVersion {
				continue
			}

			entryKey := l.TaxonomyNID + "|" + l.TaxonomyURN + "|" + l.TaxonomyVersion
			entry, seen := entries[entryKey]
			if !seen {
				entry, err = s.store.GetEntryInTaxonomy(ctx, l.TaxonomyNID, l.TaxonomyURN, l.TaxonomyVersion)
				if err != nil {
					if err := s.skip(ctx, err, stageEntry, l.ApiID, l.ApiVersion); err != nil {
						return nil, fmt.Errorf("failed to get taxonomy entry: %w", err)
					}
					entry = nil
				}
				entries[entryKey] = entry
			}
			if entry == nil {
				continue
			}
			if subtree != "" && !root.Contains(entry) {
				continue
			}

			g, ok := buckets[entry.Key()]
			if !ok {
				g = &Group{Entry: entry}
				buckets[entry.Key()] = g
			}
			g.Metadata = append(g.Metadata, r.Metadata)
		}
	}

	groups := make([]*Group, 0, len(buckets))
	for _, g := range buckets {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		ui, uj := canonicalOrRaw(groups[i].Entry.URL), canonicalOrRaw(groups[j].Entry.URL)
		if ui != uj {
			return ui < uj
		}
		return groups[i].Entry.Key() < groups[j].Entry.Key()
	})
	return groups, nil
}

// Browse searches with filters and groups the results under subtree. With
// no filters every API version is grouped.
func (s *Service) Browse(ctx context.Context, filters []filter.Filter, subtree string) ([]*Group, error) {
	ctx, span := searchTracer.Start(ctx, "Browse")
	defer span.End()

	var results []*Result
	collect := func(r *Result) bool {
		results = append(results, r)
		return true
	}

	if len(filters) == 0 {
		candidates, err := s.store.ListMetadataMatching(ctx, filter.True())
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to list metadata: %w", err)
		}
		sortMetadata(candidates)
		if err := s.join(ctx, candidates, collect); err != nil {
			return nil, err
		}
	} else if err := s.Stream(ctx, filters, collect); err != nil {
		return nil, err
	}

	return s.Group(ctx, results, subtree)
}

// linksByApi fetches the classification links of every distinct API in
// results, with bounded concurrency.
func (s *Service) linksByApi(ctx context.Context, results []*Result) (map[string][]*catalog.ClassificationLink, error) {
	ids := make(map[string]struct{})
	for _, r := range results {
		ids[r.Metadata.ApiID] = struct{}{}
	}

	var mu sync.Mutex
	out := make(map[string][]*catalog.ClassificationLink, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.GroupConcurrency)
	for id := range ids {
		id := id
		g.Go(func() error {
			links, err := s.store.ListLinksForApi(gctx, id)
			if err != nil {
				return fmt.Errorf("failed to list links for api %s: %w", id, err)
			}
			mu.Lock()
			out[id] = links
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func canonicalOrRaw(url string) string {
	if c, err := taxonomy.Canonical(url); err == nil {
		return c
	}
	return url
}
