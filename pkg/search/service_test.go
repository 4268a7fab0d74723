package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/catalog/pkg/catalog"
	"github.com/platinummonkey/catalog/pkg/filter"
	"github.com/platinummonkey/catalog/pkg/observability"
	"github.com/platinummonkey/catalog/pkg/storage"
	"github.com/platinummonkey/catalog/pkg/taxonomy"
)

type countingRecorder struct {
	mu       sync.Mutex
	searches map[string]int
	skips    map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{searches: map[string]int{}, skips: map[string]int{}}
}

func (r *countingRecorder) RecordSearch(strategy string, _ time.Duration, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searches[strategy]++
}

func (r *countingRecorder) RecordSkip(stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skips[stage]++
}

type fixture struct {
	store    *storage.FileSystemStorage
	svc      *Service
	recorder *countingRecorder
}

// newFixture seeds two taxonomies and three classified APIs:
//
//	x@1 Public  "Payments API"  -> T1 (lang/java), D1 (payments)
//	y@1 Private "Ledger API"    -> T1
//	z@1 Public  "Go Toolkit"    -> T2 (lang/go)
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewFileSystemStorage(t.TempDir())
	require.NoError(t, err)

	for _, tx := range []*catalog.Taxonomy{
		{NID: "lang", Version: "1", Title: "Languages"},
		{NID: "domain", Version: "1", Title: "Domains"},
	} {
		require.NoError(t, store.PutTaxonomy(ctx, tx))
	}
	for _, e := range []*catalog.TaxonomyURNEntry{
		{URN: "L", URL: "taxonomy://lang", Title: "Languages", NID: "lang", Version: "1", Type: catalog.EntryTypeClassification},
		{URN: "T1", URL: "taxonomy://lang/java", Title: "Java", NID: "lang", Version: "1", Type: catalog.EntryTypeClassification},
		{URN: "T2", URL: "taxonomy://lang/go", Title: "Go", NID: "lang", Version: "1", Type: catalog.EntryTypeClassification},
		{URN: "D1", URL: "taxonomy://payments", Title: "Payments", NID: "domain", Version: "1", Type: catalog.EntryTypeClassification},
	} {
		require.NoError(t, store.PutEntry(ctx, e))
	}

	seed := func(id, visibility, name string, urns ...string) {
		require.NoError(t, store.CreateApi(ctx, &catalog.Api{ID: id, Name: name}))
		require.NoError(t, store.CreateVersion(ctx, &catalog.ApiVersion{ApiID: id, Version: "1"}))
		require.NoError(t, store.PutMetadata(ctx, &catalog.Metadata{ApiID: id, ApiVersion: "1", Name: name, Visibility: visibility}))
		for _, urn := range urns {
			nid := "lang"
			if urn == "D1" {
				nid = "domain"
			}
			require.NoError(t, store.PutLink(ctx, &catalog.ClassificationLink{
				ApiID: id, ApiVersion: "1", TaxonomyURN: urn, TaxonomyNID: nid, TaxonomyVersion: "1",
			}))
		}
	}
	seed("x", "Public", "Payments API", "T1", "D1")
	seed("y", "Private", "Ledger API", "T1")
	seed("z", "Public", "Go Toolkit", "T2")

	resolver := taxonomy.NewResolver(store, taxonomy.ResolverConfig{})
	svc := NewService(store, resolver, observability.NewLogger(observability.ErrorLevel, nil), DefaultConfig())
	rec := newCountingRecorder()
	svc.SetRecorder(rec)

	return &fixture{store: store, svc: svc, recorder: rec}
}

func ids(results []*Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Api.ID+"@"+r.Version.Version)
	}
	return out
}

func TestSearch_NoFiltersIsEmpty(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Search(context.Background(), Request{})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Equal(t, 0, resp.TotalCount)
	assert.Equal(t, "none", resp.Strategy)
}

func TestSearch_ClassificationOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Search(ctx, Request{Filters: []filter.Filter{filter.Classification("lang", "T1")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"x@1", "y@1"}, ids(resp.Results))
	assert.Equal(t, "classification", resp.Strategy)

	// the root entry covers its whole subtree
	resp, err = f.svc.Search(ctx, Request{Filters: []filter.Filter{filter.Classification("lang", "L")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"x@1", "y@1", "z@1"}, ids(resp.Results))
	assert.Equal(t, 2, f.recorder.searches["classification"])
}

func TestSearch_ClassificationAcrossTaxonomies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// or within one taxonomy
	resp, err := f.svc.Search(ctx, Request{Filters: []filter.Filter{
		filter.Classification("lang", "T1"),
		filter.Classification("lang", "T2"),
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"x@1", "y@1", "z@1"}, ids(resp.Results))

	// and across taxonomies
	resp, err = f.svc.Search(ctx, Request{Filters: []filter.Filter{
		filter.Classification("lang", "L"),
		filter.Classification("domain", "D1"),
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"x@1"}, ids(resp.Results))
}

func TestSearch_MetadataOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Search(ctx, Request{Filters: []filter.Filter{filter.Metadata("visibility", "Public")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"x@1", "z@1"}, ids(resp.Results))
	assert.Equal(t, "metadata", resp.Strategy)

	resp, err = f.svc.Search(ctx, Request{Filters: []filter.Filter{filter.Query("name", "api")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"x@1", "y@1"}, ids(resp.Results))
}

func TestSearch_MixedFilter(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Search(context.Background(), Request{Filters: []filter.Filter{
		filter.Classification("lang", "T1"),
		filter.Metadata("visibility", "Public"),
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"x@1"}, ids(resp.Results))
	assert.Equal(t, "mixed", resp.Strategy)
}

func TestSearch_StrategiesAgree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mixed, err := f.svc.Search(ctx, Request{Filters: []filter.Filter{
		filter.Classification("lang", "L"),
		filter.Metadata("visibility", "Public"),
	}})
	require.NoError(t, err)

	byClass, err := f.svc.Search(ctx, Request{Filters: []filter.Filter{filter.Classification("lang", "L")}})
	require.NoError(t, err)
	byMeta, err := f.svc.Search(ctx, Request{Filters: []filter.Filter{filter.Metadata("visibility", "Public")}})
	require.NoError(t, err)

	inMeta := map[string]bool{}
	for _, id := range ids(byMeta.Results) {
		inMeta[id] = true
	}
	var intersection []string
	for _, id := range ids(byClass.Results) {
		if inMeta[id] {
			intersection = append(intersection, id)
		}
	}
	assert.Equal(t, intersection, ids(mixed.Results))
}

func TestSearch_SameURNInAnotherTaxonomy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.PutTaxonomy(ctx, &catalog.Taxonomy{NID: "team", Version: "1"}))
	require.NoError(t, f.store.PutEntry(ctx, &catalog.TaxonomyURNEntry{
		URN: "T1", URL: "taxonomy://team/core", NID: "team", Version: "1",
		Type: catalog.EntryTypeClassification, CreatedAt: time.Now().Add(time.Hour),
	}))

	resp, err := f.svc.Search(ctx, Request{Filters: []filter.Filter{filter.Classification("lang", "T1")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"x@1", "y@1"}, ids(resp.Results))

	resp, err = f.svc.Search(ctx, Request{Filters: []filter.Filter{filter.Classification("team", "T1")}})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestSearch_FailsClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for name, filters := range map[string][]filter.Filter{
		"unknown metadata key": {filter.Metadata("doesNotExist", "Public")},
		"unknown query key":    {filter.Query("owner", "team")},
		"unknown urn":          {filter.Classification("lang", "nope")},
		"urn from other nid":   {filter.Classification("domain", "T1")},
		"bad key in mixed":     {filter.Classification("lang", "L"), filter.Metadata("doesNotExist", "x")},
	} {
		t.Run(name, func(t *testing.T) {
			resp, err := f.svc.Search(ctx, Request{Filters: filters})
			require.NoError(t, err)
			assert.Empty(t, resp.Results)
		})
	}
}

func TestSearch_SkipsBrokenReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// link whose version has no metadata
	require.NoError(t, f.store.CreateVersion(ctx, &catalog.ApiVersion{ApiID: "x", Version: "2"}))
	require.NoError(t, f.store.PutLink(ctx, &catalog.ClassificationLink{ApiID: "x", ApiVersion: "2", TaxonomyURN: "T1", TaxonomyNID: "lang", TaxonomyVersion: "1"}))
	// metadata and link for an API that was never created
	require.NoError(t, f.store.PutMetadata(ctx, &catalog.Metadata{ApiID: "ghost", ApiVersion: "1", Name: "Ghost"}))
	require.NoError(t, f.store.PutLink(ctx, &catalog.ClassificationLink{ApiID: "ghost", ApiVersion: "1", TaxonomyURN: "T1", TaxonomyNID: "lang", TaxonomyVersion: "1"}))

	resp, err := f.svc.Search(ctx, Request{Filters: []filter.Filter{filter.Classification("lang", "T1")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"x@1", "y@1"}, ids(resp.Results))
	assert.Equal(t, 1, f.recorder.skips[stageMetadata])
	assert.Equal(t, 1, f.recorder.skips[stageApi])
}

type failingLinks struct {
	*storage.FileSystemStorage
}

func (failingLinks) ListLinksMatching(context.Context, filter.Predicate) ([]*catalog.ClassificationLink, error) {
	return nil, errors.New("connection reset")
}

func TestSearch_StorageErrorAborts(t *testing.T) {
	f := newFixture(t)
	store := failingLinks{f.store}
	svc := NewService(store, taxonomy.NewResolver(store, taxonomy.ResolverConfig{}), nil, Config{})

	_, err := svc.Search(context.Background(), Request{Filters: []filter.Filter{filter.Classification("lang", "T1")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestSearch_Pagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	filters := []filter.Filter{filter.Classification("lang", "L")}

	resp, err := f.svc.Search(ctx, Request{Filters: filters, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"x@1", "y@1"}, ids(resp.Results))
	assert.Equal(t, 3, resp.TotalCount)

	resp, err = f.svc.Search(ctx, Request{Filters: filters, Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"z@1"}, ids(resp.Results))

	resp, err = f.svc.Search(ctx, Request{Filters: filters, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestStream_StopsEarly(t *testing.T) {
	f := newFixture(t)

	var seen []string
	err := f.svc.Stream(context.Background(), []filter.Filter{filter.Classification("lang", "L")}, func(r *Result) bool {
		seen = append(seen, r.Api.ID)
		return len(seen) < 2
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, seen)
}

func TestListAll(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.ListAll(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"x@1", "y@1", "z@1"}, ids(resp.Results))
	assert.Equal(t, "all", resp.Strategy)
}
