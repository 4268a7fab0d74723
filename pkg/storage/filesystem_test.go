package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/platinummonkey/catalog/pkg/catalog"
	"github.com/platinummonkey/catalog/pkg/filter"
)

func newTestStorage(t *testing.T) *FileSystemStorage {
	t.Helper()
	storage, err := NewFileSystemStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	return storage
}

func seedVersion(t *testing.T, s *FileSystemStorage, apiID, version string) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.GetApi(ctx, apiID); err != nil {
		if err := s.CreateApi(ctx, &catalog.Api{ID: apiID, Name: apiID}); err != nil {
			t.Fatalf("Failed to create api: %v", err)
		}
	}
	if err := s.CreateVersion(ctx, &catalog.ApiVersion{ApiID: apiID, Version: version}); err != nil {
		t.Fatalf("Failed to create version: %v", err)
	}
}

func TestNewFileSystemStorage(t *testing.T) {
	rootDir := filepath.Join(t.TempDir(), "test-storage")

	storage, err := NewFileSystemStorage(rootDir)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	if storage.rootDir != rootDir {
		t.Errorf("Expected rootDir %s, got %s", rootDir, storage.rootDir)
	}
	for _, dir := range []string{"apis", "taxonomies"} {
		if _, err := os.Stat(filepath.Join(rootDir, dir)); err != nil {
			t.Errorf("%s directory should have been created: %v", dir, err)
		}
	}
}

func TestFileSystemStorage_Apis(t *testing.T) {
	ctx := context.Background()

	t.Run("creates and reads api", func(t *testing.T) {
		s := newTestStorage(t)
		if err := s.CreateApi(ctx, &catalog.Api{ID: "payments", Name: "Payments", Owner: "team-a"}); err != nil {
			t.Fatalf("Failed to create api: %v", err)
		}

		got, err := s.GetApi(ctx, "payments")
		if err != nil {
			t.Fatalf("Failed to get api: %v", err)
		}
		if got.Name != "Payments" || got.Owner != "team-a" {
			t.Errorf("Unexpected api: %+v", got)
		}
		if got.CreatedAt.IsZero() {
			t.Error("CreatedAt should be set")
		}
	})

	t.Run("rejects duplicate api", func(t *testing.T) {
		s := newTestStorage(t)
		a := &catalog.Api{ID: "payments", Name: "Payments"}
		if err := s.CreateApi(ctx, a); err != nil {
			t.Fatalf("Failed to create api: %v", err)
		}
		err := s.CreateApi(ctx, &catalog.Api{ID: "payments", Name: "Other"})
		if !errors.Is(err, catalog.ErrConflict) {
			t.Errorf("Expected conflict, got %v", err)
		}
	})

	t.Run("missing api is not found", func(t *testing.T) {
		s := newTestStorage(t)
		_, err := s.GetApi(ctx, "nope")
		if !errors.Is(err, catalog.ErrNotFound) {
			t.Errorf("Expected not found, got %v", err)
		}
	})

	t.Run("lists apis sorted by id", func(t *testing.T) {
		s := newTestStorage(t)
		for _, id := range []string{"b", "a", "c"} {
			if err := s.CreateApi(ctx, &catalog.Api{ID: id, Name: id}); err != nil {
				t.Fatalf("Failed to create api: %v", err)
			}
		}
		apis, err := s.ListApis(ctx)
		if err != nil {
			t.Fatalf("Failed to list apis: %v", err)
		}
		if len(apis) != 3 || apis[0].ID != "a" || apis[2].ID != "c" {
			t.Errorf("Unexpected apis: %v", apis)
		}
	})
}

func TestFileSystemStorage_Versions(t *testing.T) {
	ctx := context.Background()

	t.Run("version requires api", func(t *testing.T) {
		s := newTestStorage(t)
		err := s.CreateVersion(ctx, &catalog.ApiVersion{ApiID: "ghost", Version: "1.0.0"})
		if !errors.Is(err, catalog.ErrNotFound) {
			t.Errorf("Expected not found, got %v", err)
		}
	})

	t.Run("creates, updates and lists versions", func(t *testing.T) {
		s := newTestStorage(t)
		seedVersion(t, s, "payments", "1.0.0")
		seedVersion(t, s, "payments", "2.0.0")

		err := s.CreateVersion(ctx, &catalog.ApiVersion{ApiID: "payments", Version: "1.0.0"})
		if !errors.Is(err, catalog.ErrConflict) {
			t.Errorf("Expected conflict, got %v", err)
		}

		v, err := s.GetVersion(ctx, "payments", "1.0.0")
		if err != nil {
			t.Fatalf("Failed to get version: %v", err)
		}
		v.SpecificationHash = "abc"
		if err := s.UpdateVersion(ctx, v); err != nil {
			t.Fatalf("Failed to update version: %v", err)
		}
		v, _ = s.GetVersion(ctx, "payments", "1.0.0")
		if v.SpecificationHash != "abc" {
			t.Errorf("Expected hash abc, got %q", v.SpecificationHash)
		}

		versions, err := s.ListVersions(ctx, "payments")
		if err != nil {
			t.Fatalf("Failed to list versions: %v", err)
		}
		if len(versions) != 2 {
			t.Errorf("Expected 2 versions, got %d", len(versions))
		}
	})

	t.Run("update of missing version is not found", func(t *testing.T) {
		s := newTestStorage(t)
		err := s.UpdateVersion(ctx, &catalog.ApiVersion{ApiID: "payments", Version: "9"})
		if !errors.Is(err, catalog.ErrNotFound) {
			t.Errorf("Expected not found, got %v", err)
		}
	})
}

func TestFileSystemStorage_Metadata(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	seedVersion(t, s, "x", "1")
	seedVersion(t, s, "y", "1")

	for _, m := range []*catalog.Metadata{
		{ApiID: "x", ApiVersion: "1", Name: "Payments API", Visibility: "Public"},
		{ApiID: "y", ApiVersion: "1", Name: "Ledger API", Visibility: "Private"},
	} {
		if err := s.PutMetadata(ctx, m); err != nil {
			t.Fatalf("Failed to put metadata: %v", err)
		}
	}

	t.Run("upsert keeps creation time", func(t *testing.T) {
		before, _ := s.GetMetadata(ctx, "x", "1")
		time.Sleep(time.Millisecond)
		if err := s.PutMetadata(ctx, &catalog.Metadata{ApiID: "x", ApiVersion: "1", Name: "Payments API", Visibility: "Public", Status: "live"}); err != nil {
			t.Fatalf("Failed to put metadata: %v", err)
		}
		after, _ := s.GetMetadata(ctx, "x", "1")
		if !after.CreatedAt.Equal(before.CreatedAt) {
			t.Errorf("CreatedAt changed from %v to %v", before.CreatedAt, after.CreatedAt)
		}
		if after.Status != "live" {
			t.Errorf("Expected status live, got %q", after.Status)
		}
	})

	t.Run("lists matching metadata", func(t *testing.T) {
		got, err := s.ListMetadataMatching(ctx, filter.Eq("visibility", "Public"))
		if err != nil {
			t.Fatalf("Failed to list metadata: %v", err)
		}
		if len(got) != 1 || got[0].ApiID != "x" {
			t.Errorf("Unexpected metadata: %v", got)
		}

		got, _ = s.ListMetadataMatching(ctx, filter.ContainsAll("name", "api"))
		if len(got) != 2 {
			t.Errorf("Expected 2 results, got %d", len(got))
		}

		got, _ = s.ListMetadataMatching(ctx, filter.False())
		if len(got) != 0 {
			t.Errorf("False predicate should match nothing, got %d", len(got))
		}
	})

	t.Run("missing metadata is not found", func(t *testing.T) {
		_, err := s.GetMetadata(ctx, "x", "2")
		if !errors.Is(err, catalog.ErrNotFound) {
			t.Errorf("Expected not found, got %v", err)
		}
	})
}

func TestFileSystemStorage_Links(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	seedVersion(t, s, "x", "1")
	seedVersion(t, s, "x", "2")

	links := []*catalog.ClassificationLink{
		{ApiID: "x", ApiVersion: "1", TaxonomyURN: "urn:lang:go", TaxonomyNID: "lang", TaxonomyVersion: "1"},
		{ApiID: "x", ApiVersion: "1", TaxonomyURN: "urn:domain:pay", TaxonomyNID: "domain", TaxonomyVersion: "1"},
		{ApiID: "x", ApiVersion: "2", TaxonomyURN: "urn:lang:java", TaxonomyNID: "lang", TaxonomyVersion: "1"},
	}
	for _, l := range links {
		if err := s.PutLink(ctx, l); err != nil {
			t.Fatalf("Failed to put link: %v", err)
		}
	}

	t.Run("put is idempotent", func(t *testing.T) {
		dup := *links[0]
		if err := s.PutLink(ctx, &dup); err != nil {
			t.Fatalf("Failed to put link: %v", err)
		}
		got, _ := s.ListLinksForApi(ctx, "x")
		if len(got) != 3 {
			t.Errorf("Expected 3 links, got %d", len(got))
		}
	})

	t.Run("lists matching links", func(t *testing.T) {
		got, err := s.ListLinksMatching(ctx, filter.And(
			filter.Eq(filter.FieldTaxonomyNID, "lang"),
			filter.In(filter.FieldTaxonomyURN, "urn:lang:go", "urn:lang:rust"),
		))
		if err != nil {
			t.Fatalf("Failed to list links: %v", err)
		}
		if len(got) != 1 || got[0].ApiVersion != "1" {
			t.Errorf("Unexpected links: %v", got)
		}
	})

	t.Run("deletes link", func(t *testing.T) {
		if err := s.DeleteLink(ctx, "x", "2", "urn:lang:java"); err != nil {
			t.Fatalf("Failed to delete link: %v", err)
		}
		err := s.DeleteLink(ctx, "x", "2", "urn:lang:java")
		if !errors.Is(err, catalog.ErrNotFound) {
			t.Errorf("Expected not found, got %v", err)
		}
		got, _ := s.ListLinksForApi(ctx, "x")
		if len(got) != 2 {
			t.Errorf("Expected 2 links, got %d", len(got))
		}
	})
}

func TestFileSystemStorage_Taxonomies(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.PutTaxonomy(ctx, &catalog.Taxonomy{NID: "lang", Version: "1", Title: "Languages", CreatedAt: old}); err != nil {
		t.Fatalf("Failed to put taxonomy: %v", err)
	}
	if err := s.PutTaxonomy(ctx, &catalog.Taxonomy{NID: "lang", Version: "2", Title: "Languages"}); err != nil {
		t.Fatalf("Failed to put taxonomy: %v", err)
	}

	entries := []*catalog.TaxonomyURNEntry{
		{URN: "urn:a", URL: "taxonomy://a", NID: "lang", Version: "1", Type: catalog.EntryTypeClassification, CreatedAt: old},
		{URN: "urn:ab", URL: "taxonomy://ab", NID: "lang", Version: "1", Type: catalog.EntryTypeClassification, CreatedAt: old},
		{URN: "urn:a-b", URL: "taxonomy:///A/B/", NID: "lang", Version: "1", Type: catalog.EntryTypeClassification, CreatedAt: old},
		{URN: "urn:a", URL: "taxonomy://a", NID: "lang", Version: "2", Type: catalog.EntryTypeClassification},
	}
	for _, e := range entries {
		if err := s.PutEntry(ctx, e); err != nil {
			t.Fatalf("Failed to put entry: %v", err)
		}
	}

	t.Run("latest version", func(t *testing.T) {
		v, err := s.LatestTaxonomyVersion(ctx, "lang")
		if err != nil {
			t.Fatalf("Failed to get latest version: %v", err)
		}
		if v != "2" {
			t.Errorf("Expected version 2, got %s", v)
		}

		_, err = s.LatestTaxonomyVersion(ctx, "unknown")
		if !errors.Is(err, catalog.ErrNotFound) {
			t.Errorf("Expected not found, got %v", err)
		}
	})

	t.Run("get entry picks newest when version empty", func(t *testing.T) {
		e, err := s.GetEntry(ctx, "urn:a", "")
		if err != nil {
			t.Fatalf("Failed to get entry: %v", err)
		}
		if e.Version != "2" {
			t.Errorf("Expected version 2, got %s", e.Version)
		}

		e, err = s.GetEntry(ctx, "urn:a", "1")
		if err != nil {
			t.Fatalf("Failed to get entry: %v", err)
		}
		if e.Version != "1" {
			t.Errorf("Expected version 1, got %s", e.Version)
		}
	})

	t.Run("entries below url compare canonical form", func(t *testing.T) {
		got, err := s.ListEntriesBelowURL(ctx, "lang", "1", "taxonomy://a")
		if err != nil {
			t.Fatalf("Failed to list entries: %v", err)
		}
		urns := map[string]bool{}
		for _, e := range got {
			urns[e.URN] = true
		}
		if !urns["urn:a"] || !urns["urn:a-b"] {
			t.Errorf("Expected urn:a and urn:a-b, got %v", urns)
		}
	})

	t.Run("upsert entry", func(t *testing.T) {
		if err := s.PutEntry(ctx, &catalog.TaxonomyURNEntry{URN: "urn:ab", URL: "taxonomy://ab", Title: "AB", NID: "lang", Version: "1"}); err != nil {
			t.Fatalf("Failed to put entry: %v", err)
		}
		all, err := s.ListAllEntries(ctx, "lang", "1")
		if err != nil {
			t.Fatalf("Failed to list entries: %v", err)
		}
		if len(all) != 3 {
			t.Errorf("Expected 3 entries, got %d", len(all))
		}
	})

	t.Run("list taxonomies", func(t *testing.T) {
		all, err := s.ListTaxonomies(ctx)
		if err != nil {
			t.Fatalf("Failed to list taxonomies: %v", err)
		}
		if len(all) != 2 {
			t.Errorf("Expected 2 taxonomies, got %d", len(all))
		}
	})
}

func TestFileSystemStorage_EscapesNames(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	e := &catalog.TaxonomyURNEntry{URN: "urn:x", URL: "taxonomy://x", NID: "a/b", Version: "..", Type: catalog.EntryTypeClassification}
	if err := s.PutEntry(ctx, e); err != nil {
		t.Fatalf("Failed to put entry: %v", err)
	}
	got, err := s.GetEntry(ctx, "urn:x", "..")
	if err != nil {
		t.Fatalf("Failed to get entry: %v", err)
	}
	if got.NID != "a/b" {
		t.Errorf("Expected nid a/b, got %s", got.NID)
	}
}

func TestFileSystemStorage_HealthCheck(t *testing.T) {
	t.Run("returns nil for healthy storage", func(t *testing.T) {
		s := newTestStorage(t)
		if err := s.HealthCheck(context.Background()); err != nil {
			t.Errorf("HealthCheck should return nil, got: %v", err)
		}
	})

	t.Run("returns error for missing root directory", func(t *testing.T) {
		s := newTestStorage(t)
		if err := os.RemoveAll(s.rootDir); err != nil {
			t.Fatalf("Failed to remove directory: %v", err)
		}
		if err := s.HealthCheck(context.Background()); err == nil {
			t.Error("HealthCheck should return error for missing directory")
		}
	})
}
