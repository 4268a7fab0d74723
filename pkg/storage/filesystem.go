package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/catalog/pkg/catalog"
	"github.com/platinummonkey/catalog/pkg/filter"
	"github.com/platinummonkey/catalog/pkg/taxonomy"
)

// FileSystemStorage implements Storage with JSON documents on the local
// filesystem:
//
//	<root>/apis/<id>/api.json
//	<root>/apis/<id>/versions/<version>/version.json
//	<root>/apis/<id>/versions/<version>/metadata.json
//	<root>/apis/<id>/versions/<version>/links.json
//	<root>/taxonomies/<nid>/<version>/taxonomy.json
//	<root>/taxonomies/<nid>/<version>/entries.json
//
// Path components are URL path escaped.
type FileSystemStorage struct {
	rootDir string
	mu      sync.RWMutex
}

// NewFileSystemStorage creates a new filesystem-based storage
func NewFileSystemStorage(rootDir string) (*FileSystemStorage, error) {
	for _, dir := range []string{filepath.Join(rootDir, "apis"), filepath.Join(rootDir, "taxonomies")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create root directory: %w", err)
		}
	}
	return &FileSystemStorage{rootDir: rootDir}, nil
}

func (s *FileSystemStorage) apiDir(id string) string {
	return filepath.Join(s.rootDir, "apis", escape(id))
}

func (s *FileSystemStorage) versionDir(apiID, version string) string {
	return filepath.Join(s.apiDir(apiID), "versions", escape(version))
}

func (s *FileSystemStorage) taxonomyDir(nid, version string) string {
	return filepath.Join(s.rootDir, "taxonomies", escape(nid), escape(version))
}

// CreateApi implements ApiWriter.CreateApi
func (s *FileSystemStorage) CreateApi(_ context.Context, a *catalog.Api) error {
	if err := a.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	file := filepath.Join(s.apiDir(a.ID), "api.json")
	if exists(file) {
		return fmt.Errorf("%w: api %s already exists", catalog.ErrConflict, a.ID)
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	return writeJSON(file, a)
}

// GetApi implements ApiRepository.GetApi
func (s *FileSystemStorage) GetApi(_ context.Context, id string) (*catalog.Api, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getApi(id)
}

func (s *FileSystemStorage) getApi(id string) (*catalog.Api, error) {
	var a catalog.Api
	if err := readJSON(filepath.Join(s.apiDir(id), "api.json"), &a); err != nil {
		return nil, fmt.Errorf("failed to read api %s: %w", id, err)
	}
	return &a, nil
}

// ListApis implements ApiRepository.ListApis
func (s *FileSystemStorage) ListApis(_ context.Context) ([]*catalog.Api, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := listDirs(filepath.Join(s.rootDir, "apis"))
	if err != nil {
		return nil, err
	}
	apis := make([]*catalog.Api, 0, len(ids))
	for _, id := range ids {
		a, err := s.getApi(id)
		if err != nil {
			return nil, err
		}
		apis = append(apis, a)
	}
	return apis, nil
}

// CreateVersion implements ApiWriter.CreateVersion
func (s *FileSystemStorage) CreateVersion(_ context.Context, v *catalog.ApiVersion) error {
	if err := v.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !exists(filepath.Join(s.apiDir(v.ApiID), "api.json")) {
		return fmt.Errorf("%w: api %s", catalog.ErrNotFound, v.ApiID)
	}
	file := filepath.Join(s.versionDir(v.ApiID, v.Version), "version.json")
	if exists(file) {
		return fmt.Errorf("%w: version %s of api %s already exists", catalog.ErrConflict, v.Version, v.ApiID)
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	return writeJSON(file, v)
}

// UpdateVersion implements ApiWriter.UpdateVersion
func (s *FileSystemStorage) UpdateVersion(_ context.Context, v *catalog.ApiVersion) error {
	if err := v.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	file := filepath.Join(s.versionDir(v.ApiID, v.Version), "version.json")
	if !exists(file) {
		return fmt.Errorf("%w: version %s of api %s", catalog.ErrNotFound, v.Version, v.ApiID)
	}
	return writeJSON(file, v)
}

// GetVersion implements ApiRepository.GetVersion
func (s *FileSystemStorage) GetVersion(_ context.Context, apiID, version string) (*catalog.ApiVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getVersion(apiID, version)
}

func (s *FileSystemStorage) getVersion(apiID, version string) (*catalog.ApiVersion, error) {
	var v catalog.ApiVersion
	if err := readJSON(filepath.Join(s.versionDir(apiID, version), "version.json"), &v); err != nil {
		return nil, fmt.Errorf("failed to read version %s of api %s: %w", version, apiID, err)
	}
	return &v, nil
}

// ListVersions implements ApiRepository.ListVersions
func (s *FileSystemStorage) ListVersions(_ context.Context, apiID string) ([]*catalog.ApiVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !exists(filepath.Join(s.apiDir(apiID), "api.json")) {
		return nil, fmt.Errorf("%w: api %s", catalog.ErrNotFound, apiID)
	}
	names, err := listDirs(filepath.Join(s.apiDir(apiID), "versions"))
	if err != nil {
		return nil, err
	}
	versions := make([]*catalog.ApiVersion, 0, len(names))
	for _, name := range names {
		v, err := s.getVersion(apiID, name)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, nil
}

// PutMetadata implements MetadataWriter.PutMetadata
func (s *FileSystemStorage) PutMetadata(_ context.Context, m *catalog.Metadata) error {
	if err := m.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	file := filepath.Join(s.versionDir(m.ApiID, m.ApiVersion), "metadata.json")
	now := time.Now().UTC()
	var existing catalog.Metadata
	if err := readJSON(file, &existing); err == nil {
		m.CreatedAt = existing.CreatedAt
	} else if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	return writeJSON(file, m)
}

// GetMetadata implements MetadataRepository.GetMetadata
func (s *FileSystemStorage) GetMetadata(_ context.Context, apiID, apiVersion string) (*catalog.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var m catalog.Metadata
	if err := readJSON(filepath.Join(s.versionDir(apiID, apiVersion), "metadata.json"), &m); err != nil {
		return nil, fmt.Errorf("failed to read metadata of %s@%s: %w", apiID, apiVersion, err)
	}
	return &m, nil
}

// ListMetadataMatching implements MetadataRepository.ListMetadataMatching
func (s *FileSystemStorage) ListMetadataMatching(_ context.Context, pred filter.Predicate) ([]*catalog.Metadata, error) {
	if pred.Op == filter.OpFalse {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*catalog.Metadata
	err := s.eachVersionDir(func(dir string) error {
		var m catalog.Metadata
		if err := readJSON(filepath.Join(dir, "metadata.json"), &m); err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return nil
			}
			return err
		}
		if pred.Match(&m) {
			out = append(out, &m)
		}
		return nil
	})
	return out, err
}

// PutLink implements ClassificationWriter.PutLink
func (s *FileSystemStorage) PutLink(_ context.Context, l *catalog.ClassificationLink) error {
	if err := l.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	file := filepath.Join(s.versionDir(l.ApiID, l.ApiVersion), "links.json")
	links, err := readLinks(file)
	if err != nil {
		return err
	}
	for _, existing := range links {
		if existing.Key() == l.Key() {
			l.CreatedAt = existing.CreatedAt
			*existing = *l
			return writeJSON(file, links)
		}
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	return writeJSON(file, append(links, l))
}

// DeleteLink implements ClassificationWriter.DeleteLink
func (s *FileSystemStorage) DeleteLink(_ context.Context, apiID, apiVersion, urn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file := filepath.Join(s.versionDir(apiID, apiVersion), "links.json")
	links, err := readLinks(file)
	if err != nil {
		return err
	}
	kept := links[:0]
	for _, l := range links {
		if l.TaxonomyURN != urn {
			kept = append(kept, l)
		}
	}
	if len(kept) == len(links) {
		return fmt.Errorf("%w: link %s|%s|%s", catalog.ErrNotFound, apiID, apiVersion, urn)
	}
	return writeJSON(file, kept)
}

// ListLinksForApi implements ClassificationRepository.ListLinksForApi
func (s *FileSystemStorage) ListLinksForApi(_ context.Context, apiID string) ([]*catalog.ClassificationLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions, err := listDirs(filepath.Join(s.apiDir(apiID), "versions"))
	if err != nil {
		return nil, err
	}
	var out []*catalog.ClassificationLink
	for _, v := range versions {
		links, err := readLinks(filepath.Join(s.versionDir(apiID, v), "links.json"))
		if err != nil {
			return nil, err
		}
		out = append(out, links...)
	}
	sortLinks(out)
	return out, nil
}

// ListLinksMatching implements ClassificationRepository.ListLinksMatching
func (s *FileSystemStorage) ListLinksMatching(_ context.Context, pred filter.Predicate) ([]*catalog.ClassificationLink, error) {
	if pred.Op == filter.OpFalse {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*catalog.ClassificationLink
	err := s.eachVersionDir(func(dir string) error {
		links, err := readLinks(filepath.Join(dir, "links.json"))
		if err != nil {
			return err
		}
		for _, l := range links {
			if pred.Match(l) {
				out = append(out, l)
			}
		}
		return nil
	})
	sortLinks(out)
	return out, err
}

// PutTaxonomy implements TaxonomyWriter.PutTaxonomy
func (s *FileSystemStorage) PutTaxonomy(_ context.Context, t *catalog.Taxonomy) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	file := filepath.Join(s.taxonomyDir(t.NID, t.Version), "taxonomy.json")
	var existing catalog.Taxonomy
	if err := readJSON(file, &existing); err == nil {
		t.CreatedAt = existing.CreatedAt
	} else if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	return writeJSON(file, t)
}

// GetTaxonomy implements TaxonomyRepository.GetTaxonomy
func (s *FileSystemStorage) GetTaxonomy(_ context.Context, nid, version string) (*catalog.Taxonomy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getTaxonomy(nid, version)
}

func (s *FileSystemStorage) getTaxonomy(nid, version string) (*catalog.Taxonomy, error) {
	var t catalog.Taxonomy
	if err := readJSON(filepath.Join(s.taxonomyDir(nid, version), "taxonomy.json"), &t); err != nil {
		return nil, fmt.Errorf("failed to read taxonomy %s@%s: %w", nid, version, err)
	}
	return &t, nil
}

// ListTaxonomies implements TaxonomyRepository.ListTaxonomies
func (s *FileSystemStorage) ListTaxonomies(_ context.Context) ([]*catalog.Taxonomy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listTaxonomies("")
}

func (s *FileSystemStorage) listTaxonomies(onlyNID string) ([]*catalog.Taxonomy, error) {
	nids, err := listDirs(filepath.Join(s.rootDir, "taxonomies"))
	if err != nil {
		return nil, err
	}
	var out []*catalog.Taxonomy
	for _, nid := range nids {
		if onlyNID != "" && nid != onlyNID {
			continue
		}
		versions, err := listDirs(filepath.Join(s.rootDir, "taxonomies", escape(nid)))
		if err != nil {
			return nil, err
		}
		for _, v := range versions {
			t, err := s.getTaxonomy(nid, v)
			if errors.Is(err, catalog.ErrNotFound) {
				// entries written before their header
				continue
			} else if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
	}
	return out, nil
}

// LatestTaxonomyVersion implements TaxonomyRepository.LatestTaxonomyVersion
func (s *FileSystemStorage) LatestTaxonomyVersion(_ context.Context, nid string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all, err := s.listTaxonomies(nid)
	if err != nil {
		return "", err
	}
	var latest *catalog.Taxonomy
	for _, t := range all {
		if latest == nil || newer(t.CreatedAt, t.Version, latest.CreatedAt, latest.Version) {
			latest = t
		}
	}
	if latest == nil {
		return "", fmt.Errorf("%w: taxonomy %s", catalog.ErrNotFound, nid)
	}
	return latest.Version, nil
}

// PutEntry implements TaxonomyWriter.PutEntry
func (s *FileSystemStorage) PutEntry(_ context.Context, e *catalog.TaxonomyURNEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	file := filepath.Join(s.taxonomyDir(e.NID, e.Version), "entries.json")
	entries, err := readEntries(file)
	if err != nil {
		return err
	}
	for i, existing := range entries {
		if existing.URN == e.URN {
			e.CreatedAt = existing.CreatedAt
			entries[i] = e
			return writeJSON(file, entries)
		}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return writeJSON(file, append(entries, e))
}

// GetEntry implements taxonomy.EntryStore.GetEntry
func (s *FileSystemStorage) GetEntry(ctx context.Context, urn, version string) (*catalog.TaxonomyURNEntry, error) {
	return s.GetEntryInTaxonomy(ctx, "", urn, version)
}

// GetEntryInTaxonomy implements taxonomy.EntryStore.GetEntryInTaxonomy. An
// empty nid searches every taxonomy.
func (s *FileSystemStorage) GetEntryInTaxonomy(_ context.Context, nid, urn, version string) (*catalog.TaxonomyURNEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *catalog.TaxonomyURNEntry
	err := s.eachEntry(nid, version, func(e *catalog.TaxonomyURNEntry) {
		if e.URN != urn {
			return
		}
		if found == nil || newer(e.CreatedAt, e.Version, found.CreatedAt, found.Version) {
			found = e
		}
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: taxonomy entry %s", catalog.ErrNotFound, urn)
	}
	return found, nil
}

// ListEntriesBelowURL implements taxonomy.EntryStore.ListEntriesBelowURL.
// Stored URLs are compared in canonical form; entries with malformed URLs
// are never returned.
func (s *FileSystemStorage) ListEntriesBelowURL(_ context.Context, nid, version, prefix string) ([]*catalog.TaxonomyURNEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix = strings.ToLower(prefix)
	var out []*catalog.TaxonomyURNEntry
	err := s.eachEntry(nid, version, func(e *catalog.TaxonomyURNEntry) {
		canonical, err := taxonomy.Canonical(e.URL)
		if err != nil {
			return
		}
		if strings.HasPrefix(canonical, prefix) {
			out = append(out, e)
		}
	})
	return out, err
}

// ListAllEntries implements taxonomy.EntryStore.ListAllEntries
func (s *FileSystemStorage) ListAllEntries(_ context.Context, nid, version string) ([]*catalog.TaxonomyURNEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return readEntries(filepath.Join(s.taxonomyDir(nid, version), "entries.json"))
}

// HealthCheck implements HealthChecker.HealthCheck
func (s *FileSystemStorage) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(s.rootDir); err != nil {
		return fmt.Errorf("storage root unavailable: %w", err)
	}
	return nil
}

// Close implements Storage.Close
func (s *FileSystemStorage) Close() error {
	return nil
}

func (s *FileSystemStorage) eachVersionDir(fn func(dir string) error) error {
	ids, err := listDirs(filepath.Join(s.rootDir, "apis"))
	if err != nil {
		return err
	}
	for _, id := range ids {
		versions, err := listDirs(filepath.Join(s.apiDir(id), "versions"))
		if err != nil {
			return err
		}
		for _, v := range versions {
			if err := fn(s.versionDir(id, v)); err != nil {
				return err
			}
		}
	}
	return nil
}

// eachEntry visits entries of the matching taxonomy versions. Empty nid or
// version match everything.
func (s *FileSystemStorage) eachEntry(nid, version string, fn func(*catalog.TaxonomyURNEntry)) error {
	nids, err := listDirs(filepath.Join(s.rootDir, "taxonomies"))
	if err != nil {
		return err
	}
	for _, n := range nids {
		if nid != "" && n != nid {
			continue
		}
		versions, err := listDirs(filepath.Join(s.rootDir, "taxonomies", escape(n)))
		if err != nil {
			return err
		}
		for _, v := range versions {
			if version != "" && v != version {
				continue
			}
			entries, err := readEntries(filepath.Join(s.taxonomyDir(n, v), "entries.json"))
			if err != nil {
				return err
			}
			for _, e := range entries {
				fn(e)
			}
		}
	}
	return nil
}

func readEntries(file string) ([]*catalog.TaxonomyURNEntry, error) {
	var entries []*catalog.TaxonomyURNEntry
	if err := readJSON(file, &entries); err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return nil, err
	}
	return entries, nil
}

func readLinks(file string) ([]*catalog.ClassificationLink, error) {
	var links []*catalog.ClassificationLink
	if err := readJSON(file, &links); err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return nil, err
	}
	return links, nil
}

func sortLinks(links []*catalog.ClassificationLink) {
	sort.Slice(links, func(i, j int) bool { return links[i].Key() < links[j].Key() })
}

// newer orders records by creation time, then by version string
func newer(at time.Time, version string, thanAt time.Time, thanVersion string) bool {
	if !at.Equal(thanAt) {
		return at.After(thanAt)
	}
	return version > thanVersion
}

func escape(name string) string {
	switch name {
	case ".", "..":
		return strings.ReplaceAll(name, ".", "%2E")
	}
	return url.PathEscape(name)
}

func unescape(name string) string {
	if u, err := url.PathUnescape(name); err == nil {
		return u
	}
	return name
}

// listDirs returns the unescaped names of the directories under dir, sorted.
// A missing dir is empty.
func listDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, unescape(entry.Name()))
		}
	}
	sort.Strings(names)
	return names, nil
}

func exists(file string) bool {
	_, err := os.Stat(file)
	return err == nil
}

func readJSON(file string, v interface{}) error {
	data, err := os.ReadFile(file)
	if errors.Is(err, os.ErrNotExist) {
		return catalog.ErrNotFound
	} else if err != nil {
		return fmt.Errorf("failed to read %s: %w", file, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", file, err)
	}
	return nil
}

func writeJSON(file string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(file), err)
	}
	if err := os.WriteFile(file, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(file), err)
	}
	return nil
}
