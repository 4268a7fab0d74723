package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/platinummonkey/catalog/pkg/catalog"
	"github.com/platinummonkey/catalog/pkg/httputil"
)

// createTaxonomy handles POST /taxonomies
func (s *Server) createTaxonomy(w http.ResponseWriter, r *http.Request) {
	var t catalog.Taxonomy
	if !httputil.ParseJSONOrError(w, r, &t) {
		return
	}
	t.CreatedAt = time.Now().UTC()
	if err := t.Validate(); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if err := s.store.PutTaxonomy(r.Context(), &t); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.taxonomyChanged(r, t.NID, t.Version)
	httputil.WriteCreated(w, t)
}

// listTaxonomies handles GET /taxonomies
func (s *Server) listTaxonomies(w http.ResponseWriter, r *http.Request) {
	taxonomies, err := s.store.ListTaxonomies(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if taxonomies == nil {
		taxonomies = []*catalog.Taxonomy{}
	}
	httputil.WriteSuccess(w, taxonomies)
}

// putEntries handles PUT /taxonomies/{nid}/{version}/entries. Entries are
// upserted; the whole batch is validated before anything is written.
func (s *Server) putEntries(w http.ResponseWriter, r *http.Request) {
	nid, ok := httputil.ParsePathStringOrError(w, r, "nid")
	if !ok {
		return
	}
	version, ok := httputil.ParsePathStringOrError(w, r, "version")
	if !ok {
		return
	}
	if _, err := s.store.GetTaxonomy(r.Context(), nid, version); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	var req []EntryRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	now := time.Now().UTC()
	entries := make([]*catalog.TaxonomyURNEntry, 0, len(req))
	for i, e := range req {
		entry := &catalog.TaxonomyURNEntry{
			URN:         e.URN,
			URL:         e.URL,
			Title:       e.Title,
			Description: e.Description,
			NID:         nid,
			Version:     version,
			Type:        catalog.ParseEntryType(e.Type),
			CreatedAt:   now,
		}
		if err := entry.Validate(); err != nil {
			httputil.WriteError(w, r, fmt.Errorf("entry %d: %w", i, err))
			return
		}
		entries = append(entries, entry)
	}

	for _, entry := range entries {
		if err := s.store.PutEntry(r.Context(), entry); err != nil {
			httputil.WriteError(w, r, err)
			return
		}
	}
	s.taxonomyChanged(r, nid, version)
	httputil.WriteSuccess(w, PutEntriesResponse{NID: nid, Version: version, Stored: len(entries)})
}

// listEntries handles GET /taxonomies/{nid}/{version}/entries
func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	nid, ok := httputil.ParsePathStringOrError(w, r, "nid")
	if !ok {
		return
	}
	version, ok := httputil.ParsePathStringOrError(w, r, "version")
	if !ok {
		return
	}
	if _, err := s.store.GetTaxonomy(r.Context(), nid, version); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	entries, err := s.store.ListAllEntries(r.Context(), nid, version)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*catalog.TaxonomyURNEntry{}
	}
	httputil.WriteSuccess(w, entries)
}

// getTree handles GET /taxonomies/{nid}/{version}/tree. The version
// "latest" selects the newest version of nid.
func (s *Server) getTree(w http.ResponseWriter, r *http.Request) {
	nid, ok := httputil.ParsePathStringOrError(w, r, "nid")
	if !ok {
		return
	}
	version, ok := httputil.ParsePathStringOrError(w, r, "version")
	if !ok {
		return
	}
	if version == "latest" {
		version = ""
	}

	result, err := s.trees.Tree(r.Context(), nid, version)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	resp := TreeResponse{
		NID:          result.NID,
		Version:      result.Version,
		Roots:        result.Tree.Roots(),
		Placeholders: result.Tree.Placeholders(),
	}
	for _, rejected := range result.Rejected {
		resp.Rejected = append(resp.Rejected, rejected.Error())
	}
	httputil.WriteSuccess(w, resp)
}
