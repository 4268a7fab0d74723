package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/catalog/pkg/catalog"
	"github.com/platinummonkey/catalog/pkg/httputil"
)

// createApi handles POST /apis
func (s *Server) createApi(w http.ResponseWriter, r *http.Request) {
	var req CreateApiRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	now := time.Now().UTC()
	a := &catalog.Api{
		ID:        req.ID,
		Name:      req.Name,
		Owner:     req.Owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if err := a.Validate(); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if err := s.store.CreateApi(r.Context(), a); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteCreated(w, a)
}

// listApis handles GET /apis
func (s *Server) listApis(w http.ResponseWriter, r *http.Request) {
	apis, err := s.store.ListApis(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if apis == nil {
		apis = []*catalog.Api{}
	}
	httputil.WriteSuccess(w, apis)
}

// getApi handles GET /apis/{id}
func (s *Server) getApi(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	a, err := s.store.GetApi(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	versions, err := s.store.ListVersions(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if versions == nil {
		versions = []*catalog.ApiVersion{}
	}
	httputil.WriteSuccess(w, ApiWithVersions{Api: a, Versions: versions})
}

// createVersion handles POST /apis/{id}/versions
func (s *Server) createVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req CreateVersionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	v := &catalog.ApiVersion{
		ApiID:     id,
		Version:   req.Version,
		CreatedAt: time.Now().UTC(),
	}
	if err := v.Validate(); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if err := s.store.CreateVersion(r.Context(), v); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteCreated(w, v)
}

// listVersions handles GET /apis/{id}/versions
func (s *Server) listVersions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	if _, err := s.store.GetApi(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	versions, err := s.store.ListVersions(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if versions == nil {
		versions = []*catalog.ApiVersion{}
	}
	httputil.WriteSuccess(w, versions)
}

// getVersion handles GET /apis/{id}/versions/{version}
func (s *Server) getVersion(w http.ResponseWriter, r *http.Request) {
	v, ok := s.loadVersion(w, r)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, v)
}

// loadVersion resolves the {id}/{version} path pair, writing the error reply
// when it does not exist.
func (s *Server) loadVersion(w http.ResponseWriter, r *http.Request) (*catalog.ApiVersion, bool) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return nil, false
	}
	version, ok := httputil.ParsePathStringOrError(w, r, "version")
	if !ok {
		return nil, false
	}
	v, err := s.store.GetVersion(r.Context(), id, version)
	if err != nil {
		httputil.WriteError(w, r, err)
		return nil, false
	}
	return v, true
}

// putMetadata handles PUT /apis/{id}/versions/{version}/metadata
func (s *Server) putMetadata(w http.ResponseWriter, r *http.Request) {
	v, ok := s.loadVersion(w, r)
	if !ok {
		return
	}
	var req MetadataRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	now := time.Now().UTC()
	m := &catalog.Metadata{
		ApiID:            v.ApiID,
		ApiVersion:       v.Version,
		Name:             req.Name,
		SystemIdentifier: req.SystemIdentifier,
		Description:      req.Description,
		Visibility:       req.Visibility,
		Status:           req.Status,
		BusinessUnit:     req.BusinessUnit,
		ApiType:          req.ApiType,
		Lifecycle:        req.Lifecycle,
		OwnerTeam:        req.OwnerTeam,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if existing, err := s.store.GetMetadata(r.Context(), v.ApiID, v.Version); err == nil {
		m.CreatedAt = existing.CreatedAt
	} else if !catalog.IsNotFound(err) {
		httputil.WriteError(w, r, err)
		return
	}
	if err := m.Validate(); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if err := s.store.PutMetadata(r.Context(), m); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, m)
}

// getMetadata handles GET /apis/{id}/versions/{version}/metadata
func (s *Server) getMetadata(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	version, ok := httputil.ParsePathStringOrError(w, r, "version")
	if !ok {
		return
	}
	m, err := s.store.GetMetadata(r.Context(), id, version)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, m)
}

// putSpecification handles PUT /apis/{id}/versions/{version}/specification.
// The body is stored as a content-addressed blob and the version records
// its hash and content type.
func (s *Server) putSpecification(w http.ResponseWriter, r *http.Request) {
	v, ok := s.loadVersion(w, r)
	if !ok {
		return
	}
	content, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteBadRequest(w, fmt.Sprintf("failed to read specification: %v", err))
		return
	}
	if len(content) == 0 {
		httputil.WriteBadRequest(w, "specification body is empty")
		return
	}
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(content)
	}

	hash, err := s.blobs.Put(r.Context(), content, contentType)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	v.SpecificationHash = hash
	v.SpecificationType = contentType
	if err := s.store.UpdateVersion(r.Context(), v); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, v)
}

// getSpecification handles GET /apis/{id}/versions/{version}/specification
func (s *Server) getSpecification(w http.ResponseWriter, r *http.Request) {
	v, ok := s.loadVersion(w, r)
	if !ok {
		return
	}
	if v.SpecificationHash == "" {
		httputil.WriteNotFoundError(w, fmt.Sprintf("api %s version %s has no specification", v.ApiID, v.Version))
		return
	}
	content, err := s.blobs.Get(r.Context(), v.SpecificationHash)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", v.SpecificationType)
	w.Header().Set("ETag", `"`+v.SpecificationHash+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(content)
}

// classify handles POST /apis/{id}/versions/{version}/classifications
func (s *Server) classify(w http.ResponseWriter, r *http.Request) {
	v, ok := s.loadVersion(w, r)
	if !ok {
		return
	}
	var req ClassifyRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.TaxonomyURN) == "" {
		httputil.WriteBadRequest(w, "taxonomy_urn is required")
		return
	}

	entry, err := s.store.GetEntryInTaxonomy(r.Context(), req.TaxonomyNID, req.TaxonomyURN, req.TaxonomyVersion)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	link := &catalog.ClassificationLink{
		ApiID:           v.ApiID,
		ApiVersion:      v.Version,
		TaxonomyURN:     entry.URN,
		TaxonomyNID:     entry.NID,
		TaxonomyVersion: entry.Version,
		CreatedAt:       time.Now().UTC(),
	}
	if err := link.Validate(); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if err := s.store.PutLink(r.Context(), link); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteCreated(w, link)
}

// unclassify handles DELETE /apis/{id}/versions/{version}/classifications/{urn}
func (s *Server) unclassify(w http.ResponseWriter, r *http.Request) {
	v, ok := s.loadVersion(w, r)
	if !ok {
		return
	}
	urn, ok := httputil.ParsePathStringOrError(w, r, "urn")
	if !ok {
		return
	}
	if err := s.store.DeleteLink(r.Context(), v.ApiID, v.Version, urn); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// listClassifications handles GET /apis/{id}/classifications
func (s *Server) listClassifications(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	if _, err := s.store.GetApi(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	links, err := s.store.ListLinksForApi(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if links == nil {
		links = []*catalog.ClassificationLink{}
	}
	httputil.WriteSuccess(w, links)
}
