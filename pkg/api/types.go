package api

import (
	"github.com/platinummonkey/catalog/pkg/catalog"
	"github.com/platinummonkey/catalog/pkg/search"
	"github.com/platinummonkey/catalog/pkg/taxonomy"
)

// CreateApiRequest is the body of POST /apis. ID is generated when empty.
type CreateApiRequest struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Owner string `json:"owner,omitempty"`
}

// CreateVersionRequest is the body of POST /apis/{id}/versions
type CreateVersionRequest struct {
	Version string `json:"version"`
}

// ApiWithVersions is the representation of GET /apis/{id}
type ApiWithVersions struct {
	*catalog.Api
	Versions []*catalog.ApiVersion `json:"versions"`
}

// MetadataRequest is the body of PUT .../metadata
type MetadataRequest struct {
	Name             string `json:"name"`
	SystemIdentifier string `json:"system_identifier,omitempty"`
	Description      string `json:"description,omitempty"`
	Visibility       string `json:"visibility,omitempty"`
	Status           string `json:"status,omitempty"`
	BusinessUnit     string `json:"business_unit,omitempty"`
	ApiType          string `json:"api_type,omitempty"`
	Lifecycle        string `json:"lifecycle,omitempty"`
	OwnerTeam        string `json:"owner_team,omitempty"`
}

// ClassifyRequest is the body of POST .../classifications. An empty
// TaxonomyVersion links against the latest version holding the URN.
type ClassifyRequest struct {
	TaxonomyNID     string `json:"taxonomy_nid,omitempty"`
	TaxonomyURN     string `json:"taxonomy_urn"`
	TaxonomyVersion string `json:"taxonomy_version,omitempty"`
}

// EntryRequest is one element of PUT /taxonomies/{nid}/{version}/entries
type EntryRequest struct {
	URN         string `json:"urn"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
}

// PutEntriesResponse reports how many entries were stored
type PutEntriesResponse struct {
	NID     string `json:"nid"`
	Version string `json:"version"`
	Stored  int    `json:"stored"`
}

// TreeResponse is the body of GET /taxonomies/{nid}/{version}/tree
type TreeResponse struct {
	NID          string           `json:"nid"`
	Version      string           `json:"version"`
	Roots        []*taxonomy.Node `json:"roots"`
	Placeholders []string         `json:"placeholders,omitempty"`
	Rejected     []string         `json:"rejected,omitempty"`
}

// BrowseResponse is the body of GET /browse
type BrowseResponse struct {
	Subtree string          `json:"subtree,omitempty"`
	Groups  []*search.Group `json:"groups"`
}
