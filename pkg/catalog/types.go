package catalog

import (
	"fmt"
	"strings"
	"time"
)

// TaxonomyScheme prefixes every taxonomy URL
const TaxonomyScheme = "taxonomy://"

// Api is a registered API
type Api struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Owner     string    `json:"owner,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks required fields
func (a *Api) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: api id is required", ErrInvalidArgument)
	}
	if a.Name == "" {
		return fmt.Errorf("%w: api name is required", ErrInvalidArgument)
	}
	return nil
}

// ApiVersion is a single published version of an API
type ApiVersion struct {
	ApiID             string    `json:"api_id"`
	Version           string    `json:"version"`
	SpecificationHash string    `json:"specification_hash,omitempty"`
	SpecificationType string    `json:"specification_type,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Validate checks required fields
func (v *ApiVersion) Validate() error {
	if v.ApiID == "" {
		return fmt.Errorf("%w: api id is required", ErrInvalidArgument)
	}
	if v.Version == "" {
		return fmt.Errorf("%w: version is required", ErrInvalidArgument)
	}
	return nil
}

// Metadata attribute names usable as metadata filter keys
const (
	AttrVisibility       = "visibility"
	AttrStatus           = "status"
	AttrBusinessUnit     = "businessUnit"
	AttrApiType          = "apiType"
	AttrLifecycle        = "lifecycle"
	AttrOwnerTeam        = "ownerTeam"
	AttrName             = "name"
	AttrSystemIdentifier = "systemIdentifier"
	AttrDescription      = "description"
)

var metadataAttributes = map[string]struct{}{
	AttrVisibility:       {},
	AttrStatus:           {},
	AttrBusinessUnit:     {},
	AttrApiType:          {},
	AttrLifecycle:        {},
	AttrOwnerTeam:        {},
	AttrName:             {},
	AttrSystemIdentifier: {},
}

var queryAttributes = map[string]struct{}{
	AttrName:             {},
	AttrSystemIdentifier: {},
	AttrDescription:      {},
}

// IsMetadataAttribute reports whether name may be used as a metadata filter key
func IsMetadataAttribute(name string) bool {
	_, ok := metadataAttributes[name]
	return ok
}

// IsQueryAttribute reports whether name may be used as a free-text query key
func IsQueryAttribute(name string) bool {
	_, ok := queryAttributes[name]
	return ok
}

// Metadata describes one API version
type Metadata struct {
	ApiID            string    `json:"api_id"`
	ApiVersion       string    `json:"api_version"`
	Name             string    `json:"name"`
	SystemIdentifier string    `json:"system_identifier,omitempty"`
	Description      string    `json:"description,omitempty"`
	Visibility       string    `json:"visibility,omitempty"`
	Status           string    `json:"status,omitempty"`
	BusinessUnit     string    `json:"business_unit,omitempty"`
	ApiType          string    `json:"api_type,omitempty"`
	Lifecycle        string    `json:"lifecycle,omitempty"`
	OwnerTeam        string    `json:"owner_team,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Field returns the value of a metadata attribute by filter name
func (m *Metadata) Field(name string) (string, bool) {
	switch name {
	case AttrVisibility:
		return m.Visibility, true
	case AttrStatus:
		return m.Status, true
	case AttrBusinessUnit:
		return m.BusinessUnit, true
	case AttrApiType:
		return m.ApiType, true
	case AttrLifecycle:
		return m.Lifecycle, true
	case AttrOwnerTeam:
		return m.OwnerTeam, true
	case AttrName:
		return m.Name, true
	case AttrSystemIdentifier:
		return m.SystemIdentifier, true
	case AttrDescription:
		return m.Description, true
	case "apiId":
		return m.ApiID, true
	case "apiVersion":
		return m.ApiVersion, true
	}
	return "", false
}

// Validate checks required fields
func (m *Metadata) Validate() error {
	if m.ApiID == "" || m.ApiVersion == "" {
		return fmt.Errorf("%w: metadata requires api id and version", ErrInvalidArgument)
	}
	if m.Name == "" {
		return fmt.Errorf("%w: metadata name is required", ErrInvalidArgument)
	}
	return nil
}

// Taxonomy is the header of a versioned taxonomy collection
type Taxonomy struct {
	NID         string    `json:"nid"`
	Version     string    `json:"version"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks required fields
func (t *Taxonomy) Validate() error {
	if t.NID == "" || t.Version == "" {
		return fmt.Errorf("%w: taxonomy requires nid and version", ErrInvalidArgument)
	}
	return nil
}

// EntryType classifies a taxonomy entry
type EntryType string

const (
	EntryTypeClassification EntryType = "classification"
	EntryTypeReference      EntryType = "reference"
	EntryTypeUnknown        EntryType = "unknown"
)

// ParseEntryType maps a string to an EntryType; unrecognised values map to unknown
func ParseEntryType(s string) EntryType {
	switch EntryType(strings.ToLower(strings.TrimSpace(s))) {
	case EntryTypeClassification:
		return EntryTypeClassification
	case EntryTypeReference:
		return EntryTypeReference
	default:
		return EntryTypeUnknown
	}
}

// TaxonomyURNEntry is one flat, persisted taxonomy entry
type TaxonomyURNEntry struct {
	URN         string    `json:"urn"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	NID         string    `json:"nid"`
	Version     string    `json:"version"`
	Type        EntryType `json:"type"`
	CreatedAt   time.Time `json:"created_at"`
}

// Key identifies the entry across taxonomy versions
func (e *TaxonomyURNEntry) Key() string {
	return e.NID + "|" + e.Version + "|" + e.URN
}

// Validate checks required fields
func (e *TaxonomyURNEntry) Validate() error {
	if e.URN == "" {
		return fmt.Errorf("%w: taxonomy entry urn is required", ErrInvalidArgument)
	}
	if e.NID == "" || e.Version == "" {
		return fmt.Errorf("%w: taxonomy entry %s requires nid and version", ErrInvalidArgument, e.URN)
	}
	if !strings.HasPrefix(strings.ToLower(e.URL), TaxonomyScheme) {
		return fmt.Errorf("%w: taxonomy entry %s url must start with %s", ErrInvalidArgument, e.URN, TaxonomyScheme)
	}
	return nil
}

// ClassificationLink asserts that an API version is classified under a taxonomy entry
type ClassificationLink struct {
	ApiID           string    `json:"api_id"`
	ApiVersion      string    `json:"api_version"`
	TaxonomyURN     string    `json:"taxonomy_urn"`
	TaxonomyNID     string    `json:"taxonomy_nid"`
	TaxonomyVersion string    `json:"taxonomy_version"`
	CreatedAt       time.Time `json:"created_at"`
}

// Key is the composite identity (apiId, apiVersion, taxonomyUrn)
func (l *ClassificationLink) Key() string {
	return l.ApiID + "|" + l.ApiVersion + "|" + l.TaxonomyURN
}

// Field returns the value of a link attribute by predicate field name
func (l *ClassificationLink) Field(name string) (string, bool) {
	switch name {
	case "apiId":
		return l.ApiID, true
	case "apiVersion":
		return l.ApiVersion, true
	case "taxonomyUrn":
		return l.TaxonomyURN, true
	case "taxonomyNid":
		return l.TaxonomyNID, true
	case "taxonomyVersion":
		return l.TaxonomyVersion, true
	}
	return "", false
}

// Validate checks required fields
func (l *ClassificationLink) Validate() error {
	if l.ApiID == "" || l.ApiVersion == "" {
		return fmt.Errorf("%w: classification requires api id and version", ErrInvalidArgument)
	}
	if l.TaxonomyURN == "" || l.TaxonomyNID == "" {
		return fmt.Errorf("%w: classification requires taxonomy urn and nid", ErrInvalidArgument)
	}
	return nil
}
