package importer

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/catalog/pkg/catalog"
)

// File is the YAML layout of one taxonomy version:
//
//	nid: domains
//	version: "2024.1"
//	title: Business domains
//	entries:
//	  - urn: urn:domains:finance
//	    url: taxonomy://finance
//	    title: Finance
//	    type: classification
type File struct {
	NID         string  `yaml:"nid"`
	Version     string  `yaml:"version"`
	Title       string  `yaml:"title"`
	Description string  `yaml:"description,omitempty"`
	Entries     []Entry `yaml:"entries"`
}

// Entry is one taxonomy entry in a File
type Entry struct {
	URN         string `yaml:"urn"`
	URL         string `yaml:"url"`
	Title       string `yaml:"title"`
	Description string `yaml:"description,omitempty"`
	Type        string `yaml:"type,omitempty"`
}

// Parse decodes a taxonomy file. Unknown keys are errors.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty taxonomy file", catalog.ErrInvalidArgument)
		}
		return nil, fmt.Errorf("%w: %v", catalog.ErrInvalidArgument, err)
	}
	f.NID = strings.TrimSpace(f.NID)
	f.Version = strings.TrimSpace(f.Version)
	return &f, nil
}

// Taxonomy returns the collection header
func (f *File) Taxonomy() *catalog.Taxonomy {
	return &catalog.Taxonomy{
		NID:         f.NID,
		Version:     f.Version,
		Title:       f.Title,
		Description: f.Description,
	}
}

func (e Entry) toCatalog(nid, version string) *catalog.TaxonomyURNEntry {
	return &catalog.TaxonomyURNEntry{
		URN:         strings.TrimSpace(e.URN),
		URL:         strings.TrimSpace(e.URL),
		Title:       e.Title,
		Description: e.Description,
		NID:         nid,
		Version:     version,
		Type:        catalog.ParseEntryType(e.Type),
	}
}
