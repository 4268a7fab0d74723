// Package catalog defines the entities of the API catalog: APIs, their
// versions and metadata, taxonomy entries, and the classification links that
// tie an API version to a taxonomy entry.
//
// The types here carry no behaviour beyond validation and attribute access;
// persistence lives in pkg/storage and the classification engine in
// pkg/taxonomy, pkg/filter and pkg/search.
package catalog
