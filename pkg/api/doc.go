// Package api serves the catalog over HTTP with gorilla/mux.
//
// Routes:
//
//	POST|GET  /apis
//	GET       /apis/{id}
//	POST|GET  /apis/{id}/versions
//	GET       /apis/{id}/versions/{version}
//	PUT|GET   /apis/{id}/versions/{version}/metadata
//	PUT|GET   /apis/{id}/versions/{version}/specification
//	POST      /apis/{id}/versions/{version}/classifications
//	DELETE    /apis/{id}/versions/{version}/classifications/{urn}
//	GET       /apis/{id}/classifications
//	POST|GET  /taxonomies
//	PUT|GET   /taxonomies/{nid}/{version}/entries
//	GET       /taxonomies/{nid}/{version}/tree
//	GET       /search?filter[metadata.visibility]=Public&q=...
//	GET       /browse?filter[...]=...&subtree=taxonomy://...
//	GET       /catalog
//
// Write routes require a bearer token when Options.Tokens is set.
package api
