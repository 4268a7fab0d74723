// Package taxonomy builds and queries path-addressed taxonomy hierarchies.
//
// A taxonomy entry is addressed by a URL of the form taxonomy://a/b/c. The
// segments, lower-cased, locate the entry in the hierarchy; the URN is a
// stable identifier that does not depend on the path.
//
// # Tree building
//
// Tree assembles flat entries into a forest. Nodes live in an arena indexed
// by canonical URL, so exact and prefix lookups are map lookups. Missing
// intermediate segments become placeholder nodes (empty URN) that are
// upgraded in place when their entry arrives, which makes the final shape
// independent of insertion order:
//
//	tree, rejected := taxonomy.Build(entries)
//	for _, err := range rejected {
//		log.Printf("skipped entry: %v", err)
//	}
//	roots := tree.Roots()
//
// Reference entries never join the hierarchy. An entry whose URN already sits
// at a different path is rejected with a *ConflictError.
//
// # Subtree resolution
//
// Resolver expands a classification URN into the URNs of its whole subtree
// using segment-respecting prefix matching: taxonomy://ab is not below
// taxonomy://a. A URN is only looked up inside the taxonomy named by the
// filter. Unknown URNs and malformed URLs resolve to the empty set.
package taxonomy
