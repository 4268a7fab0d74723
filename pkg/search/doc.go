// Package search answers catalog queries.
//
// A search compiles its filters (see package filter) and picks one of three
// join orders:
//
//   - classification only: matching classification links, then metadata,
//     then API and version
//   - metadata only: matching metadata, then API and version
//   - mixed: the classification path, with candidates refined by the
//     metadata predicate
//
// All three produce the same results for the same filters. A record whose
// metadata, API or version is missing is skipped and counted; storage
// failures abort the request.
//
// Group buckets results under the taxonomy entries they are classified
// with, optionally restricted to a subtree:
//
//	groups, err := svc.Browse(ctx, []filter.Filter{
//		filter.Metadata("visibility", "Public"),
//	}, "taxonomy://lang")
package search
