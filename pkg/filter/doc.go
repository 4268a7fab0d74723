// Package filter models catalog search filters and compiles them into
// backend-neutral predicates.
//
// A Filter is a tagged variant of three kinds:
//
//	filter.Metadata("visibility", "Public")      // attribute equality
//	filter.Classification("lang", "urn:lang:go")  // taxonomy subtree membership
//	filter.Query("name", "payments api")          // ordered contains-all-words
//
// Compile groups metadata filters by key, ORs the values of one key and ANDs
// distinct keys. Unknown metadata or query keys compile to a predicate that
// never matches. Classification filters are expanded through a resolver into
// one group per taxonomy: an API version must match some URN of every group.
//
// Predicates are plain values. Backends either evaluate them in memory with
// Match or translate them to their own query language.
package filter
