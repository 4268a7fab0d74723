package taxonomy

import (
	"strings"

	"github.com/platinummonkey/catalog/pkg/catalog"
)

const separator = "/"

// Segments splits a taxonomy URL into lower-cased path segments.
//
// The taxonomy:// scheme is optional and matched case-insensitively. One
// leading and one trailing separator are tolerated; any other empty segment
// (including repeated separators) is a *PathError.
func Segments(url string) ([]string, error) {
	path := strings.TrimSpace(url)
	if len(path) >= len(catalog.TaxonomyScheme) && strings.EqualFold(path[:len(catalog.TaxonomyScheme)], catalog.TaxonomyScheme) {
		path = path[len(catalog.TaxonomyScheme):]
	}
	path = strings.TrimPrefix(path, separator)
	path = strings.TrimSuffix(path, separator)
	if path == "" {
		return nil, &PathError{URL: url, Reason: "empty path"}
	}

	parts := strings.Split(path, separator)
	for i, part := range parts {
		if strings.TrimSpace(part) == "" {
			return nil, &PathError{URL: url, Reason: "empty segment"}
		}
		parts[i] = strings.ToLower(part)
	}
	return parts, nil
}

// Canonical returns the normalized form of a taxonomy URL: scheme, lower-cased
// segments, no leading or trailing separator
func Canonical(url string) (string, error) {
	segs, err := Segments(url)
	if err != nil {
		return "", err
	}
	return Join(segs), nil
}

// Join builds a canonical URL from segments
func Join(segs []string) string {
	return catalog.TaxonomyScheme + strings.Join(segs, separator)
}

// Within reports whether url is at or below prefix in the hierarchy.
// Matching is per segment: taxonomy://ab is not within taxonomy://a.
// Malformed inputs are never within anything.
func Within(url, prefix string) bool {
	segs, err := Segments(url)
	if err != nil {
		return false
	}
	prefixSegs, err := Segments(prefix)
	if err != nil {
		return false
	}
	if len(prefixSegs) > len(segs) {
		return false
	}
	for i, seg := range prefixSegs {
		if segs[i] != seg {
			return false
		}
	}
	return true
}

// Depth returns the number of segments in url, or 0 if it is malformed
func Depth(url string) int {
	segs, err := Segments(url)
	if err != nil {
		return 0
	}
	return len(segs)
}
