package filter

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/platinummonkey/catalog/pkg/catalog"
)

const paramPrefix = "filter["

// FromQuery extracts filters from request query parameters of the form
// filter[<kind>.<key>]=<value>. Each value occurrence becomes one filter.
// Parameters without the filter prefix are ignored.
func FromQuery(values url.Values) ([]Filter, error) {
	names := make([]string, 0, len(values))
	for name := range values {
		if strings.HasPrefix(name, paramPrefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var filters []Filter
	for _, name := range names {
		kind, key, err := parseParam(name)
		if err != nil {
			return nil, err
		}
		for _, v := range values[name] {
			filters = append(filters, Filter{Kind: kind, Key: key, Value: v})
		}
	}
	return filters, nil
}

func parseParam(name string) (Kind, string, error) {
	if !strings.HasSuffix(name, "]") {
		return 0, "", fmt.Errorf("%w: malformed filter parameter %q", catalog.ErrInvalidArgument, name)
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(name, paramPrefix), "]")
	kindName, key, ok := strings.Cut(inner, ".")
	if !ok || key == "" {
		return 0, "", fmt.Errorf("%w: filter parameter %q needs kind.key", catalog.ErrInvalidArgument, name)
	}
	kind, ok := ParseKind(kindName)
	if !ok {
		return 0, "", fmt.Errorf("%w: unknown filter kind %q", catalog.ErrInvalidArgument, kindName)
	}
	return kind, key, nil
}
