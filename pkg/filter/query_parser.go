package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/platinummonkey/catalog/pkg/catalog"
)

// QueryParser turns a compact search string into filters.
//
//	visibility:Public classification.domains:"urn:domains:payments" payment api
//
// A key is either <kind>.<key> or a bare metadata attribute name. Words
// that are not key:value pairs become one name query filter. Unknown bare
// keys are kept as query text.
type QueryParser struct {
	filterPattern *regexp.Regexp
}

// NewQueryParser creates a new query parser
func NewQueryParser() *QueryParser {
	// key:value or key:"quoted value"; keys may contain dots, hyphens and underscores
	return &QueryParser{
		filterPattern: regexp.MustCompile(`([\w.-]+):("([^"]*)"|(\S+))`),
	}
}

// Parse parses q into filters in the order they appear
func (p *QueryParser) Parse(q string) ([]Filter, error) {
	var filters []Filter
	var terms []string

	last := 0
	for _, m := range p.filterPattern.FindAllStringSubmatchIndex(q, -1) {
		terms = append(terms, strings.Fields(q[last:m[0]])...)
		last = m[1]

		key := q[m[2]:m[3]]
		var value string
		if m[6] >= 0 {
			value = q[m[6]:m[7]]
		} else {
			value = q[m[8]:m[9]]
		}

		f, ok, err := parseTerm(key, value)
		if err != nil {
			return nil, err
		}
		if ok {
			filters = append(filters, f)
		} else {
			terms = append(terms, q[m[0]:m[1]])
		}
	}
	terms = append(terms, strings.Fields(q[last:])...)

	if len(terms) > 0 {
		filters = append(filters, Query(catalog.AttrName, strings.Join(terms, " ")))
	}
	return filters, nil
}

func parseTerm(key, value string) (Filter, bool, error) {
	if kindName, sub, ok := strings.Cut(key, "."); ok {
		kind, known := ParseKind(kindName)
		if !known {
			return Filter{}, false, fmt.Errorf("%w: unknown filter kind %q", catalog.ErrInvalidArgument, kindName)
		}
		if sub == "" || value == "" {
			return Filter{}, false, fmt.Errorf("%w: filter %q needs a key and a value", catalog.ErrInvalidArgument, key)
		}
		return Filter{Kind: kind, Key: sub, Value: value}, true, nil
	}
	if catalog.IsMetadataAttribute(key) && value != "" {
		return Metadata(key, value), true, nil
	}
	return Filter{}, false, nil
}
