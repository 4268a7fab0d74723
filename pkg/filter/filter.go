package filter

import "fmt"

// Kind tags a Filter
type Kind int

const (
	KindMetadata Kind = iota + 1
	KindClassification
	KindQuery
)

func (k Kind) String() string {
	switch k {
	case KindMetadata:
		return "metadata"
	case KindClassification:
		return "classification"
	case KindQuery:
		return "query"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a kind name to a Kind
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "metadata":
		return KindMetadata, true
	case "classification":
		return KindClassification, true
	case "query":
		return KindQuery, true
	}
	return 0, false
}

// Filter is one search constraint. For classification filters Key is the
// taxonomy nid and Value a taxonomy URN; for metadata and query filters Key
// is an attribute name.
type Filter struct {
	Kind  Kind   `json:"kind"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Metadata returns an attribute equality filter
func Metadata(key, value string) Filter {
	return Filter{Kind: KindMetadata, Key: key, Value: value}
}

// Classification returns a taxonomy subtree filter
func Classification(nid, urn string) Filter {
	return Filter{Kind: KindClassification, Key: nid, Value: urn}
}

// Query returns a free-text filter over one attribute
func Query(key, value string) Filter {
	return Filter{Kind: KindQuery, Key: key, Value: value}
}

func (f Filter) String() string {
	return fmt.Sprintf("%s.%s=%s", f.Kind, f.Key, f.Value)
}
