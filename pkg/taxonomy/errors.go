package taxonomy

import (
	"errors"
	"fmt"

	"github.com/platinummonkey/catalog/pkg/catalog"
)

// ErrReferenceEntry is returned when a reference entry is inserted into a hierarchy tree
var ErrReferenceEntry = fmt.Errorf("%w: reference entries are not hierarchy members", catalog.ErrInvalidArgument)

// PathError describes a taxonomy URL that cannot be split into segments
type PathError struct {
	URL    string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("malformed taxonomy path %q: %s", e.URL, e.Reason)
}

func (e *PathError) Unwrap() error {
	return catalog.ErrInvalidArgument
}

// ConflictError is returned when an insert would give one URN two positions,
// or one position two URNs
type ConflictError struct {
	URN         string
	ExistingURL string
	URL         string
}

func (e *ConflictError) Error() string {
	if e.ExistingURL == e.URL {
		return fmt.Sprintf("taxonomy path %s is already occupied by another urn than %s", e.URL, e.URN)
	}
	return fmt.Sprintf("taxonomy urn %s already placed at %s, cannot insert at %s", e.URN, e.ExistingURL, e.URL)
}

func (e *ConflictError) Unwrap() error {
	return catalog.ErrConflict
}

// IsPathError reports whether err is a *PathError
func IsPathError(err error) bool {
	var pe *PathError
	return errors.As(err, &pe)
}
