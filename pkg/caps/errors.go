package caps

import (
	"errors"
	"fmt"
)

// ErrUnknownAlgorithm is returned by HashQuery for a digest algorithm that is
// not in the registry.
var ErrUnknownAlgorithm = errors.New("unknown hash algorithm")

// DuplicateElementError reports two identities or features that are
// byte-equal after escaping, which would make the canonical form ambiguous.
type DuplicateElementError struct {
	Kind  string // "identity" or "feature"
	Token string
}

func (e *DuplicateElementError) Error() string {
	return fmt.Sprintf("duplicate %s: %q", e.Kind, e.Token)
}

// AmbiguousFormTypeError reports a data form whose FORM_TYPE field carries
// more than one distinct value.
type AmbiguousFormTypeError struct {
	Values []string
}

func (e *AmbiguousFormTypeError) Error() string {
	return fmt.Sprintf("form with multiple types: %v", e.Values)
}

// DuplicateFormTypeError reports two data forms sharing the same FORM_TYPE.
type DuplicateFormTypeError struct {
	Type string
}

func (e *DuplicateFormTypeError) Error() string {
	return fmt.Sprintf("multiple forms of type %q", e.Type)
}

// HashMismatchError reports a fetched capability set whose computed
// fingerprint disagrees with the advertised one. Treated as evidence of a
// stale or malicious advertisement.
type HashMismatchError struct {
	Node     string
	Expected string
	Actual   string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("hash mismatch for %q: advertised %q, computed %q",
		e.Node, e.Expected, e.Actual)
}

// IsValidationError reports whether err is a canonicalization or
// verification failure, as opposed to a transport or I/O error. Waiters on a
// shared resolution retry after validation failures but propagate everything
// else.
func IsValidationError(err error) bool {
	var dup *DuplicateElementError
	var ambiguous *AmbiguousFormTypeError
	var dupType *DuplicateFormTypeError
	var mismatch *HashMismatchError
	return errors.As(err, &dup) ||
		errors.As(err, &ambiguous) ||
		errors.As(err, &dupType) ||
		errors.As(err, &mismatch)
}
