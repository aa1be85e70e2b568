package entry

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when the target entry does not exist.
var ErrNotFound = errors.New("entry not found")

// ErrInvalidArgument is returned for malformed requests (missing required
// field, negative section index, empty replacement target).
var ErrInvalidArgument = errors.New("invalid argument")

// ConflictError is returned when the caller's expected version does not
// match the stored one. Current tells the caller what to re-fetch.
type ConflictError struct {
	Current   int
	Requested int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict: current version is %d, requested version is %d",
		e.Current, e.Requested)
}

// SectionNotFoundError is returned when a section index is not present in
// the document's current outline.
type SectionNotFoundError struct {
	Index int
}

func (e *SectionNotFoundError) Error() string {
	return fmt.Sprintf("section %d does not exist", e.Index)
}
