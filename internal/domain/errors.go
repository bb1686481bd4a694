package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when dropping a collection or view that does not exist.
	ErrNotFound = errors.New("collection not found")

	// ErrEmptySource is returned when no source collection is left to anchor a view.
	ErrEmptySource = errors.New("no source collections to anchor the view")
)

// StoreConnectionError reports a failure to reach the document store.
type StoreConnectionError struct {
	URI string // masked
	Err error
}

func (e *StoreConnectionError) Error() string {
	return fmt.Sprintf("connect store %s: %v", e.URI, e.Err)
}

func (e *StoreConnectionError) Unwrap() error { return e.Err }

// SchemaProbeError reports a failed sampling or field-existence query.
// Field is empty when the failure happened while sampling.
type SchemaProbeError struct {
	Collection CollectionID
	Field      FieldName
	Err        error
}

func (e *SchemaProbeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("sample %s: %v", e.Collection, e.Err)
	}
	return fmt.Sprintf("probe %s.%s: %v", e.Collection, e.Field, e.Err)
}

func (e *SchemaProbeError) Unwrap() error { return e.Err }

// JoinFieldError reports a joined collection whose name cannot be used as
// the $lookup output field of a merged view.
type JoinFieldError struct {
	Collection CollectionID
	Reason     string
}

func (e *JoinFieldError) Error() string {
	return fmt.Sprintf("collection %q cannot be joined: %s", e.Collection, e.Reason)
}

// CheckJoinField rejects names that would collide with the accumulator or
// be read as a path or expression when used as a field name.
func CheckJoinField(name CollectionID) error {
	switch {
	case name == DataField:
		return &JoinFieldError{Collection: name, Reason: "name shadows the " + DataField + " accumulator"}
	case strings.Contains(name, "."):
		return &JoinFieldError{Collection: name, Reason: "name contains '.'"}
	case strings.HasPrefix(name, "$"):
		return &JoinFieldError{Collection: name, Reason: "name starts with '$'"}
	}
	return nil
}
