package ingest

import "fmt"

// ValidationError means the payload is missing a required correlation field.
// Nothing was written. Maps to a 400 at the HTTP boundary.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

// StorageError wraps a document-store failure. The gateway never retries;
// the caller decides. Maps to a 500 at the HTTP boundary.
type StorageError struct {
	Op         string
	Collection string
	Err        error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
