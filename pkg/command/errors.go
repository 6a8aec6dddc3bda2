package command

import (
	"fmt"

	"github.com/rs/zerolog"
)

// NotWritableError occurs when an update or delete command is bound to
// a relation whose dataset cannot address stored tuples.
type NotWritableError struct {
	error
	relationName string
	operation    string
}

// RelationName returns the name of the relation the command was bound
// to.
func (err NotWritableError) RelationName() string {
	return err.relationName
}

// Operation returns the command that required a writable dataset.
func (err NotWritableError) Operation() string {
	return err.operation
}

// MarshalZerologObject implements zerolog object marshalling.
func (err NotWritableError) MarshalZerologObject(e *zerolog.Event) {
	e.Err(err.error).Str("relation", err.relationName).Str("operation", err.operation)
}

// DetailsMetadata returns the metadata for details for this error.
func (err NotWritableError) DetailsMetadata() map[string]string {
	return map[string]string{
		"relation_name": err.relationName,
		"operation":     err.operation,
	}
}

// NewNotWritableErr constructs a new not writable error.
func NewNotWritableErr(relationName, operation string) error {
	return NotWritableError{
		error:        fmt.Errorf("relation `%s` is not writable, cannot %s", relationName, operation),
		relationName: relationName,
		operation:    operation,
	}
}
