package container

import (
	"fmt"

	"github.com/rs/zerolog"
)

// RelationNotFoundError occurs when a container is asked for a relation
// name that was never registered.
type RelationNotFoundError struct {
	error
	relationName string
}

// NotFoundRelationName returns the name of the relation not found.
func (err RelationNotFoundError) NotFoundRelationName() string {
	return err.relationName
}

// MarshalZerologObject implements zerolog object marshalling.
func (err RelationNotFoundError) MarshalZerologObject(e *zerolog.Event) {
	e.Err(err.error).Str("relation", err.relationName)
}

// DetailsMetadata returns the metadata for details for this error.
func (err RelationNotFoundError) DetailsMetadata() map[string]string {
	return map[string]string{
		"relation_name": err.relationName,
	}
}

// NewRelationNotFoundErr constructs a new relation not found error.
func NewRelationNotFoundErr(relationName string) error {
	return RelationNotFoundError{
		error:        fmt.Errorf("relation `%s` is not registered", relationName),
		relationName: relationName,
	}
}
