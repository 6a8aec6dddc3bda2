package relation

import (
	"fmt"

	"github.com/rs/zerolog"
)

// UnsupportedCombineArgumentError occurs when Combine receives an
// argument that is neither an association name, a Nested tree, a
// sequence of those, nor a map of names to children.
type UnsupportedCombineArgumentError struct {
	error
	argumentType string
}

// ArgumentType returns the Go type of the rejected argument.
func (err UnsupportedCombineArgumentError) ArgumentType() string {
	return err.argumentType
}

// MarshalZerologObject implements zerolog object marshalling.
func (err UnsupportedCombineArgumentError) MarshalZerologObject(e *zerolog.Event) {
	e.Err(err.error).Str("argument_type", err.argumentType)
}

// DetailsMetadata returns the metadata for details for this error.
func (err UnsupportedCombineArgumentError) DetailsMetadata() map[string]string {
	return map[string]string{
		"argument_type": err.argumentType,
	}
}

// NewUnsupportedCombineArgumentErr constructs a new unsupported combine
// argument error.
func NewUnsupportedCombineArgumentErr(argument any) error {
	argumentType := fmt.Sprintf("%T", argument)
	return UnsupportedCombineArgumentError{
		error:        fmt.Errorf("combine does not support arguments of type %s", argumentType),
		argumentType: argumentType,
	}
}

// NoPreloaderError occurs when an association marked for override
// loading resolves to a target relation with no preloader installed.
type NoPreloaderError struct {
	error
	relationName    string
	associationName string
}

// RelationName returns the name of the target relation missing a
// preloader.
func (err NoPreloaderError) RelationName() string {
	return err.relationName
}

// AssociationName returns the association that required the preloader.
func (err NoPreloaderError) AssociationName() string {
	return err.associationName
}

// MarshalZerologObject implements zerolog object marshalling.
func (err NoPreloaderError) MarshalZerologObject(e *zerolog.Event) {
	e.Err(err.error).Str("relation", err.relationName).Str("association", err.associationName)
}

// DetailsMetadata returns the metadata for details for this error.
func (err NoPreloaderError) DetailsMetadata() map[string]string {
	return map[string]string{
		"relation_name":    err.relationName,
		"association_name": err.associationName,
	}
}

// NewNoPreloaderErr constructs a new missing preloader error.
func NewNoPreloaderErr(relationName, associationName string) error {
	return NoPreloaderError{
		error: fmt.Errorf(
			"association `%s` is override-loaded but relation `%s` has no preloader",
			associationName,
			relationName,
		),
		relationName:    relationName,
		associationName: associationName,
	}
}

// NestedOverrideError occurs when a combine nests further associations
// onto an association marked for override loading; the override
// strategy replaces the default load wholesale, so there is no target
// query to combine onto.
type NestedOverrideError struct {
	error
	associationName string
}

// AssociationName returns the override association the nesting targeted.
func (err NestedOverrideError) AssociationName() string {
	return err.associationName
}

// MarshalZerologObject implements zerolog object marshalling.
func (err NestedOverrideError) MarshalZerologObject(e *zerolog.Event) {
	e.Err(err.error).Str("association", err.associationName)
}

// DetailsMetadata returns the metadata for details for this error.
func (err NestedOverrideError) DetailsMetadata() map[string]string {
	return map[string]string{
		"association_name": err.associationName,
	}
}

// NewNestedOverrideErr constructs a new nested override error.
func NewNestedOverrideErr(associationName string) error {
	return NestedOverrideError{
		error: fmt.Errorf(
			"association `%s` is override-loaded and does not take nested combines",
			associationName,
		),
		associationName: associationName,
	}
}
