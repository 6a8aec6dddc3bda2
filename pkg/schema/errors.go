package schema

import (
	"fmt"

	"github.com/rs/zerolog"
)

// AttributeNotFoundError occurs when a schema is asked for an attribute
// it does not define.
type AttributeNotFoundError struct {
	error
	schemaName    string
	attributeName string
}

// SchemaName returns the name of the schema that was queried.
func (err AttributeNotFoundError) SchemaName() string {
	return err.schemaName
}

// NotFoundAttributeName returns the name of the attribute not found.
func (err AttributeNotFoundError) NotFoundAttributeName() string {
	return err.attributeName
}

// MarshalZerologObject implements zerolog object marshalling.
func (err AttributeNotFoundError) MarshalZerologObject(e *zerolog.Event) {
	e.Err(err.error).Str("schema", err.schemaName).Str("attribute", err.attributeName)
}

// DetailsMetadata returns the metadata for details for this error.
func (err AttributeNotFoundError) DetailsMetadata() map[string]string {
	return map[string]string{
		"schema_name":    err.schemaName,
		"attribute_name": err.attributeName,
	}
}

// NewAttributeNotFoundErr constructs a new attribute not found error.
func NewAttributeNotFoundErr(schemaName, attributeName string) error {
	return AttributeNotFoundError{
		error:         fmt.Errorf("attribute `%s` not found in schema `%s`", attributeName, schemaName),
		schemaName:    schemaName,
		attributeName: attributeName,
	}
}

// AttributeAlreadyDefinedError occurs when a schema definition repeats an
// attribute name.
type AttributeAlreadyDefinedError struct {
	error
	schemaName    string
	attributeName string
}

// AlreadyDefinedAttributeName returns the repeated attribute name.
func (err AttributeAlreadyDefinedError) AlreadyDefinedAttributeName() string {
	return err.attributeName
}

// MarshalZerologObject implements zerolog object marshalling.
func (err AttributeAlreadyDefinedError) MarshalZerologObject(e *zerolog.Event) {
	e.Err(err.error).Str("schema", err.schemaName).Str("attribute", err.attributeName)
}

// DetailsMetadata returns the metadata for details for this error.
func (err AttributeAlreadyDefinedError) DetailsMetadata() map[string]string {
	return map[string]string{
		"schema_name":    err.schemaName,
		"attribute_name": err.attributeName,
	}
}

// NewAttributeAlreadyDefinedErr constructs a new duplicate attribute error.
func NewAttributeAlreadyDefinedErr(schemaName, attributeName string) error {
	return AttributeAlreadyDefinedError{
		error:         fmt.Errorf("attribute `%s` already defined in schema `%s`", attributeName, schemaName),
		schemaName:    schemaName,
		attributeName: attributeName,
	}
}

// AssociationNotFoundError occurs when combine or wrap reference an
// association the schema does not define.
type AssociationNotFoundError struct {
	error
	schemaName      string
	associationName string
}

// SchemaName returns the name of the schema that was queried.
func (err AssociationNotFoundError) SchemaName() string {
	return err.schemaName
}

// NotFoundAssociationName returns the name of the association not found.
func (err AssociationNotFoundError) NotFoundAssociationName() string {
	return err.associationName
}

// MarshalZerologObject implements zerolog object marshalling.
func (err AssociationNotFoundError) MarshalZerologObject(e *zerolog.Event) {
	e.Err(err.error).Str("schema", err.schemaName).Str("association", err.associationName)
}

// DetailsMetadata returns the metadata for details for this error.
func (err AssociationNotFoundError) DetailsMetadata() map[string]string {
	return map[string]string{
		"schema_name":      err.schemaName,
		"association_name": err.associationName,
	}
}

// NewAssociationNotFoundErr constructs a new association not found error.
func NewAssociationNotFoundErr(schemaName, associationName string) error {
	return AssociationNotFoundError{
		error:           fmt.Errorf("association `%s` not found in schema `%s`", associationName, schemaName),
		schemaName:      schemaName,
		associationName: associationName,
	}
}

// SchemaNotFinalizedError occurs when primary-key information is queried
// before Finalize has resolved it.
type SchemaNotFinalizedError struct {
	error
	schemaName string
	operation  string
}

// SchemaName returns the name of the schema that was queried.
func (err SchemaNotFinalizedError) SchemaName() string {
	return err.schemaName
}

// Operation returns the query that required finalization.
func (err SchemaNotFinalizedError) Operation() string {
	return err.operation
}

// MarshalZerologObject implements zerolog object marshalling.
func (err SchemaNotFinalizedError) MarshalZerologObject(e *zerolog.Event) {
	e.Err(err.error).Str("schema", err.schemaName).Str("operation", err.operation)
}

// DetailsMetadata returns the metadata for details for this error.
func (err SchemaNotFinalizedError) DetailsMetadata() map[string]string {
	return map[string]string{
		"schema_name": err.schemaName,
		"operation":   err.operation,
	}
}

// NewSchemaNotFinalizedErr constructs a new not finalized error.
func NewSchemaNotFinalizedErr(schemaName, operation string) error {
	return SchemaNotFinalizedError{
		error:      fmt.Errorf("schema `%s` must be finalized before calling %s", schemaName, operation),
		schemaName: schemaName,
		operation:  operation,
	}
}

// CoercionError occurs when a raw value cannot be normalized into an
// attribute's declared type.
type CoercionError struct {
	error
	primitive Primitive
	value     any
}

// Primitive returns the target primitive of the failed coercion.
func (err CoercionError) Primitive() Primitive {
	return err.primitive
}

// Value returns the rejected value.
func (err CoercionError) Value() any {
	return err.value
}

// MarshalZerologObject implements zerolog object marshalling.
func (err CoercionError) MarshalZerologObject(e *zerolog.Event) {
	e.Err(err.error).Str("primitive", err.primitive.String()).Interface("value", err.value)
}

// NewCoercionErr constructs a new coercion error.
func NewCoercionErr(primitive Primitive, value any) error {
	return CoercionError{
		error:     fmt.Errorf("cannot coerce %T value `%v` into %s", value, value, primitive),
		primitive: primitive,
		value:     value,
	}
}
