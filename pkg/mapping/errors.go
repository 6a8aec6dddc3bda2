package mapping

import (
	"fmt"

	"github.com/rs/zerolog"
)

// MapperNotFoundError occurs when a pipeline references a mapper name
// the registry does not define.
type MapperNotFoundError struct {
	error
	mapperName string
}

// NotFoundMapperName returns the name of the mapper not found.
func (err MapperNotFoundError) NotFoundMapperName() string {
	return err.mapperName
}

// MarshalZerologObject implements zerolog object marshalling.
func (err MapperNotFoundError) MarshalZerologObject(e *zerolog.Event) {
	e.Err(err.error).Str("mapper", err.mapperName)
}

// DetailsMetadata returns the metadata for details for this error.
func (err MapperNotFoundError) DetailsMetadata() map[string]string {
	return map[string]string{
		"mapper_name": err.mapperName,
	}
}

// NewMapperNotFoundErr constructs a new mapper not found error.
func NewMapperNotFoundErr(mapperName string) error {
	return MapperNotFoundError{
		error:      fmt.Errorf("mapper `%s` is not registered", mapperName),
		mapperName: mapperName,
	}
}
