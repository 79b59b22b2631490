// Package schemas validates JSON documents against JSON Schema definitions.
package schemas

import (
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/jonathan/staffing-pipeline/internal/pipelineerr"
)

// FieldError is one violation at a JSON field path
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists every violation of one document. It unwraps to a
// *pipelineerr.ValidationError naming the first field, so callers can
// classify it like any other bad input.
type ValidationError struct {
	Schema string
	Errors []FieldError
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s validation failed:\n", ve.Schema)
	for i, e := range ve.Errors {
		fmt.Fprintf(&sb, "  %d. %s: %s\n", i+1, e.Field, e.Message)
	}
	return sb.String()
}

func (ve *ValidationError) Unwrap() error {
	if len(ve.Errors) == 0 {
		return &pipelineerr.ValidationError{Message: "document does not match " + ve.Schema}
	}
	return &pipelineerr.ValidationError{Field: ve.Errors[0].Field, Message: ve.Errors[0].Message}
}

// SchemaLoadError reports a schema that could not be compiled
type SchemaLoadError struct {
	Name  string
	Cause error
}

func (e *SchemaLoadError) Error() string {
	return fmt.Sprintf("failed to load schema %s: %v", e.Name, e.Cause)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

// Schema is a compiled schema, safe for concurrent use
type Schema struct {
	name   string
	schema *gojsonschema.Schema
}

// Compile parses a schema once for repeated validation. name is only used in
// errors.
func Compile(name string, schema []byte) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schema))
	if err != nil {
		return nil, &SchemaLoadError{Name: name, Cause: err}
	}
	return &Schema{name: name, schema: s}, nil
}

// Validate checks document against the schema
func (s *Schema) Validate(document []byte) error {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return &pipelineerr.ValidationError{Message: "invalid JSON: " + err.Error()}
	}
	if result.Valid() {
		return nil
	}

	verr := &ValidationError{Schema: s.name, Errors: make([]FieldError, 0, len(result.Errors()))}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		verr.Errors = append(verr.Errors, FieldError{Field: field, Message: desc.Description()})
	}
	return verr
}

// ValidateFile reads the JSON file at path and validates it, returning its
// contents
func (s *Schema) ValidateFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("JSON file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := s.Validate(data); err != nil {
		return nil, err
	}
	return data, nil
}

// Validate compiles schema and checks document against it
func Validate(name string, schema, document []byte) error {
	s, err := Compile(name, schema)
	if err != nil {
		return err
	}
	return s.Validate(document)
}
