// Package validation checks decoded artifacts against per-kind JSON Schemas.
package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"artifact-compiler/internal/common/errors"
	"artifact-compiler/internal/models"
)

// MaxReportedViolations bounds the violations carried by a schema error.
const MaxReportedViolations = 5

const rootPath = "$"

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// GetErrorMessages returns "field: message" for every error.
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

// GetErrorsForField returns errors for a field and everything below it.
func (vr *ValidationResult) GetErrorsForField(field string) []ValidationError {
	var fieldErrors []ValidationError
	for _, err := range vr.Errors {
		if err.Field == field || strings.HasPrefix(err.Field, field+".") {
			fieldErrors = append(fieldErrors, err)
		}
	}
	return fieldErrors
}

// Summarize renders at most MaxReportedViolations messages, followed by a
// "+N more" entry when errors were dropped.
func (vr *ValidationResult) Summarize() []string {
	messages := vr.GetErrorMessages()
	if len(messages) <= MaxReportedViolations {
		return messages
	}
	out := append([]string{}, messages[:MaxReportedViolations]...)
	return append(out, fmt.Sprintf("+%d more", len(messages)-MaxReportedViolations))
}

// SchemaValidator resolves artifact kinds to schema files under a directory.
// Compiled schemas are cached by file name for the life of the validator.
type SchemaValidator struct {
	dir   string
	mu    sync.Mutex
	cache map[string]*gojsonschema.Schema
}

func NewSchemaValidator(dir string) *SchemaValidator {
	return &SchemaValidator{
		dir:   dir,
		cache: make(map[string]*gojsonschema.Schema),
	}
}

// Dir returns the schema directory.
func (v *SchemaValidator) Dir() string {
	return v.dir
}

// Preload compiles the schemas for kinds up front.
func (v *SchemaValidator) Preload(kinds ...models.ArtifactKind) error {
	for _, kind := range kinds {
		if _, err := v.schema(kind); err != nil {
			return err
		}
	}
	return nil
}

// Validate returns nil when decoded satisfies the schema for kind, a
// KindSchemaViolation error when it does not and a KindSchemaNotFound error
// when the schema cannot be loaded.
func (v *SchemaValidator) Validate(decoded interface{}, kind models.ArtifactKind) error {
	result, err := v.ValidateDetailed(decoded, kind)
	if err != nil {
		return err
	}
	if result.Valid {
		return nil
	}
	return errors.NewSchemaViolationError(v.path(kind), result.Summarize())
}

// ValidateDetailed runs full validation and returns every violation.
func (v *SchemaValidator) ValidateDetailed(decoded interface{}, kind models.ArtifactKind) (*ValidationResult, error) {
	schema, err := v.schema(kind)
	if err != nil {
		return nil, err
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(decoded))
	if err != nil {
		return nil, errors.NewSchemaViolationError(v.path(kind), []string{err.Error()}).WithCause(err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   fieldPath(desc.Field()),
			Message: desc.Description(),
			Code:    desc.Type(),
		})
	}
	sort.SliceStable(out.Errors, func(i, j int) bool {
		return out.Errors[i].Field < out.Errors[j].Field
	})
	return out, nil
}

func (v *SchemaValidator) schema(kind models.ArtifactKind) (*gojsonschema.Schema, error) {
	name := kind.SchemaFile()
	if !kind.Valid() {
		return nil, errors.NewSchemaNotFoundError(name, fmt.Errorf("invalid artifact kind %q", kind))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if s, ok := v.cache[name]; ok {
		return s, nil
	}

	path := v.path(kind)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewSchemaNotFoundError(path, err)
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, errors.NewSchemaNotFoundError(path, fmt.Errorf("compile schema: %w", err))
	}
	v.cache[name] = s
	return s, nil
}

func (v *SchemaValidator) path(kind models.ArtifactKind) string {
	return filepath.Join(v.dir, kind.SchemaFile())
}

// fieldPath converts gojsonschema's context path to dot notation rooted at $.
func fieldPath(field string) string {
	if field == "" || field == gojsonschema.STRING_CONTEXT_ROOT {
		return rootPath
	}
	return strings.TrimPrefix(field, gojsonschema.STRING_CONTEXT_ROOT+".")
}
